package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wastehaul/dispatchd/internal/dispatch"
	"github.com/wastehaul/dispatchd/internal/domain"
	"github.com/wastehaul/dispatchd/internal/metrics"
	"github.com/wastehaul/dispatchd/internal/registry"
)

// Registry is the geofence store the handler serves CRUD against.
type Registry interface {
	Add(ctx context.Context, g domain.Geofence) error
	Update(ctx context.Context, g domain.Geofence) error
	Remove(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (domain.Geofence, error)
	List(ctx context.Context) ([]domain.Geofence, error)
	CreateCustomerGeofence(ctx context.Context, orderID, customerID, label string, center domain.Coordinate) (domain.Geofence, error)
}

var _ Registry = (*registry.Registry)(nil)

// PositionSink receives vehicle position samples pushed over HTTP.
type PositionSink interface {
	Update(pos domain.Position)
}

// HealthChecker provides backend health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// MetricsSink records assignment evaluation outcomes.
type MetricsSink interface {
	AssignmentEvaluated(outcome string)
}

type Handler struct {
	registry  Registry
	scorer    *dispatch.Scorer
	positions PositionSink
	db        HealthChecker
	metrics   MetricsSink
}

func NewHandler(reg Registry, scorer *dispatch.Scorer) *Handler {
	return &Handler{registry: reg, scorer: scorer}
}

// WithPositionSink enables the POST /position endpoint.
func (h *Handler) WithPositionSink(sink PositionSink) *Handler {
	h.positions = sink
	return h
}

// WithHealthChecker sets the backend health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

// WithMetrics sets the metrics sink for assignment outcomes.
func (h *Handler) WithMetrics(sink MetricsSink) *Handler {
	h.metrics = sink
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/geofences" && r.Method == http.MethodPost:
		h.createGeofence(w, r)

	case path == "/geofences" && r.Method == http.MethodGet:
		h.listGeofences(w, r)

	case path == "/geofences/customer" && r.Method == http.MethodPost:
		h.createCustomerGeofence(w, r)

	case strings.HasPrefix(path, "/geofences/") && r.Method == http.MethodGet:
		h.getGeofence(w, r)

	case strings.HasPrefix(path, "/geofences/") && r.Method == http.MethodPut:
		h.updateGeofence(w, r)

	case strings.HasPrefix(path, "/geofences/") && r.Method == http.MethodDelete:
		h.deleteGeofence(w, r)

	case path == "/assignments" && r.Method == http.MethodPost:
		h.assign(w, r)

	case path == "/routes/sequence" && r.Method == http.MethodPost:
		h.sequence(w, r)

	case path == "/position" && r.Method == http.MethodPost:
		h.position(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["store"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["store"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

func (h *Handler) createGeofence(w http.ResponseWriter, r *http.Request) {
	var req CreateGeofenceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	g, err := toGeofence(uuid.New(), req, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.registry.Add(r.Context(), g); err != nil {
		log.Printf("api: create geofence error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create geofence")
		return
	}

	writeJSON(w, http.StatusCreated, fromGeofence(g))
}

func (h *Handler) createCustomerGeofence(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerGeofenceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}
	center := domain.Coordinate{Lat: req.Center.Lat, Lng: req.Center.Lng}
	if err := center.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	g, err := h.registry.CreateCustomerGeofence(r.Context(), req.OrderID, req.CustomerID, req.Label, center)
	if err != nil {
		log.Printf("api: create customer geofence error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create customer geofence")
		return
	}

	writeJSON(w, http.StatusCreated, fromGeofence(g))
}

func (h *Handler) listGeofences(w http.ResponseWriter, r *http.Request) {
	geofences, err := h.registry.List(r.Context())
	if err != nil {
		log.Printf("api: list geofences error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list geofences")
		return
	}

	resp := ListGeofencesResponse{Geofences: make([]GeofenceResponse, len(geofences))}
	for i, g := range geofences {
		resp.Geofences[i] = fromGeofence(g)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getGeofence(w http.ResponseWriter, r *http.Request) {
	id, ok := geofenceID(w, r)
	if !ok {
		return
	}

	g, err := h.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "geofence not found")
			return
		}
		log.Printf("api: get geofence error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to get geofence")
		return
	}

	writeJSON(w, http.StatusOK, fromGeofence(g))
}

func (h *Handler) updateGeofence(w http.ResponseWriter, r *http.Request) {
	id, ok := geofenceID(w, r)
	if !ok {
		return
	}

	var req CreateGeofenceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	existing, err := h.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "geofence not found")
			return
		}
		log.Printf("api: update geofence error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update geofence")
		return
	}

	g, err := toGeofence(id, req, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	g.CreatedAt = existing.CreatedAt

	if err := h.registry.Update(r.Context(), g); err != nil {
		log.Printf("api: update geofence error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update geofence")
		return
	}

	writeJSON(w, http.StatusOK, fromGeofence(g))
}

func (h *Handler) deleteGeofence(w http.ResponseWriter, r *http.Request) {
	id, ok := geofenceID(w, r)
	if !ok {
		return
	}

	if err := h.registry.Remove(r.Context(), id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "geofence not found")
			return
		}
		log.Printf("api: delete geofence error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete geofence")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var req AssignmentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := toOrder(req.Order)
	if err != nil {
		h.recordAssignment(metrics.AssignmentInvalid)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	drivers := make([]domain.Driver, 0, len(req.Drivers))
	for _, d := range req.Drivers {
		driver, err := toDriver(d)
		if err != nil {
			h.recordAssignment(metrics.AssignmentInvalid)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		drivers = append(drivers, driver)
	}

	result, err := h.scorer.Assign(drivers, order)
	if err != nil {
		if errors.Is(err, dispatch.ErrNoEligibleDriver) {
			h.recordAssignment(metrics.AssignmentNoDriver)
			writeError(w, http.StatusUnprocessableEntity, "no eligible driver")
			return
		}
		h.recordAssignment(metrics.AssignmentInvalid)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.recordAssignment(metrics.AssignmentAssigned)

	writeJSON(w, http.StatusOK, AssignmentResponse{
		OrderID:                  result.OrderID,
		DriverID:                 result.DriverID,
		EstimatedDurationSeconds: int(result.EstimatedDuration / time.Second),
		RouteDistanceMeters:      result.RouteDistanceMeters,
		Confidence:               result.Confidence,
	})
}

func (h *Handler) sequence(w http.ResponseWriter, r *http.Request) {
	var req SequenceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	start := domain.Coordinate{Lat: req.Start.Lat, Lng: req.Start.Lng}
	if err := start.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "start: "+err.Error())
		return
	}

	orders := make([]domain.DeliveryOrder, 0, len(req.Orders))
	for _, o := range req.Orders {
		order, err := toOrder(o)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		orders = append(orders, order)
	}

	sequenced, err := dispatch.Sequence(orders, start)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := SequenceResponse{Orders: make([]OrderBody, len(sequenced))}
	for i, o := range sequenced {
		resp.Orders[i] = fromOrder(o)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) position(w http.ResponseWriter, r *http.Request) {
	if h.positions == nil {
		writeError(w, http.StatusNotFound, "position ingestion not enabled")
		return
	}

	var req PositionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	pos, err := toPosition(req, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.positions.Update(pos)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) recordAssignment(outcome string) {
	if h.metrics != nil {
		h.metrics.AssignmentEvaluated(outcome)
	}
}

// geofenceID extracts the id from a /geofences/{id} path.
func geofenceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 || parts[0] != "geofences" {
		writeError(w, http.StatusNotFound, "not found")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(parts[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid geofence id")
		return uuid.Nil, false
	}
	return id, true
}

// decodeBody decodes a size-limited JSON request body into v. On failure it
// writes the error response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
