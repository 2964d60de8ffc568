package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/wastehaul/dispatchd/internal/dispatch"
	"github.com/wastehaul/dispatchd/internal/domain"
	"github.com/wastehaul/dispatchd/internal/registry"
)

// mockRegistry is an in-memory Registry for handler tests.
type mockRegistry struct {
	mu     sync.Mutex
	fences map[uuid.UUID]domain.Geofence
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{fences: make(map[uuid.UUID]domain.Geofence)}
}

func (m *mockRegistry) Add(ctx context.Context, g domain.Geofence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fences[g.ID]; ok {
		return registry.ErrAlreadyExists
	}
	m.fences[g.ID] = g
	return nil
}

func (m *mockRegistry) Update(ctx context.Context, g domain.Geofence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fences[g.ID]; !ok {
		return registry.ErrNotFound
	}
	m.fences[g.ID] = g
	return nil
}

func (m *mockRegistry) Remove(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fences[id]; !ok {
		return registry.ErrNotFound
	}
	delete(m.fences, id)
	return nil
}

func (m *mockRegistry) Get(ctx context.Context, id uuid.UUID) (domain.Geofence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.fences[id]
	if !ok {
		return domain.Geofence{}, registry.ErrNotFound
	}
	return g, nil
}

func (m *mockRegistry) List(ctx context.Context) ([]domain.Geofence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Geofence, 0, len(m.fences))
	for _, g := range m.fences {
		out = append(out, g)
	}
	return out, nil
}

func (m *mockRegistry) CreateCustomerGeofence(ctx context.Context, orderID, customerID, label string, center domain.Coordinate) (domain.Geofence, error) {
	g := domain.Geofence{
		ID:           uuid.New(),
		Name:         label,
		Type:         domain.RegionCustomerLocation,
		Center:       center,
		RadiusMeters: registry.CustomerGeofenceRadiusMeters,
		Active:       true,
		Metadata:     map[string]string{"order_id": orderID, "customer_id": customerID},
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fences[g.ID] = g
	return g, nil
}

// mockSink records pushed positions.
type mockSink struct {
	mu        sync.Mutex
	positions []domain.Position
}

func (m *mockSink) Update(pos domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = append(m.positions, pos)
}

func newTestHandler() (*Handler, *mockRegistry, *mockSink) {
	reg := newMockRegistry()
	sink := &mockSink{}
	h := NewHandler(reg, dispatch.NewScorer(dispatch.DefaultScorerConfig())).
		WithPositionSink(sink)
	return h, reg, sink
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp HealthResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestCreateGeofence(t *testing.T) {
	h, reg, _ := newTestHandler()

	req := CreateGeofenceRequest{
		Name:         "depot-north",
		Type:         "depot",
		Center:       CoordinateBody{Lat: 3.139, Lng: 101.687},
		RadiusMeters: 250,
		Triggers: []TriggerBody{
			{Event: "enter", Action: "send_notification", Message: "truck at depot"},
		},
	}

	rec := doJSON(t, h, http.MethodPost, "/geofences", req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp GeofenceResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Name != "depot-north" || !resp.Active {
		t.Errorf("response = %+v", resp)
	}

	id, err := uuid.Parse(resp.ID)
	if err != nil {
		t.Fatalf("response id not a uuid: %v", err)
	}
	if _, err := reg.Get(context.Background(), id); err != nil {
		t.Errorf("geofence not stored: %v", err)
	}
}

func TestCreateGeofence_ValidationErrors(t *testing.T) {
	h, _, _ := newTestHandler()

	cases := []struct {
		name string
		req  CreateGeofenceRequest
	}{
		{"missing name", CreateGeofenceRequest{Type: "depot", Center: CoordinateBody{Lat: 3, Lng: 101}, RadiusMeters: 100}},
		{"unknown type", CreateGeofenceRequest{Name: "x", Type: "polygon", Center: CoordinateBody{Lat: 3, Lng: 101}, RadiusMeters: 100}},
		{"zero radius", CreateGeofenceRequest{Name: "x", Type: "depot", Center: CoordinateBody{Lat: 3, Lng: 101}}},
		{"lat out of range", CreateGeofenceRequest{Name: "x", Type: "depot", Center: CoordinateBody{Lat: 95, Lng: 101}, RadiusMeters: 100}},
		{"update_status without new_status", CreateGeofenceRequest{
			Name: "x", Type: "depot", Center: CoordinateBody{Lat: 3, Lng: 101}, RadiusMeters: 100,
			Triggers: []TriggerBody{{Event: "enter", Action: "update_status"}},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/geofences", tc.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestGeofenceLifecycle(t *testing.T) {
	h, _, _ := newTestHandler()

	created := doJSON(t, h, http.MethodPost, "/geofences", CreateGeofenceRequest{
		Name: "depot", Type: "depot", Center: CoordinateBody{Lat: 3.1, Lng: 101.6}, RadiusMeters: 100,
	})
	var g GeofenceResponse
	json.Unmarshal(created.Body.Bytes(), &g)

	// Get
	rec := doJSON(t, h, http.MethodGet, "/geofences/"+g.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	// Update
	inactive := false
	rec = doJSON(t, h, http.MethodPut, "/geofences/"+g.ID, CreateGeofenceRequest{
		Name: "depot-renamed", Type: "depot", Center: CoordinateBody{Lat: 3.1, Lng: 101.6},
		RadiusMeters: 150, Active: &inactive,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var updated GeofenceResponse
	json.Unmarshal(rec.Body.Bytes(), &updated)
	if updated.Name != "depot-renamed" || updated.Active || updated.RadiusMeters != 150 {
		t.Errorf("updated = %+v", updated)
	}

	// List
	rec = doJSON(t, h, http.MethodGet, "/geofences", nil)
	var list ListGeofencesResponse
	json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list.Geofences) != 1 {
		t.Errorf("list = %d geofences", len(list.Geofences))
	}

	// Delete
	rec = doJSON(t, h, http.MethodDelete, "/geofences/"+g.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/geofences/"+g.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rec.Code)
	}
}

func TestGeofence_NotFoundAndBadID(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := doJSON(t, h, http.MethodGet, "/geofences/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/geofences/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", rec.Code)
	}
}

func TestCreateCustomerGeofenceEndpoint(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := doJSON(t, h, http.MethodPost, "/geofences/customer", CreateCustomerGeofenceRequest{
		OrderID:    "ORD1",
		CustomerID: "CUST1",
		Label:      "12 Jalan Ampang",
		Center:     CoordinateBody{Lat: 3.139, Lng: 101.687},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp GeofenceResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Type != "customer_location" || resp.Metadata["order_id"] != "ORD1" {
		t.Errorf("response = %+v", resp)
	}

	// Missing order id is rejected.
	rec = doJSON(t, h, http.MethodPost, "/geofences/customer", CreateCustomerGeofenceRequest{
		Center: CoordinateBody{Lat: 3.139, Lng: 101.687},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing order id status = %d", rec.Code)
	}
}

func TestAssignEndpoint(t *testing.T) {
	h, _, _ := newTestHandler()

	req := AssignmentRequest{
		Order: OrderBody{
			ID:                "ORD1",
			Pickup:            CoordinateBody{Lat: 3.139, Lng: 101.687},
			Delivery:          CoordinateBody{Lat: 3.107, Lng: 101.595},
			Priority:          "high",
			EstimatedWeightKg: 200,
		},
		Drivers: []DriverBody{
			{
				ID:                "D1",
				Location:          CoordinateBody{Lat: 3.140, Lng: 101.688},
				Status:            "available",
				VehicleCapacityKg: 1000,
			},
			{
				ID:                "D2",
				Location:          CoordinateBody{Lat: 3.300, Lng: 101.800},
				Status:            "busy",
				VehicleCapacityKg: 1000,
			},
		},
	}

	rec := doJSON(t, h, http.MethodPost, "/assignments", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp AssignmentResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.DriverID != "D1" || resp.OrderID != "ORD1" {
		t.Errorf("response = %+v", resp)
	}
	if resp.EstimatedDurationSeconds <= 0 || resp.Confidence <= 0 {
		t.Errorf("response = %+v", resp)
	}
}

func TestAssignEndpoint_NoEligibleDriver(t *testing.T) {
	h, _, _ := newTestHandler()

	req := AssignmentRequest{
		Order: OrderBody{
			ID:       "ORD1",
			Pickup:   CoordinateBody{Lat: 3.139, Lng: 101.687},
			Delivery: CoordinateBody{Lat: 3.107, Lng: 101.595},
			Priority: "low",
		},
		Drivers: []DriverBody{
			{ID: "D1", Location: CoordinateBody{Lat: 3.14, Lng: 101.69}, Status: "offline", VehicleCapacityKg: 1000},
		},
	}

	rec := doJSON(t, h, http.MethodPost, "/assignments", req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestSequenceEndpoint(t *testing.T) {
	h, _, _ := newTestHandler()

	req := SequenceRequest{
		Start: CoordinateBody{Lat: 3.0, Lng: 101.0},
		Orders: []OrderBody{
			{ID: "far", Pickup: CoordinateBody{Lat: 3.5, Lng: 101}, Delivery: CoordinateBody{Lat: 3.5, Lng: 101}, Priority: "medium"},
			{ID: "near", Pickup: CoordinateBody{Lat: 3.1, Lng: 101}, Delivery: CoordinateBody{Lat: 3.1, Lng: 101}, Priority: "medium"},
		},
	}

	rec := doJSON(t, h, http.MethodPost, "/routes/sequence", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp SequenceResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Orders) != 2 || resp.Orders[0].ID != "near" {
		t.Errorf("response = %+v", resp)
	}
}

func TestPositionEndpoint(t *testing.T) {
	h, _, sink := newTestHandler()

	rec := doJSON(t, h, http.MethodPost, "/position", PositionRequest{
		Lat: 3.139, Lng: 101.687, SpeedKmh: 25,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(sink.positions))
	}
	if sink.positions[0].Lat != 3.139 || sink.positions[0].Timestamp.IsZero() {
		t.Errorf("position = %+v", sink.positions[0])
	}
}

func TestPositionEndpoint_InvalidCoordinate(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := doJSON(t, h, http.MethodPost, "/position", PositionRequest{Lat: 200, Lng: 0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := doJSON(t, h, http.MethodGet, "/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPatch, "/geofences", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestInvalidJSONIs400(t *testing.T) {
	h, _, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/geofences", bytes.NewBufferString("{broken"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}
