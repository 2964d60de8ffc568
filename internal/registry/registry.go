// Package registry owns the set of named geofence regions and their
// triggers, backed by a durable blob store.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wastehaul/dispatchd/internal/domain"
)

var (
	ErrNotFound      = errors.New("geofence not found")
	ErrAlreadyExists = errors.New("geofence already exists")
)

// CustomerGeofenceRadiusMeters is the radius of automatically created
// arrival regions.
const CustomerGeofenceRadiusMeters = 100

// Store persists the full geofence set as one opaque blob. The registry
// never assumes a query-capable backend.
type Store interface {
	Save(ctx context.Context, fences []domain.Geofence) error
	Load(ctx context.Context) ([]domain.Geofence, error)
}

type Registry struct {
	mu     sync.RWMutex
	store  Store
	fences map[uuid.UUID]domain.Geofence
	clock  func() time.Time
}

// New builds a registry and reloads the persisted geofence set.
func New(ctx context.Context, store Store) (*Registry, error) {
	r := &Registry{
		store:  store,
		fences: make(map[uuid.UUID]domain.Geofence),
		clock:  time.Now,
	}

	fences, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: load: %w", err)
	}
	for _, g := range fences {
		if err := g.Validate(); err != nil {
			return nil, fmt.Errorf("registry: load: %w", err)
		}
		r.fences[g.ID] = g
	}

	return r, nil
}

// Add validates and inserts a new geofence, persisting the full set.
func (r *Registry) Add(ctx context.Context, g domain.Geofence) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("registry: add: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.fences[g.ID]; exists {
		return fmt.Errorf("registry: add %s: %w", g.ID, ErrAlreadyExists)
	}

	now := r.clock().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now

	r.fences[g.ID] = g.Clone()
	if err := r.persistLocked(ctx); err != nil {
		delete(r.fences, g.ID)
		return err
	}
	return nil
}

// Update validates and replaces an existing geofence.
func (r *Registry) Update(ctx context.Context, g domain.Geofence) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("registry: update: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.fences[g.ID]
	if !ok {
		return fmt.Errorf("registry: update %s: %w", g.ID, ErrNotFound)
	}

	g.CreatedAt = existing.CreatedAt
	g.UpdatedAt = r.clock().UTC()

	r.fences[g.ID] = g.Clone()
	if err := r.persistLocked(ctx); err != nil {
		r.fences[g.ID] = existing
		return err
	}
	return nil
}

// Remove deletes a geofence by id.
func (r *Registry) Remove(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.fences[id]
	if !ok {
		return fmt.Errorf("registry: remove %s: %w", id, ErrNotFound)
	}

	delete(r.fences, id)
	if err := r.persistLocked(ctx); err != nil {
		r.fences[id] = existing
		return err
	}
	return nil
}

// Get returns a copy of the geofence with the given id.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (domain.Geofence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.fences[id]
	if !ok {
		return domain.Geofence{}, fmt.Errorf("registry: get %s: %w", id, ErrNotFound)
	}
	return g.Clone(), nil
}

// List returns a snapshot of all geofences, ordered by id for determinism.
func (r *Registry) List(ctx context.Context) ([]domain.Geofence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(func(domain.Geofence) bool { return true }), nil
}

// ActiveGeofences returns a snapshot of every active geofence. The monitor
// calls this once per tick; mutations never produce a partially-updated view.
func (r *Registry) ActiveGeofences(ctx context.Context) ([]domain.Geofence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(func(g domain.Geofence) bool { return g.Active }), nil
}

// CreateCustomerGeofence builds and registers the standard arrival region
// around a delivery coordinate: 100 m radius, enter sets the order to
// "arrived", exit sets it to "completed".
func (r *Registry) CreateCustomerGeofence(ctx context.Context, orderID, customerID, label string, center domain.Coordinate) (domain.Geofence, error) {
	if orderID == "" {
		return domain.Geofence{}, fmt.Errorf("registry: customer geofence: order id is required")
	}
	if err := center.Validate(); err != nil {
		return domain.Geofence{}, fmt.Errorf("registry: customer geofence: %w", err)
	}

	g := domain.Geofence{
		ID:           uuid.New(),
		Name:         label,
		Type:         domain.RegionCustomerLocation,
		Center:       center,
		RadiusMeters: CustomerGeofenceRadiusMeters,
		Active:       true,
		Triggers: []domain.Trigger{
			{Event: domain.KindEnter, Action: domain.ActionUpdateStatus, NewStatus: "arrived"},
			{Event: domain.KindExit, Action: domain.ActionUpdateStatus, NewStatus: "completed"},
		},
		Metadata: map[string]string{
			"order_id":    orderID,
			"customer_id": customerID,
		},
	}

	if err := r.Add(ctx, g); err != nil {
		return domain.Geofence{}, err
	}
	return r.Get(ctx, g.ID)
}

func (r *Registry) snapshotLocked(keep func(domain.Geofence) bool) []domain.Geofence {
	out := make([]domain.Geofence, 0, len(r.fences))
	for _, g := range r.fences {
		if keep(g) {
			out = append(out, g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// persistLocked writes the full current set to the store. Callers hold the
// write lock, so the persisted blob always matches the in-memory set.
func (r *Registry) persistLocked(ctx context.Context) error {
	fences := make([]domain.Geofence, 0, len(r.fences))
	for _, g := range r.fences {
		fences = append(fences, g)
	}
	sort.Slice(fences, func(i, j int) bool {
		return fences[i].ID.String() < fences[j].ID.String()
	})

	if err := r.store.Save(ctx, fences); err != nil {
		return fmt.Errorf("registry: persist: %w", err)
	}
	return nil
}
