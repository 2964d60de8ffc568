package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wastehaul/dispatchd/internal/domain"
	"github.com/wastehaul/dispatchd/internal/testutil"
)

// mockStore keeps the persisted blob in memory and counts saves.
type mockStore struct {
	mu      sync.Mutex
	fences  []domain.Geofence
	saves   int
	saveErr error
}

func (s *mockStore) Save(ctx context.Context, fences []domain.Geofence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.fences = append([]domain.Geofence(nil), fences...)
	s.saves++
	return nil
}

func (s *mockStore) Load(ctx context.Context) ([]domain.Geofence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Geofence(nil), s.fences...), nil
}

func (s *mockStore) setSaveErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

func (s *mockStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func validFence(name string) domain.Geofence {
	return domain.Geofence{
		ID:           uuid.New(),
		Name:         name,
		Type:         domain.RegionDepot,
		Center:       domain.Coordinate{Lat: 3.139, Lng: 101.687},
		RadiusMeters: 250,
		Active:       true,
	}
}

func TestRegistry_AddGetRemove(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := &mockStore{}

	reg, err := New(ctx, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	g := validFence("depot-north")
	if err := reg.Add(ctx, g); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := reg.Get(ctx, g.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "depot-north" {
		t.Errorf("got name %q", got.Name)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set on add")
	}

	if err := reg.Remove(ctx, g.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := reg.Get(ctx, g.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after remove, got %v", err)
	}
}

func TestRegistry_AddDuplicateRejected(t *testing.T) {
	ctx := testutil.TestContext(t)
	reg, _ := New(ctx, &mockStore{})

	g := validFence("depot")
	if err := reg.Add(ctx, g); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := reg.Add(ctx, g); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestRegistry_AddInvalidRejected(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := &mockStore{}
	reg, _ := New(ctx, store)

	g := validFence("bad")
	g.RadiusMeters = 0

	if err := reg.Add(ctx, g); err == nil {
		t.Fatal("expected validation error for zero radius")
	}
	if store.saveCount() != 0 {
		t.Error("invalid geofence must not reach the store")
	}
}

func TestRegistry_UpdatePreservesCreatedAt(t *testing.T) {
	ctx := testutil.TestContext(t)
	reg, _ := New(ctx, &mockStore{})

	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	reg.clock = clock.Now

	g := validFence("depot")
	if err := reg.Add(ctx, g); err != nil {
		t.Fatalf("Add: %v", err)
	}
	created, _ := reg.Get(ctx, g.ID)

	clock.Advance(time.Hour)
	g.Name = "depot-renamed"
	if err := reg.Update(ctx, g); err != nil {
		t.Fatalf("Update: %v", err)
	}

	updated, _ := reg.Get(ctx, g.ID)
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Error("update must preserve CreatedAt")
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Error("update must advance UpdatedAt")
	}
	if updated.Name != "depot-renamed" {
		t.Errorf("got name %q", updated.Name)
	}
}

func TestRegistry_UpdateMissingIsNotFound(t *testing.T) {
	ctx := testutil.TestContext(t)
	reg, _ := New(ctx, &mockStore{})

	if err := reg.Update(ctx, validFence("ghost")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistry_EveryMutationPersists(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := &mockStore{}
	reg, _ := New(ctx, store)

	g := validFence("depot")
	reg.Add(ctx, g)
	g.Name = "renamed"
	reg.Update(ctx, g)
	reg.Remove(ctx, g.ID)

	if got := store.saveCount(); got != 3 {
		t.Errorf("expected 3 saves, got %d", got)
	}
}

func TestRegistry_FailedPersistRollsBackMutation(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := &mockStore{}
	reg, _ := New(ctx, store)

	kept := validFence("depot")
	if err := reg.Add(ctx, kept); err != nil {
		t.Fatalf("Add: %v", err)
	}

	store.setSaveErr(errors.New("disk full"))

	// A failed Add must not leave the fence visible to readers.
	ghost := validFence("ghost")
	if err := reg.Add(ctx, ghost); err == nil {
		t.Fatal("expected Add to surface the persist error")
	}
	if _, err := reg.Get(ctx, ghost.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("fence served from memory despite failed persist: %v", err)
	}

	// A failed Update must keep serving the prior value.
	renamed := kept
	renamed.Name = "depot-renamed"
	if err := reg.Update(ctx, renamed); err == nil {
		t.Fatal("expected Update to surface the persist error")
	}
	got, _ := reg.Get(ctx, kept.ID)
	if got.Name != "depot" {
		t.Errorf("update applied despite failed persist, name = %q", got.Name)
	}

	// A failed Remove must keep the fence, so a restart from the stale
	// blob cannot disagree with what this process serves.
	if err := reg.Remove(ctx, kept.ID); err == nil {
		t.Fatal("expected Remove to surface the persist error")
	}
	if _, err := reg.Get(ctx, kept.ID); err != nil {
		t.Errorf("fence dropped from memory despite failed persist: %v", err)
	}

	store.setSaveErr(nil)
	reloaded, err := New(ctx, store)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, err = reloaded.Get(ctx, kept.ID)
	if err != nil {
		t.Fatalf("Get after reload: %v", err)
	}
	if got.Name != "depot" {
		t.Errorf("durable state diverged from memory, name = %q", got.Name)
	}
	if _, err := reloaded.Get(ctx, ghost.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("rolled-back fence present after reload: %v", err)
	}
}

func TestRegistry_ActiveGeofencesFiltersInactive(t *testing.T) {
	ctx := testutil.TestContext(t)
	reg, _ := New(ctx, &mockStore{})

	active := validFence("active")
	inactive := validFence("inactive")
	inactive.Active = false

	reg.Add(ctx, active)
	reg.Add(ctx, inactive)

	got, err := reg.ActiveGeofences(ctx)
	if err != nil {
		t.Fatalf("ActiveGeofences: %v", err)
	}
	if len(got) != 1 || got[0].ID != active.ID {
		t.Errorf("expected only the active geofence, got %d", len(got))
	}

	all, _ := reg.List(ctx)
	if len(all) != 2 {
		t.Errorf("List should include inactive, got %d", len(all))
	}
}

func TestRegistry_SnapshotsAreCopies(t *testing.T) {
	ctx := testutil.TestContext(t)
	reg, _ := New(ctx, &mockStore{})

	g := validFence("depot")
	g.Triggers = []domain.Trigger{
		{Event: domain.KindEnter, Action: domain.ActionSendNotification, Message: "hello"},
	}
	reg.Add(ctx, g)

	snap, _ := reg.ActiveGeofences(ctx)
	snap[0].Triggers[0].Message = "mutated"
	snap[0].Name = "mutated"

	fresh, _ := reg.Get(ctx, g.ID)
	if fresh.Name != "depot" || fresh.Triggers[0].Message != "hello" {
		t.Error("snapshot mutation leaked into registry state")
	}
}

func TestRegistry_LoadRejectsCorruptSet(t *testing.T) {
	ctx := testutil.TestContext(t)

	bad := validFence("corrupt")
	bad.RadiusMeters = -5
	store := &mockStore{fences: []domain.Geofence{bad}}

	if _, err := New(ctx, store); err == nil {
		t.Fatal("expected load to reject invalid persisted geofence")
	}
}

func TestRegistry_ReloadRoundTrip(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := &mockStore{}

	reg, _ := New(ctx, store)
	g := validFence("depot")
	reg.Add(ctx, g)

	reloaded, err := New(ctx, store)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, err := reloaded.Get(ctx, g.ID)
	if err != nil {
		t.Fatalf("Get after reload: %v", err)
	}
	if got.Name != g.Name {
		t.Errorf("got name %q after reload", got.Name)
	}
}

func TestCreateCustomerGeofence(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := &mockStore{}
	reg, _ := New(ctx, store)

	center := domain.Coordinate{Lat: 3.139, Lng: 101.687}
	g, err := reg.CreateCustomerGeofence(ctx, "ORD1", "CUST1", "12 Jalan Ampang", center)
	if err != nil {
		t.Fatalf("CreateCustomerGeofence: %v", err)
	}

	if g.Type != domain.RegionCustomerLocation {
		t.Errorf("got type %s", g.Type)
	}
	if g.RadiusMeters != CustomerGeofenceRadiusMeters {
		t.Errorf("got radius %g", g.RadiusMeters)
	}
	if !g.Active {
		t.Error("customer geofence should be active")
	}
	if g.Metadata["order_id"] != "ORD1" || g.Metadata["customer_id"] != "CUST1" {
		t.Errorf("metadata = %v", g.Metadata)
	}

	if len(g.Triggers) != 2 {
		t.Fatalf("expected 2 triggers, got %d", len(g.Triggers))
	}
	enter, exit := g.Triggers[0], g.Triggers[1]
	if enter.Event != domain.KindEnter || enter.Action != domain.ActionUpdateStatus || enter.NewStatus != "arrived" {
		t.Errorf("enter trigger = %+v", enter)
	}
	if exit.Event != domain.KindExit || exit.Action != domain.ActionUpdateStatus || exit.NewStatus != "completed" {
		t.Errorf("exit trigger = %+v", exit)
	}

	if store.saveCount() != 1 {
		t.Errorf("expected customer geofence to persist, saves=%d", store.saveCount())
	}
}

func TestCreateCustomerGeofence_RequiresOrderID(t *testing.T) {
	ctx := testutil.TestContext(t)
	reg, _ := New(ctx, &mockStore{})

	if _, err := reg.CreateCustomerGeofence(ctx, "", "CUST1", "label", domain.Coordinate{Lat: 3, Lng: 101}); err == nil {
		t.Error("expected error for empty order id")
	}
}
