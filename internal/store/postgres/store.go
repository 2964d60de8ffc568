// Package postgres persists the geofence set as a single JSON blob row.
// The registry treats the backend as opaque storage, so the schema is one
// keyed row rather than a relational model.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/wastehaul/dispatchd/internal/domain"
	"github.com/wastehaul/dispatchd/internal/registry"
)

// blobKey is process-global: one geofence set per deployment, not per driver.
const blobKey = "geofences"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the blob table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, queryCreateTable)
	if err != nil {
		return fmt.Errorf("postgres store: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, fences []domain.Geofence) error {
	data, err := json.Marshal(fences)
	if err != nil {
		return fmt.Errorf("postgres store: marshal: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, queryUpsertBlob, blobKey, data); err != nil {
		return fmt.Errorf("postgres store: save: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) ([]domain.Geofence, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, queryGetBlob, blobKey).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: load: %w", err)
	}

	var fences []domain.Geofence
	if err := json.Unmarshal(data, &fences); err != nil {
		return nil, fmt.Errorf("postgres store: unmarshal: %w", err)
	}
	return fences, nil
}

var _ registry.Store = (*Store)(nil)
