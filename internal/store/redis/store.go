// Package redis persists the geofence set as a single JSON value.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wastehaul/dispatchd/internal/domain"
	"github.com/wastehaul/dispatchd/internal/registry"
)

const blobKey = "dispatchd:geofences"

type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Save(ctx context.Context, fences []domain.Geofence) error {
	data, err := json.Marshal(fences)
	if err != nil {
		return fmt.Errorf("redis store: marshal: %w", err)
	}

	// No TTL: the geofence set lives until explicitly replaced.
	if err := s.client.Set(ctx, blobKey, data, 0).Err(); err != nil {
		return fmt.Errorf("redis store: save: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) ([]domain.Geofence, error) {
	data, err := s.client.Get(ctx, blobKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis store: load: %w", err)
	}

	var fences []domain.Geofence
	if err := json.Unmarshal(data, &fences); err != nil {
		return nil, fmt.Errorf("redis store: unmarshal: %w", err)
	}
	return fences, nil
}

var _ registry.Store = (*Store)(nil)
