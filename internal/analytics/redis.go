// Package analytics records per-geofence event counts in Redis time
// buckets. Best-effort: the engine's correctness never depends on it.
package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wastehaul/dispatchd/internal/domain"
)

type Config struct {
	Window    time.Duration // 1m, 5m, 1h
	Retention time.Duration // TTL, must be >= Window
}

func DefaultConfig() Config {
	return Config{
		Window:    time.Minute,
		Retention: 24 * time.Hour,
	}
}

type RedisSink struct {
	client *redis.Client
	config Config
}

func NewRedisSink(client *redis.Client, config Config) *RedisSink {
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.Retention < config.Window {
		config.Retention = 24 * time.Hour
	}
	return &RedisSink{client: client, config: config}
}

// Record increments the event's time bucket.
func (s *RedisSink) Record(ctx context.Context, event domain.GeofenceEvent) error {
	key := buildKey(event.GeofenceID.String(), string(event.Kind), event.OccurredAt, s.config.Window)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.config.Retention)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// Run consumes a bus subscription until the channel closes or the context
// is cancelled. Failures are logged, never propagated.
func (s *RedisSink) Run(ctx context.Context, events <-chan domain.GeofenceEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := s.Record(ctx, event); err != nil {
				log.Printf("analytics: record error: %v", err)
			}
		}
	}
}

func buildKey(geofenceID, kind string, t time.Time, window time.Duration) string {
	bucket := truncateToBucket(t, window)
	return fmt.Sprintf("gf:%s:%s:%s", geofenceID, kind, bucket)
}

func truncateToBucket(t time.Time, window time.Duration) string {
	t = t.UTC()
	switch window {
	case time.Minute:
		return t.Format("200601021504")
	case 5 * time.Minute:
		minute := (t.Minute() / 5) * 5
		return t.Format("2006010215") + fmt.Sprintf("%02d", minute)
	case time.Hour:
		return t.Format("2006010215")
	default:
		return t.Format("200601021504")
	}
}
