package monitor

import (
	"context"
	"sync"

	"github.com/wastehaul/dispatchd/internal/domain"
)

// LatestSource adapts a push position feed to the monitor's pull interface.
// It holds only the most recent sample; samples arriving faster than the
// tick interval overwrite each other.
type LatestSource struct {
	mu     sync.RWMutex
	latest domain.Position
	set    bool
}

func NewLatestSource() *LatestSource {
	return &LatestSource{}
}

// Update replaces the held sample.
func (s *LatestSource) Update(pos domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = pos
	s.set = true
}

// CurrentPosition returns the most recent sample, or ErrNoPosition before
// the first update.
func (s *LatestSource) CurrentPosition(ctx context.Context) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.set {
		return domain.Position{}, ErrNoPosition
	}
	return s.latest, nil
}

var _ PositionSource = (*LatestSource)(nil)
