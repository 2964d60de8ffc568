package notify

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

type endpointState struct {
	state               breakerState
	consecutiveFailures int
	openedAt            time.Time
}

// Breaker tracks consecutive failures per endpoint URL and stops sending
// once the threshold is reached, until the cooldown elapses.
type Breaker struct {
	mu        sync.Mutex
	endpoints map[string]*endpointState
	threshold int
	cooldown  time.Duration
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		endpoints: make(map[string]*endpointState),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

func (b *Breaker) Allow(url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.endpoints[url]
	if !ok {
		return nil
	}

	switch s.state {
	case stateClosed:
		return nil
	case stateOpen:
		if time.Since(s.openedAt) >= b.cooldown {
			// One probe request is allowed through.
			s.state = stateHalfOpen
			return nil
		}
		return ErrCircuitOpen
	case stateHalfOpen:
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (b *Breaker) RecordSuccess(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.endpoints[url]
	if !ok {
		return
	}
	s.state = stateClosed
	s.consecutiveFailures = 0
}

func (b *Breaker) RecordFailure(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.endpoints[url]
	if !ok {
		s = &endpointState{}
		b.endpoints[url] = s
	}

	s.consecutiveFailures++
	if s.consecutiveFailures >= b.threshold {
		s.state = stateOpen
		s.openedAt = time.Now()
	}
}
