// Package session stores per-session carts, either in process memory or in
// Redis when an address is configured.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/lumenshop/checkout/internal/domain/cart"
)

type memoryEntry struct {
	cart      *cart.Cart
	expiresAt time.Time
}

// Memory is a process-local cart store for single-instance deployments and
// tests. Entries expire after the configured TTL.
type Memory struct {
	mu  sync.RWMutex
	m   map[string]memoryEntry
	ttl time.Duration
}

var _ cart.Store = (*Memory)(nil)

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		m:   make(map[string]memoryEntry),
		ttl: ttl,
	}
}

func (s *Memory) Get(_ context.Context, sessionID string) (*cart.Cart, error) {
	s.mu.RLock()
	e, ok := s.m[sessionID]
	s.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return &cart.Cart{}, nil
	}
	cp := *e.cart
	return &cp, nil
}

func (s *Memory) Put(_ context.Context, sessionID string, c *cart.Cart) error {
	cp := *c
	cp.Entries = append([]cart.Entry(nil), c.Entries...)
	s.mu.Lock()
	s.m[sessionID] = memoryEntry{cart: &cp, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return nil
}

func (s *Memory) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.m, sessionID)
	s.mu.Unlock()
	return nil
}

// Sweep drops expired entries. Call it periodically from a background
// goroutine.
func (s *Memory) Sweep() {
	now := time.Now()
	s.mu.Lock()
	for id, e := range s.m {
		if now.After(e.expiresAt) {
			delete(s.m, id)
		}
	}
	s.mu.Unlock()
}
