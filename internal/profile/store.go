// Package profile keeps per-user travel preferences in process memory.
package profile

import (
	"context"
	"sync"

	"tripbot/internal/domain"
)

// Store is an in-memory domain.ProfileStore. Profiles live as long as the
// process.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]domain.Profile
}

func NewStore() *Store {
	return &Store{profiles: make(map[string]domain.Profile)}
}

// Get returns a copy of the user's profile; unknown users get an empty one.
func (s *Store) Get(_ context.Context, userID string) (domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles[userID].Clone(), nil
}

// Update shallow-merges u into the stored profile and returns the result.
func (s *Store) Update(_ context.Context, userID string, u domain.ProfileUpdate) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := u.Apply(s.profiles[userID])
	s.profiles[userID] = p
	return p.Clone(), nil
}

var _ domain.ProfileStore = (*Store)(nil)
