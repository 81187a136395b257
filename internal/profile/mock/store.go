// Package mock provides an in-memory profile.Store for tests and for
// running the pipeline without a database.
//
// Error injection fields let tests exercise the merger's conflict-retry and
// failure paths:
//
//	st := mock.NewStore()
//	st.UpdateConflicts = 2 // first two Updates fail with ErrVersionConflict
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tbruckner/voxatlas/internal/profile"
)

// Store is an in-memory implementation of profile.Store. Safe for concurrent
// use. The zero value is not usable; construct via [NewStore].
type Store struct {
	mu       sync.Mutex
	profiles map[string]profile.Profile

	// GetErr, ListErr, CreateErr, UpdateErr are returned verbatim from the
	// corresponding method when non-nil.
	GetErr    error
	ListErr   error
	CreateErr error
	UpdateErr error

	// UpdateConflicts makes the next N Update calls fail with
	// profile.ErrVersionConflict regardless of the supplied version.
	UpdateConflicts int
}

var _ profile.Store = (*Store)(nil)

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{profiles: make(map[string]profile.Profile)}
}

// Get implements profile.Store.
func (s *Store) Get(_ context.Context, id string) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return profile.Profile{}, s.GetErr
	}
	p, ok := s.profiles[id]
	if !ok {
		return profile.Profile{}, fmt.Errorf("mock store: profile %s: %w", id, profile.ErrNotFound)
	}
	return p.Clone(), nil
}

// List implements profile.Store. Results are ordered by ID for determinism.
func (s *Store) List(_ context.Context) ([]profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := make([]profile.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Create implements profile.Store.
func (s *Store) Create(_ context.Context, p profile.Profile) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return "", s.CreateErr
	}
	p = p.Clone()
	p.ID = uuid.NewString()
	p.Version = 1
	s.profiles[p.ID] = p
	return p.ID, nil
}

// Update implements profile.Store.
func (s *Store) Update(_ context.Context, p profile.Profile, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	if s.UpdateConflicts > 0 {
		s.UpdateConflicts--
		return fmt.Errorf("mock store: injected conflict: %w", profile.ErrVersionConflict)
	}
	current, ok := s.profiles[p.ID]
	if !ok {
		return fmt.Errorf("mock store: profile %s: %w", p.ID, profile.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("mock store: profile %s at version %d, expected %d: %w",
			p.ID, current.Version, expectedVersion, profile.ErrVersionConflict)
	}
	p = p.Clone()
	p.Version = expectedVersion + 1
	s.profiles[p.ID] = p
	return nil
}
