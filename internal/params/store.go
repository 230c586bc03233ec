package params

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// Store holds the process-wide current registry snapshot. Readers always
// observe a complete snapshot; updates replace it in one atomic swap.
type Store struct {
	current atomic.Pointer[Registry]
	mu      sync.Mutex          // serializes writers
	issued  map[string]struct{} // every version ever installed
}

// ErrVersionReused is returned when an update names a version that was
// already installed, even if it is no longer current.
var ErrVersionReused = errors.New("parameter version already issued")

// NewStore validates initial and installs it as the current snapshot.
func NewStore(initial *Registry) (*Store, error) {
	if initial == nil {
		return nil, errors.New("initial registry is nil")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	s := &Store{issued: map[string]struct{}{initial.Version(): {}}}
	s.current.Store(initial)
	return s, nil
}

// Current returns the snapshot in effect.
func (s *Store) Current() *Registry {
	return s.current.Load()
}

// Update derives a new snapshot from the current one and swaps it in when it
// passes SelfCheck. Versions are never reused, so a version tag always
// identifies one rule set. On failure the current snapshot stays in effect.
func (s *Store) Update(version string, overrides map[string]float64) (*Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.issued[version]; ok {
		return nil, fmt.Errorf("%w: %q", ErrVersionReused, version)
	}

	next, err := s.current.Load().With(version, overrides)
	if err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		log.Printf("ERROR: rejected parameter update %s: %v", version, err)
		return nil, err
	}
	s.current.Store(next)
	s.issued[version] = struct{}{}
	log.Printf("INFO: parameter registry updated to %s (%d overrides)", version, len(overrides))
	return next, nil
}
