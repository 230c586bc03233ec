package store

import (
	"errors"
	"sync"
	"time"

	"github.com/i474232898/pasture-risk/internal/weather"
)

var (
	// ErrNotFound is returned when no evaluation is available for a given location.
	ErrNotFound = errors.New("no evaluation for location")
	// ErrExpired is returned when the latest evaluation is older than the cache TTL.
	ErrExpired = errors.New("evaluation expired")
)

// EvaluationHistory holds a time-ordered list of evaluations for a location.
type EvaluationHistory struct {
	Evaluations []weather.Evaluation
}

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: location key, value: history
	data map[string]*EvaluationHistory

	maxHistory int           // max number of evaluations per location
	maxAge     time.Duration // optional max age for history
	ttl        time.Duration // latest evaluation is served for this long

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// maxHistory, maxAge and ttl <= 0 are treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*EvaluationHistory),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		ttl:        ttl,
		now:        time.Now,
	}
}

// SetClock overrides the time source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SaveEvaluation appends ev for loc and enforces retention.
func (s *MemoryStore) SaveEvaluation(loc weather.Location, ev weather.Evaluation) {
	key := loc.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[key]
	if !ok {
		history = &EvaluationHistory{}
		s.data[key] = history
	}

	history.Evaluations = append(history.Evaluations, ev)

	if s.maxHistory > 0 && len(history.Evaluations) > s.maxHistory {
		over := len(history.Evaluations) - s.maxHistory
		history.Evaluations = history.Evaluations[over:]
	}

	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		i := 0
		for ; i < len(history.Evaluations); i++ {
			if !history.Evaluations[i].EvaluatedAt.Before(cutoff) {
				break
			}
		}
		// The newest evaluation is always kept.
		if i == len(history.Evaluations) {
			i--
		}
		history.Evaluations = history.Evaluations[i:]
	}
}

// GetLatest returns the most recent evaluation for a location, or
// ErrExpired when it is older than the TTL.
func (s *MemoryStore) GetLatest(loc weather.Location) (weather.Evaluation, error) {
	key := loc.Key()

	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[key]
	if !ok || len(history.Evaluations) == 0 {
		return weather.Evaluation{}, ErrNotFound
	}
	latest := history.Evaluations[len(history.Evaluations)-1]
	if s.ttl > 0 && s.now().Sub(latest.EvaluatedAt) > s.ttl {
		return latest, ErrExpired
	}
	return latest, nil
}

// GetRange returns all evaluations for a location evaluated between from and to (inclusive).
func (s *MemoryStore) GetRange(loc weather.Location, from, to time.Time) ([]weather.Evaluation, error) {
	key := loc.Key()

	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[key]
	if !ok || len(history.Evaluations) == 0 {
		return nil, ErrNotFound
	}

	var result []weather.Evaluation
	for _, ev := range history.Evaluations {
		ts := ev.EvaluatedAt
		if !ts.Before(from) && !ts.After(to) {
			result = append(result, ev)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}

	return result, nil
}
