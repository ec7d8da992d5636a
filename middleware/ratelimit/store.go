package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store counts hits per key inside fixed windows.
type Store interface {
	// Get returns the hit count of the window open at now, or zero.
	Get(ctx context.Context, key string, now time.Time) (count int, resetAt time.Time, err error)

	// Increment records a hit, opening a new window of length period if none
	// is open at now, and returns the updated count.
	Increment(ctx context.Context, key string, now time.Time, period time.Duration) (count int, resetAt time.Time, err error)

	Reset(ctx context.Context, key string) error

	// Purge drops windows that closed before now.
	Purge(ctx context.Context, now time.Time) (int64, error)
}

type MemoryStore struct {
	mu   sync.Mutex
	data map[string]*entry
}

type entry struct {
	count   int
	resetAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*entry),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string, now time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.data[key]; exists && now.Before(e.resetAt) {
		return e.count, e.resetAt, nil
	}
	return 0, time.Time{}, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string, now time.Time, period time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.data[key]; exists && now.Before(e.resetAt) {
		e.count++
		return e.count, e.resetAt, nil
	}

	e := &entry{count: 1, resetAt: now.Add(period)}
	s.data[key] = e
	return e.count, e.resetAt, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

func (s *MemoryStore) Purge(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for key, e := range s.data {
		if !now.Before(e.resetAt) {
			delete(s.data, key)
			purged++
		}
	}
	return purged, nil
}
