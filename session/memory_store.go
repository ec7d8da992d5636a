package session

import (
	"context"
	"sync"
	"time"
)

type recordKey struct {
	owner     string
	sessionID string
}

// MemoryStore keeps records in process. It suits a single instance and tests;
// records are lost on restart.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[recordKey]Record
	retention Retention
}

func NewMemoryStore(retention Retention) *MemoryStore {
	return &MemoryStore{
		records:   make(map[recordKey]Record),
		retention: retention,
	}
}

func (m *MemoryStore) Create(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey{rec.Owner, rec.SessionID}
	if _, exists := m.records[key]; exists {
		return ErrDuplicateSession
	}

	rec.ExpiresAt = m.retention.expiresAt(*rec)
	m.records[key] = *rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, identity, sessionID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.records[recordKey{identity, sessionID}]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return &rec, nil
}

func (m *MemoryStore) ListByStatus(_ context.Context, identity string, status Status) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []Record
	for key, rec := range m.records {
		if key.owner == identity && rec.Status == status {
			records = append(records, rec)
		}
	}
	sortByLastActive(records)
	return records, nil
}

func (m *MemoryStore) Touch(_ context.Context, identity, sessionID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey{identity, sessionID}
	rec, exists := m.records[key]
	if !exists || rec.Status != StatusActive {
		return false, nil
	}

	rec.LastActiveAt = at
	rec.ExpiresAt = m.retention.expiresAt(rec)
	m.records[key] = rec
	return true, nil
}

func (m *MemoryStore) CompareAndSetStatus(_ context.Context, identity, sessionID string, expected Status, next Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey{identity, sessionID}
	rec, exists := m.records[key]
	if !exists || rec.Status != expected {
		return false, nil
	}

	rec.Status = next.Status
	rec.LastActiveAt = next.LastActiveAt
	rec.DeactivatedAt = next.DeactivatedAt
	rec.DeactivationReason = next.DeactivationReason
	rec.BlacklistedAt = next.BlacklistedAt
	rec.BlacklistReason = next.BlacklistReason
	rec.ExpiresAt = m.retention.expiresAt(rec)
	m.records[key] = rec
	return true, nil
}

func (m *MemoryStore) Purge(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64
	for key, rec := range m.records {
		if !now.Before(rec.ExpiresAt) {
			delete(m.records, key)
			purged++
		}
	}
	return purged, nil
}
