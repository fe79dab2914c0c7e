package mapping

import (
	"context"
	"sync"
	"time"
)

type scopeKey struct {
	key    string
	userID int64 // 0 for global, mirroring COALESCE(user_id, 0)
}

// MemoryRepository is an in-process Repository with the same scope and
// overwrite semantics as the Postgres tables.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[scopeKey]*Record
	nextID  int64
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[scopeKey]*Record),
		now:     time.Now,
	}
}

func scopeOf(key string, userID *int64) scopeKey {
	if userID == nil {
		return scopeKey{key: key}
	}
	return scopeKey{key: key, userID: *userID}
}

func (m *MemoryRepository) Candidates(_ context.Context, key string, userID *int64) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Record
	var bestOther *Record
	for sk, r := range m.records {
		if sk.key != key {
			continue
		}
		switch {
		case r.UserID == nil:
			out = append(out, copyRecord(r))
		case userID != nil && *r.UserID == *userID:
			out = append(out, copyRecord(r))
		default:
			if bestOther == nil || r.Confidence > bestOther.Confidence {
				bestOther = r
			}
		}
	}
	if bestOther != nil {
		out = append(out, copyRecord(bestOther))
	}
	return out, nil
}

func (m *MemoryRepository) UpsertIfBetter(_ context.Context, params WriteParams, margin float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sk := scopeOf(params.Key, params.UserID)
	if existing, ok := m.records[sk]; ok {
		if !ShouldOverwrite(existing.Confidence, existing.Source, params.Confidence, params.Source, margin) {
			return false, nil
		}
	}
	m.write(sk, params)
	return true, nil
}

func (m *MemoryRepository) Put(_ context.Context, params WriteParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(scopeOf(params.Key, params.UserID), params)
	return nil
}

func (m *MemoryRepository) CountAgreeingUsers(_ context.Context, key, value string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for sk, r := range m.records {
		if sk.key == key && r.UserID != nil && r.ResolvedValue == value {
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored mappings.
func (m *MemoryRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *MemoryRepository) write(sk scopeKey, params WriteParams) {
	now := m.now()
	if existing, ok := m.records[sk]; ok {
		existing.ResolvedValue = params.Value
		existing.ResolvedLabel = params.Label
		existing.Confidence = params.Confidence
		existing.Source = params.Source
		existing.UpdatedAt = now
		return
	}

	m.nextID++
	var uid *int64
	if params.UserID != nil {
		v := *params.UserID
		uid = &v
	}
	m.records[sk] = &Record{
		ID:            m.nextID,
		Key:           params.Key,
		ResolvedValue: params.Value,
		ResolvedLabel: params.Label,
		UserID:        uid,
		Confidence:    params.Confidence,
		Source:        params.Source,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func copyRecord(r *Record) *Record {
	c := *r
	return &c
}
