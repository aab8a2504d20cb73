package store

import (
	"context"
	"sync"

	"github.com/deveshk/invoicescan/internal/invoice"
)

// Memory is an in-memory Store, safe for concurrent use. Data is lost
// on restart; it backs tests and throwaway runs.
type Memory struct {
	mu          sync.RWMutex
	owners      map[string]map[string]*invoice.Record
	granularity invoice.Granularity
}

// NewMemory creates an empty in-memory store.
func NewMemory(g invoice.Granularity) *Memory {
	return &Memory{
		owners:      make(map[string]map[string]*invoice.Record),
		granularity: g,
	}
}

// Upsert implements Store.
func (m *Memory) Upsert(ctx context.Context, rec *invoice.Record) (bool, error) {
	key := string(rec.Key(m.granularity).Encode())

	m.mu.Lock()
	defer m.mu.Unlock()

	records, ok := m.owners[rec.OwnerID]
	if !ok {
		records = make(map[string]*invoice.Record)
		m.owners[rec.OwnerID] = records
	}

	_, exists := records[key]

	// Store a copy to avoid external modifications.
	recCopy := *rec
	records[key] = &recCopy

	return !exists, nil
}

// List implements Store.
func (m *Memory) List(ctx context.Context, ownerID string) ([]*invoice.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*invoice.Record, 0, len(m.owners[ownerID]))
	for _, rec := range m.owners[ownerID] {
		recCopy := *rec
		result = append(result, &recCopy)
	}
	return result, nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, key invoice.Key) (bool, error) {
	encoded := string(key.Encode())

	m.mu.Lock()
	defer m.mu.Unlock()

	records, ok := m.owners[key.OwnerID]
	if !ok {
		return false, nil
	}
	if _, exists := records[encoded]; !exists {
		return false, nil
	}
	delete(records, encoded)
	return true, nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}

var _ Store = (*Memory)(nil)
