package storage

import (
	"context"
	"sync"

	"github.com/rovshanmuradov/solana-query/internal/storage/models"
)

// MemoryStore keeps the most recent records in a ring. It is the sink
// when no database is configured.
type MemoryStore struct {
	mu      sync.Mutex
	records []*models.Record
	next    int
	full    bool
}

// NewMemoryStore creates a store holding at most capacity records.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryStore{records: make([]*models.Record, capacity)}
}

func (m *MemoryStore) SaveRecord(ctx context.Context, rec *models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	m.records[m.next] = &cp
	m.next = (m.next + 1) % len(m.records)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

func (m *MemoryStore) ListRecords(ctx context.Context, operation string, limit int) ([]*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.next
	if m.full {
		n = len(m.records)
	}

	out := make([]*models.Record, 0, n)
	for i := 0; i < n; i++ {
		idx := (m.next - 1 - i + len(m.records)) % len(m.records)
		rec := m.records[idx]
		if operation != "" && rec.Operation != operation {
			continue
		}
		cp := *rec
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) Close(ctx context.Context) error {
	return nil
}
