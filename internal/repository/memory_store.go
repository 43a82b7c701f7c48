package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/notifyhub/delivery-queue/internal/clock"
	"github.com/notifyhub/delivery-queue/internal/domain"
)

type memoryRecord struct {
	item      *domain.QueuedItem
	order     int64
	expiresAt time.Time
}

// MemoryStore is a hand-written, in-memory QueueRecordStore. It honours TTL
// against the injected clock and keeps insertion order so tests are deterministic.
type MemoryStore struct {
	mu      sync.RWMutex
	clock   clock.Clock
	records map[string]memoryRecord
	seq     int64

	// Optional error overrides, set in tests to simulate failure paths.
	SaveErr    error
	GetByIDErr error
	FindErr    error
	DeleteErr  error

	// SaveHook, when set, runs before each Save and may return an error to fail it.
	SaveHook func(item *domain.QueuedItem) error
}

func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.NewReal()
	}
	return &MemoryStore{clock: c, records: make(map[string]memoryRecord)}
}

func (m *MemoryStore) Save(_ context.Context, item *domain.QueuedItem) error {
	if m.SaveErr != nil {
		return domain.StoreError(m.SaveErr, "save item")
	}
	if m.SaveHook != nil {
		if err := m.SaveHook(item); err != nil {
			return domain.StoreError(err, "save item")
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[item.ID]
	if !ok {
		m.seq++
		rec.order = m.seq
	}
	rec.item = item.Clone()
	rec.expiresAt = m.clock.Now().Add(item.TTL)
	m.records[item.ID] = rec
	return nil
}

func (m *MemoryStore) GetByID(_ context.Context, id string) (*domain.QueuedItem, error) {
	if m.GetByIDErr != nil {
		return nil, domain.StoreError(m.GetByIDErr, "get item")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok || m.expired(rec) {
		return nil, domain.ErrNotFound
	}
	return rec.item.Clone(), nil
}

func (m *MemoryStore) FindByStatus(_ context.Context, statuses ...domain.Status) ([]*domain.QueuedItem, error) {
	if m.FindErr != nil {
		return nil, domain.StoreError(m.FindErr, "find items by status")
	}
	want := make(map[domain.Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	return m.collect(func(it *domain.QueuedItem) bool { return want[it.Status] }), nil
}

func (m *MemoryStore) FindAll(_ context.Context) ([]*domain.QueuedItem, error) {
	if m.FindErr != nil {
		return nil, domain.StoreError(m.FindErr, "find all items")
	}
	return m.collect(func(*domain.QueuedItem) bool { return true }), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	if m.DeleteErr != nil {
		return domain.StoreError(m.DeleteErr, "delete item")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// PurgeExpired drops every record whose TTL has elapsed.
func (m *MemoryStore) PurgeExpired(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.records {
		if m.expired(rec) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of live (unexpired) records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rec := range m.records {
		if !m.expired(rec) {
			n++
		}
	}
	return n
}

func (m *MemoryStore) expired(rec memoryRecord) bool {
	return !m.clock.Now().Before(rec.expiresAt)
}

func (m *MemoryStore) collect(keep func(*domain.QueuedItem) bool) []*domain.QueuedItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := make([]memoryRecord, 0, len(m.records))
	for _, rec := range m.records {
		if m.expired(rec) || !keep(rec.item) {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].order < recs[j].order })
	out := make([]*domain.QueuedItem, len(recs))
	for i, rec := range recs {
		out[i] = rec.item.Clone()
	}
	return out
}

var (
	_ QueueRecordStore = (*MemoryStore)(nil)
	_ Expirer          = (*MemoryStore)(nil)
)
