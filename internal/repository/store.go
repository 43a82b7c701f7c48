package repository

import (
	"context"

	"github.com/notifyhub/delivery-queue/internal/domain"
)

// QueueRecordStore is the single source of truth for queued items across every
// process instance. Writes are last-write-wins; there is no per-item locking.
//
// Implementations: PostgreSQL (pg_store.go), Redis (redis_store.go) and an
// in-memory store used by tests and single-process setups (memory_store.go).
type QueueRecordStore interface {
	// Save inserts or replaces the item and restarts its retention TTL.
	Save(ctx context.Context, item *domain.QueuedItem) error
	// GetByID returns domain.ErrNotFound for missing or expired items.
	GetByID(ctx context.Context, id string) (*domain.QueuedItem, error)
	FindByStatus(ctx context.Context, statuses ...domain.Status) ([]*domain.QueuedItem, error)
	FindAll(ctx context.Context) ([]*domain.QueuedItem, error)
	// Delete is idempotent: deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// Expirer is implemented by stores whose TTL expiry needs an explicit sweep.
// Redis expires keys itself and does not implement it.
type Expirer interface {
	PurgeExpired(ctx context.Context) (int64, error)
}
