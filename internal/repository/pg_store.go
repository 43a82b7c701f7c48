package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/delivery-queue/internal/clock"
	"github.com/notifyhub/delivery-queue/internal/domain"
)

const selectColumns = `
	SELECT id, status, message, attempt_count, max_attempts, queued_at,
	       last_attempt_at, retry_at, error_message, error_stack_trace, ttl_seconds
	FROM queued_items`

// PgStore keeps queued items in the queued_items table. Retention is enforced
// by expires_at: reads skip expired rows and PurgeExpired deletes them.
type PgStore struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

// NewPgStore returns a QueueRecordStore backed by PostgreSQL.
func NewPgStore(pool *pgxpool.Pool, c clock.Clock) *PgStore {
	if c == nil {
		c = clock.NewReal()
	}
	return &PgStore{pool: pool, clock: c}
}

func (s *PgStore) Save(ctx context.Context, item *domain.QueuedItem) error {
	msg, err := json.Marshal(item.Message)
	if err != nil {
		return domain.StoreError(err, "encode message")
	}
	ttl := item.TTL
	if ttl <= 0 {
		ttl = domain.DefaultRetentionTTL
	}
	expiresAt := s.clock.Now().Add(ttl)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO queued_items
			(id, status, priority, message, attempt_count, max_attempts, queued_at,
			 last_attempt_at, retry_at, error_message, error_stack_trace, ttl_seconds, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			status            = EXCLUDED.status,
			priority          = EXCLUDED.priority,
			message           = EXCLUDED.message,
			attempt_count     = EXCLUDED.attempt_count,
			max_attempts      = EXCLUDED.max_attempts,
			last_attempt_at   = EXCLUDED.last_attempt_at,
			retry_at          = EXCLUDED.retry_at,
			error_message     = EXCLUDED.error_message,
			error_stack_trace = EXCLUDED.error_stack_trace,
			ttl_seconds       = EXCLUDED.ttl_seconds,
			expires_at        = EXCLUDED.expires_at`,
		item.ID, item.Status, item.Message.Priority, msg, item.AttemptCount, item.MaxAttempts,
		item.QueuedAt, item.LastAttemptAt, item.RetryAt, item.ErrorMessage, item.ErrorStackTrace,
		int64(ttl/time.Second), expiresAt,
	)
	if err != nil {
		return domain.StoreError(err, "upsert queued item")
	}
	return nil
}

func (s *PgStore) GetByID(ctx context.Context, id string) (*domain.QueuedItem, error) {
	row := s.pool.QueryRow(ctx, selectColumns+` WHERE id = $1 AND expires_at > $2`, id, s.clock.Now())
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.StoreError(err, "get queued item")
	}
	return it, nil
}

func (s *PgStore) FindByStatus(ctx context.Context, statuses ...domain.Status) ([]*domain.QueuedItem, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := s.pool.Query(ctx, selectColumns+`
		WHERE status = ANY($1) AND expires_at > $2
		ORDER BY queued_at ASC`, names, s.clock.Now())
	if err != nil {
		return nil, domain.StoreError(err, "find queued items by status")
	}
	defer rows.Close()
	items, err := scanItems(rows)
	if err != nil {
		return nil, domain.StoreError(err, "scan queued items")
	}
	return items, nil
}

func (s *PgStore) FindAll(ctx context.Context) ([]*domain.QueuedItem, error) {
	rows, err := s.pool.Query(ctx, selectColumns+`
		WHERE expires_at > $1
		ORDER BY queued_at ASC`, s.clock.Now())
	if err != nil {
		return nil, domain.StoreError(err, "find queued items")
	}
	defer rows.Close()
	items, err := scanItems(rows)
	if err != nil {
		return nil, domain.StoreError(err, "scan queued items")
	}
	return items, nil
}

func (s *PgStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM queued_items WHERE id = $1`, id); err != nil {
		return domain.StoreError(err, "delete queued item")
	}
	return nil
}

func (s *PgStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return domain.StoreError(err, "ping database")
	}
	return nil
}

// PurgeExpired deletes rows whose retention has elapsed and reports how many went.
func (s *PgStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM queued_items WHERE expires_at <= $1`, s.clock.Now())
	if err != nil {
		return 0, domain.StoreError(err, "purge expired items")
	}
	return tag.RowsAffected(), nil
}

// ---- helpers ----

func scanItem(row pgx.Row) (*domain.QueuedItem, error) {
	var (
		it         domain.QueuedItem
		msg        []byte
		ttlSeconds int64
	)
	err := row.Scan(
		&it.ID, &it.Status, &msg, &it.AttemptCount, &it.MaxAttempts, &it.QueuedAt,
		&it.LastAttemptAt, &it.RetryAt, &it.ErrorMessage, &it.ErrorStackTrace, &ttlSeconds,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(msg, &it.Message); err != nil {
		return nil, errors.Wrap(err, "decode message")
	}
	it.TTL = time.Duration(ttlSeconds) * time.Second
	return &it, nil
}

func scanItems(rows pgx.Rows) ([]*domain.QueuedItem, error) {
	var result []*domain.QueuedItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, it)
	}
	return result, rows.Err()
}

var (
	_ QueueRecordStore = (*PgStore)(nil)
	_ Expirer          = (*PgStore)(nil)
)
