package repository

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/notifyhub/delivery-queue/internal/domain"
)

// RedisStore keeps each item as a JSON value under <prefix>:item:<id> with a
// native key expiry, plus one set per status (<prefix>:status:<STATUS>) for
// filter queries. Index sets do not expire; ids whose item key is gone are
// pruned when a query runs into them.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns a QueueRecordStore backed by Redis.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "delivery_queue"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) itemKey(id string) string { return s.prefix + ":item:" + id }

func (s *RedisStore) statusKey(st domain.Status) string { return s.prefix + ":status:" + string(st) }

func (s *RedisStore) Save(ctx context.Context, item *domain.QueuedItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return domain.StoreError(err, "encode queued item")
	}
	ttl := item.TTL
	if ttl <= 0 {
		ttl = domain.DefaultRetentionTTL
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, st := range domain.Statuses {
			if st != item.Status {
				pipe.SRem(ctx, s.statusKey(st), item.ID)
			}
		}
		pipe.SAdd(ctx, s.statusKey(item.Status), item.ID)
		pipe.Set(ctx, s.itemKey(item.ID), data, ttl)
		return nil
	})
	if err != nil {
		return domain.StoreError(err, "save queued item")
	}
	return nil
}

func (s *RedisStore) GetByID(ctx context.Context, id string) (*domain.QueuedItem, error) {
	data, err := s.client.Get(ctx, s.itemKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.StoreError(err, "get queued item")
	}
	var it domain.QueuedItem
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, domain.StoreError(err, "decode queued item")
	}
	return &it, nil
}

func (s *RedisStore) FindByStatus(ctx context.Context, statuses ...domain.Status) ([]*domain.QueuedItem, error) {
	var result []*domain.QueuedItem
	for _, st := range statuses {
		items, err := s.findOne(ctx, st)
		if err != nil {
			return nil, err
		}
		result = append(result, items...)
	}
	sortItems(result)
	return result, nil
}

func (s *RedisStore) FindAll(ctx context.Context) ([]*domain.QueuedItem, error) {
	return s.FindByStatus(ctx, domain.Statuses...)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.itemKey(id))
		for _, st := range domain.Statuses {
			pipe.SRem(ctx, s.statusKey(st), id)
		}
		return nil
	})
	if err != nil {
		return domain.StoreError(err, "delete queued item")
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return domain.StoreError(err, "ping redis")
	}
	return nil
}

// findOne loads every live item indexed under st. An id that points at an
// expired key, or at an item that has since moved to another status, is
// dropped from the set.
func (s *RedisStore) findOne(ctx context.Context, st domain.Status) ([]*domain.QueuedItem, error) {
	ids, err := s.client.SMembers(ctx, s.statusKey(st)).Result()
	if err != nil {
		return nil, domain.StoreError(err, "read status index")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.itemKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, domain.StoreError(err, "load queued items")
	}

	var (
		items []*domain.QueuedItem
		stale []any
	)
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var it domain.QueuedItem
		if err := json.Unmarshal([]byte(raw), &it); err != nil {
			return nil, domain.StoreError(err, "decode queued item")
		}
		if it.Status != st {
			stale = append(stale, ids[i])
			continue
		}
		items = append(items, &it)
	}
	if len(stale) > 0 {
		// Best effort; a failed prune is retried by the next query.
		s.client.SRem(ctx, s.statusKey(st), stale...)
	}
	return items, nil
}

func sortItems(items []*domain.QueuedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].QueuedAt.Equal(items[j].QueuedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].QueuedAt.Before(items[j].QueuedAt)
	})
}

var _ QueueRecordStore = (*RedisStore)(nil)
