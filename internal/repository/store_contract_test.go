package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/delivery-queue/internal/domain"
	"github.com/notifyhub/delivery-queue/internal/repository"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newItem(id string, priority domain.Priority) *domain.QueuedItem {
	msg := domain.NotificationMessage{
		To:           "guest@example.com",
		TemplateName: "booking-confirmation",
		TemplateVariables: map[string]any{
			"firstName":          "Ada",
			"confirmationNumber": "WB-1001",
		},
		Priority: priority,
	}
	return domain.NewQueuedItem(id, msg, 5, time.Hour, t0, t0)
}

// runStoreContract exercises the behaviour every QueueRecordStore must share.
func runStoreContract(t *testing.T, store repository.QueueRecordStore) {
	ctx := context.Background()

	t.Run("save and get round trip", func(t *testing.T) {
		it := newItem("contract-1", domain.PriorityHigh)
		require.NoError(t, store.Save(ctx, it))

		got, err := store.GetByID(ctx, it.ID)
		require.NoError(t, err)
		assert.Equal(t, it.ID, got.ID)
		assert.Equal(t, domain.StatusQueued, got.Status)
		assert.Equal(t, "guest@example.com", got.Message.To)
		assert.Equal(t, domain.PriorityHigh, got.Message.Priority)
		assert.Equal(t, "WB-1001", got.Message.TemplateVariables["confirmationNumber"])
		assert.Equal(t, 5, got.MaxAttempts)
		require.NotNil(t, got.RetryAt)
		assert.True(t, got.RetryAt.Equal(t0))
	})

	t.Run("missing id is not found", func(t *testing.T) {
		_, err := store.GetByID(ctx, "contract-missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("save replaces and moves status", func(t *testing.T) {
		it := newItem("contract-2", domain.PriorityNormal)
		require.NoError(t, store.Save(ctx, it))

		it.BeginAttempt(t0)
		it.ScheduleRetry(t0.Add(time.Minute), "boom", "")
		require.NoError(t, store.Save(ctx, it))

		retrying, err := store.FindByStatus(ctx, domain.StatusRetrying)
		require.NoError(t, err)
		assert.Contains(t, ids(retrying), it.ID)

		queued, err := store.FindByStatus(ctx, domain.StatusQueued)
		require.NoError(t, err)
		assert.NotContains(t, ids(queued), it.ID)

		got, err := store.GetByID(ctx, it.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.AttemptCount)
		require.NotNil(t, got.ErrorMessage)
		assert.Equal(t, "boom", *got.ErrorMessage)
		assert.Nil(t, got.ErrorStackTrace)
	})

	t.Run("find by several statuses", func(t *testing.T) {
		sent := newItem("contract-3", domain.PriorityLow)
		sent.BeginAttempt(t0)
		sent.MarkSent(t0)
		require.NoError(t, store.Save(ctx, sent))

		items, err := store.FindByStatus(ctx, domain.StatusQueued, domain.StatusSent)
		require.NoError(t, err)
		assert.Contains(t, ids(items), "contract-1")
		assert.Contains(t, ids(items), "contract-3")
		assert.NotContains(t, ids(items), "contract-2")

		all, err := store.FindAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "contract-3"))
		require.NoError(t, store.Delete(ctx, "contract-3"))

		_, err := store.GetByID(ctx, "contract-3")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		sent, err := store.FindByStatus(ctx, domain.StatusSent)
		require.NoError(t, err)
		assert.NotContains(t, ids(sent), "contract-3")
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}

func ids(items []*domain.QueuedItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
