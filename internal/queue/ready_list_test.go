package queue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/delivery-queue/internal/domain"
	"github.com/notifyhub/delivery-queue/internal/queue"
)

func item(id string, p domain.Priority) *domain.QueuedItem {
	return &domain.QueuedItem{ID: id, Message: domain.NotificationMessage{Priority: p}}
}

func ids(items []*domain.QueuedItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

// Urgent items inserted last are still drained first.
func TestReadyList_DrainsMostUrgentFirst(t *testing.T) {
	l := queue.NewReadyList()
	l.Push(item("low", domain.PriorityLow))
	l.Push(item("normal", domain.PriorityNormal))
	l.Push(item("high", domain.PriorityHigh))
	l.Push(item("urgent", domain.PriorityUrgent))

	assert.Equal(t, []string{"urgent", "high", "normal", "low"}, ids(l.Drain()))
	assert.Zero(t, l.Len())
}

func TestReadyList_KeepsOrderWithinTier(t *testing.T) {
	l := queue.NewReadyList()
	l.Push(item("n1", domain.PriorityNormal))
	l.Push(item("n2", domain.PriorityNormal))
	l.Push(item("n3", domain.PriorityNormal))

	assert.Equal(t, []string{"n1", "n2", "n3"}, ids(l.Drain()))
}

func TestReadyList_UnknownPriorityIsNormal(t *testing.T) {
	l := queue.NewReadyList()
	l.Push(item("blank", ""))
	l.Push(item("low", domain.PriorityLow))

	require.Equal(t, 1, l.Depths()[domain.PriorityNormal])
	assert.Equal(t, []string{"blank", "low"}, ids(l.Drain()))
}

func TestReadyList_Depths(t *testing.T) {
	l := queue.NewReadyList()
	l.Push(item("h", domain.PriorityHigh))
	l.Push(item("n1", domain.PriorityNormal))
	l.Push(item("n2", domain.PriorityNormal))
	l.Push(item("l", domain.PriorityLow))

	d := l.Depths()
	assert.Equal(t, 0, d[domain.PriorityUrgent])
	assert.Equal(t, 1, d[domain.PriorityHigh])
	assert.Equal(t, 2, d[domain.PriorityNormal])
	assert.Equal(t, 1, d[domain.PriorityLow])
	assert.Equal(t, 4, l.Len())
}
