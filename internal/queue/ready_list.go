package queue

import "github.com/notifyhub/delivery-queue/internal/domain"

// ReadyList buckets ready items by priority so a drain pass can serve URGENT
// before HIGH before NORMAL before LOW. Within a tier, insertion (store) order
// is kept. Items with an unknown priority fall into the NORMAL tier.
//
// Not safe for concurrent use; a list lives for a single pass.
type ReadyList struct {
	tiers map[domain.Priority][]*domain.QueuedItem
	size  int
}

func NewReadyList() *ReadyList {
	return &ReadyList{tiers: make(map[domain.Priority][]*domain.QueuedItem, len(domain.Priorities))}
}

func (l *ReadyList) Push(it *domain.QueuedItem) {
	p := it.Message.Priority
	if !p.IsValid() {
		p = domain.PriorityNormal
	}
	l.tiers[p] = append(l.tiers[p], it)
	l.size++
}

// Drain returns every item, most urgent tier first, and empties the list.
func (l *ReadyList) Drain() []*domain.QueuedItem {
	out := make([]*domain.QueuedItem, 0, l.size)
	for _, p := range domain.Priorities {
		out = append(out, l.tiers[p]...)
		delete(l.tiers, p)
	}
	l.size = 0
	return out
}

func (l *ReadyList) Len() int { return l.size }

// Depths returns the number of items waiting in each tier.
func (l *ReadyList) Depths() map[domain.Priority]int {
	d := make(map[domain.Priority]int, len(domain.Priorities))
	for _, p := range domain.Priorities {
		d[p] = len(l.tiers[p])
	}
	return d
}
