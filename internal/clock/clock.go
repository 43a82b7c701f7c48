package clock

import (
	"sync"
	"time"
)

// Clock is the time source for everything that schedules retries or expiry.
type Clock interface {
	Now() time.Time
}

type Real struct{}

func NewReal() Clock { return Real{} }

func (Real) Now() time.Time { return time.Now().UTC() }

// Mock is a settable clock for tests. Safe for concurrent use.
type Mock struct {
	mu  sync.Mutex
	now time.Time
}

func NewMock(t time.Time) *Mock {
	return &Mock{now: t}
}

func (c *Mock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Mock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *Mock) Add(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
