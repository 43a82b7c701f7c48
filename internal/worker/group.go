package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Group manages the lifecycle of every background loop: drain, purge and the
// event consumers. All loops share one ctx; cancelling it triggers a graceful
// shutdown of the whole group.
type Group struct {
	ctx    context.Context
	logger *zap.Logger
	wg     sync.WaitGroup
}

func NewGroup(ctx context.Context, logger *zap.Logger) *Group {
	return &Group{ctx: ctx, logger: logger}
}

// Go starts fn in its own goroutine. A loop that returns an error is logged
// and not restarted; the others keep running.
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := fn(g.ctx); err != nil {
			g.logger.Error("background loop exited", zap.String("loop", name), zap.Error(err))
			return
		}
		g.logger.Debug("background loop finished", zap.String("loop", name))
	}()
}

// Wait blocks until every loop has returned after ctx is cancelled.
// Call this after cancelling the context to ensure in-flight items finish.
func (g *Group) Wait() {
	g.wg.Wait()
}
