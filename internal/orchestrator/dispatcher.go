package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/openconvocatoria/seace-ingest/internal/seace"
)

// Dispatcher fans out queue work to a pool of workers. Each worker still
// runs its jobs strictly sequentially; parallelism exists only across
// jobs, never within one.
type Dispatcher struct {
	queue   seace.Queue
	workers []*Worker
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(queue seace.Queue, workers []*Worker) *Dispatcher {
	return &Dispatcher{queue: queue, workers: workers}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item seace.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
