package queue

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/marketplace/storefront/internal/core/ports"
)

const defaultWorkers = 4

// Delivery is one change notification addressed to one execution context.
type Delivery struct {
	ContextID string
	Event     ports.ChangeEvent
	Handler   func(ports.ChangeEvent)
}

// worker owns an unbounded FIFO of deliveries. wake holds at most one
// pending signal.
type worker struct {
	mu      sync.Mutex
	pending []Delivery
	wake    chan struct{}
}

// Dispatcher delivers change notifications asynchronously to a fixed set of
// workers using consistent hashing on the receiving context ID, which keeps
// notifications for one context in the order they were enqueued.
//
// Enqueue never blocks: writers call it while holding their own locks, and
// handlers may wait on those same locks.
type Dispatcher struct {
	workers []*worker
	log     zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]*worker, numWorkers),
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = &worker{wake: make(chan struct{}, 1)}
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled
// or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i, w := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, w)
	}
}

// Stop cancels the workers and waits for them to exit. Pending deliveries
// are dropped.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// Enqueue appends a delivery to the queue of the worker responsible for its
// context and returns immediately.
func (d *Dispatcher) Enqueue(dl Delivery) {
	w := d.workers[d.shardIndex(dl.ContextID)]
	w.mu.Lock()
	w.pending = append(w.pending, dl)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// shardIndex maps a context ID deterministically to a worker index.
func (d *Dispatcher) shardIndex(contextID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(contextID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, w *worker) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		}

		w.mu.Lock()
		batch := w.pending
		w.pending = nil
		w.mu.Unlock()

		for _, dl := range batch {
			if ctx.Err() != nil {
				return
			}
			d.deliver(id, dl)
		}
	}
}

func (d *Dispatcher) deliver(id int, dl Delivery) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Interface("panic", r).
				Str("context_id", dl.ContextID).
				Str("key", dl.Event.Key).
				Int("worker_id", id).
				Msg("change handler panicked")
		}
	}()
	dl.Handler(dl.Event)
}
