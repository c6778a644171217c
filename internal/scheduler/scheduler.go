// Package scheduler runs independent units of work under a fixed number of
// admission slots, on a worker pool sized separately from the slot count.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/reddit-collector/internal/metrics"
)

// Defaults used when Config leaves a field unset.
const (
	DefaultMaxInFlight = 4
	DefaultWorkers     = 8
	DefaultQueueDepth  = 64
)

// Unit is one schedulable piece of work.
type Unit func(ctx context.Context) error

// Config bounds concurrency.
type Config struct {
	// MaxInFlight is the number of admission slots (units running at once).
	MaxInFlight int
	// Workers is the size of the goroutine pool that picks up queued units.
	Workers    int
	QueueDepth int
}

type task struct {
	ctx    context.Context
	name   string
	unit   Unit
	future *Future
}

// Scheduler admits at most MaxInFlight units at a time. Units complete in no
// particular order.
type Scheduler struct {
	queue  *queue
	slots  *semaphore.Weighted
	wg     sync.WaitGroup
	logger *zap.Logger
	once   sync.Once
}

// New creates a Scheduler and starts its workers.
func New(cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		queue:  newQueue(cfg.QueueDepth),
		slots:  semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		logger: logger,
	}
	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			s.work(id)
		}(i)
	}
	return s
}

// Submit queues unit and returns its Future. It blocks while the queue is full.
func (s *Scheduler) Submit(ctx context.Context, name string, unit Unit) (*Future, error) {
	f := newFuture(name)
	if err := s.queue.enqueue(ctx, task{ctx: ctx, name: name, unit: unit, future: f}); err != nil {
		return nil, fmt.Errorf("submit %s: %w", name, err)
	}
	return f, nil
}

// Close stops accepting units, lets queued units finish and waits for the workers.
func (s *Scheduler) Close() {
	s.once.Do(func() {
		s.queue.close()
		s.wg.Wait()
	})
}

func (s *Scheduler) work(id int) {
	for {
		t, ok := s.queue.dequeue()
		if !ok {
			return
		}
		s.logger.Debug("Dequeued unit", zap.Int("worker", id), zap.String("unit", t.name))
		t.future.resolve(s.run(t))
	}
}

func (s *Scheduler) run(t task) (err error) {
	if err := s.slots.Acquire(t.ctx, 1); err != nil {
		metrics.ObserveUnit("canceled")
		return fmt.Errorf("acquire slot for %s: %w", t.name, err)
	}
	metrics.IncUnitsInFlight()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Unit panicked",
				zap.String("unit", t.name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("unit %s panicked: %v", t.name, r)
		}
		metrics.DecUnitsInFlight()
		s.slots.Release(1)
		if err != nil {
			metrics.ObserveUnit("failed")
		} else {
			metrics.ObserveUnit("succeeded")
		}
	}()
	return t.unit(t.ctx)
}
