package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/assetdesk/ticket-lifecycle/internal/config"
	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	"github.com/assetdesk/ticket-lifecycle/internal/service"
)

const (
	defaultQueueSize       = 256
	defaultDeliveryTimeout = 10 * time.Second
)

// AutoCloser closes resolved tickets untouched since before.
type AutoCloser interface {
	AutoCloseResolved(ctx context.Context, before time.Time) (int, error)
}

// Worker owns background work: the outbound notification queue and the
// scheduled auto-close sweep.
type Worker struct {
	cron          *cron.Cron
	notifications *service.NotificationService
	closer        AutoCloser
	policy        config.LifecycleConfig
	logger        *zap.Logger
	now           func() time.Time

	queue           chan domain.Notification
	deliveryTimeout time.Duration
	mu              sync.RWMutex
	closed          bool
	drained         sync.WaitGroup
}

// Option configures a Worker.
type Option func(*Worker)

// WithDeliveryQueue sizes the outbound queue and bounds each delivery.
func WithDeliveryQueue(size int, timeout time.Duration) Option {
	return func(w *Worker) {
		if size > 0 {
			w.queue = make(chan domain.Notification, size)
		}
		if timeout > 0 {
			w.deliveryTimeout = timeout
		}
	}
}

// NewWorker builds a worker. notifications may be nil.
func NewWorker(notifications *service.NotificationService, closer AutoCloser, policy config.LifecycleConfig, logger *zap.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		cron:            cron.New(),
		notifications:   notifications,
		closer:          closer,
		policy:          policy,
		logger:          logger,
		now:             time.Now,
		queue:           make(chan domain.Notification, defaultQueueSize),
		deliveryTimeout: defaultDeliveryTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start registers event handlers, begins draining the outbound queue and,
// when auto-close is enabled, schedules the sweep. Jobs run with ctx until
// Stop.
func (w *Worker) Start(ctx context.Context) error {
	if w.notifications != nil {
		w.notifications.UseQueue(w)
		w.notifications.RegisterHandlers()
		w.drained.Add(1)
		go w.drain()
	}
	if w.policy.AutoCloseAfter > 0 && w.closer != nil {
		_, err := w.cron.AddFunc(w.policy.AutoCloseSchedule, func() {
			if _, err := w.RunAutoClose(ctx); err != nil {
				w.logger.Error("auto-close sweep failed", zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("worker: invalid schedule %q: %w", w.policy.AutoCloseSchedule, err)
		}
		w.logger.Info("auto-close scheduled",
			zap.String("schedule", w.policy.AutoCloseSchedule),
			zap.Duration("after", w.policy.AutoCloseAfter))
	}
	w.cron.Start()
	return nil
}

// Enqueue hands n to the delivery goroutine. It never blocks and reports
// false when the queue is full or the worker has stopped.
func (w *Worker) Enqueue(n domain.Notification) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.queue <- n:
		return true
	default:
		return false
	}
}

// drain delivers queued notifications until Stop. Each delivery gets its
// own deadline, detached from the request that produced it.
func (w *Worker) drain() {
	defer w.drained.Done()
	for n := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), w.deliveryTimeout)
		w.notifications.Deliver(ctx, n)
		cancel()
	}
}

// Stop halts the scheduler, flushes queued notifications and waits for
// running work to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	w.drained.Wait()
	<-w.cron.Stop().Done()
}

// Jobs reports how many scheduled jobs are registered.
func (w *Worker) Jobs() int {
	return len(w.cron.Entries())
}

// RunAutoClose closes resolved tickets older than the configured age.
func (w *Worker) RunAutoClose(ctx context.Context) (int, error) {
	before := w.now().Add(-w.policy.AutoCloseAfter)
	closed, err := w.closer.AutoCloseResolved(ctx, before)
	if err != nil {
		return closed, err
	}
	if closed > 0 {
		w.logger.Info("auto-closed resolved tickets", zap.Int("count", closed), zap.Time("before", before))
	}
	return closed, nil
}
