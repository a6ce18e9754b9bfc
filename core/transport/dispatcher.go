package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stock-sync/core/inventory"
	"stock-sync/core/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dispatcher runs remote calls on worker goroutines and queues their replies
// for the control loop.
type Dispatcher struct {
	remotes map[inventory.Service]Remote
	cfg     Config
	logger  *zap.Logger

	jobs    chan Request
	replies *replyQueue
	stop    chan struct{}

	mu     sync.RWMutex
	closed bool

	failMu   sync.Mutex
	failures map[inventory.Service]int

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewDispatcher creates a dispatcher for the given remotes.
func NewDispatcher(remotes map[inventory.Service]Remote, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 120
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		remotes:  remotes,
		cfg:      cfg,
		logger:   logger,
		jobs:     make(chan Request, cfg.QueueSize),
		replies:  newReplyQueue(),
		stop:     make(chan struct{}),
		failures: make(map[inventory.Service]int),
	}
}

// Start launches the workers. Calls in progress are cancelled with ctx.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case req, ok := <-d.jobs:
			if !ok {
				return
			}
			d.replies.Enqueue(d.execute(ctx, req))
		case <-ctx.Done():
			return
		}
	}
}

// Submit queues req and returns its id.
func (d *Dispatcher) Submit(req Request) (string, error) {
	if _, ok := d.remotes[req.Service]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownService, req.Service)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return "", ErrClosed
	}

	d.replies.Begin()
	select {
	case d.jobs <- req:
		return req.ID, nil
	case <-d.stop:
		d.replies.Cancel()
		return "", ErrClosed
	}
}

// Drain returns every reply queued so far, oldest first.
func (d *Dispatcher) Drain() []Reply {
	return d.replies.DrainAll()
}

// Ready is signalled when replies may be available.
func (d *Dispatcher) Ready() <-chan struct{} {
	return d.replies.Wait()
}

// Outstanding returns the number of submitted requests without a queued reply.
func (d *Dispatcher) Outstanding() int {
	return d.replies.Pending()
}

// WaitPending blocks until at most n requests are outstanding.
func (d *Dispatcher) WaitPending(ctx context.Context, n int) error {
	for d.replies.Pending() > n {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-d.replies.Wait():
			if !ok {
				return ErrClosed
			}
		}
	}
	return nil
}

// Close stops the workers and waits for them to exit.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.stop)
		d.mu.Lock()
		d.closed = true
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
		d.replies.Close()
	})
}

func (d *Dispatcher) execute(ctx context.Context, req Request) Reply {
	remote := d.remotes[req.Service]
	log := d.logger.With(
		zap.String("request_id", req.ID),
		zap.String("service", req.Service.String()),
		zap.String("op", req.Op.String()),
	)

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(d.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	reply := Reply{Request: req}
	start := time.Now()

	var err error
	switch req.Op {
	case OpFetchInventory:
		reply.Snapshot, err = remote.FetchInventory(callCtx)
		if err == nil && (reply.Snapshot == nil || reply.Snapshot.Inventory == nil) {
			err = fmt.Errorf("%w: empty snapshot", ErrMalformed)
		}
	case OpFetchOrders:
		reply.Orders, err = remote.FetchOrders(callCtx, req.Since)
	case OpPush:
		reply.Push, err = remote.PushDelta(callCtx, req.Deltas)
	case OpResolve:
		reply.CatalogID, err = remote.ResolveItem(callCtx, req.ItemType, req.ItemID)
	default:
		err = fmt.Errorf("%w: %s", ErrNotSupported, req.Op)
	}

	reply.Duration = time.Since(start)
	metrics.RemoteCallDuration.WithLabelValues(req.Service.String(), req.Op.String()).Observe(reply.Duration.Seconds())

	if err != nil {
		metrics.RemoteCallsTotal.WithLabelValues(req.Service.String(), req.Op.String(), metrics.ResultError).Inc()
		reply.Err = &RequestError{Service: req.Service, Op: req.Op, Kind: Classify(err), Err: err}
		reply.Reset = d.recordFailure(ctx, req.Service, remote, log)
		log.Warn("Remote call failed", zap.Duration("duration", reply.Duration), zap.Error(err))
		return reply
	}

	metrics.RemoteCallsTotal.WithLabelValues(req.Service.String(), req.Op.String(), metrics.ResultOK).Inc()
	d.recordSuccess(req.Service)
	log.Debug("Remote call completed", zap.Duration("duration", reply.Duration))
	return reply
}

func (d *Dispatcher) recordFailure(ctx context.Context, svc inventory.Service, remote Remote, log *zap.Logger) bool {
	d.failMu.Lock()
	d.failures[svc]++
	count := d.failures[svc]
	limit := d.cfg.ConsecutiveErrorLimit
	if limit > 0 && count >= limit {
		d.failures[svc] = 0
	}
	d.failMu.Unlock()

	if limit <= 0 || count < limit {
		return false
	}

	metrics.RemoteResets.WithLabelValues(svc.String()).Inc()
	if r, ok := remote.(Resetter); ok {
		if err := r.Reset(ctx); err != nil {
			log.Error("Remote reset failed", zap.Int("failures", count), zap.Error(err))
		} else {
			log.Warn("Remote reset after consecutive failures", zap.Int("failures", count))
		}
	}
	return true
}

func (d *Dispatcher) recordSuccess(svc inventory.Service) {
	d.failMu.Lock()
	d.failures[svc] = 0
	d.failMu.Unlock()
}
