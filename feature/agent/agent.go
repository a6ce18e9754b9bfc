package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"stock-sync/core/inventory"
	"stock-sync/core/journal"
	"stock-sync/core/reconcile"
	"stock-sync/core/transport"
	"stock-sync/core/translate"
	"stock-sync/feature/history"

	"go.uber.org/zap"
)

// ErrFatal is returned by Run when the agent can no longer guarantee that
// its files match what the remotes were told.
var ErrFatal = errors.New("agent: fatal error")

// Dispatcher runs remote requests off the loop goroutine.
// *transport.Dispatcher satisfies it.
type Dispatcher interface {
	Submit(req transport.Request) (string, error)
	Drain() []transport.Reply
	Ready() <-chan struct{}
}

// pendingWaiter is implemented by dispatchers that can wait for the
// requests they are still running.
type pendingWaiter interface {
	Outstanding() int
	WaitPending(ctx context.Context, n int) error
}

// Recorder stores the report of each reconciliation pass.
type Recorder interface {
	Record(ctx context.Context, r history.SyncReport) error
}

// Backup keeps copies of the tracked inventory.
type Backup interface {
	Save(ctx context.Context, data []byte, at time.Time) error
}

// Options are the collaborators of an Agent.
type Options struct {
	Dispatcher Dispatcher
	// Translate is required when the secondary service is enabled.
	Translate *translate.Cache
	Recorder  Recorder
	Backup    Backup
	Logger    *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Agent keeps the tracked inventory and the remote services in step.
type Agent struct {
	cfg   Config
	paths Paths

	dispatcher Dispatcher
	cache      *translate.Cache
	negative   *translate.NegativeCache
	recorder   Recorder
	backup     Backup
	logger     *zap.Logger
	now        func() time.Time

	tracked  *inventory.Inventory
	services []inventory.Service
	states   map[inventory.Service]*ServiceState
	filter   reconcile.Filter

	resolving      map[translate.Key]bool
	resolvedAnyNew bool

	fatal error
	quit  bool

	status  atomic.Pointer[Snapshot]
	backups sync.WaitGroup
}

// New replays any interrupted commit, then loads the tracked inventory and
// the scheduling state from cfg.DataDir.
func New(cfg Config, opts Options) (*Agent, error) {
	if opts.Dispatcher == nil {
		return nil, errors.New("agent: dispatcher is required")
	}
	if cfg.SecondaryEnabled && opts.Translate == nil {
		return nil, errors.New("agent: translation cache is required for the secondary service")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	paths := cfg.Paths()
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	replayed, err := journal.Replay(paths.Journal, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("%w: replay journal: %w", ErrFatal, err)
	}
	if replayed > 0 {
		opts.Logger.Info("Completed interrupted commit", zap.Int("renames", replayed))
	}

	tracked, err := inventory.Load(paths.Inventory)
	if err != nil {
		return nil, err
	}

	now := opts.Now()
	services := cfg.Services()
	states, err := loadState(paths.State, services, now, cfg.backoffBase())
	if err != nil {
		return nil, err
	}

	a := &Agent{
		cfg:        cfg,
		paths:      paths,
		dispatcher: opts.Dispatcher,
		cache:      opts.Translate,
		negative:   translate.NewNegativeCache(0, cfg.negativeTTL()),
		recorder:   opts.Recorder,
		backup:     opts.Backup,
		logger:     opts.Logger,
		now:        opts.Now,
		tracked:    tracked,
		services:   services,
		states:     states,
		filter:     cfg.Filter(),
		resolving:  make(map[translate.Key]bool),
	}

	a.logger.Info("Agent loaded",
		zap.String("data_dir", cfg.DataDir),
		zap.Int("lots", tracked.Len()),
		zap.Int("units", tracked.Totals().Units),
		zap.Int("services", len(services)),
	)
	a.publish(now)
	return a, nil
}

// Run drives the control loop until ctx is cancelled, a quit command is
// received or a fatal error occurs. lines carries console and HTTP commands
// and may be nil.
func (a *Agent) Run(ctx context.Context, lines <-chan string) error {
	defer a.backups.Wait()

	for {
		if a.fatal != nil {
			return a.fatal
		}
		now := a.now()
		a.tick(now)

		for _, r := range a.dispatcher.Drain() {
			a.handleReply(r, now)
			if a.fatal != nil {
				return a.fatal
			}
		}

		for _, svc := range a.services {
			a.step(a.states[svc], now)
		}
		a.publish(now)

		if a.quit {
			a.logger.Info("Quit requested")
			a.settle(ctx)
			return a.fatal
		}

		timer := time.NewTimer(a.idleWait(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("Agent stopping")
			return nil
		case <-a.dispatcher.Ready():
		case <-timer.C:
		case line, ok := <-lines:
			if !ok {
				lines = nil
			} else {
				a.Execute(line)
			}
		}
		timer.Stop()
	}
}

// settle waits up to the shutdown grace for running requests and applies
// their replies, so a finished push is not mistaken for an interrupted one.
func (a *Agent) settle(ctx context.Context) {
	w, ok := a.dispatcher.(pendingWaiter)
	if !ok || w.Outstanding() == 0 {
		return
	}
	a.logger.Info("Waiting for running requests", zap.Int("outstanding", w.Outstanding()))
	ctx, cancel := context.WithTimeout(ctx, a.cfg.shutdownGrace())
	defer cancel()
	if err := w.WaitPending(ctx, 0); err != nil {
		a.logger.Warn("Requests still running at shutdown",
			zap.Int("outstanding", w.Outstanding()),
			zap.Error(err),
		)
	}
	now := a.now()
	for _, r := range a.dispatcher.Drain() {
		a.handleReply(r, now)
		if a.fatal != nil {
			return
		}
	}
}

// Status returns the snapshot published by the last loop iteration.
func (a *Agent) Status() *Snapshot {
	return a.status.Load()
}

// Tracked returns the tracked inventory. It must only be used from the
// loop goroutine or before Run.
func (a *Agent) Tracked() *inventory.Inventory {
	return a.tracked
}

// tick rolls the quota histories and raises timer driven flags.
func (a *Agent) tick(now time.Time) {
	for _, svc := range a.services {
		s := a.states[svc]
		s.History.RollForward(now)
		if !s.MustCheck && !now.Before(s.NextCheck) {
			s.MustCheck = true
		}
	}
}

// idleWait returns how long the loop may sleep before a timer comes due.
// Only timers that would raise or release work are counted. Work that is
// already due but held back by the quota or by the primary service is
// retried after the configured idle wait.
func (a *Agent) idleWait(now time.Time) time.Duration {
	wait := a.cfg.idleWait()
	consider := func(due time.Time) {
		if d := due.Sub(now); d > 0 && d < wait {
			wait = d
		}
	}
	for _, svc := range a.services {
		s := a.states[svc]
		if !s.Idle() {
			continue
		}
		if !s.MustCheck {
			consider(s.NextCheck)
		}
		if s.MustSync && !a.suppressed(s) {
			consider(s.NextSync)
		}
	}
	return wait
}

// suppressed reports whether svc must hold back updates and syncs because
// the primary service has work pending.
func (a *Agent) suppressed(s *ServiceState) bool {
	if s.Service != inventory.Secondary {
		return false
	}
	p, ok := a.states[inventory.Primary]
	return ok && (p.MustUpdate || p.MustSync)
}

// step starts at most one operation for s.
func (a *Agent) step(s *ServiceState, now time.Time) {
	if !s.Idle() {
		return
	}
	switch {
	case s.MustCheck:
		a.submit(s, transport.Request{Op: transport.OpFetchOrders, Since: s.HighWater}, 1, now)
	case s.MustSync && !now.Before(s.NextSync) && !a.suppressed(s):
		a.submit(s, transport.Request{Op: transport.OpFetchInventory}, 1, now)
	case s.MustUpdate && !s.MustSync && !a.suppressed(s):
		a.pushPending(s, now)
	case s.verifyRequested:
		s.verifyRequested = false
		if a.submit(s, transport.Request{Op: transport.OpFetchInventory}, 1, now) {
			s.verifying = true
		}
	}
}

// pushPending pushes as much of the pending delta as the quota allows.
func (a *Agent) pushPending(s *ServiceState, now time.Time) {
	if len(s.Pending) == 0 {
		s.MustUpdate = false
		s.PartialSync = false
		return
	}
	head, rest := reconcile.Split(s.Pending, s.History.Headroom(a.cfg.DailyLimit(s.Service)))
	if len(head) == 0 {
		if !s.PartialSync {
			a.logger.Info("Daily quota exhausted, deferring push",
				zap.String("service", s.Service.String()),
				zap.Int("pending", len(s.Pending)),
			)
		}
		s.PartialSync = true
		return
	}

	// The push and its quota charge are durable before the request can reach
	// the remote, so a restart re-syncs instead of sending the relative
	// changes twice.
	for range head {
		s.History.Increment(now)
	}
	s.inFlight = transport.OpPush
	s.pushing, s.Pending = head, rest
	a.commit()
	if a.fatal != nil {
		return
	}
	if !a.submit(s, transport.Request{Op: transport.OpPush, Deltas: head}, 0, now) {
		s.inFlight = 0
		s.pushing, s.Pending = nil, slices.Concat(head, rest)
		return
	}
	s.PartialSync = len(rest) > 0
	if s.PartialSync {
		a.logger.Info("Pushing partial delta",
			zap.String("service", s.Service.String()),
			zap.Int("pushed", len(head)),
			zap.Int("deferred", len(rest)),
		)
	}
}

// submit queues req for s and charges cost calls against its quota. The
// request is not sent when the quota has no headroom left.
func (a *Agent) submit(s *ServiceState, req transport.Request, cost int, now time.Time) bool {
	if req.Op != transport.OpPush && s.History.Headroom(a.cfg.DailyLimit(s.Service)) < cost {
		return false
	}
	req.Service = s.Service
	id, err := a.dispatcher.Submit(req)
	if err != nil {
		a.logger.Warn("Failed to submit request",
			zap.String("service", s.Service.String()),
			zap.String("op", req.Op.String()),
			zap.Error(err),
		)
		return false
	}
	for i := 0; i < cost; i++ {
		s.History.Increment(now)
	}
	if req.Op != transport.OpResolve {
		s.inFlight = req.Op
		s.inFlightID = id
	}
	a.logger.Debug("Request submitted",
		zap.String("service", s.Service.String()),
		zap.String("op", req.Op.String()),
		zap.String("request_id", id),
	)
	return true
}

// profile returns how reconciliation treats svc.
func (a *Agent) profile(svc inventory.Service) reconcile.Profile {
	if a.cache == nil {
		return ProfileFor(svc, nil)
	}
	return ProfileFor(svc, a.cache)
}

// ProfileFor returns the reconciliation profile of svc. The secondary
// service compares fewer fields and needs catalog ids from resolver.
func ProfileFor(svc inventory.Service, resolver reconcile.Resolver) reconcile.Profile {
	if svc == inventory.Secondary {
		return reconcile.Profile{Service: svc, RequiresTranslation: true, Resolver: resolver}
	}
	return reconcile.Profile{Service: svc, CompareExtended: true}
}

// fail records a fatal error and stops the loop.
func (a *Agent) fail(err error) {
	if a.fatal != nil {
		return
	}
	a.fatal = fmt.Errorf("%w: %w", ErrFatal, err)
	a.logger.Error("****************************************************************")
	a.logger.Error("FATAL: agent stopped, files may not match the remote services", zap.Error(err))
	a.logger.Error("****************************************************************")
	_ = a.logger.Sync()
}
