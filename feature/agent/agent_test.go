package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"stock-sync/core/inventory"
	"stock-sync/core/journal"
	"stock-sync/core/reconcile"
	"stock-sync/core/transport"
	"stock-sync/core/translate"
	"stock-sync/feature/history"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type fakeDispatcher struct {
	mu        sync.Mutex
	submitted []transport.Request
	replies   []transport.Reply
	ready     chan struct{}
	err       error
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{ready: make(chan struct{})}
}

func (f *fakeDispatcher) Submit(req transport.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	req.ID = fmt.Sprintf("req-%d", len(f.submitted)+1)
	f.submitted = append(f.submitted, req)
	return req.ID, nil
}

func (f *fakeDispatcher) Drain() []transport.Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.replies
	f.replies = nil
	return out
}

func (f *fakeDispatcher) Ready() <-chan struct{} {
	return f.ready
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func (f *fakeDispatcher) last(t *testing.T) transport.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.submitted, "no request submitted")
	return f.submitted[len(f.submitted)-1]
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type harness struct {
	agent *Agent
	disp  *fakeDispatcher
	clock *clock
	cfg   Config
	cache *translate.Cache
}

func testConfig(dir string) Config {
	return Config{
		DataDir:             dir,
		PollIntervalSeconds: 600,
		FailIntervalSeconds: 120,
		BackoffBaseSeconds:  60,
		BackoffMaxSeconds:   240,
		IdleWaitSeconds:     5,
		PrimaryDailyLimit:   1000,
		SecondaryDailyLimit: 1000,
		ResolveBatch:        4,
		NegativeTTLSeconds:  3600,
	}
}

func writeTracked(t *testing.T, cfg Config, lots ...inventory.Lot) {
	t.Helper()
	inv := inventory.New(len(lots))
	for _, l := range lots {
		inv.Add(l)
	}
	require.NoError(t, os.MkdirAll(cfg.DataDir, 0o755))
	require.NoError(t, inv.WriteFile(cfg.Paths().Inventory))
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{disp: newFakeDispatcher(), clock: &clock{now: t0}, cfg: cfg}
	opts := Options{Dispatcher: h.disp, Now: h.clock.Now}
	if cfg.SecondaryEnabled {
		cache, err := translate.Open(cfg.Paths().Translate, nil)
		require.NoError(t, err)
		t.Cleanup(func() { cache.Close() })
		h.cache = cache
		opts.Translate = cache
	}
	a, err := New(cfg, opts)
	require.NoError(t, err)
	h.agent = a
	return h
}

func (h *harness) state(svc inventory.Service) *ServiceState {
	return h.agent.states[svc]
}

// iterate runs the bookkeeping and scheduling half of one loop iteration.
func (h *harness) iterate() {
	now := h.clock.Now()
	h.agent.tick(now)
	for _, svc := range h.agent.services {
		h.agent.step(h.agent.states[svc], now)
	}
}

func (h *harness) reply(r transport.Reply) {
	h.agent.handleReply(r, h.clock.Now())
}

// completeCheck answers the order poll that iterate is expected to submit.
func (h *harness) completeCheck(t *testing.T, orders ...transport.Order) {
	t.Helper()
	h.iterate()
	req := h.disp.last(t)
	require.Equal(t, transport.OpFetchOrders, req.Op)
	h.reply(transport.Reply{Request: req, Orders: orders})
}

func lot(itemID string, qty int) inventory.Lot {
	return inventory.Lot{
		ItemType:  'P',
		ItemID:    itemID,
		ColorID:   11,
		Condition: inventory.ConditionNew,
		Quantity:  qty,
		Price:     0.25,
	}
}

func withIDs(l inventory.Lot, primary, secondary int64) inventory.Lot {
	l.SetForeignID(inventory.Primary, primary)
	l.SetForeignID(inventory.Secondary, secondary)
	return l
}

func TestAgent_FreshStartChecksThenSyncs(t *testing.T) {
	cfg := testConfig(t.TempDir())
	writeTracked(t, cfg, withIDs(lot("3001", 5), 100, 0))
	h := newHarness(t, cfg)

	h.completeCheck(t)
	s := h.state(inventory.Primary)
	assert.False(t, s.MustCheck)
	assert.Equal(t, t0.Add(10*time.Minute), s.NextCheck)

	h.iterate()
	req := h.disp.last(t)
	require.Equal(t, transport.OpFetchInventory, req.Op)
	h.reply(transport.Reply{Request: req, Snapshot: &transport.Snapshot{Inventory: h.agent.Tracked().Clone()}})

	assert.False(t, s.MustSync)
	assert.False(t, s.MustUpdate)
	assert.Empty(t, s.Pending)
	assert.Equal(t, time.Minute, s.Backoff)

	n := h.disp.count()
	h.iterate()
	assert.Equal(t, n, h.disp.count(), "nothing left to do")
	assert.Equal(t, 2, s.History.Total())
}

func TestAgent_BackoffBounds(t *testing.T) {
	cfg := testConfig(t.TempDir())
	h := newHarness(t, cfg)
	h.completeCheck(t)
	s := h.state(inventory.Primary)

	for _, want := range []time.Duration{2 * time.Minute, 4 * time.Minute, 4 * time.Minute} {
		h.iterate()
		req := h.disp.last(t)
		require.Equal(t, transport.OpFetchInventory, req.Op)
		h.reply(transport.Reply{Request: req, Err: transport.ErrConnect})

		assert.Equal(t, want, s.Backoff)
		assert.True(t, s.MustSync)
		assert.Equal(t, h.clock.Now().Add(want), s.NextSync)

		n := h.disp.count()
		h.iterate()
		assert.Equal(t, n, h.disp.count(), "sync waits for the backoff")
		h.clock.Advance(want)
		s.NextCheck = h.clock.Now().Add(time.Hour)
	}

	h.iterate()
	req := h.disp.last(t)
	h.reply(transport.Reply{Request: req, Snapshot: &transport.Snapshot{Inventory: inventory.New(0)}})
	assert.Equal(t, time.Minute, s.Backoff, "success resets to the base")
}

func TestAgent_ResetChargesBackoff(t *testing.T) {
	cfg := testConfig(t.TempDir())
	h := newHarness(t, cfg)
	s := h.state(inventory.Primary)

	h.iterate()
	req := h.disp.last(t)
	h.reply(transport.Reply{Request: req, Err: transport.ErrNoReply, Reset: true})

	assert.Equal(t, 2*time.Minute, s.Backoff)
	assert.True(t, s.MustSync)
	assert.Equal(t, t0.Add(2*time.Minute), s.NextCheck, "order poll retries after the fail interval")
}

func TestAgent_SyncAbortOnNewerOrder(t *testing.T) {
	cfg := testConfig(t.TempDir())
	h := newHarness(t, cfg)
	h.completeCheck(t)
	s := h.state(inventory.Primary)

	h.iterate()
	req := h.disp.last(t)
	h.reply(transport.Reply{Request: req, Snapshot: &transport.Snapshot{
		Inventory:       inventory.New(0),
		LatestOrderTime: t0.Add(-time.Minute),
	}})

	assert.True(t, s.MustCheck)
	assert.True(t, s.MustSync, "sync stays pending")
	assert.Equal(t, time.Minute, s.Backoff, "an abort is not a failure")

	h.iterate()
	assert.Equal(t, transport.OpFetchOrders, h.disp.last(t).Op)
}

func TestAgent_OrdersDecrementAndQueueOtherService(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.SecondaryEnabled = true
	writeTracked(t, cfg, withIDs(lot("3001", 10), 100, 200), withIDs(lot("3002", 1), 101, 0))
	h := newHarness(t, cfg)

	h.iterate()
	reqs := h.disp.submitted
	require.Len(t, reqs, 2, "both services poll first")

	orders := []transport.Order{
		{ID: "o-1", Time: t0.Add(-2 * time.Hour), Items: []transport.OrderItem{{LotID: 100, Quantity: 3}}},
		{ID: "o-2", Time: t0.Add(-time.Hour), Items: []transport.OrderItem{{LotID: 100, Quantity: 2}, {LotID: 101, Quantity: 5}}},
	}
	h.reply(transport.Reply{Request: reqs[0], Orders: orders})

	tracked := h.agent.Tracked()
	assert.Equal(t, 5, tracked.Get(tracked.FindByForeignID(inventory.Primary, 100)).Quantity)
	assert.Equal(t, 0, tracked.Get(tracked.FindByForeignID(inventory.Primary, 101)).Quantity, "clamped at zero")

	primary := h.state(inventory.Primary)
	assert.Equal(t, t0.Add(-time.Hour), primary.HighWater)

	secondary := h.state(inventory.Secondary)
	assert.True(t, secondary.MustUpdate)
	require.Len(t, secondary.Pending, 1, "quantity changes for one lot merge")
	d := secondary.Pending[0]
	assert.Equal(t, reconcile.ActionUpdate, d.Action)
	assert.Equal(t, int64(200), d.RemoteID)
	assert.Equal(t, -5, d.QtyDelta)
	assert.True(t, secondary.MustSync, "lot without a secondary id needs a sync")

	reloaded, err := inventory.Load(cfg.Paths().Inventory)
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.Totals().Units, "commit reached disk")

	// Replayed orders are ignored.
	primary.MustCheck = true
	h.iterate()
	h.reply(transport.Reply{Request: h.disp.last(t), Orders: orders})
	assert.Equal(t, -5, secondary.Pending[0].QtyDelta)
}

func TestAgent_SecondarySuppressedWhilePrimaryBusy(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.SecondaryEnabled = true
	h := newHarness(t, cfg)

	primary := h.state(inventory.Primary)
	secondary := h.state(inventory.Secondary)
	for _, s := range []*ServiceState{primary, secondary} {
		s.MustCheck = false
		s.NextCheck = t0.Add(time.Hour)
	}
	primary.NextSync = t0.Add(time.Hour)
	secondary.MustSync = false
	secondary.MustUpdate = true
	secondary.Pending = []reconcile.Delta{{Action: reconcile.ActionUpdate, RemoteID: 7, QtyDelta: -1, Flags: reconcile.FlagQuantity}}

	h.iterate()
	assert.Zero(t, h.disp.count(), "primary sync pending, secondary waits")

	primary.MustSync = false
	h.iterate()
	req := h.disp.last(t)
	assert.Equal(t, inventory.Secondary, req.Service)
	assert.Equal(t, transport.OpPush, req.Op)
}

func TestAgent_UpdateWaitsForOwnSync(t *testing.T) {
	cfg := testConfig(t.TempDir())
	h := newHarness(t, cfg)
	s := h.state(inventory.Primary)
	s.MustCheck = false
	s.NextCheck = t0.Add(time.Hour)
	s.NextSync = t0.Add(time.Hour)
	s.MustUpdate = true
	s.Pending = []reconcile.Delta{{Action: reconcile.ActionUpdate, RemoteID: 7}}

	h.iterate()
	assert.Zero(t, h.disp.count())
}

func TestAgent_PartialSyncResumesWithHeadroom(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.PrimaryDailyLimit = 4
	writeTracked(t, cfg, lot("1", 1), lot("2", 1), lot("3", 1), lot("4", 1), lot("5", 1))
	h := newHarness(t, cfg)
	s := h.state(inventory.Primary)

	h.completeCheck(t)
	h.iterate()
	h.reply(transport.Reply{Request: h.disp.last(t), Snapshot: &transport.Snapshot{Inventory: inventory.New(0)}})
	require.Len(t, s.Pending, 5)
	assert.True(t, s.MustUpdate)
	assert.False(t, s.MustSync)

	h.iterate()
	push := h.disp.last(t)
	require.Equal(t, transport.OpPush, push.Op)
	assert.Len(t, push.Deltas, 2, "two calls already spent")
	assert.True(t, s.PartialSync)
	assert.Len(t, s.Pending, 3)

	created := map[int64]int64{}
	for i, d := range push.Deltas {
		created[d.LocalID] = int64(500 + i)
	}
	h.reply(transport.Reply{Request: push, Push: transport.PushResult{Applied: 2, Created: created}})
	assert.True(t, s.MustUpdate)
	assert.True(t, s.PartialSync)
	assert.Equal(t, 0, h.agent.Tracked().FindByForeignID(inventory.Primary, 500))

	n := h.disp.count()
	s.NextCheck = t0.Add(48 * time.Hour)
	h.iterate()
	assert.Equal(t, n, h.disp.count(), "no headroom left")

	h.clock.Advance(24 * time.Hour)
	h.iterate()
	push = h.disp.last(t)
	require.Equal(t, transport.OpPush, push.Op)
	assert.Len(t, push.Deltas, 3)
	assert.False(t, s.PartialSync)

	h.reply(transport.Reply{Request: push, Push: transport.PushResult{Applied: 3}})
	assert.False(t, s.MustUpdate)
	assert.Empty(t, s.Pending)
	assert.Equal(t, time.Minute, s.Backoff)
}

func TestAgent_UpdateFailureEscalatesToSync(t *testing.T) {
	cfg := testConfig(t.TempDir())
	h := newHarness(t, cfg)
	s := h.state(inventory.Primary)
	s.MustCheck, s.MustSync = false, false
	s.NextCheck = t0.Add(time.Hour)
	s.MustUpdate = true
	s.origin = originOrders
	s.Pending = []reconcile.Delta{{Action: reconcile.ActionUpdate, RemoteID: 7, QtyDelta: -1, Flags: reconcile.FlagQuantity}}

	h.iterate()
	push := h.disp.last(t)
	require.Equal(t, transport.OpPush, push.Op)
	h.reply(transport.Reply{Request: push, Err: &transport.RequestError{Service: inventory.Primary, Op: transport.OpPush, Kind: transport.ErrNoReply, Err: context.DeadlineExceeded}})

	assert.True(t, s.MustSync)
	assert.False(t, s.MustUpdate)
	assert.Empty(t, s.Pending)
	assert.Equal(t, time.Minute, s.Backoff, "order updates do not charge the sync backoff")

	h.iterate()
	assert.Equal(t, transport.OpFetchInventory, h.disp.last(t).Op)
}

func TestAgent_StaleReplyIgnored(t *testing.T) {
	cfg := testConfig(t.TempDir())
	h := newHarness(t, cfg)
	h.iterate()
	req := h.disp.last(t)

	stale := req
	stale.ID = "someone-else"
	h.reply(transport.Reply{Request: stale})
	assert.False(t, h.state(inventory.Primary).Idle())

	h.reply(transport.Reply{Request: req})
	assert.True(t, h.state(inventory.Primary).Idle())
}

func TestAgent_StatePersistsAcrossRestart(t *testing.T) {
	cfg := testConfig(t.TempDir())
	writeTracked(t, cfg, withIDs(lot("3001", 4), 100, 0))
	h := newHarness(t, cfg)

	h.completeCheck(t, transport.Order{ID: "o-1", Time: t0.Add(-time.Minute), Items: []transport.OrderItem{{LotID: 100, Quantity: 1}}})
	h.iterate()
	h.reply(transport.Reply{Request: h.disp.last(t), Err: transport.ErrConnect})

	// Leave a push in flight when the process stops.
	s := h.state(inventory.Primary)
	s.MustSync = false
	s.MustUpdate = true
	s.Pending = []reconcile.Delta{{Action: reconcile.ActionUpdate, RemoteID: 100, QtyDelta: -1}}
	s.NextCheck = t0.Add(time.Hour)
	h.iterate()
	require.Equal(t, transport.OpPush, h.disp.last(t).Op)
	require.NoError(t, h.agent.fatal)

	again := newHarness(t, cfg)
	r := again.state(inventory.Primary)
	assert.Equal(t, t0.Add(-time.Minute), r.HighWater)
	assert.Equal(t, 2*time.Minute, r.Backoff)
	assert.Equal(t, s.History.Total(), r.History.Total())
	assert.True(t, r.MustCheck, "always poll after a restart")
	assert.True(t, r.MustSync, "interrupted push forces a sync")
	assert.Empty(t, r.Pending)
	assert.Equal(t, 3, again.agent.Tracked().Totals().Units)
}

func TestAgent_PushIsDurableBeforeSubmit(t *testing.T) {
	cfg := testConfig(t.TempDir())
	h := newHarness(t, cfg)
	s := h.state(inventory.Primary)
	s.MustCheck, s.MustSync = false, false
	s.NextCheck = t0.Add(time.Hour)
	s.MustUpdate = true
	s.Pending = []reconcile.Delta{{Action: reconcile.ActionUpdate, RemoteID: 7, QtyDelta: -1, Flags: reconcile.FlagQuantity}}
	h.disp.err = transport.ErrClosed

	h.iterate()
	assert.True(t, s.Idle())
	assert.Len(t, s.Pending, 1, "pending restored when the request is refused")
	assert.Nil(t, s.pushing)

	// The state on disk already treats the push as sent.
	again := newHarness(t, cfg)
	r := again.state(inventory.Primary)
	assert.True(t, r.MustSync)
	assert.False(t, r.MustUpdate)
	assert.Empty(t, r.Pending)
	assert.Equal(t, 1, r.History.Total())
}

func TestAgent_ReleasedDuplicateSchedulesResync(t *testing.T) {
	cfg := testConfig(t.TempDir())
	writeTracked(t, cfg, withIDs(lot("3001", 4), 100, 0), withIDs(lot("3001", 3), 100, 0))
	h := newHarness(t, cfg)
	s := h.state(inventory.Primary)
	remote := inventory.New(1)
	remote.Add(withIDs(lot("3001", 4), 100, 0))

	h.completeCheck(t)
	h.iterate()
	req := h.disp.last(t)
	require.Equal(t, transport.OpFetchInventory, req.Op)
	h.reply(transport.Reply{Request: req, Snapshot: &transport.Snapshot{Inventory: remote.Clone()}})

	assert.True(t, s.MustSync, "the released lot is created by another pass")
	assert.False(t, s.Resync)
	var released int
	for _, l := range h.agent.Tracked().Lots() {
		if l.ForeignID(inventory.Primary) == 0 {
			released++
		}
	}
	assert.Equal(t, 1, released)

	h.iterate()
	req = h.disp.last(t)
	require.Equal(t, transport.OpFetchInventory, req.Op)
	h.reply(transport.Reply{Request: req, Snapshot: &transport.Snapshot{Inventory: remote.Clone()}})
	require.Len(t, s.Pending, 1)
	assert.Equal(t, reconcile.ActionCreate, s.Pending[0].Action)
	assert.Equal(t, 3, s.Pending[0].QtyDelta)
	assert.False(t, s.MustSync)
}

func TestAgent_ResyncWaitsForPush(t *testing.T) {
	cfg := testConfig(t.TempDir())
	h := newHarness(t, cfg)
	s := h.state(inventory.Primary)
	s.MustCheck, s.MustSync = false, false
	s.NextCheck = t0.Add(time.Hour)
	s.MustUpdate = true
	s.Resync = true
	s.origin = originSync
	s.Pending = []reconcile.Delta{{Action: reconcile.ActionUpdate, RemoteID: 7, QtyDelta: -1, Flags: reconcile.FlagQuantity}}

	h.iterate()
	push := h.disp.last(t)
	require.Equal(t, transport.OpPush, push.Op)
	assert.True(t, s.Resync)
	h.reply(transport.Reply{Request: push, Push: transport.PushResult{Applied: 1}})

	assert.True(t, s.MustSync)
	assert.False(t, s.Resync)
	h.iterate()
	assert.Equal(t, transport.OpFetchInventory, h.disp.last(t).Op)
}

type fakeRecorder struct {
	reports []history.SyncReport
}

func (f *fakeRecorder) Record(_ context.Context, r history.SyncReport) error {
	f.reports = append(f.reports, r)
	return nil
}

func TestAgent_ShortPushEscalatesToSync(t *testing.T) {
	cfg := testConfig(t.TempDir())
	h := newHarness(t, cfg)
	rec := &fakeRecorder{}
	h.agent.recorder = rec
	s := h.state(inventory.Primary)
	s.MustCheck, s.MustSync = false, false
	s.NextCheck = t0.Add(time.Hour)
	s.MustUpdate = true
	s.origin = originSync
	s.Pending = []reconcile.Delta{
		{Action: reconcile.ActionUpdate, RemoteID: 7, QtyDelta: -1, Flags: reconcile.FlagQuantity},
		{Action: reconcile.ActionUpdate, RemoteID: 8, QtyDelta: 2, Flags: reconcile.FlagQuantity},
	}

	h.iterate()
	push := h.disp.last(t)
	require.Equal(t, transport.OpPush, push.Op)
	h.reply(transport.Reply{Request: push, Push: transport.PushResult{Applied: 1}})

	assert.True(t, s.MustSync)
	assert.False(t, s.MustUpdate)
	assert.Empty(t, s.Pending)
	assert.Equal(t, 2*time.Minute, s.Backoff, "a short sync push is a failed sync")

	require.Len(t, rec.reports, 1)
	got := rec.reports[0]
	assert.Equal(t, history.ModePush, got.Mode)
	assert.Equal(t, 1, got.Pushed)
	assert.Contains(t, got.Error, "applied 1 of 2")
}

func TestAgent_ReportsCompletedPush(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.PrimaryDailyLimit = 4
	writeTracked(t, cfg, lot("1", 1), lot("2", 1), lot("3", 1))
	h := newHarness(t, cfg)
	rec := &fakeRecorder{}
	h.agent.recorder = rec

	h.completeCheck(t)
	h.iterate()
	h.reply(transport.Reply{Request: h.disp.last(t), Snapshot: &transport.Snapshot{Inventory: inventory.New(0)}})
	require.Len(t, rec.reports, 1)
	assert.Equal(t, history.ModeSync, rec.reports[0].Mode)
	assert.Equal(t, 0, rec.reports[0].Pushed, "nothing is pushed by the download itself")
	assert.Equal(t, 3, rec.reports[0].Deferred)

	h.iterate()
	push := h.disp.last(t)
	require.Equal(t, transport.OpPush, push.Op)
	require.Len(t, push.Deltas, 2)
	h.reply(transport.Reply{Request: push, Push: transport.PushResult{Applied: 2}})

	require.Len(t, rec.reports, 2)
	got := rec.reports[1]
	assert.Equal(t, history.ModePush, got.Mode)
	assert.Equal(t, 2, got.Pushed)
	assert.Equal(t, 1, got.Deferred)
	assert.Empty(t, got.Error)
}

func TestAgent_CommitFailureIsFatal(t *testing.T) {
	cfg := testConfig(t.TempDir())
	writeTracked(t, cfg, withIDs(lot("3001", 4), 100, 0))
	h := newHarness(t, cfg)
	require.NoError(t, os.Mkdir(cfg.Paths().Inventory+".tmp", 0o755))

	h.completeCheck(t, transport.Order{ID: "o-1", Time: t0, Items: []transport.OrderItem{{LotID: 100, Quantity: 1}}})

	assert.ErrorIs(t, h.agent.fatal, ErrFatal)
	assert.ErrorIs(t, h.agent.fatal, journal.ErrDurability)

	err := h.agent.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrFatal)
}

func TestAgent_SecondaryResolvesUnknownItems(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.SecondaryEnabled = true
	writeTracked(t, cfg, lot("3001", 2), lot("3002", 2), lot("3003", 2))
	h := newHarness(t, cfg)
	_, err := h.cache.Register('P', "3001", 9001)
	require.NoError(t, err)

	primary := h.state(inventory.Primary)
	primary.MustCheck, primary.MustSync = false, false
	primary.NextCheck = t0.Add(time.Hour)

	h.completeCheck(t)
	h.iterate()
	fetch := h.disp.last(t)
	require.Equal(t, inventory.Secondary, fetch.Service)
	h.reply(transport.Reply{Request: fetch, Snapshot: &transport.Snapshot{Inventory: inventory.New(0)}})

	s := h.state(inventory.Secondary)
	require.Len(t, s.Pending, 1, "only the resolved item is created")
	assert.Equal(t, int64(9001), s.Pending[0].CatalogID)

	var resolves []transport.Request
	for _, r := range h.disp.submitted {
		if r.Op == transport.OpResolve {
			resolves = append(resolves, r)
		}
	}
	require.Len(t, resolves, 2)
	assert.Equal(t, "3002", resolves[0].ItemID)

	h.reply(transport.Reply{Request: resolves[0], CatalogID: 9002})
	h.reply(transport.Reply{Request: resolves[1], Err: transport.ErrNotSupported})

	idB, ok := h.cache.LookupAtoB('P', "3002")
	require.True(t, ok)
	assert.Equal(t, int64(9002), idB)
	assert.True(t, h.agent.negative.Failed('P', "3003"))
	assert.True(t, s.MustSync, "learned ids trigger another sync")
}

func TestAgent_VerifyDoesNotPush(t *testing.T) {
	cfg := testConfig(t.TempDir())
	writeTracked(t, cfg, lot("3001", 2))
	h := newHarness(t, cfg)
	s := h.state(inventory.Primary)
	s.MustCheck, s.MustSync = false, false
	s.NextCheck = t0.Add(time.Hour)

	h.agent.Execute("verify primary")
	h.iterate()
	req := h.disp.last(t)
	require.Equal(t, transport.OpFetchInventory, req.Op)
	h.reply(transport.Reply{Request: req, Snapshot: &transport.Snapshot{Inventory: inventory.New(0)}})

	assert.False(t, s.MustUpdate)
	assert.Empty(t, s.Pending)
	assert.Zero(t, h.agent.Tracked().Get(0).ForeignID(inventory.Primary))
}

func TestAgent_RunStopsOnQuit(t *testing.T) {
	cfg := testConfig(t.TempDir())
	h := newHarness(t, cfg)

	lines := make(chan string, 1)
	lines <- "quit"
	err := h.agent.Run(context.Background(), lines)
	assert.NoError(t, err)
	assert.NotNil(t, h.agent.Status())
}

// settlingDispatcher holds replies until the agent waits for them.
type settlingDispatcher struct {
	*fakeDispatcher
	held   []transport.Reply
	waited bool
}

func (d *settlingDispatcher) Outstanding() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.held)
}

func (d *settlingDispatcher) WaitPending(context.Context, int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.waited = true
	d.replies = append(d.replies, d.held...)
	d.held = nil
	return nil
}

func TestAgent_QuitAppliesRunningRequests(t *testing.T) {
	cfg := testConfig(t.TempDir())
	h := newHarness(t, cfg)
	disp := &settlingDispatcher{fakeDispatcher: h.disp}
	h.agent.dispatcher = disp
	s := h.state(inventory.Primary)
	s.MustCheck, s.MustSync = false, false
	s.NextCheck = t0.Add(time.Hour)
	s.MustUpdate = true
	s.Pending = []reconcile.Delta{{Action: reconcile.ActionUpdate, RemoteID: 7, QtyDelta: -1, Flags: reconcile.FlagQuantity}}

	h.iterate()
	push := h.disp.last(t)
	require.Equal(t, transport.OpPush, push.Op)
	disp.held = []transport.Reply{{Request: push, Push: transport.PushResult{Applied: 1}}}

	lines := make(chan string, 1)
	lines <- "quit"
	require.NoError(t, h.agent.Run(context.Background(), lines))
	assert.True(t, disp.waited)
	assert.True(t, s.Idle())
	assert.False(t, s.MustUpdate)

	again := newHarness(t, cfg)
	assert.False(t, again.state(inventory.Primary).MustSync, "a completed push needs no resync")
}

func TestAgent_RunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t.TempDir())
	h := newHarness(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, h.agent.Run(ctx, nil))
}

func TestAgent_IdleWaitBoundedByTimers(t *testing.T) {
	cfg := testConfig(t.TempDir())
	h := newHarness(t, cfg)
	s := h.state(inventory.Primary)
	s.MustCheck, s.MustSync = false, false

	s.NextCheck = t0.Add(2 * time.Second)
	s.NextSync = t0.Add(time.Hour)
	assert.Equal(t, 2*time.Second, h.agent.idleWait(t0))

	s.NextCheck = t0.Add(time.Hour)
	assert.Equal(t, 5*time.Second, h.agent.idleWait(t0))

	// A past sync time means nothing once the sync succeeded.
	s.NextSync = t0.Add(-time.Minute)
	assert.Equal(t, 5*time.Second, h.agent.idleWait(t0))

	s.MustSync = true
	s.NextSync = t0.Add(3 * time.Second)
	assert.Equal(t, 3*time.Second, h.agent.idleWait(t0))
}

func TestAgent_IdleWaitWhenQuotaExhausted(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.PrimaryDailyLimit = 1
	h := newHarness(t, cfg)
	s := h.state(inventory.Primary)
	s.MustSync = false
	s.History.Increment(t0)

	// The order check is due but has no quota to run with.
	h.iterate()
	assert.True(t, s.MustCheck)
	assert.Zero(t, h.disp.count())
	assert.Equal(t, 5*time.Second, h.agent.idleWait(t0))
}

func TestAgent_IdleWaitIgnoresSuppressedSecondary(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.SecondaryEnabled = true
	h := newHarness(t, cfg)

	p := h.state(inventory.Primary)
	p.MustCheck, p.MustSync, p.MustUpdate = false, false, true
	p.NextCheck = t0.Add(time.Hour)

	sec := h.state(inventory.Secondary)
	sec.MustCheck = false
	sec.NextCheck = t0.Add(time.Hour)
	sec.MustSync = true
	sec.NextSync = t0.Add(-time.Minute)

	assert.Equal(t, 5*time.Second, h.agent.idleWait(t0))
}

func TestNew_RequiresTranslationCacheForSecondary(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "data"))
	cfg.SecondaryEnabled = true
	_, err := New(cfg, Options{Dispatcher: newFakeDispatcher()})
	assert.Error(t, err)
}
