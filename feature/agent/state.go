package agent

import (
	"time"

	"stock-sync/core/inventory"
	"stock-sync/core/quota"
	"stock-sync/core/reconcile"
	"stock-sync/core/transport"
)

// pushOrigin records why the pending delta exists, which decides how a
// push failure is charged.
type pushOrigin int

const (
	originOrders pushOrigin = iota
	originSync
)

// ServiceState is the per-service scheduling record.
type ServiceState struct {
	Service inventory.Service

	// MustCheck asks for an order poll.
	MustCheck bool
	// MustSync asks for a full reconciliation.
	MustSync bool
	// MustUpdate asks for Pending to be pushed.
	MustUpdate bool
	// PartialSync is set while part of Pending waits for quota headroom.
	PartialSync bool
	// Resync asks for another reconciliation once Pending is pushed.
	Resync bool

	NextCheck time.Time
	NextSync  time.Time
	Backoff   time.Duration

	// HighWater is the time of the newest consumed order.
	HighWater time.Time
	// Pending holds deltas not yet pushed.
	Pending []reconcile.Delta
	origin  pushOrigin

	History *quota.History

	// inFlight is the operation awaiting a reply, zero when idle.
	inFlight   transport.Op
	inFlightID string
	verifying  bool
	// pushing holds the deltas of the in-flight push.
	pushing []reconcile.Delta

	// verifyRequested queues a dry-run reconciliation.
	verifyRequested bool
}

func newServiceState(svc inventory.Service, now time.Time, backoff time.Duration) *ServiceState {
	return &ServiceState{
		Service:   svc,
		MustCheck: true,
		MustSync:  true,
		NextCheck: now,
		NextSync:  now,
		Backoff:   backoff,
		History:   quota.NewDefault(now),
	}
}

// Idle reports whether no operation is in flight.
func (s *ServiceState) Idle() bool {
	return s.inFlight == 0
}

// Status is a read-only snapshot of a service's state.
type Status struct {
	Service     string    `json:"service"`
	MustCheck   bool      `json:"must_check"`
	MustSync    bool      `json:"must_sync"`
	MustUpdate  bool      `json:"must_update"`
	PartialSync bool      `json:"partial_sync"`
	NextCheck   time.Time `json:"next_check"`
	NextSync    time.Time `json:"next_sync"`
	Backoff     string    `json:"backoff"`
	HighWater   time.Time `json:"high_water"`
	Pending     int       `json:"pending"`
	InFlight    string    `json:"in_flight,omitempty"`
	APIUsage    int       `json:"api_usage_24h"`
	DailyLimit  int       `json:"daily_limit"`
}

// Snapshot is the agent status published after every loop iteration.
type Snapshot struct {
	Time      time.Time        `json:"time"`
	Inventory inventory.Totals `json:"inventory"`
	Services  []Status         `json:"services"`
}

func (s *ServiceState) status(limit int) Status {
	st := Status{
		Service:     s.Service.String(),
		MustCheck:   s.MustCheck,
		MustSync:    s.MustSync,
		MustUpdate:  s.MustUpdate,
		PartialSync: s.PartialSync,
		NextCheck:   s.NextCheck,
		NextSync:    s.NextSync,
		Backoff:     s.Backoff.String(),
		HighWater:   s.HighWater,
		Pending:     len(s.Pending),
		APIUsage:    s.History.CountInPeriod(quota.Window),
		DailyLimit:  limit,
	}
	if s.inFlight != 0 {
		st.InFlight = s.inFlight.String()
	}
	return st
}
