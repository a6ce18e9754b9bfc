package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-sync/core/inventory"
	"stock-sync/core/metrics"
	"stock-sync/core/reconcile"
	"stock-sync/core/transport"
	"stock-sync/core/translate"
	"stock-sync/feature/history"

	"go.uber.org/zap"
)

const recordTimeout = 5 * time.Second

// ErrShortPush reports a push the remote only partly executed.
var ErrShortPush = errors.New("agent: push not fully applied")

// handleReply applies the outcome of a finished request.
func (a *Agent) handleReply(r transport.Reply, now time.Time) {
	s, ok := a.states[r.Request.Service]
	if !ok {
		a.logger.Warn("Reply for unknown service", zap.String("request_id", r.Request.ID))
		return
	}
	if r.Request.Op == transport.OpResolve {
		a.onResolve(s, r)
		return
	}
	if r.Request.ID != s.inFlightID {
		a.logger.Warn("Discarding stale reply",
			zap.String("service", s.Service.String()),
			zap.String("request_id", r.Request.ID),
		)
		return
	}

	op, verifying, pushing := s.inFlight, s.verifying, s.pushing
	s.inFlight, s.inFlightID, s.verifying, s.pushing = 0, "", false, nil

	var charged bool
	switch op {
	case transport.OpFetchOrders:
		a.onOrders(s, r, now)
	case transport.OpFetchInventory:
		if verifying {
			a.onVerify(s, r)
		} else {
			charged = a.onSnapshot(s, r, now)
		}
	case transport.OpPush:
		charged = a.onPush(s, r, pushing, now)
	}

	if r.Reset && !charged {
		a.logger.Warn("Remote reset after repeated failures", zap.String("service", s.Service.String()))
		a.syncFailed(s, now)
	}
}

func (a *Agent) onOrders(s *ServiceState, r transport.Reply, now time.Time) {
	s.MustCheck = false
	if r.Err != nil {
		s.NextCheck = now.Add(a.cfg.failInterval())
		a.logger.Warn("Order check failed",
			zap.String("service", s.Service.String()),
			zap.Time("retry_at", s.NextCheck),
			zap.Error(r.Err),
		)
		return
	}
	s.NextCheck = now.Add(a.cfg.pollInterval())

	if consumed := a.consumeOrders(s, r.Orders); consumed > 0 {
		a.commit()
	}
}

// consumeOrders decrements the tracked inventory for orders newer than the
// high-water-mark and queues the matching change for the other service.
func (a *Agent) consumeOrders(s *ServiceState, orders []transport.Order) int {
	other := a.states[s.Service.Other()]
	consumed := 0
	for _, o := range orders {
		if !o.Time.After(s.HighWater) {
			continue
		}
		for _, item := range o.Items {
			i := a.tracked.FindByForeignID(s.Service, item.LotID)
			if i < 0 {
				a.logger.Warn("Order references unknown lot",
					zap.String("service", s.Service.String()),
					zap.String("order", o.ID),
					zap.Int64("lot_id", item.LotID),
				)
				continue
			}
			lot := a.tracked.Get(i)
			dec := min(item.Quantity, lot.Quantity)
			if dec <= 0 {
				continue
			}
			lot.Quantity -= dec
			if other != nil {
				a.queueQuantity(other, lot, -dec)
			}
		}
		s.HighWater = o.Time
		consumed++
		a.logger.Info("Order consumed",
			zap.String("service", s.Service.String()),
			zap.String("order", o.ID),
			zap.Int("items", len(o.Items)),
		)
	}
	if consumed > 0 {
		a.tracked.Recount()
		metrics.OrdersConsumed.WithLabelValues(s.Service.String()).Add(float64(consumed))
	}
	return consumed
}

// queueQuantity adds a relative quantity change for lot to s's pending delta.
func (a *Agent) queueQuantity(s *ServiceState, lot *inventory.Lot, qty int) {
	remoteID := lot.ForeignID(s.Service)
	if remoteID == 0 {
		s.MustSync = true
		return
	}
	if len(s.Pending) == 0 {
		s.origin = originOrders
	}
	s.MustUpdate = true
	for i := range s.Pending {
		d := &s.Pending[i]
		if d.Action == reconcile.ActionUpdate && d.RemoteID == remoteID {
			d.QtyDelta += qty
			d.Flags |= reconcile.FlagQuantity
			d.Lot.Quantity = lot.Quantity
			return
		}
	}
	s.Pending = append(s.Pending, reconcile.Delta{
		Action:   reconcile.ActionUpdate,
		Lot:      *lot,
		RemoteID: remoteID,
		LocalID:  lot.LocalID,
		QtyDelta: qty,
		Flags:    reconcile.FlagQuantity,
	})
}

// onSnapshot reconciles a full download and reports whether the reply was
// charged as a sync failure.
func (a *Agent) onSnapshot(s *ServiceState, r transport.Reply, now time.Time) bool {
	svc := s.Service.String()
	if r.Err != nil || r.Snapshot == nil || r.Snapshot.Inventory == nil {
		a.logger.Warn("Inventory download failed", zap.String("service", svc), zap.Error(r.Err))
		a.syncFailed(s, now)
		a.commit()
		a.record(history.SyncReport{Service: svc, Mode: history.ModeSync, Error: errString(r.Err)})
		return true
	}

	if r.Snapshot.LatestOrderTime.After(s.HighWater) {
		a.logger.Info("Sync aborted, new orders arrived",
			zap.String("service", svc),
			zap.Time("latest_order", r.Snapshot.LatestOrderTime),
			zap.Time("high_water", s.HighWater),
		)
		s.MustCheck = true
		a.record(history.SyncReport{Service: svc, Mode: history.ModeSync, Aborted: true})
		return false
	}

	plan := reconcile.Reconcile(a.tracked, r.Snapshot.Inventory, a.filter, a.profile(s.Service))
	a.observe(plan, history.ModeSync)
	if n := plan.Settle(a.tracked, nil); n > 0 {
		a.logger.Info("Lot ids updated", zap.String("service", svc), zap.Int("lots", n))
	}

	deltas := plan.Pushable()
	s.MustSync = false
	s.Pending = deltas
	s.origin = originSync
	s.MustUpdate = len(deltas) > 0
	s.PartialSync = false
	// Lots that lost a duplicate claim have no remote id left and are only
	// created by the next reconciliation.
	s.Resync = len(plan.Released) > 0
	if len(deltas) == 0 {
		a.syncSucceeded(s)
		a.scheduleResync(s)
	}
	if s.Service == inventory.Secondary {
		a.resolveMissing(s, now)
	}

	a.commit()
	if a.fatal != nil {
		return false
	}
	a.saveBackup(now)

	report := history.FromSummary(svc, history.ModeSync, plan.Summary)
	report.Deferred = len(deltas)
	a.record(report)
	return false
}

func (a *Agent) onVerify(s *ServiceState, r transport.Reply) {
	svc := s.Service.String()
	if r.Err != nil || r.Snapshot == nil || r.Snapshot.Inventory == nil {
		a.logger.Warn("Verify download failed", zap.String("service", svc), zap.Error(r.Err))
		a.record(history.SyncReport{Service: svc, Mode: history.ModeVerify, Error: errString(r.Err)})
		return
	}
	plan := reconcile.Reconcile(a.tracked, r.Snapshot.Inventory, a.filter, a.profile(s.Service))
	a.observe(plan, history.ModeVerify)
	for _, d := range plan.Deltas {
		a.logger.Info("Verify difference",
			zap.String("service", svc),
			zap.String("action", string(d.Action)),
			zap.String("lot", d.Lot.Label()),
			zap.Int64("remote_id", d.RemoteID),
			zap.Strings("mismatch", d.Mismatch),
		)
	}
	a.record(history.FromSummary(svc, history.ModeVerify, plan.Summary))
}

// onPush settles a finished push and reports whether it was charged as a
// sync failure.
func (a *Agent) onPush(s *ServiceState, r transport.Reply, pushed []reconcile.Delta, now time.Time) bool {
	svc := s.Service.String()
	if r.Err == nil && len(r.Push.Created) > 0 {
		settle := reconcile.Plan{Service: s.Service}
		settle.Settle(a.tracked, r.Push.Created)
	}

	err := r.Err
	if err == nil && r.Push.Applied < len(pushed) {
		err = fmt.Errorf("%w: remote applied %d of %d deltas", ErrShortPush, r.Push.Applied, len(pushed))
	}
	if err != nil {
		a.logger.Warn("Push failed, full sync required",
			zap.String("service", svc),
			zap.Int("deltas", len(pushed)),
			zap.Int("applied", r.Push.Applied),
			zap.Bool("ambiguous", transport.IsAmbiguous(r.Err)),
			zap.Error(err),
		)
		deferred := len(s.Pending)
		s.Pending = nil
		s.MustUpdate = false
		s.PartialSync = false
		s.Resync = false
		s.MustSync = true
		charged := s.origin == originSync
		if charged {
			a.syncFailed(s, now)
		}
		a.commit()
		a.record(history.SyncReport{
			Service:  svc,
			Mode:     history.ModePush,
			Pushed:   r.Push.Applied,
			Deferred: deferred,
			Error:    err.Error(),
		})
		return charged
	}

	metrics.DeltasPushed.WithLabelValues(svc).Add(float64(len(pushed)))
	if len(s.Pending) == 0 {
		s.MustUpdate = false
		s.PartialSync = false
		if s.origin == originSync {
			a.syncSucceeded(s)
		}
		a.scheduleResync(s)
	}
	a.logger.Info("Push applied",
		zap.String("service", svc),
		zap.Int("deltas", len(pushed)),
		zap.Int("created", len(r.Push.Created)),
		zap.Int("pending", len(s.Pending)),
	)
	a.commit()
	a.record(history.SyncReport{
		Service:  svc,
		Mode:     history.ModePush,
		Created:  len(r.Push.Created),
		Pushed:   len(pushed),
		Deferred: len(s.Pending),
	})
	return false
}

// scheduleResync turns a pending Resync into a due reconciliation.
func (a *Agent) scheduleResync(s *ServiceState) {
	if !s.Resync {
		return
	}
	s.Resync = false
	s.MustSync = true
	a.logger.Info("Released lots need a follow-up sync", zap.String("service", s.Service.String()))
}

func (a *Agent) syncSucceeded(s *ServiceState) {
	s.Backoff = a.cfg.backoffBase()
	a.logger.Info("Sync complete", zap.String("service", s.Service.String()))
}

func (a *Agent) syncFailed(s *ServiceState, now time.Time) {
	s.MustSync = true
	s.Backoff = min(s.Backoff*2, a.cfg.backoffMax())
	if s.Backoff <= 0 {
		s.Backoff = a.cfg.backoffBase()
	}
	s.NextSync = now.Add(s.Backoff)
	a.logger.Info("Sync rescheduled",
		zap.String("service", s.Service.String()),
		zap.Duration("backoff", s.Backoff),
		zap.Time("next_sync", s.NextSync),
	)
}

// resolveMissing starts catalog lookups for tracked items the secondary
// service has no id for yet.
func (a *Agent) resolveMissing(s *ServiceState, now time.Time) {
	if a.cache == nil || a.cfg.ResolveBatch <= 0 {
		return
	}
	budget := a.cfg.ResolveBatch
	for _, lot := range a.tracked.Lots() {
		if budget == 0 {
			return
		}
		if lot.Tombstone || lot.Quantity <= 0 || (a.filter != nil && a.filter(&lot)) {
			continue
		}
		key := translate.Key{ItemType: byte(lot.ItemType), ID: lot.ItemID}
		if _, ok := a.cache.LookupAtoB(key.ItemType, key.ID); ok {
			continue
		}
		if a.resolving[key] || a.negative.Failed(key.ItemType, key.ID) {
			continue
		}
		req := transport.Request{Op: transport.OpResolve, ItemType: key.ItemType, ItemID: key.ID}
		if !a.submit(s, req, 1, now) {
			return
		}
		a.resolving[key] = true
		budget--
	}
}

func (a *Agent) onResolve(s *ServiceState, r transport.Reply) {
	key := translate.Key{ItemType: r.Request.ItemType, ID: r.Request.ItemID}
	delete(a.resolving, key)

	if r.Err != nil {
		a.negative.MarkFailed(key.ItemType, key.ID, a.now())
		a.logger.Debug("Catalog id not resolved", zap.Stringer("item", key), zap.Error(r.Err))
	} else if changed, err := a.cache.Register(key.ItemType, key.ID, r.CatalogID); err != nil {
		a.negative.MarkFailed(key.ItemType, key.ID, a.now())
		a.logger.Warn("Failed to register catalog id", zap.Stringer("item", key), zap.Error(err))
	} else if changed {
		a.negative.Forget(key.ItemType, key.ID)
		a.resolvedAnyNew = true
	}

	if len(a.resolving) == 0 && a.resolvedAnyNew {
		a.resolvedAnyNew = false
		s.MustSync = true
		a.logger.Info("New catalog ids learned, sync scheduled", zap.String("service", s.Service.String()))
	}
}

// observe logs and counts the outcome of a reconciliation.
func (a *Agent) observe(plan *reconcile.Plan, mode string) {
	svc := plan.Service.String()
	sum := plan.Summary
	metrics.ReconcileRuns.WithLabelValues(svc, mode).Inc()
	for outcome, n := range map[string]int{
		"filtered":          sum.Filtered,
		"unresolvable":      sum.Unresolvable,
		"duplicate_deleted": sum.DuplicateDeleted,
		"orphan_deleted":    sum.OrphanDeleted,
		"created":           sum.Created,
		"qty_updated":       sum.QtyUpdated,
		"field_updated":     sum.FieldUpdated,
		"matched":           sum.Matched,
	} {
		if n > 0 {
			metrics.ReconcileOutcomes.WithLabelValues(svc, outcome).Add(float64(n))
		}
	}
	a.logger.Info("Reconciliation complete",
		zap.String("service", svc),
		zap.String("mode", mode),
		zap.Int("deltas", len(plan.Deltas)),
		zap.Int("created", sum.Created),
		zap.Int("qty_updated", sum.QtyUpdated),
		zap.Int("field_updated", sum.FieldUpdated),
		zap.Int("orphan_deleted", sum.OrphanDeleted),
		zap.Int("duplicate_deleted", sum.DuplicateDeleted),
		zap.Int("unresolvable", sum.Unresolvable),
		zap.Int("filtered", sum.Filtered),
		zap.Int("missing_units", sum.MissingUnits),
		zap.Int("extra_units", sum.ExtraUnits),
	)
}

func (a *Agent) record(r history.SyncReport) {
	if a.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := a.recorder.Record(ctx, r); err != nil {
		a.logger.Warn("Sync report not stored", zap.Error(err))
	}
}

func errString(err error) string {
	if err == nil {
		return "no snapshot"
	}
	return err.Error()
}
