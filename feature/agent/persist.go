package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"stock-sync/core/inventory"
	"stock-sync/core/journal"
	"stock-sync/core/metrics"
	"stock-sync/core/quota"
	"stock-sync/core/reconcile"
	"stock-sync/core/transport"

	"go.uber.org/zap"
)

// StateVersion is the state file format written by this package.
const StateVersion = 1

const backupTimeout = 30 * time.Second

// ErrUnsupportedState is returned for state files from a newer version.
var ErrUnsupportedState = errors.New("agent: unsupported state file version")

type stateFile struct {
	Version  int             `json:"version"`
	Services []serviceRecord `json:"services"`
}

type serviceRecord struct {
	Service        string            `json:"service"`
	MustCheck      bool              `json:"must_check"`
	MustSync       bool              `json:"must_sync"`
	MustUpdate     bool              `json:"must_update"`
	PartialSync    bool              `json:"partial_sync"`
	Resync         bool              `json:"resync,omitempty"`
	NextCheck      time.Time         `json:"next_check"`
	NextSync       time.Time         `json:"next_sync"`
	BackoffSeconds int64             `json:"backoff_seconds"`
	HighWater      time.Time         `json:"high_water"`
	FromSync       bool              `json:"from_sync,omitempty"`
	Pending        []reconcile.Delta `json:"pending,omitempty"`
	PushInFlight   bool              `json:"push_in_flight,omitempty"`
	// History is the quota ring's binary block, base64 in JSON.
	History []byte `json:"history"`
}

func encodeState(services []inventory.Service, states map[inventory.Service]*ServiceState) ([]byte, error) {
	f := stateFile{Version: StateVersion}
	for _, svc := range services {
		s := states[svc]
		block, err := s.History.MarshalBinary()
		if err != nil {
			return nil, err
		}
		f.Services = append(f.Services, serviceRecord{
			Service:        svc.String(),
			MustCheck:      s.MustCheck,
			MustSync:       s.MustSync,
			MustUpdate:     s.MustUpdate,
			PartialSync:    s.PartialSync,
			Resync:         s.Resync,
			NextCheck:      s.NextCheck,
			NextSync:       s.NextSync,
			BackoffSeconds: int64(s.Backoff / time.Second),
			HighWater:      s.HighWater,
			FromSync:       s.origin == originSync,
			Pending:        s.Pending,
			PushInFlight:   s.inFlight == transport.OpPush,
			History:        block,
		})
	}
	return json.MarshalIndent(f, "", "  ")
}

// loadState reads the scheduling state. Services missing from the file
// start fresh with a check and a sync due.
func loadState(path string, services []inventory.Service, now time.Time, backoff time.Duration) (map[inventory.Service]*ServiceState, error) {
	states := make(map[inventory.Service]*ServiceState, len(services))
	for _, svc := range services {
		states[svc] = newServiceState(svc, now, backoff)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return states, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var f stateFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if f.Version > StateVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedState, f.Version)
	}

	for _, rec := range f.Services {
		svc, err := inventory.ParseService(rec.Service)
		if err != nil {
			return nil, fmt.Errorf("decode state: %w", err)
		}
		s, ok := states[svc]
		if !ok {
			continue
		}
		h := quota.NewDefault(now)
		if err := h.UnmarshalBinary(rec.History); err != nil {
			return nil, fmt.Errorf("decode %s quota history: %w", svc, err)
		}
		h.RollForward(now)

		s.History = h
		// Orders may have arrived while stopped.
		s.MustCheck = true
		s.MustSync = rec.MustSync || rec.PushInFlight
		s.MustUpdate = rec.MustUpdate
		s.PartialSync = rec.PartialSync
		s.Resync = rec.Resync
		s.NextCheck = rec.NextCheck
		s.NextSync = rec.NextSync
		s.HighWater = rec.HighWater
		s.Pending = rec.Pending
		if rec.FromSync {
			s.origin = originSync
		}
		if rec.BackoffSeconds > 0 {
			s.Backoff = time.Duration(rec.BackoffSeconds) * time.Second
		}
		if rec.PushInFlight {
			// The outcome of the interrupted push is unknown.
			s.Pending = nil
			s.MustUpdate = false
			s.PartialSync = false
			s.Resync = false
		}
	}
	return states, nil
}

// ReadStatus loads the state file of cfg without starting an agent.
func ReadStatus(cfg Config, now time.Time) ([]Status, error) {
	services := cfg.Services()
	states, err := loadState(cfg.Paths().State, services, now, cfg.backoffBase())
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(services))
	for _, svc := range services {
		out = append(out, states[svc].status(cfg.DailyLimit(svc)))
	}
	return out, nil
}

// commit writes the tracked inventory and the state to temporary files and
// renames both into place through the journal. Any failure is fatal.
func (a *Agent) commit() {
	if a.fatal != nil {
		return
	}
	err := a.writeFiles()
	if err != nil {
		metrics.JournalCommits.WithLabelValues(metrics.ResultError).Inc()
		a.fail(err)
		return
	}
	metrics.JournalCommits.WithLabelValues(metrics.ResultOK).Inc()
}

func (a *Agent) writeFiles() error {
	invTemp := a.paths.Inventory + ".tmp"
	stateTemp := a.paths.State + ".tmp"

	if err := a.tracked.WriteFile(invTemp); err != nil {
		return fmt.Errorf("%w: write inventory: %w", journal.ErrDurability, err)
	}
	data, err := encodeState(a.services, a.states)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := inventory.WriteFileSync(stateTemp, data); err != nil {
		return fmt.Errorf("%w: write state: %w", journal.ErrDurability, err)
	}

	txn := journal.Begin(2).WithLogger(a.logger)
	txn.Add(invTemp, a.paths.Inventory, true, false)
	txn.Add(stateTemp, a.paths.State, true, false)
	return journal.Commit(a.paths.Journal, a.paths.JournalTemp, txn)
}

// saveBackup uploads a copy of the tracked inventory in the background.
func (a *Agent) saveBackup(now time.Time) {
	if a.backup == nil || !a.cfg.BackupEnabled {
		return
	}
	data, err := a.tracked.Encode()
	if err != nil {
		a.logger.Warn("Failed to encode backup", zap.Error(err))
		return
	}
	a.backups.Add(1)
	go func() {
		defer a.backups.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
		defer cancel()
		if err := a.backup.Save(ctx, data, now); err != nil {
			a.logger.Warn("Inventory backup failed", zap.Error(err))
			return
		}
		a.logger.Debug("Inventory backup saved", zap.Time("at", now))
	}()
}

// publish stores a status snapshot and refreshes the state gauges.
func (a *Agent) publish(now time.Time) {
	snap := &Snapshot{Time: now, Inventory: a.tracked.Totals()}
	for _, svc := range a.services {
		s := a.states[svc]
		limit := a.cfg.DailyLimit(svc)
		st := s.status(limit)
		snap.Services = append(snap.Services, st)

		name := svc.String()
		metrics.APIUsage24h.WithLabelValues(name).Set(float64(st.APIUsage))
		metrics.BackoffSeconds.WithLabelValues(name).Set(s.Backoff.Seconds())
		metrics.DeltasDeferred.WithLabelValues(name).Set(float64(len(s.Pending)))
		metrics.ServiceFlag.WithLabelValues(name, "must_check").Set(metrics.BoolGauge(s.MustCheck))
		metrics.ServiceFlag.WithLabelValues(name, "must_sync").Set(metrics.BoolGauge(s.MustSync))
		metrics.ServiceFlag.WithLabelValues(name, "must_update").Set(metrics.BoolGauge(s.MustUpdate))
		metrics.ServiceFlag.WithLabelValues(name, "partial_sync").Set(metrics.BoolGauge(s.PartialSync))
	}
	a.status.Store(snap)
}
