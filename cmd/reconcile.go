package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"stock-sync/core/inventory"
	"stock-sync/core/reconcile"
	"stock-sync/core/storage"
	"stock-sync/core/transport"
	"stock-sync/core/translate"
	"stock-sync/feature/agent"
	"stock-sync/feature/bridge"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	reconcileService  string
	reconcileSnapshot string
	reconcileJSON     bool
)

// reconcileCmd compares the tracked inventory with a remote snapshot.
var reconcileCmd = &cobra.Command{
	Use:     "reconcile",
	Aliases: []string{"verify"},
	Short:   "Compare the tracked inventory with a marketplace (dry run)",
	Long: `Reconciles the tracked inventory against a marketplace inventory and
reports the changes a sync would push. Nothing is sent and no file is written.

Examples:
  # Compare against the latest export in object storage
  stock-sync reconcile --service secondary

  # Compare against an export saved on disk and print the full plan
  stock-sync reconcile --service primary --snapshot export.json --json`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileService, "service", "primary", "Service to compare against (primary or secondary)")
	reconcileCmd.Flags().StringVar(&reconcileSnapshot, "snapshot", "", "Read the inventory export from a file instead of object storage")
	reconcileCmd.Flags().BoolVar(&reconcileJSON, "json", false, "Print the plan as JSON")
	RootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, l, err := loadRuntime()
	if err != nil {
		return err
	}
	defer l.Sync()

	svc, err := inventory.ParseService(reconcileService)
	if err != nil {
		return err
	}

	tracked, err := inventory.Load(cfg.Agent.Paths().Inventory)
	if err != nil {
		return err
	}

	var snap *transport.Snapshot
	if reconcileSnapshot != "" {
		data, err := os.ReadFile(reconcileSnapshot)
		if err != nil {
			return fmt.Errorf("failed to read snapshot: %w", err)
		}
		if snap, err = bridge.DecodeSnapshot(data); err != nil {
			return err
		}
	} else {
		client, err := storage.NewClient(cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage client: %w", err)
		}
		fetchCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Transport.TimeoutSeconds)*time.Second)
		defer cancel()
		remote := bridge.New(client, cfg.Storage.Bucket, cfg.Storage.Region, svc, cfg.Bridge, l)
		if snap, err = remote.FetchInventory(fetchCtx); err != nil {
			return fmt.Errorf("failed to download inventory: %w", err)
		}
	}

	var resolver reconcile.Resolver
	if svc == inventory.Secondary {
		cache, err := translate.Open(cfg.Agent.Paths().Translate, l)
		if err != nil {
			return err
		}
		defer cache.Close()
		resolver = cache
	}

	plan := reconcile.Reconcile(tracked, snap.Inventory, cfg.Agent.Filter(), agent.ProfileFor(svc, resolver))
	if reconcileJSON {
		return printJSON(plan)
	}
	printReconcileReport(l, plan)
	return nil
}

// printReconcileReport prints a formatted reconciliation report using logger.
func printReconcileReport(l *zap.Logger, plan *reconcile.Plan) {
	s := plan.Summary

	l.Info("Reconciliation report",
		zap.String("service", plan.Service.String()),
		zap.Int("matched", s.Matched),
		zap.Int("created", s.Created),
		zap.Int("qty_updated", s.QtyUpdated),
		zap.Int("field_updated", s.FieldUpdated),
		zap.Int("orphan_deleted", s.OrphanDeleted),
		zap.Int("duplicate_deleted", s.DuplicateDeleted),
		zap.Int("unresolvable", s.Unresolvable),
		zap.Int("filtered", s.Filtered),
		zap.Int("missing_units", s.MissingUnits),
		zap.Int("extra_units", s.ExtraUnits),
	)

	if len(plan.Deltas) == 0 {
		l.Info("Marketplace matches the tracked inventory")
		return
	}

	maxShow := min(len(plan.Deltas), 10)
	for _, d := range plan.Deltas[:maxShow] {
		l.Info("Sample delta",
			zap.String("action", string(d.Action)),
			zap.String("lot", d.Lot.Label()),
			zap.Int64("remote_id", d.RemoteID),
			zap.Int("qty_delta", d.QtyDelta),
			zap.Strings("mismatch", d.Mismatch),
		)
	}
	if len(plan.Deltas) > maxShow {
		l.Info("Additional deltas not shown", zap.Int("count", len(plan.Deltas)-maxShow))
	}
}
