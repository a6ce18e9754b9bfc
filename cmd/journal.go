package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"stock-sync/core/inventory"
	"stock-sync/core/journal"
	"stock-sync/core/translate"
	"stock-sync/feature/agent"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// journalCmd groups commands working on the agent's data directory.
var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect and repair the agent's data files",
}

// journalReplayCmd completes a commit interrupted by a crash.
var journalReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Complete an interrupted commit",
	Long: `Replays the rename journal left by an interrupted commit so the tracked
inventory and the state file are both at the committed version. The agent
does this on start; the command is for inspecting a stopped installation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, l, err := loadRuntime()
		if err != nil {
			return err
		}
		defer l.Sync()

		n, err := journal.Replay(cfg.Agent.Paths().Journal, l)
		if err != nil {
			return fmt.Errorf("journal replay failed: %w", err)
		}
		if n == 0 {
			l.Info("No interrupted commit found")
			return nil
		}
		l.Info("Interrupted commit completed", zap.Int("renames", n))
		return nil
	},
}

// journalCheckCmd validates every file in the data directory.
var journalCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the tracked inventory, state and translation cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, l, err := loadRuntime()
		if err != nil {
			return err
		}
		defer l.Sync()
		paths := cfg.Agent.Paths()

		if _, err := os.Stat(paths.Journal); err == nil {
			l.Warn("Interrupted commit pending, run 'journal replay' or start the agent", zap.String("journal", paths.Journal))
		}

		var failed []error
		if tracked, err := inventory.Load(paths.Inventory); err != nil {
			failed = append(failed, err)
		} else {
			t := tracked.Totals()
			l.Info("Tracked inventory", zap.Int("lots", t.Lots), zap.Int("units", t.Units), zap.Float64("value", t.Value))
		}

		if statuses, err := agent.ReadStatus(cfg.Agent, time.Now()); err != nil {
			failed = append(failed, err)
		} else {
			for _, st := range statuses {
				l.Info("Service state",
					zap.String("service", st.Service),
					zap.Bool("must_sync", st.MustSync),
					zap.Bool("must_update", st.MustUpdate),
					zap.Int("pending", st.Pending),
					zap.Time("high_water", st.HighWater),
					zap.Int("api_usage_24h", st.APIUsage),
				)
			}
		}

		if cfg.Agent.SecondaryEnabled {
			if _, err := os.Stat(paths.Translate); err == nil {
				cache, err := translate.Open(paths.Translate, l)
				if err != nil {
					failed = append(failed, err)
				} else {
					l.Info("Translation cache", zap.Int("entries", cache.Len()))
					cache.Close()
				}
			}
		}

		if err := errors.Join(failed...); err != nil {
			return fmt.Errorf("data check failed: %w", err)
		}
		l.Info("Data files are consistent")
		return nil
	},
}

func init() {
	journalCmd.AddCommand(journalReplayCmd)
	journalCmd.AddCommand(journalCheckCmd)
	RootCmd.AddCommand(journalCmd)
}
