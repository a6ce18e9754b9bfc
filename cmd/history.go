package cmd

import (
	"context"
	"fmt"

	"stock-sync/core/database"
	"stock-sync/feature/history"

	"github.com/spf13/cobra"
)

var (
	historyService string
	historyLimit   int
)

// historyCmd groups commands on stored sync reports.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect sync reports",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sync reports as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cfg, l, err := loadRuntime()
		if err != nil {
			return err
		}
		defer l.Sync()

		db, err := database.Connect(cfg.Database)
		if err != nil {
			return fmt.Errorf("database connection required: %w", err)
		}
		store := history.NewStore(db, l)
		if err := store.Verify(ctx); err != nil {
			return err
		}
		rows, err := store.List(ctx, historyService, historyLimit)
		if err != nil {
			return err
		}
		return printJSON(rows)
	},
}

func init() {
	historyListCmd.Flags().StringVar(&historyService, "service", "", "Only list reports of this service")
	historyListCmd.Flags().IntVar(&historyLimit, "limit", history.DefaultLimit, "Maximum number of reports")
	historyCmd.AddCommand(historyListCmd)
	RootCmd.AddCommand(historyCmd)
}
