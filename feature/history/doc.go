// Package history stores one row per reconciliation pass.
//
// Every sync and verify run writes a SyncReport with the outcome counters of
// its plan, how many deltas were pushed or deferred by the quota, and the
// error that ended the pass if any. The table lives in the database selected
// by core/database (sqlite by default, mysql when configured).
//
// # Usage
//
//	store := history.NewStore(db, logger)
//	if err := store.Migrate(ctx); err != nil {
//	    return err
//	}
//	_ = store.Record(ctx, history.FromSummary("primary", history.ModeSync, plan.Summary))
//	rows, err := store.List(ctx, "primary", 20)
package history
