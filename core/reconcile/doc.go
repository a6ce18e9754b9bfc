// Package reconcile computes the minimal delta that makes a remote
// marketplace snapshot match the authoritative local inventory.
//
// Reconcile is a pure function of the local inventory, the remote snapshot,
// the exclusion filter and the service profile. Dry-run verification and a
// real sync share the same code path; only the caller decides whether the
// resulting deltas are pushed.
//
// # Classification
//
// Every live local lot is either filtered, unresolvable, matched, updated,
// created, or dropped as a duplicate claim. Every remote lot that no local
// lot claimed is either an orphan (deleted), left alone because its local
// lot is excluded or unresolvable, or deleted because its local lot was
// emptied. Matching uses the local lot's foreign id for the service first
// and falls back to promotion: a remote lot whose external reference is the
// local lot's id on the other service.
//
// # Usage
//
//	profile := reconcile.Profile{Service: inventory.Primary, CompareExtended: true}
//	plan := reconcile.Reconcile(local, snapshot.Inventory, nil, profile)
//	logger.Info("Reconciled", zap.Int("deltas", len(plan.Deltas)))
//
//	head, rest := reconcile.Split(plan.Pushable(), headroom)
//
// Plan.Apply replays the deltas against a snapshot without any I/O, which
// makes the engine's idempotence directly testable.
package reconcile
