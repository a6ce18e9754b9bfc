// Package journal provides a crash-safe commit log for atomic multi-file updates.
//
// A transaction is an ordered list of "replace file A with file B" steps. Commit
// first makes the list itself durable (temp file, fsync, rename into place,
// directory fsync), then executes each rename, and finally removes the journal.
// If the process dies at any point after the journal became canonical, Replay
// re-executes every step on the next start. Renames are idempotent: a step whose
// source is already gone completed before the crash and is skipped.
//
// # File Format
//
//	<uint32 LE entry count> ( <oldPath> 0x00 <newPath> 0x00 )*
//
// # Usage
//
//	txn := journal.Begin(2)
//	txn.Add("inventory.json.tmp", "inventory.json", true, false)
//	txn.Add("state.json.tmp", "state.json", true, false)
//	if err := journal.Commit("journal", "journal.tmp", txn); err != nil {
//	    // errors.Is(err, journal.ErrDurability) is fatal
//	}
package journal
