// Package inventory holds the lot model shared by the local ledger and the
// remote snapshots, and the JSON file codec used to persist the tracked
// inventory.
//
// An Inventory is an ordered, gap-tolerant list: removing a lot only marks
// it with a tombstone so indices stay stable while a reconciliation or an
// order batch is in progress. Compact drops the tombstones before the
// inventory is written.
//
// # Usage
//
//	inv, err := inventory.Load("inventory.json")
//	if err != nil {
//	    return err
//	}
//	if i := inv.FindByForeignID(inventory.Primary, 4411); i >= 0 {
//	    inv.Get(i).Quantity--
//	}
//	inv.Recount()
//	err = inv.WriteFile("inventory.json.tmp")
package inventory
