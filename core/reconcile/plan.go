package reconcile

import (
	"stock-sync/core/inventory"
	"stock-sync/core/utils"
)

// Pushable returns the deltas the remote has to execute, without the
// duplicate bookkeeping entries.
func (p *Plan) Pushable() []Delta {
	out := make([]Delta, 0, len(p.Deltas))
	for _, d := range p.Deltas {
		if !d.Duplicate {
			out = append(out, d)
		}
	}
	return out
}

// Split returns at most n deltas to push now and the remainder to keep
// pending. A negative n is treated as zero.
func Split(deltas []Delta, n int) (head, rest []Delta) {
	if n < 0 {
		n = 0
	}
	if n >= len(deltas) {
		return deltas, nil
	}
	return deltas[:n:n], deltas[n:]
}

// Apply returns the remote inventory as it would be after every pushable
// delta executed, plus the lot id assigned to each created lot keyed by
// LocalID. remote is not modified.
func (p *Plan) Apply(remote *inventory.Inventory) (*inventory.Inventory, map[int64]int64) {
	out := remote.Clone()
	svc := p.Service

	var nextID int64
	for _, l := range out.Lots() {
		if id := l.ForeignID(svc); id > nextID {
			nextID = id
		}
	}

	created := make(map[int64]int64)
	for _, d := range p.Deltas {
		switch d.Action {
		case ActionCreate:
			nextID++
			lot := d.Lot
			lot.LocalID = 0
			lot.ExternalRef = 0
			lot.SetForeignID(svc.Other(), 0)
			lot.SetForeignID(svc, nextID)
			out.Add(lot)
			created[d.LocalID] = nextID

		case ActionUpdate:
			if i := out.FindByForeignID(svc, d.RemoteID); i >= 0 {
				applyFields(out.Get(i), &d)
			}

		case ActionDelete:
			if d.Duplicate {
				continue
			}
			if i := out.FindByForeignID(svc, d.RemoteID); i >= 0 {
				out.Tombstone(i)
			}
		}
	}

	out.Compact()
	out.Recount()
	return out, created
}

func applyFields(r *inventory.Lot, d *Delta) {
	l := &d.Lot
	if d.Flags.Has(FlagQuantity) {
		r.Quantity += d.QtyDelta
	}
	if d.Flags.Has(FlagPrice) {
		r.Price = l.Price
	}
	if d.Flags.Has(FlagComments) {
		r.Comments = l.Comments
	}
	if d.Flags.Has(FlagRemarks) {
		r.Remarks = l.Remarks
	}
	if d.Flags.Has(FlagBulk) {
		r.Bulk = utils.NormalizeBulk(l.Bulk)
	}
	if d.Flags.Has(FlagCostBasis) {
		r.CostBasis = l.CostBasis
	}
	if d.Flags.Has(FlagTiers) {
		r.Tiers = l.Tiers
	}
	if d.Flags.Has(FlagGrade) {
		r.Grade = l.Grade
	}
	if d.Flags.Has(FlagSalePercent) {
		r.SalePercent = l.SalePercent
	}
}

// Settle writes the plan's identifier changes back into the local
// inventory: promotions, released duplicate claims and the ids assigned to
// created lots. It returns the number of lots changed.
func (p *Plan) Settle(local *inventory.Inventory, created map[int64]int64) int {
	changed := 0
	set := func(localID, remoteID int64) {
		if i := local.FindByLocalID(localID); i >= 0 {
			lot := local.Get(i)
			if lot.ForeignID(p.Service) != remoteID {
				lot.SetForeignID(p.Service, remoteID)
				changed++
			}
		}
	}

	for _, pr := range p.Promotions {
		set(pr.LocalID, pr.RemoteID)
	}
	for _, id := range p.Released {
		set(id, 0)
	}
	for localID, remoteID := range created {
		set(localID, remoteID)
	}
	return changed
}
