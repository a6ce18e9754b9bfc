package reconcile

import (
	"stock-sync/core/inventory"
)

// skipReason records why the local lot referencing a remote lot was not
// reconciled, so the remote sweep can decide what to do with it.
type skipReason uint8

const (
	refNone skipReason = iota
	refExcluded
	refUnresolved
	refEmptied
)

// Reconcile compares local against the remote snapshot for profile.Service
// and returns the deltas that would make the remote match local.
func Reconcile(local, remote *inventory.Inventory, filter Filter, profile Profile) *Plan {
	svc := profile.Service
	plan := &Plan{Service: svc}
	remoteLots := remote.Lots()

	byID := make(map[int64]int, len(remoteLots))
	byRef := make(map[int64]int)
	for i := range remoteLots {
		r := &remoteLots[i]
		if r.Tombstone {
			continue
		}
		if id := r.ForeignID(svc); id != 0 {
			if _, dup := byID[id]; !dup {
				byID[id] = i
			}
		}
		if r.ExternalRef != 0 {
			if _, dup := byRef[r.ExternalRef]; !dup {
				byRef[r.ExternalRef] = i
			}
		}
	}

	claimed := make([]bool, len(remoteLots))
	referenced := make([]bool, len(remoteLots))
	skipped := make([]skipReason, len(remoteLots))

	localLots := local.Lots()
	for i := range localLots {
		l := &localLots[i]
		if l.Tombstone {
			continue
		}

		ri, promoted := counterpart(l, svc, byID, byRef)
		if ri >= 0 {
			referenced[ri] = true
		}

		if filter != nil && filter(l) {
			plan.Summary.Filtered++
			markSkipped(skipped, ri, refExcluded)
			continue
		}
		if l.Quantity <= 0 {
			plan.Summary.Filtered++
			markSkipped(skipped, ri, refEmptied)
			continue
		}

		var catalogID int64
		if profile.RequiresTranslation {
			id, ok := resolve(profile.Resolver, l)
			if !ok {
				plan.Summary.Unresolvable++
				markSkipped(skipped, ri, refUnresolved)
				continue
			}
			catalogID = id
		}

		if ri < 0 {
			d := Delta{
				Action:    ActionCreate,
				Lot:       *l,
				LocalID:   l.LocalID,
				CatalogID: catalogID,
				QtyDelta:  l.Quantity,
			}
			d.Lot.SetForeignID(svc, 0)
			plan.Deltas = append(plan.Deltas, d)
			plan.Summary.Created++
			continue
		}

		r := &remoteLots[ri]
		remoteID := r.ForeignID(svc)
		if claimed[ri] {
			plan.Deltas = append(plan.Deltas, Delta{
				Action:    ActionDelete,
				Lot:       *l,
				RemoteID:  remoteID,
				LocalID:   l.LocalID,
				CatalogID: catalogID,
				QtyDelta:  -l.Quantity,
				Duplicate: true,
			})
			plan.Released = append(plan.Released, l.LocalID)
			plan.Summary.DuplicateDeleted++
			continue
		}
		claimed[ri] = true

		if promoted {
			plan.Promotions = append(plan.Promotions, Promotion{LocalID: l.LocalID, RemoteID: remoteID})
		}

		flags, mismatch := Compare(l, r, profile.CompareExtended)
		if flags == 0 {
			plan.Summary.Matched++
			continue
		}

		d := Delta{
			Action:    ActionUpdate,
			Lot:       *l,
			RemoteID:  remoteID,
			LocalID:   l.LocalID,
			CatalogID: catalogID,
			QtyDelta:  l.Quantity - r.Quantity,
			Flags:     flags,
			Mismatch:  mismatch,
		}
		d.Lot.SetForeignID(svc, remoteID)
		plan.Deltas = append(plan.Deltas, d)
		plan.Summary.countQuantity(d.QtyDelta)
	}

	for ri := range remoteLots {
		r := &remoteLots[ri]
		if r.Tombstone || claimed[ri] {
			continue
		}

		if !referenced[ri] {
			plan.Deltas = append(plan.Deltas, Delta{
				Action:   ActionDelete,
				Lot:      *r,
				RemoteID: r.ForeignID(svc),
				QtyDelta: -r.Quantity,
			})
			plan.Summary.OrphanDeleted++
			continue
		}

		// The remote lot belongs to a local lot that was skipped.
		switch skipped[ri] {
		case refExcluded, refUnresolved:
		case refEmptied:
			plan.Deltas = append(plan.Deltas, Delta{
				Action:   ActionDelete,
				Lot:      *r,
				RemoteID: r.ForeignID(svc),
				QtyDelta: -r.Quantity,
				Flags:    FlagQuantity,
				Mismatch: []string{formatInt("quantity", 0, r.Quantity)},
			})
			plan.Summary.countQuantity(-r.Quantity)
		}
	}

	return plan
}

// counterpart finds the remote lot for l: its foreign id first, then a
// remote lot created from l's lot on the other service.
func counterpart(l *inventory.Lot, svc inventory.Service, byID, byRef map[int64]int) (int, bool) {
	if id := l.ForeignID(svc); id != 0 {
		if ri, ok := byID[id]; ok {
			return ri, false
		}
		return -1, false
	}
	if other := l.ForeignID(svc.Other()); other != 0 {
		if ri, ok := byRef[other]; ok {
			return ri, true
		}
	}
	return -1, false
}

// markSkipped keeps the strongest reason when several local lots point at
// the same remote lot; an excluded or unresolved lot protects it.
func markSkipped(skipped []skipReason, ri int, reason skipReason) {
	if ri < 0 {
		return
	}
	if skipped[ri] == refNone || skipped[ri] == refEmptied {
		skipped[ri] = reason
	}
}

func resolve(r Resolver, l *inventory.Lot) (int64, bool) {
	if r == nil {
		return 0, false
	}
	id, ok := r.LookupAtoB(byte(l.ItemType), l.ItemID)
	return id, ok && id > 0
}

func (s *Summary) countQuantity(qtyDelta int) {
	switch {
	case qtyDelta > 0:
		s.QtyUpdated++
		s.Missing++
		s.MissingUnits += qtyDelta
	case qtyDelta < 0:
		s.QtyUpdated++
		s.Extra++
		s.ExtraUnits += -qtyDelta
	default:
		s.FieldUpdated++
	}
}
