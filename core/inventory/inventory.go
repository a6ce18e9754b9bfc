package inventory

// Totals are the cached aggregates of the live lots.
type Totals struct {
	Lots  int     `json:"lots"`
	Units int     `json:"units"`
	Value float64 `json:"value"`
}

// Inventory is an ordered collection of lots with cached aggregates.
// Pointers returned by Get stay valid until the next Add or Compact.
type Inventory struct {
	lots        []Lot
	totals      Totals
	nextLocalID int64
}

// New creates an empty inventory.
func New(capacityHint int) *Inventory {
	if capacityHint < 0 {
		capacityHint = 0
	}
	return &Inventory{lots: make([]Lot, 0, capacityHint), nextLocalID: 1}
}

// FromLots builds an inventory around a copy of lots and recounts it.
func FromLots(lots []Lot) *Inventory {
	inv := New(len(lots))
	for _, l := range lots {
		inv.Add(l)
	}
	return inv
}

// Add appends a lot and returns its index. A lot without a LocalID is
// assigned the next free one.
func (inv *Inventory) Add(l Lot) int {
	if l.LocalID == 0 {
		l.LocalID = inv.nextLocalID
	}
	if l.LocalID >= inv.nextLocalID {
		inv.nextLocalID = l.LocalID + 1
	}
	inv.lots = append(inv.lots, l)
	if !l.Tombstone {
		inv.totals.add(&l, 1)
	}
	return len(inv.lots) - 1
}

// Get returns the lot at index i.
func (inv *Inventory) Get(i int) *Lot {
	return &inv.lots[i]
}

// Len returns the number of slots, tombstones included.
func (inv *Inventory) Len() int {
	return len(inv.lots)
}

// Lots returns the backing slice. Callers must not append to it.
func (inv *Inventory) Lots() []Lot {
	return inv.lots
}

// Tombstone marks the lot at index i as removed.
func (inv *Inventory) Tombstone(i int) {
	l := &inv.lots[i]
	if l.Tombstone {
		return
	}
	inv.totals.add(l, -1)
	l.Tombstone = true
}

// Compact drops tombstoned lots and returns how many were removed.
func (inv *Inventory) Compact() int {
	kept := inv.lots[:0]
	for _, l := range inv.lots {
		if !l.Tombstone {
			kept = append(kept, l)
		}
	}
	removed := len(inv.lots) - len(kept)
	clear(inv.lots[len(kept):])
	inv.lots = kept
	return removed
}

// FindByForeignID returns the index of the first live lot whose id on svc
// is id, or -1. The unset id never matches.
func (inv *Inventory) FindByForeignID(svc Service, id int64) int {
	if id == 0 {
		return -1
	}
	for i := range inv.lots {
		if !inv.lots[i].Tombstone && inv.lots[i].ForeignIDs[svc] == id {
			return i
		}
	}
	return -1
}

// FindByLocalID returns the index of the lot with the given LocalID, or -1.
func (inv *Inventory) FindByLocalID(id int64) int {
	for i := range inv.lots {
		if inv.lots[i].LocalID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy.
func (inv *Inventory) Clone() *Inventory {
	out := &Inventory{
		lots:        make([]Lot, len(inv.lots)),
		totals:      inv.totals,
		nextLocalID: inv.nextLocalID,
	}
	copy(out.lots, inv.lots)
	return out
}

// Recount recomputes the cached aggregates after lots were edited in place.
func (inv *Inventory) Recount() {
	inv.totals = Totals{}
	for i := range inv.lots {
		if !inv.lots[i].Tombstone {
			inv.totals.add(&inv.lots[i], 1)
		}
	}
}

// Totals returns the cached aggregates.
func (inv *Inventory) Totals() Totals {
	return inv.totals
}

func (t *Totals) add(l *Lot, sign int) {
	t.Lots += sign
	t.Units += sign * l.Quantity
	t.Value += float64(sign*l.Quantity) * l.Price
}
