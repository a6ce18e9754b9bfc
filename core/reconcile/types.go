package reconcile

import (
	"stock-sync/core/inventory"
)

// Action is the kind of change a delta asks the remote to perform.
type Action string

const (
	// ActionCreate creates a new remote lot copying every field.
	ActionCreate Action = "create"
	// ActionUpdate changes fields of an existing remote lot.
	ActionUpdate Action = "update"
	// ActionDelete removes a remote lot.
	ActionDelete Action = "delete"
)

// UpdateFlags records which compared fields differ.
type UpdateFlags uint16

const (
	FlagQuantity UpdateFlags = 1 << iota
	FlagPrice
	FlagComments
	FlagRemarks
	FlagBulk
	FlagCostBasis
	FlagTiers
	FlagGrade
	FlagSalePercent
)

// Has reports whether every bit of f is set.
func (u UpdateFlags) Has(f UpdateFlags) bool {
	return u&f == f
}

// Filter reports whether a local lot is excluded from reconciliation.
type Filter func(l *inventory.Lot) bool

// Resolver translates a primary catalog id into the secondary scheme.
// *translate.Cache satisfies it.
type Resolver interface {
	LookupAtoB(itemType byte, idA string) (int64, bool)
}

// Profile describes the service being reconciled against.
type Profile struct {
	// Service selects which foreign id identifies remote lots.
	Service inventory.Service

	// RequiresTranslation skips local lots whose catalog id cannot be
	// resolved through Resolver.
	RequiresTranslation bool

	// CompareExtended also compares condition grade and sale percentage.
	CompareExtended bool

	// Resolver is consulted when RequiresTranslation is set.
	Resolver Resolver
}

// Delta is one change for the remote service.
type Delta struct {
	// Action is what the remote must do.
	Action Action `json:"action"`

	// Lot is the desired state for creates and updates, or the remote lot
	// being deleted.
	Lot inventory.Lot `json:"lot"`

	// RemoteID is the remote lot id for updates and deletes.
	RemoteID int64 `json:"remote_id,omitempty"`

	// LocalID is the correlation id of the local lot, 0 for orphans.
	LocalID int64 `json:"local_id,omitempty"`

	// CatalogID is the translated catalog id when the profile requires one.
	CatalogID int64 `json:"catalog_id,omitempty"`

	// QtyDelta is the signed change in remote units.
	QtyDelta int `json:"qty_delta"`

	// Flags lists the differing fields of an update.
	Flags UpdateFlags `json:"flags,omitempty"`

	// Duplicate marks a dropped second claim on a remote lot. It changes
	// local bookkeeping only and is never pushed.
	Duplicate bool `json:"duplicate,omitempty"`

	// Mismatch describes each differing field, e.g. "quantity: local=10 remote=8".
	Mismatch []string `json:"mismatch,omitempty"`
}

// Promotion links a local lot to a remote lot found through its external
// reference. The local lot's foreign id must be set to RemoteID.
type Promotion struct {
	LocalID  int64 `json:"local_id"`
	RemoteID int64 `json:"remote_id"`
}

// Summary provides aggregate counts for a reconciliation.
type Summary struct {
	// Filtered counts local lots skipped as excluded, emptied or tombstoned.
	Filtered int `json:"filtered"`

	// Unresolvable counts local lots without a translated catalog id.
	Unresolvable int `json:"unresolvable"`

	// DuplicateDeleted counts second claims on an already claimed remote lot.
	DuplicateDeleted int `json:"duplicate_deleted"`

	// OrphanDeleted counts remote lots no local lot references.
	OrphanDeleted int `json:"orphan_deleted"`

	// Created counts local lots missing on the remote.
	Created int `json:"created"`

	// QtyUpdated counts updates and deletes that change the unit count.
	QtyUpdated int `json:"qty_updated"`

	// FieldUpdated counts updates that leave the unit count alone.
	FieldUpdated int `json:"field_updated"`

	// Matched counts pairs with no differing field.
	Matched int `json:"matched"`

	// Missing counts quantity changes that add units to the remote.
	Missing int `json:"missing"`

	// Extra counts quantity changes that remove units from the remote.
	Extra int `json:"extra"`

	// MissingUnits is the total of positive quantity changes.
	MissingUnits int `json:"missing_units"`

	// ExtraUnits is the total of negative quantity changes, as a positive number.
	ExtraUnits int `json:"extra_units"`
}

// Plan is the outcome of one reconciliation.
type Plan struct {
	// Service is the remote the deltas target.
	Service inventory.Service `json:"service"`

	// Deltas is the actionable output, in local then remote order.
	Deltas []Delta `json:"deltas"`

	// Promotions must be written back to the local inventory.
	Promotions []Promotion `json:"promotions,omitempty"`

	// Released lists local lots whose foreign id for Service must be cleared.
	Released []int64 `json:"released,omitempty"`

	// Summary provides aggregate counts.
	Summary Summary `json:"summary"`
}

// Empty reports whether nothing needs to be pushed or written back.
func (p *Plan) Empty() bool {
	return len(p.Deltas) == 0 && len(p.Promotions) == 0 && len(p.Released) == 0
}
