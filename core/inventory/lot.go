package inventory

import (
	"fmt"
	"strings"
)

// Service identifies one of the two remote marketplaces.
type Service int

const (
	// Primary is the marketplace whose reconciliation finalizes identifiers.
	Primary Service = iota
	// Secondary is the marketplace that needs translated catalog ids.
	Secondary
)

// Services lists both marketplaces in priority order.
var Services = []Service{Primary, Secondary}

func (s Service) String() string {
	switch s {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return fmt.Sprintf("service(%d)", int(s))
	}
}

// Other returns the opposite marketplace.
func (s Service) Other() Service {
	if s == Primary {
		return Secondary
	}
	return Primary
}

// ParseService accepts "primary"/"secondary" and their first letters.
func ParseService(name string) (Service, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "primary", "p":
		return Primary, nil
	case "secondary", "s":
		return Secondary, nil
	default:
		return 0, fmt.Errorf("unknown service %q", name)
	}
}

// Condition is new or used.
type Condition string

const (
	ConditionNew  Condition = "N"
	ConditionUsed Condition = "U"
)

// Grade refines the condition of sets. Only the primary service stores it.
type Grade string

const (
	GradeNone       Grade = ""
	GradeComplete   Grade = "C"
	GradeIncomplete Grade = "B"
	GradeSealed     Grade = "S"
)

// Tier is one quantity price break.
type Tier struct {
	Qty   int     `json:"qty"`
	Price float64 `json:"price"`
}

// MaxTiers is the number of price breaks a lot can carry.
const MaxTiers = 3

// Lot is a quantity of one item, color and condition tracked as one unit.
type Lot struct {
	// ItemType is the catalog type letter (P part, S set, M minifig, ...).
	ItemType ItemType `json:"item_type"`
	// ItemID is the primary service's catalog id.
	ItemID string `json:"item_id"`
	// ColorID is the primary service's color id.
	ColorID int `json:"color_id"`
	// Condition is new or used.
	Condition Condition `json:"condition"`
	// Quantity is the number of units for sale.
	Quantity int `json:"quantity"`
	// Price is the unit price.
	Price float64 `json:"price"`
	// Grade is the completeness of a set.
	Grade Grade `json:"grade,omitempty"`
	// SalePercent is the discount applied by the primary service.
	SalePercent int `json:"sale_percent,omitempty"`
	// Comments is the public description.
	Comments string `json:"comments,omitempty"`
	// Remarks is the private note.
	Remarks string `json:"remarks,omitempty"`
	// Bulk is the multiple units must be bought in. Values below 2 mean none.
	Bulk int `json:"bulk,omitempty"`
	// CostBasis is what the merchant paid per unit.
	CostBasis float64 `json:"cost_basis,omitempty"`
	// Tiers are up to three quantity price breaks.
	Tiers [MaxTiers]Tier `json:"tiers"`
	// ForeignIDs holds the lot id assigned by each service, 0 when unset.
	ForeignIDs [2]int64 `json:"foreign_ids"`
	// LocalID is a stable correlation id, unique within one inventory.
	LocalID int64 `json:"local_id"`
	// ExternalRef is the other service's lot id a remote lot was created
	// from. Only remote snapshots carry it.
	ExternalRef int64 `json:"external_ref,omitempty"`
	// Tombstone marks a removed lot until Compact.
	Tombstone bool `json:"tombstone,omitempty"`
}

// ForeignID returns the lot id assigned by svc.
func (l *Lot) ForeignID(svc Service) int64 {
	return l.ForeignIDs[svc]
}

// SetForeignID stores the lot id assigned by svc.
func (l *Lot) SetForeignID(svc Service, id int64) {
	l.ForeignIDs[svc] = id
}

// Label formats the lot for log lines.
func (l *Lot) Label() string {
	return fmt.Sprintf("%s %s/%d/%s", l.ItemType, l.ItemID, l.ColorID, l.Condition)
}

// ItemType is a single catalog type letter, encoded as a one-character
// string in JSON.
type ItemType byte

func (t ItemType) String() string {
	if t == 0 {
		return "?"
	}
	return string(rune(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t ItemType) MarshalText() ([]byte, error) {
	if t == 0 {
		return []byte{}, nil
	}
	return []byte{byte(t)}, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ItemType) UnmarshalText(b []byte) error {
	switch len(b) {
	case 0:
		*t = 0
	case 1:
		*t = ItemType(b[0])
	default:
		return fmt.Errorf("invalid item type %q", b)
	}
	return nil
}
