package history

import (
	"time"

	"stock-sync/core/reconcile"
)

// Report modes.
const (
	ModeSync   = "sync"
	ModeVerify = "verify"
	ModePush   = "push"
)

// SyncReport is one reconciliation pass.
type SyncReport struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"column:created_at;index" json:"created_at"`
	Service   string    `gorm:"column:service;size:16;index" json:"service"`
	Mode      string    `gorm:"column:mode;size:16" json:"mode"`

	Filtered         int `gorm:"column:filtered" json:"filtered"`
	Unresolvable     int `gorm:"column:unresolvable" json:"unresolvable"`
	DuplicateDeleted int `gorm:"column:duplicate_deleted" json:"duplicate_deleted"`
	OrphanDeleted    int `gorm:"column:orphan_deleted" json:"orphan_deleted"`
	Created          int `gorm:"column:created" json:"created"`
	QtyUpdated       int `gorm:"column:qty_updated" json:"qty_updated"`
	FieldUpdated     int `gorm:"column:field_updated" json:"field_updated"`
	Matched          int `gorm:"column:matched" json:"matched"`
	MissingUnits     int `gorm:"column:missing_units" json:"missing_units"`
	ExtraUnits       int `gorm:"column:extra_units" json:"extra_units"`

	Pushed   int    `gorm:"column:pushed" json:"pushed"`
	Deferred int    `gorm:"column:deferred" json:"deferred"`
	Aborted  bool   `gorm:"column:aborted" json:"aborted"`
	Error    string `gorm:"column:error;size:512" json:"error,omitempty"`
}

// TableName overrides the table name.
func (SyncReport) TableName() string {
	return "sync_reports"
}

// Columns lists the columns the store relies on.
var Columns = []string{
	"id", "created_at", "service", "mode",
	"filtered", "unresolvable", "duplicate_deleted", "orphan_deleted",
	"created", "qty_updated", "field_updated", "matched",
	"missing_units", "extra_units",
	"pushed", "deferred", "aborted", "error",
}

// FromSummary builds a report from a plan summary.
func FromSummary(service, mode string, s reconcile.Summary) SyncReport {
	return SyncReport{
		Service:          service,
		Mode:             mode,
		Filtered:         s.Filtered,
		Unresolvable:     s.Unresolvable,
		DuplicateDeleted: s.DuplicateDeleted,
		OrphanDeleted:    s.OrphanDeleted,
		Created:          s.Created,
		QtyUpdated:       s.QtyUpdated,
		FieldUpdated:     s.FieldUpdated,
		Matched:          s.Matched,
		MissingUnits:     s.MissingUnits,
		ExtraUnits:       s.ExtraUnits,
	}
}
