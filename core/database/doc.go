// Package database handles database connections and schema inspection.
//
// It wraps GORM to open either a MySQL server or a local SQLite file, as
// selected by Config.Driver. The agent uses it for its optional sync report
// history.
//
// # Schema Inspection
//
// GetTableColumns and MissingColumns read the live table definition, which
// lets the history store report a schema that drifted from its model.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Warn("History disabled", zap.Error(err))
//	}
package database
