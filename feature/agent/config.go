package agent

import (
	"path/filepath"
	"strings"
	"time"

	"stock-sync/core/inventory"
)

// Config holds configuration for the synchronization agent.
type Config struct {
	// DataDir holds the tracked inventory, state, journal and translation cache.
	DataDir string `mapstructure:"data_dir" default:"data"`
	// PollIntervalSeconds is the delay between order checks after a success.
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" default:"600"`
	// FailIntervalSeconds is the delay before retrying a failed order check.
	FailIntervalSeconds int `mapstructure:"fail_interval_seconds" default:"120"`
	// BackoffBaseSeconds is the initial sync retry delay.
	BackoffBaseSeconds int `mapstructure:"backoff_base_seconds" default:"60"`
	// BackoffMaxSeconds caps the sync retry delay.
	BackoffMaxSeconds int `mapstructure:"backoff_max_seconds" default:"3600"`
	// IdleWaitSeconds bounds how long the loop sleeps without events.
	IdleWaitSeconds int `mapstructure:"idle_wait_seconds" default:"5"`
	// PrimaryDailyLimit is the primary service's API quota per 24 hours.
	PrimaryDailyLimit int `mapstructure:"primary_daily_limit" default:"5000"`
	// SecondaryDailyLimit is the secondary service's API quota per 24 hours.
	SecondaryDailyLimit int `mapstructure:"secondary_daily_limit" default:"5000"`
	// SecondaryEnabled turns on synchronization with the secondary service.
	SecondaryEnabled bool `mapstructure:"secondary_enabled" default:"true"`
	// ExcludeRemarksPrefix excludes lots whose remarks start with it.
	ExcludeRemarksPrefix string `mapstructure:"exclude_remarks_prefix" default:""`
	// ResolveBatch bounds catalog id resolutions started per secondary sync.
	ResolveBatch int `mapstructure:"resolve_batch" default:"8"`
	// NegativeTTLSeconds is how long a failed resolution is not retried.
	NegativeTTLSeconds int `mapstructure:"negative_ttl_seconds" default:"3600"`
	// BackupEnabled uploads the tracked inventory after each sync.
	BackupEnabled bool `mapstructure:"backup_enabled" default:"false"`
	// BackupKeep is the number of backups retained, 0 keeps all of them.
	BackupKeep int `mapstructure:"backup_keep" default:"48"`
	// ShutdownGraceSeconds bounds how long quit waits for running requests.
	ShutdownGraceSeconds int `mapstructure:"shutdown_grace_seconds" default:"10"`
}

// Paths are the files owned by the agent.
type Paths struct {
	Inventory   string
	State       string
	Journal     string
	JournalTemp string
	Translate   string
}

// Paths returns the file locations under DataDir.
func (c Config) Paths() Paths {
	dir := c.DataDir
	if dir == "" {
		dir = "."
	}
	return Paths{
		Inventory:   filepath.Join(dir, "inventory.json"),
		State:       filepath.Join(dir, "state.json"),
		Journal:     filepath.Join(dir, "journal"),
		JournalTemp: filepath.Join(dir, "journal.tmp"),
		Translate:   filepath.Join(dir, "translate.db"),
	}
}

// Services returns the enabled services in priority order.
func (c Config) Services() []inventory.Service {
	if c.SecondaryEnabled {
		return []inventory.Service{inventory.Primary, inventory.Secondary}
	}
	return []inventory.Service{inventory.Primary}
}

// DailyLimit returns the quota of svc.
func (c Config) DailyLimit(svc inventory.Service) int {
	if svc == inventory.Secondary {
		return c.SecondaryDailyLimit
	}
	return c.PrimaryDailyLimit
}

// Filter returns the exclusion filter, or nil when nothing is excluded.
func (c Config) Filter() func(l *inventory.Lot) bool {
	prefix := c.ExcludeRemarksPrefix
	if prefix == "" {
		return nil
	}
	return func(l *inventory.Lot) bool {
		return strings.HasPrefix(l.Remarks, prefix)
	}
}

func (c Config) pollInterval() time.Duration  { return seconds(c.PollIntervalSeconds, 600) }
func (c Config) failInterval() time.Duration  { return seconds(c.FailIntervalSeconds, 120) }
func (c Config) backoffBase() time.Duration   { return seconds(c.BackoffBaseSeconds, 60) }
func (c Config) backoffMax() time.Duration    { return seconds(c.BackoffMaxSeconds, 3600) }
func (c Config) idleWait() time.Duration      { return seconds(c.IdleWaitSeconds, 5) }
func (c Config) negativeTTL() time.Duration   { return seconds(c.NegativeTTLSeconds, 3600) }
func (c Config) shutdownGrace() time.Duration { return seconds(c.ShutdownGraceSeconds, 10) }

func seconds(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}
