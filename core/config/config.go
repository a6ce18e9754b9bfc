package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"stock-sync/core/database"
	"stock-sync/core/logger"
	"stock-sync/core/server"
	"stock-sync/core/storage"
	"stock-sync/core/transport"
	"stock-sync/feature/agent"
	"stock-sync/feature/bridge"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	// Server holds configuration for the HTTP control API.
	Server server.Config `mapstructure:"server"`
	// Storage holds configuration for the object storage (e.g., S3, Minio).
	Storage storage.Config `mapstructure:"storage"`
	// Bridge holds the layout of the marketplace exchange objects.
	Bridge bridge.Config `mapstructure:"bridge"`
	// Transport holds configuration for the remote call dispatcher.
	Transport transport.Config `mapstructure:"transport"`
	// Agent holds configuration for the synchronization loop.
	Agent agent.Config `mapstructure:"agent"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the sync report database.
	Database database.Config `mapstructure:"database"`
}

// LoadConfig reads dir/.env if present, then environment variables, on top
// of the defaults declared in the struct tags.
func LoadConfig(dir string) (*Config, error) {
	// A missing .env is normal in production.
	_ = godotenv.Overload(filepath.Join(dir, ".env"))

	v := viper.New()
	bindValues(v, Config{}, "")

	// AGENT_DATA_DIR -> agent.data_dir
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the agent cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	a := c.Agent
	check(a.DataDir != "", "agent.data_dir must not be empty")
	check(a.PollIntervalSeconds > 0, "agent.poll_interval_seconds must be positive, got %d", a.PollIntervalSeconds)
	check(a.FailIntervalSeconds > 0, "agent.fail_interval_seconds must be positive, got %d", a.FailIntervalSeconds)
	check(a.BackoffBaseSeconds > 0, "agent.backoff_base_seconds must be positive, got %d", a.BackoffBaseSeconds)
	check(a.BackoffMaxSeconds >= a.BackoffBaseSeconds, "agent.backoff_max_seconds (%d) is below agent.backoff_base_seconds (%d)", a.BackoffMaxSeconds, a.BackoffBaseSeconds)
	check(a.PrimaryDailyLimit > 0, "agent.primary_daily_limit must be positive, got %d", a.PrimaryDailyLimit)
	check(!a.SecondaryEnabled || a.SecondaryDailyLimit > 0, "agent.secondary_daily_limit must be positive, got %d", a.SecondaryDailyLimit)
	check(c.Transport.Workers > 0, "transport.workers must be positive, got %d", c.Transport.Workers)
	check(c.Transport.TimeoutSeconds > 0, "transport.timeout_seconds must be positive, got %d", c.Transport.TimeoutSeconds)
	check(c.Bridge.PollIntervalMillis > 0, "bridge.poll_interval_millis must be positive, got %d", c.Bridge.PollIntervalMillis)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// bindValues walks the struct and registers each 'mapstructure' key in
// Viper with its 'default' tag value.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		// Empty defaults still register the key for AutomaticEnv.
		v.SetDefault(key, field.Tag.Get("default"))
	}
}
