package logger

// Config holds configuration for the logger.
type Config struct {
	// Level is the console log level (debug, info, warn, error).
	Level string `mapstructure:"level" default:"info"`
	// Format is the console encoding (console, json).
	Format string `mapstructure:"format" default:"console"`
	// File receives every entry at debug level regardless of Level.
	// Empty disables the persistent log.
	File string `mapstructure:"file" default:"stock-sync.log"`
	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int `mapstructure:"max_size_mb" default:"50"`
	// MaxBackups is the number of rotated files kept.
	MaxBackups int `mapstructure:"max_backups" default:"5"`
	// MaxAgeDays is how long rotated files are kept.
	MaxAgeDays int `mapstructure:"max_age_days" default:"30"`
}
