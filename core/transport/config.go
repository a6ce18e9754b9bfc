package transport

// Config holds configuration for the request dispatcher.
type Config struct {
	// Workers is the number of concurrent remote calls.
	Workers int `mapstructure:"workers" default:"2"`
	// QueueSize bounds requests waiting for a worker.
	QueueSize int `mapstructure:"queue_size" default:"16"`
	// TimeoutSeconds bounds each remote call.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"120"`
	// ConsecutiveErrorLimit is the number of failures in a row after which
	// the remote is reset.
	ConsecutiveErrorLimit int `mapstructure:"consecutive_error_limit" default:"5"`
}
