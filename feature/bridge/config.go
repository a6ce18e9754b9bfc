package bridge

// Config holds configuration for the object storage exchange.
type Config struct {
	// Prefix is the folder under which each service has its exchange objects.
	Prefix string `mapstructure:"prefix" default:"exchange"`
	// PollIntervalMillis is how often a push polls for its result object.
	PollIntervalMillis int `mapstructure:"poll_interval_millis" default:"2000"`
}
