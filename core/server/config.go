package server

import "strings"

// Config holds configuration for the HTTP control server.
type Config struct {
	// Enabled starts the control API next to the agent.
	Enabled bool `mapstructure:"enabled" default:"true"`
	// Host is the interface the server binds to.
	Host string `mapstructure:"host" default:"127.0.0.1"`
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080"`
	// ApiKey is the secret key required to access the API.
	ApiKey string `mapstructure:"api_key" default:""`
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return c.Host + ":" + strings.TrimPrefix(c.Port, ":")
}

// RequiresAuth reports whether requests must carry the API key.
func (c Config) RequiresAuth() bool {
	return c.ApiKey != ""
}
