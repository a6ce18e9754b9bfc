// Package server holds the HTTP control server configuration.
//
// The server itself is started by the start command; this package defines
// where it listens and whether requests must carry an API key.
package server
