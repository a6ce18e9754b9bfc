// Package control exposes the agent over HTTP.
//
// Routes:
//
//	GET  /agent/status     latest status snapshot
//	POST /agent/commands   {"command": "sync secondary"}, queued for the loop
//	GET  /agent/history    recent sync reports, ?service=primary&limit=20
//	GET  /metrics          Prometheus metrics
//
// Commands are validated here and handed to the control loop as text lines,
// the same way console input is, so the loop remains the only writer of
// agent state.
package control
