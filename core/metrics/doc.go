// Package metrics defines the Prometheus collectors exported by the agent.
//
// Collectors are registered on the default registry at package init through
// promauto; the control API serves them on /metrics. Metric names and help
// texts live in constants.go.
package metrics
