// Package config loads the stock-sync configuration.
//
// Values come from environment variables, optionally seeded from a .env
// file. Every field declares its key with a mapstructure tag and its default
// with a default tag; nested keys map to upper-case variables joined by
// underscores (agent.poll_interval_seconds is AGENT_POLL_INTERVAL_SECONDS).
//
// # Configuration Structure
//
//   - Server: control API address and API key
//   - Storage: MinIO endpoint, credentials and bucket
//   - Bridge: exchange object prefix and result polling
//   - Transport: dispatcher workers, call timeout and reset threshold
//   - Agent: data directory, schedule, backoff and daily quotas
//   - Log: level, format and the rotating log file
//   - Database: sync report database (sqlite or mysql)
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Agent.DataDir)
package config
