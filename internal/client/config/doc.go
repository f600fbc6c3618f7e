// Package config loads runtime configuration for the Plateful client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the sync server HTTP API
//	-d string   path to the local SQLite database file
//	-i int      background sync interval (seconds)
//	-p int      pull page size
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "30s" or integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "database_path": "plateful.db",
//	  "sync_interval": "30s",
//	  "page_size": 100
//	}
//
// Primary API
//
//   - type Config                     — holds connection and sync-cycle settings
//   - func LoadConfig() *Config       — builds Config by applying defaults, JSON, then flags
//   - func (*Config) LoadDefaults()   — sets sensible defaults
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
