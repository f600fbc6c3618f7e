package config

import "time"

// Config holds runtime settings for the Plateful client.
//
// Fields:
//   - ServerURL: base URL of the sync server HTTP API.
//   - DatabasePath: SQLite file holding the local record store.
//   - SyncInterval: how often the background sync cycle runs.
//   - PageSize: pull page size requested from the server.
//   - PushConcurrency: bound on concurrent pushes within one cycle.
//   - RetryBase, RetryCap, MaxAttempts: transient-error retry schedule.
//
// Units: intervals are time.Duration values (e.g., 30*time.Second).
type Config struct {
	ServerURL       string
	DatabasePath    string
	SyncInterval    time.Duration
	PageSize        int
	PushConcurrency int
	RetryBase       time.Duration
	RetryCap        time.Duration
	MaxAttempts     int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DatabasePath = "plateful.db"
	c.SyncInterval = 30 * time.Second
	c.PageSize = 100
	c.PushConcurrency = 4
	c.RetryBase = 1 * time.Second
	c.RetryCap = 60 * time.Second
	c.MaxAttempts = 6
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
