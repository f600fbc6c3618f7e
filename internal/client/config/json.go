package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/plateful/plateful/internal/flagx"
	"github.com/plateful/plateful/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "30s" or as integer nanoseconds. After parsing, values
// are copied into the runtime Config (which uses time.Duration).
type JsonConfig struct {
	ServerURL       string         `json:"server_url"`
	DatabasePath    string         `json:"database_path"`
	SyncInterval    timex.Duration `json:"sync_interval"`
	PageSize        int            `json:"page_size"`
	PushConcurrency int            `json:"push_concurrency"`
	RetryBase       timex.Duration `json:"retry_base"`
	RetryCap        timex.Duration `json:"retry_cap"`
	MaxAttempts     int            `json:"max_attempts"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Behavior:
//   - Reads and unmarshals the JSON into JsonConfig.
//   - Copies set fields into the provided Config; zero values are skipped
//     so the file can override only what it names.
//   - Panics on read or unmarshal errors (caller should recover if desired).
//
// Intended usage is: defaults -> parseJson -> parseFlags, where later stages
// override earlier ones.
func parseJson(cfg *Config) {
	// Resolve file path from flags.
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.SyncInterval.Duration != 0 {
		cfg.SyncInterval = time.Duration(jc.SyncInterval.Duration)
	}
	if jc.PageSize != 0 {
		cfg.PageSize = jc.PageSize
	}
	if jc.PushConcurrency != 0 {
		cfg.PushConcurrency = jc.PushConcurrency
	}
	if jc.RetryBase.Duration != 0 {
		cfg.RetryBase = time.Duration(jc.RetryBase.Duration)
	}
	if jc.RetryCap.Duration != 0 {
		cfg.RetryCap = time.Duration(jc.RetryCap.Duration)
	}
	if jc.MaxAttempts != 0 {
		cfg.MaxAttempts = jc.MaxAttempts
	}
}
