// Package config loads cmd/sqldb's settings: the data file path, which
// Engine back-end to use, and whether to auto-compact on startup.
//
// Configuration is read from environment variables via small getenv
// helpers, with cobra flags layered on top as overrides in cmd/sqldb --
// env vars remain the base so the binary still runs unattended in a
// container with no flags supplied at all.
package config

import (
	"os"

	"github.com/dreamware/tinysql/internal/dberr"
)

// EngineKind selects which storage.Engine back-end cmd/sqldb opens.
type EngineKind string

const (
	EngineDisk   EngineKind = "disk"
	EngineMemory EngineKind = "memory"
)

// Config is cmd/sqldb's full runtime configuration.
type Config struct {
	// Path is the DiskEngine log file path. Unused when Engine is
	// EngineMemory.
	Path string
	// Engine selects the storage back-end.
	Engine EngineKind
	// CompactOnStart triggers a DiskEngine.Compact() immediately after
	// opening, before the REPL starts accepting commands.
	CompactOnStart bool
}

// Load builds a Config from environment variables, falling back to
// defaults for unset ones: SQLDB_PATH defaults to "sqldb.log" and
// SQLDB_ENGINE to EngineDisk. cmd/sqldb applies its cobra flags to the
// returned Config afterwards.
func Load() (*Config, error) {
	cfg := &Config{
		Path:           getenv("SQLDB_PATH", "sqldb.log"),
		Engine:         EngineKind(getenv("SQLDB_ENGINE", string(EngineDisk))),
		CompactOnStart: getenv("SQLDB_COMPACT_ON_START", "") != "",
	}
	if cfg.Engine != EngineDisk && cfg.Engine != EngineMemory {
		return nil, dberr.Parse("invalid SQLDB_ENGINE %q (want %q or %q)", cfg.Engine, EngineDisk, EngineMemory)
	}
	return cfg, nil
}

// getenv retrieves an environment variable with a default fallback.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
