package storage

import (
	"errors"
	"strings"

	logx "remindbot/pkg/logx"
)

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := NormalizeDriver(cfg.Driver)
	if driver == "" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}

// NormalizeDriver maps aliases to canonical driver names ("" means disabled).
func NormalizeDriver(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	switch d {
	case "", "none":
		return ""
	case "sqlite3":
		return "sqlite"
	default:
		return d
	}
}

// KnownDriver reports whether Open understands raw.
func KnownDriver(raw string) bool {
	switch NormalizeDriver(raw) {
	case "", "file", "sqlite", "redis":
		return true
	}
	return false
}
