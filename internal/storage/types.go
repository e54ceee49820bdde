package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Store is the persistence API used by the app.
type Store interface {
	LoadRecipients(ctx context.Context) ([]string, error)
	PutRecipient(ctx context.Context, id string) error
	DeleteRecipient(ctx context.Context, id string) error
	RecordFire(ctx context.Context, r FireRecord) error
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "file": JSON snapshot + JSONL journal next to Path
//   - "sqlite": SQLite database file at Path
//   - "redis": Redis server at Redis.Addr
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Redis       RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // key prefix, default "remindbot"
}

// FireRecord is the persisted summary of one broadcast firing.
// Keep it compact and schema-stable.
type FireRecord struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Attempted int       `json:"attempted"`
	Delivered int       `json:"delivered"`
	Failed    int       `json:"failed"`
	Pruned    []string  `json:"pruned,omitempty"`
	TookMS    int64     `json:"took_ms"`
}
