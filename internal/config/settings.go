package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"remindbot/internal/broadcast"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

const (
	DefaultPollTimeout = 10 * time.Second
	DefaultSendTimeout = 15 * time.Second
	DefaultRatePerSec  = 25

	// MaxMessageLen is the Bot API limit for one text message.
	MaxMessageLen = 4096
)

// Settings is Config with defaults applied and every string parsed.
type Settings struct {
	Token       string
	PollTimeout time.Duration
	SendTimeout time.Duration

	Logging    logx.Config
	LogUpdates bool

	Schedule        broadcast.Schedule
	RatePerSec      int
	DeliveryTimeout time.Duration
	StartReply      string

	Storage storage.Config
}

// Resolve applies defaults and parses cfg. It fails on the first invalid field.
func Resolve(cfg *Config) (Settings, error) {
	var s Settings
	if cfg == nil {
		return s, errors.New("config is nil")
	}

	s.Token = strings.TrimSpace(cfg.Telegram.Token)
	if s.Token == "" {
		return s, errors.New("telegram.token is required (or set BOT_TOKEN)")
	}
	var err error
	if s.PollTimeout, err = parseDuration("telegram.poll_timeout", cfg.Telegram.PollTimeout, DefaultPollTimeout); err != nil {
		return s, err
	}
	if s.SendTimeout, err = parseDuration("telegram.send_timeout", cfg.Telegram.SendTimeout, DefaultSendTimeout); err != nil {
		return s, err
	}

	lv := strings.TrimSpace(cfg.Logging.Level)
	if lv != "" && !logx.ValidLevel(lv) {
		return s, fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		return s, errors.New("logging.file.path is required when logging.file.enabled")
	}
	s.Logging = logx.Config{
		Level:   lv,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	}
	s.LogUpdates = cfg.Logging.LogUpdates

	b := cfg.Broadcast
	s.Schedule, err = broadcast.NewSchedule(
		orDefault(b.Schedule, broadcast.DefaultSpec),
		orDefault(b.Timezone, broadcast.DefaultTimezone),
		orDefault(b.Message, broadcast.DefaultMessage),
	)
	if err != nil {
		return s, fmt.Errorf("broadcast: %w", err)
	}
	if n := utf8.RuneCountInString(s.Schedule.Message()); n > MaxMessageLen {
		return s, fmt.Errorf("broadcast.message: %d characters exceeds %d", n, MaxMessageLen)
	}
	switch {
	case b.RatePerSec < 0:
		return s, errors.New("broadcast.rate_per_sec must be >= 0")
	case b.RatePerSec == 0:
		s.RatePerSec = DefaultRatePerSec
	default:
		s.RatePerSec = b.RatePerSec
	}
	if s.DeliveryTimeout, err = parseDuration("broadcast.delivery_timeout", b.DeliveryTimeout, 0); err != nil {
		return s, err
	}
	s.StartReply = strings.TrimSpace(b.StartReply)

	st := cfg.Storage
	if !storage.KnownDriver(st.Driver) {
		return s, fmt.Errorf("storage.driver: unknown driver %q", st.Driver)
	}
	busy, err := parseDuration("storage.busy_timeout", st.BusyTimeout, 0)
	if err != nil {
		return s, err
	}
	s.Storage = storage.Config{
		Driver:      storage.NormalizeDriver(st.Driver),
		Path:        st.Path,
		BusyTimeout: busy,
		Redis: storage.RedisConfig{
			Addr:     st.Redis.Addr,
			Password: st.Redis.Password,
			DB:       st.Redis.DB,
			Prefix:   st.Redis.Prefix,
		},
	}
	switch s.Storage.Driver {
	case "file", "sqlite":
		if strings.TrimSpace(st.Path) == "" {
			return s, fmt.Errorf("storage.path is required for driver %q", s.Storage.Driver)
		}
	case "redis":
		if strings.TrimSpace(st.Redis.Addr) == "" {
			return s, errors.New("storage.redis.addr is required for driver \"redis\"")
		}
	}
	return s, nil
}

// Validate reports whether cfg resolves cleanly.
func Validate(cfg *Config) error {
	_, err := Resolve(cfg)
	return err
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// Sections that take effect without a restart.
var hotSections = map[string]bool{"logging": true}

// SummarizeChange lists the top-level sections that differ between prev and
// next, in declaration order. Values are never included.
func SummarizeChange(prev, next *Config) []string {
	if prev == nil || next == nil {
		return nil
	}
	type pair struct {
		name string
		a, b any
	}
	pairs := []pair{
		{"telegram", prev.Telegram, next.Telegram},
		{"logging", prev.Logging, next.Logging},
		{"broadcast", prev.Broadcast, next.Broadcast},
		{"storage", prev.Storage, next.Storage},
	}
	var out []string
	for _, p := range pairs {
		if !sameJSON(p.a, p.b) {
			out = append(out, p.name)
		}
	}
	return out
}

// RestartRequired filters SummarizeChange output down to sections that only
// apply after a restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if !hotSections[s] {
			out = append(out, s)
		}
	}
	return out
}

func sameJSON(a, b any) bool {
	ja, err1 := json.Marshal(a)
	jb, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && string(ja) == string(jb)
}
