package config

// Config is the on-disk configuration (JSON or YAML).
//
// Every field is optional except telegram.token, which may also come from
// BOT_TOKEN. Empty fields take the defaults listed on each section.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Storage   StorageConfig   `json:"storage"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m"). Default: "10s".
	PollTimeout string `json:"poll_timeout,omitempty"`
	// SendTimeout bounds each Bot API HTTP call. Default: "15s".
	SendTimeout string `json:"send_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	// LogUpdates logs every incoming update at DEBUG.
	LogUpdates bool `json:"log_updates,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// BroadcastConfig controls the daily message.
//
// Defaults:
//   - schedule: "0 21 * * *" (cron, or "HH:MM" for daily)
//   - timezone: "Europe/Chisinau"
//   - message: "ну чё когда в факторку"
//   - rate_per_sec: 25
//   - delivery_timeout: "0s" (send_timeout applies)
type BroadcastConfig struct {
	Schedule        string `json:"schedule,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
	Message         string `json:"message,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	DeliveryTimeout string `json:"delivery_timeout,omitempty"`
	// StartReply overrides the /start confirmation text.
	StartReply string `json:"start_reply,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/remindbot.db" }
type StorageConfig struct {
	Driver      string             `json:"driver,omitempty"`
	Path        string             `json:"path,omitempty"`
	BusyTimeout string             `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Redis       StorageRedisConfig `json:"redis,omitempty"`
}

type StorageRedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

// envOverrides are applied after the file is decoded. Unset variables keep
// the file values.
type envOverrides struct {
	Token      string `env:"BOT_TOKEN"`
	LogLevel   string `env:"BOT_LOG_LEVEL"`
	LogUpdates *bool  `env:"BOT_LOG_UPDATES"`
}
