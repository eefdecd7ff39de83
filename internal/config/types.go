package config

// Config is the on-disk configuration. JSON or YAML, decoded strictly.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Kick     KickConfig     `json:"kick"`
	Watcher  WatcherConfig  `json:"watcher"`
	Notifier NotifierConfig `json:"notifier"`
	Commands CommandsConfig `json:"commands"`
	Storage  StorageConfig  `json:"storage"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// GroupLog is the operator chat id that receives WARN+ log records.
	GroupLog    string `json:"group_log"`
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// KickConfig controls the channel status provider.
//
// Defaults (when fields are omitted/zero):
//   - base_url: "https://kick.com/api/v2/channels/"
//   - channel_url: "https://kick.com/"
//   - request_timeout: "10s"
//   - bulk_timeout: unset (three quarters of the tick budget)
//   - concurrency: 8
//   - retry_attempts: 2
type KickConfig struct {
	BaseURL        string `json:"base_url,omitempty"`
	ChannelURL     string `json:"channel_url,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty"`
	BulkTimeout    string `json:"bulk_timeout,omitempty"`
	Concurrency    int    `json:"concurrency,omitempty"`
	RetryAttempts  int    `json:"retry_attempts,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
}

// WatcherConfig controls the poll loop.
//
// interval_seconds and initial_delay_seconds mirror the classic bot settings;
// initial_delay_seconds may be 0 to poll right away.
type WatcherConfig struct {
	IntervalSeconds     int    `json:"interval_seconds"`
	InitialDelaySeconds *int   `json:"initial_delay_seconds,omitempty"`
	TickTimeout         string `json:"tick_timeout,omitempty"`
	Timezone            string `json:"timezone,omitempty"`
	HistorySize         int    `json:"history_size,omitempty"`
}

type NotifierConfig struct {
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
}

// CommandsConfig controls the command dispatcher.
type CommandsConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
}

// StorageConfig controls the SQLite store.
//
// Example:
//
//	"storage": { "path": "./data/kickbot.db", "busy_timeout": "5s" }
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}
