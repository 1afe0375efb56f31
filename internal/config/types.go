package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Dashboard DashboardConfig `json:"dashboard"`

	// Notifier delivers expiry alerts. If the whole section is omitted,
	// the notifier defaults to enabled=true.
	Notifier *NotifierConfig `json:"notifier,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// OwnerUserIDs may run mutating /gen commands. Empty means anyone.
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is "<chat_id>" or "<chat_id>:<thread_id>" for the ops log sink.
	GroupLog string `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat mirrors warnings and errors into telegram.group_log.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects where list documents and bindings live.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./genboard_data" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DashboardConfig controls the refresh cycle.
//
// Defaults (when fields are omitted/zero):
//   - schedule: "@every 5m"
//   - stagger: "2s"
//   - backoff: "10m"
//   - call_timeout: "10s"
//   - timezone: "UTC"
type DashboardConfig struct {
	Enabled bool `json:"enabled"`
	// Schedule is a cron spec (5 fields) or a descriptor such as "@every 5m".
	Schedule    string `json:"schedule,omitempty"`
	Stagger     string `json:"stagger,omitempty"`
	Backoff     string `json:"backoff,omitempty"`
	CallTimeout string `json:"call_timeout,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Title       string `json:"title,omitempty"`

	// Lists without a binding post here. Zero disables posting unbound lists.
	DefaultChatID   int64 `json:"default_chat_id,omitempty"`
	DefaultThreadID int   `json:"default_thread_id,omitempty"`
}

// NotifierConfig controls the async alert pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
}
