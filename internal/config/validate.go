package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Validate checks values the decoder cannot: durations, enums and references.
// It does not require a bot token so offline commands can load the same file.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	_, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	add(err)
	if _, _, err := ParseGroupLog(cfg.Telegram.GroupLog); err != nil {
		add(fmt.Errorf("telegram.group_log: %w", err))
	}

	add(validLevel("logging.level", cfg.Logging.Level))
	add(validLevel("logging.chat.min_level", cfg.Logging.Chat.MinLevel))
	if cfg.Logging.Chat.Enabled && strings.TrimSpace(cfg.Telegram.GroupLog) == "" {
		add(errors.New("logging.chat.enabled requires telegram.group_log"))
	}
	if cfg.Logging.Chat.RatePerSec < 0 {
		add(errors.New("logging.chat.rate_per_sec must be >= 0"))
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "file", "sqlite", "sqlite3", "none":
		default:
			add(fmt.Errorf("storage.driver: unknown driver %q (use file or sqlite)", st.Driver))
		}
		_, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout)
		add(err)
	}

	d := cfg.Dashboard
	for _, f := range []struct{ path, raw string }{
		{"dashboard.stagger", d.Stagger},
		{"dashboard.backoff", d.Backoff},
		{"dashboard.call_timeout", d.CallTimeout},
	} {
		_, err := ParseDurationField(f.path, f.raw)
		add(err)
	}
	if tz := strings.TrimSpace(d.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("dashboard.timezone: %w", err))
		}
	}

	if n := cfg.Notifier; n != nil {
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
			add(errors.New("notifier: workers, queue_size, rate_per_sec and retry_max must be >= 0"))
		}
		_, err := ParseDurationField("notifier.retry_base", n.RetryBase)
		add(err)
		_, err = ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
		add(err)
	}

	return errors.Join(errs...)
}

func validLevel(path, s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trace", "debug", "info", "warn", "warning", "error", "disabled":
		return nil
	}
	return fmt.Errorf("%s: unknown level %q", path, s)
}

// ParseGroupLog parses "<chat_id>" or "<chat_id>:<thread_id>". Empty is (0, 0).
func ParseGroupLog(s string) (int64, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, nil
	}
	chatPart, threadPart, hasThread := strings.Cut(s, ":")
	chatID, err := strconv.ParseInt(strings.TrimSpace(chatPart), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid chat id %q", chatPart)
	}
	if !hasThread {
		return chatID, 0, nil
	}
	threadID, err := strconv.Atoi(strings.TrimSpace(threadPart))
	if err != nil || threadID < 0 {
		return 0, 0, fmt.Errorf("invalid thread id %q", threadPart)
	}
	return chatID, threadID, nil
}
