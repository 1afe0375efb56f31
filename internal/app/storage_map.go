package app

import (
	"fmt"
	"strings"
	"time"

	"genboard/internal/config"
	"genboard/internal/dashboard"
	"genboard/internal/notifier"
	"genboard/internal/storage"
	"genboard/internal/task/scheduler"
	"genboard/internal/transport"
	logx "genboard/pkg/logx"
)

const (
	defaultDataDir  = "./genboard_data"
	defaultSchedule = "@every 5m"
	defaultStagger  = 2 * time.Second
)

// mapStorageConfig defaults to the file driver. Lists cannot live without a
// store, so "none" is rejected here.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := config.StorageConfig{}
	if cfg.Storage != nil {
		sc = *cfg.Storage
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "file":
		if path == "" {
			path = defaultDataDir
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "none":
		return storage.Config{}, fmt.Errorf("storage.driver=none: generator lists need a store")
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Chat:    logx.ChatConfig{Enabled: l.Chat.Enabled, MinLevel: l.Chat.MinLevel, RatePerSec: l.Chat.RatePerSec},
	}
}

// dashboardSettings is the dashboard section after parsing.
type dashboardSettings struct {
	Enabled  bool
	Schedule string
	Timezone string
	Service  dashboard.Config
}

func mapDashboardConfig(cfg *config.Config) (dashboardSettings, error) {
	d := cfg.Dashboard
	out := dashboardSettings{Enabled: d.Enabled, Schedule: strings.TrimSpace(d.Schedule), Timezone: strings.TrimSpace(d.Timezone)}
	if out.Schedule == "" {
		out.Schedule = defaultSchedule
	}
	if _, err := scheduler.ParseSchedule(out.Schedule); err != nil {
		return dashboardSettings{}, fmt.Errorf("dashboard.schedule: %w", err)
	}

	var err error
	sc := &out.Service
	if sc.Stagger, err = config.ParseDurationOrDefault("dashboard.stagger", d.Stagger, defaultStagger); err != nil {
		return dashboardSettings{}, err
	}
	if sc.BackoffWindow, err = config.ParseDurationOrDefault("dashboard.backoff", d.Backoff, 0); err != nil {
		return dashboardSettings{}, err
	}
	if sc.CallTimeout, err = config.ParseDurationOrDefault("dashboard.call_timeout", d.CallTimeout, 0); err != nil {
		return dashboardSettings{}, err
	}
	sc.Location = time.UTC
	if out.Timezone != "" {
		if sc.Location, err = time.LoadLocation(out.Timezone); err != nil {
			return dashboardSettings{}, fmt.Errorf("dashboard.timezone: %w", err)
		}
	}
	sc.Title = strings.TrimSpace(d.Title)
	sc.DefaultTarget = transport.ChatTarget{ChatID: d.DefaultChatID, ThreadID: d.DefaultThreadID}
	return out, nil
}

// mapNotifierConfig treats a missing section as enabled with defaults.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	if cfg.Notifier == nil {
		return notifier.Config{Enabled: true}, nil
	}
	n := cfg.Notifier
	base, err := config.ParseDurationOrDefault("notifier.retry_base", n.RetryBase, 0)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationOrDefault("notifier.retry_max_delay", n.RetryMaxDelay, 0)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:       n.Enabled,
		Workers:       n.Workers,
		QueueSize:     n.QueueSize,
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
	}, nil
}

// validate runs every mapping so a reload that cannot be applied is rejected
// before it is committed.
func validate(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapDashboardConfig(cfg); err != nil {
		return err
	}
	_, err := mapNotifierConfig(cfg)
	return err
}
