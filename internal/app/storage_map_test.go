package app

import (
	"strings"
	"testing"
	"time"

	"genboard/internal/config"
)

func TestMapStorageConfig(t *testing.T) {
	tests := []struct {
		name    string
		in      *config.StorageConfig
		driver  string
		path    string
		busy    time.Duration
		wantErr string
	}{
		{name: "missing section", in: nil, driver: "file", path: defaultDataDir},
		{name: "file", in: &config.StorageConfig{Driver: "file", Path: "/var/lib/gb"}, driver: "file", path: "/var/lib/gb"},
		{name: "sqlite default busy", in: &config.StorageConfig{Driver: "SQLite3", Path: "gb.db"}, driver: "sqlite", path: "gb.db", busy: time.Second},
		{name: "sqlite busy", in: &config.StorageConfig{Driver: "sqlite", Path: "gb.db", BusyTimeout: "3s"}, driver: "sqlite", path: "gb.db", busy: 3 * time.Second},
		{name: "sqlite without path", in: &config.StorageConfig{Driver: "sqlite"}, wantErr: "storage.path"},
		{name: "none", in: &config.StorageConfig{Driver: "none"}, wantErr: "need a store"},
		{name: "unknown", in: &config.StorageConfig{Driver: "redis"}, wantErr: "unknown storage.driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mapStorageConfig(&config.Config{Storage: tt.in})
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Driver != tt.driver || got.Path != tt.path || got.BusyTimeout != tt.busy {
				t.Fatalf("got %+v", got)
			}
		})
	}
}

func TestMapDashboardConfigDefaults(t *testing.T) {
	ds, err := mapDashboardConfig(&config.Config{Dashboard: config.DashboardConfig{Enabled: true, DefaultChatID: -100, DefaultThreadID: 4}})
	if err != nil {
		t.Fatal(err)
	}
	if ds.Schedule != defaultSchedule || !ds.Enabled {
		t.Fatalf("settings = %+v", ds)
	}
	sc := ds.Service
	if sc.Stagger != defaultStagger || sc.Location != time.UTC {
		t.Fatalf("service config = %+v", sc)
	}
	if sc.DefaultTarget.ChatID != -100 || sc.DefaultTarget.ThreadID != 4 {
		t.Fatalf("default target = %+v", sc.DefaultTarget)
	}
}

func TestMapDashboardConfigValues(t *testing.T) {
	ds, err := mapDashboardConfig(&config.Config{Dashboard: config.DashboardConfig{
		Schedule:    "*/2 * * * *",
		Stagger:     "500ms",
		Backoff:     "15m",
		CallTimeout: "4s",
		Timezone:    "UTC",
		Title:       " Base fuel ",
	}})
	if err != nil {
		t.Fatal(err)
	}
	sc := ds.Service
	if sc.Stagger != 500*time.Millisecond || sc.BackoffWindow != 15*time.Minute || sc.CallTimeout != 4*time.Second {
		t.Fatalf("durations = %+v", sc)
	}
	if sc.Title != "Base fuel" {
		t.Fatalf("title = %q", sc.Title)
	}

	if _, err := mapDashboardConfig(&config.Config{Dashboard: config.DashboardConfig{Schedule: "whenever"}}); err == nil {
		t.Fatal("bad schedule accepted")
	}
}

func TestMapNotifierConfig(t *testing.T) {
	n, err := mapNotifierConfig(&config.Config{})
	if err != nil || !n.Enabled {
		t.Fatalf("missing section = %+v, %v", n, err)
	}

	n, err = mapNotifierConfig(&config.Config{Notifier: &config.NotifierConfig{Workers: 3, RetryBase: "1s", RetryMaxDelay: "1m"}})
	if err != nil {
		t.Fatal(err)
	}
	if n.Enabled || n.Workers != 3 || n.RetryBase != time.Second || n.RetryMaxDelay != time.Minute {
		t.Fatalf("notifier = %+v", n)
	}

	if _, err := mapNotifierConfig(&config.Config{Notifier: &config.NotifierConfig{RetryBase: "soon"}}); err == nil {
		t.Fatal("bad duration accepted")
	}
}

func TestValidateRejectsUnusableConfig(t *testing.T) {
	cfg := &config.Config{Dashboard: config.DashboardConfig{Schedule: "5m"}}
	if err := validate(cfg); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	cfg.Storage = &config.StorageConfig{Driver: "none"}
	if err := validate(cfg); err == nil {
		t.Fatal("storage none accepted")
	}
}
