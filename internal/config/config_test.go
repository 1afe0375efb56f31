package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
  group_log: "-1001:5"
logging:
  level: info
  console: true
storage:
  driver: sqlite
  path: ./data/genboard.db
dashboard:
  enabled: true
  schedule: "@every 5m"
  stagger: 2s
  backoff: 10m
  timezone: UTC
  default_chat_id: -1001
notifier:
  enabled: true
  workers: 2
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	m := NewConfigManager(writeFile(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Dashboard.DefaultChatID != -1001 || cfg.Dashboard.Stagger != "2s" {
		t.Fatalf("dashboard = %+v", cfg.Dashboard)
	}
	if m.Get() != cfg {
		t.Fatal("Load should commit the config")
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode("c.json", []byte(`{"dashboard":{"enabled":true,"interval":"5m"}}`))
	if err == nil || !strings.Contains(err.Error(), "interval") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
	if _, err := Decode("c.json", []byte(`{} {}`)); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"ok", Config{}, ""},
		{"bad stagger", Config{Dashboard: DashboardConfig{Stagger: "soon"}}, "dashboard.stagger"},
		{"negative backoff", Config{Dashboard: DashboardConfig{Backoff: "-1m"}}, "dashboard.backoff"},
		{"bad timezone", Config{Dashboard: DashboardConfig{Timezone: "Mars/Olympus"}}, "dashboard.timezone"},
		{"bad driver", Config{Storage: &StorageConfig{Driver: "mongo"}}, "storage.driver"},
		{"bad group log", Config{Telegram: TelegramConfig{GroupLog: "abc"}}, "telegram.group_log"},
		{"chat log without group", Config{Logging: LoggingConfig{Chat: LoggingChat{Enabled: true}}}, "requires telegram.group_log"},
		{"bad level", Config{Logging: LoggingConfig{Level: "loud"}}, "logging.level"},
		{"negative workers", Config{Notifier: &NotifierConfig{Workers: -1}}, "notifier"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(&tc.cfg)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestParseGroupLog(t *testing.T) {
	cases := []struct {
		in     string
		chat   int64
		thread int
		ok     bool
	}{
		{"", 0, 0, true},
		{"-100123", -100123, 0, true},
		{"-100123:7", -100123, 7, true},
		{"x:1", 0, 0, false},
		{"-1:y", 0, 0, false},
	}
	for _, tc := range cases {
		chat, thread, err := ParseGroupLog(tc.in)
		if (err == nil) != tc.ok {
			t.Fatalf("ParseGroupLog(%q) err = %v, ok want %v", tc.in, err, tc.ok)
		}
		if chat != tc.chat || thread != tc.thread {
			t.Fatalf("ParseGroupLog(%q) = %d,%d want %d,%d", tc.in, chat, thread, tc.chat, tc.thread)
		}
	}
}

func TestSummarizeConfigChangeHidesToken(t *testing.T) {
	a := &Config{Telegram: TelegramConfig{Token: "secret-1"}}
	b := &Config{Telegram: TelegramConfig{Token: "secret-2"}, Dashboard: DashboardConfig{Enabled: true}}
	sections, attrs := SummarizeConfigChange(a, b)
	if strings.Join(sections, ",") != "telegram,dashboard" {
		t.Fatalf("sections = %v", sections)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
	if got := RequiresRestart(sections); len(got) != 1 || got[0] != "telegram" {
		t.Fatalf("RequiresRestart = %v", got)
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	path := writeFile(t, "config.json", `{"dashboard":{"stagger":"1s"}}`)
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(path, []byte(`{"dashboard":{"stagger":"3s"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-ch:
		if cfg.Dashboard.Stagger != "3s" {
			t.Fatalf("stagger = %q", cfg.Dashboard.Stagger)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
