package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func noEnv(string) (string, bool) { return "", false }

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.yaml", `
telegram:
  token: "123:abc"
watcher:
  interval_seconds: 30
`)
	m := NewConfigManager(p)
	m.SetEnv(noEnv)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Kick.BaseURL != DefaultKickBaseURL || cfg.Kick.ChannelURL != DefaultChannelURL {
		t.Fatalf("kick defaults not applied: %+v", cfg.Kick)
	}
	if cfg.Storage.Path != DefaultStoragePath || cfg.Logging.Level != "info" {
		t.Fatalf("defaults not applied: %+v %+v", cfg.Storage, cfg.Logging)
	}
	if cfg.Watcher.Interval() != 30*time.Second || cfg.Watcher.InitialDelay() != DefaultInitialDelay {
		t.Fatalf("watcher timing: %v %v", cfg.Watcher.Interval(), cfg.Watcher.InitialDelay())
	}
	if m.Get() != cfg {
		t.Fatal("Load should commit")
	}
}

func TestInitialDelayZeroIsKept(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.json", `{"telegram":{"token":"t"},"watcher":{"initial_delay_seconds":0}}`)
	m := NewConfigManager(p)
	m.SetEnv(noEnv)
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Watcher.InitialDelay() != 0 {
		t.Fatalf("initial delay=%v want 0", cfg.Watcher.InitialDelay())
	}
}

func TestParseIsStrict(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, file, body string
	}{
		{"unknown json field", "c.json", `{"telegram":{"token":"t"},"bogus":1}`},
		{"unknown yaml field", "c.yml", "telegram:\n  token: t\n  owner: 1\n"},
		{"trailing json", "c.json", `{"telegram":{"token":"t"}} {}`},
		{"bad yaml", "c.yaml", "telegram: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := NewConfigManager(writeFile(t, t.TempDir(), tc.file, tc.body))
			m.SetEnv(noEnv)
			if _, err := m.Parse(); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	neg := -1
	cases := []struct {
		name string
		mut  func(c *Config)
		want string
	}{
		{"ok", func(c *Config) {}, ""},
		{"missing token", func(c *Config) { c.Telegram.Token = " " }, "telegram.token"},
		{"bad interval", func(c *Config) { c.Watcher.IntervalSeconds = -5 }, "interval_seconds"},
		{"negative delay", func(c *Config) { c.Watcher.InitialDelaySeconds = &neg }, "initial_delay_seconds"},
		{"bad duration", func(c *Config) { c.Kick.RequestTimeout = "soon" }, "kick.request_timeout"},
		{"negative bulk timeout", func(c *Config) { c.Kick.BulkTimeout = "-5s" }, "kick.bulk_timeout"},
		{"bad base url", func(c *Config) { c.Kick.BaseURL = "ftp://kick.com" }, "kick.base_url"},
		{"empty storage", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"bad group log", func(c *Config) { c.Telegram.GroupLog = "ops" }, "group_log"},
		{"bad timezone", func(c *Config) { c.Watcher.Timezone = "Mars/Olympus" }, "watcher.timezone"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := &Config{Telegram: TelegramConfig{Token: "t"}}
			c.ApplyDefaults()
			tc.mut(c)
			err := c.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v want mention of %q", err, tc.want)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		EnvToken:       "from-env",
		EnvStoragePath: "/tmp/k.db",
		EnvInterval:    "15",
		EnvLogLevel:    "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	c := &Config{Logging: LoggingConfig{Level: "warn"}}
	if err := c.ApplyEnv(lookup); err != nil {
		t.Fatal(err)
	}
	if c.Telegram.Token != "from-env" || c.Storage.Path != "/tmp/k.db" || c.Watcher.IntervalSeconds != 15 {
		t.Fatalf("env not applied: %+v", c)
	}
	if c.Logging.Level != "warn" {
		t.Fatalf("empty env value should not override, got %q", c.Logging.Level)
	}

	env[EnvInterval] = "often"
	if err := c.ApplyEnv(lookup); err == nil {
		t.Fatal("expected error for non-numeric interval")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	old := &Config{Telegram: TelegramConfig{Token: "a"}}
	old.ApplyDefaults()
	nw := *old
	nw.Logging.Level = "debug"
	nw.Watcher.IntervalSeconds = 120
	nw.Storage.Path = "/elsewhere.db"

	changed, attrs, restart := SummarizeConfigChange(old, &nw)
	if !reflect.DeepEqual(changed, []string{"logging", "storage", "watcher"}) {
		t.Fatalf("changed=%v", changed)
	}
	if !reflect.DeepEqual(restart, []string{"storage"}) {
		t.Fatalf("restart=%v", restart)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}

	if c, _, _ := SummarizeConfigChange(old, old); len(c) != 0 {
		t.Fatalf("no-op diff reported %v", c)
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", `{"telegram":{"token":"t"},"watcher":{"interval_seconds":60}}`)
	m := NewConfigManager(p)
	m.SetEnv(noEnv)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// Invalid config is rejected and not published.
	writeFile(t, dir, "config.json", `{"telegram":{"token":""}}`)
	time.Sleep(200 * time.Millisecond)
	select {
	case cfg := <-sub:
		t.Fatalf("invalid config published: %+v", cfg)
	default:
	}

	writeFile(t, dir, "config.json", `{"telegram":{"token":"t"},"watcher":{"interval_seconds":5}}`)
	select {
	case cfg := <-sub:
		if cfg.Watcher.IntervalSeconds != 5 {
			t.Fatalf("interval=%d", cfg.Watcher.IntervalSeconds)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("reload not published")
	}
	if m.Get().Watcher.IntervalSeconds != 5 {
		t.Fatal("reload not committed")
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: " 90s ", want: 90 * time.Second},
		{raw: "2m", want: 2 * time.Minute},
		{raw: "45", want: 45 * time.Second},
		{raw: "-1s", wantErr: true},
		{raw: "-3", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tc := range cases {
		got, err := Duration("watcher.tick_timeout", tc.raw)
		if tc.wantErr {
			if err == nil || !strings.Contains(err.Error(), "watcher.tick_timeout") {
				t.Fatalf("Duration(%q) err=%v, want one naming the field", tc.raw, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("Duration(%q) = %v, %v; want %v", tc.raw, got, err, tc.want)
		}
	}

	if d, err := DurationOr("kick.request_timeout", "", 10*time.Second); err != nil || d != 10*time.Second {
		t.Fatalf("DurationOr unset = %v, %v", d, err)
	}
	if d, err := DurationOr("kick.request_timeout", "0s", 10*time.Second); err != nil || d != 10*time.Second {
		t.Fatalf("DurationOr zero = %v, %v", d, err)
	}
}

func TestJSONTreeNamesBadKeys(t *testing.T) {
	t.Parallel()
	doc := map[string]any{
		"kick": map[any]any{"concurrency": 2, [2]int{1, 2}: "x"},
	}
	if _, err := jsonTree("", doc); err == nil || !strings.Contains(err.Error(), "kick") {
		t.Fatalf("err=%v, want one naming kick", err)
	}

	ok, err := jsonTree("", map[string]any{"watcher": map[any]any{"interval_seconds": 30, 7: true}})
	if err != nil {
		t.Fatalf("jsonTree: %v", err)
	}
	w := ok.(map[string]any)["watcher"].(map[string]any)
	if w["interval_seconds"] != 30 || w["7"] != true {
		t.Fatalf("watcher = %v", w)
	}
}
