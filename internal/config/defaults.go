package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultKickBaseURL     = "https://kick.com/api/v2/channels/"
	DefaultChannelURL      = "https://kick.com/"
	DefaultIntervalSeconds = 60
	DefaultInitialDelay    = 10 * time.Second
	DefaultTickTimeout     = 2 * time.Minute
	DefaultStoragePath     = "./data/kickbot.db"
)

// ApplyDefaults fills omitted fields in place.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Kick.BaseURL) == "" {
		c.Kick.BaseURL = DefaultKickBaseURL
	}
	if strings.TrimSpace(c.Kick.ChannelURL) == "" {
		c.Kick.ChannelURL = DefaultChannelURL
	}
	if c.Watcher.IntervalSeconds == 0 {
		c.Watcher.IntervalSeconds = DefaultIntervalSeconds
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = DefaultStoragePath
	}
}

// Interval is the poll period.
func (w WatcherConfig) Interval() time.Duration {
	return time.Duration(w.IntervalSeconds) * time.Second
}

// InitialDelay is the wait before the first tick.
func (w WatcherConfig) InitialDelay() time.Duration {
	if w.InitialDelaySeconds == nil {
		return DefaultInitialDelay
	}
	return time.Duration(*w.InitialDelaySeconds) * time.Second
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(c.Telegram.Token) == "" {
		add(errors.New("telegram.token is required"))
	}
	if gl := strings.TrimSpace(c.Telegram.GroupLog); gl != "" {
		if _, err := strconv.ParseInt(gl, 10, 64); err != nil {
			add(fmt.Errorf("telegram.group_log: invalid chat id %q", gl))
		}
	}
	if c.Watcher.IntervalSeconds <= 0 {
		add(fmt.Errorf("watcher.interval_seconds must be > 0"))
	}
	if c.Watcher.InitialDelaySeconds != nil && *c.Watcher.InitialDelaySeconds < 0 {
		add(fmt.Errorf("watcher.initial_delay_seconds must be >= 0"))
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		add(errors.New("storage.path is required"))
	}
	for _, u := range []struct{ path, raw string }{
		{"kick.base_url", c.Kick.BaseURL},
		{"kick.channel_url", c.Kick.ChannelURL},
	} {
		add(validateHTTPURL(u.path, u.raw))
	}
	if c.Kick.Concurrency < 0 || c.Kick.RetryAttempts < 0 {
		add(errors.New("kick.concurrency and kick.retry_attempts must be >= 0"))
	}

	for _, d := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"kick.request_timeout", c.Kick.RequestTimeout},
		{"kick.bulk_timeout", c.Kick.BulkTimeout},
		{"watcher.tick_timeout", c.Watcher.TickTimeout},
		{"notifier.send_timeout", c.Notifier.SendTimeout},
		{"commands.default_timeout", c.Commands.DefaultTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
	} {
		_, err := Duration(d.path, d.raw)
		add(err)
	}
	if tz := strings.TrimSpace(c.Watcher.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("watcher.timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}

func validateHTTPURL(path, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s: must be an http(s) url, got %q", path, raw)
	}
	return nil
}
