package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment overrides, applied after the file is parsed.
const (
	EnvToken       = "KICKBOT_TELEGRAM_TOKEN"
	EnvGroupLog    = "KICKBOT_TELEGRAM_GROUP_LOG"
	EnvStoragePath = "KICKBOT_STORAGE_PATH"
	EnvLogLevel    = "KICKBOT_LOG_LEVEL"
	EnvInterval    = "KICKBOT_WATCH_INTERVAL"
)

// ApplyEnv overlays KICKBOT_* variables. lookup is os.LookupEnv in production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvToken); ok {
		c.Telegram.Token = v
	}
	if v, ok := get(EnvGroupLog); ok {
		c.Telegram.GroupLog = v
	}
	if v, ok := get(EnvStoragePath); ok {
		c.Storage.Path = v
	}
	if v, ok := get(EnvLogLevel); ok {
		c.Logging.Level = v
	}
	if v, ok := get(EnvInterval); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", EnvInterval, v)
		}
		c.Watcher.IntervalSeconds = n
	}
	return nil
}
