package config

import (
	"reflect"
	"sort"
	"strings"

	logx "kickbot/pkg/logx"
)

// Sections applied live on reload. Changes elsewhere need a restart.
var liveSections = map[string]bool{
	"logging":  true,
	"watcher":  true,
	"notifier": true,
}

// SummarizeConfigChange returns (1) the changed sections, sorted,
// (2) safe structured attrs for logging (never includes the token), and
// (3) the changed sections that only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	// Telegram (never log token)
	if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Kick != newCfg.Kick {
		changed = append(changed, "kick")
		attrs = append(attrs,
			logx.String("kick.base_url", newCfg.Kick.BaseURL),
			logx.Int("kick.concurrency", newCfg.Kick.Concurrency),
		)
	}

	if oldCfg.Watcher.IntervalSeconds != newCfg.Watcher.IntervalSeconds ||
		oldCfg.Watcher.InitialDelay() != newCfg.Watcher.InitialDelay() ||
		strings.TrimSpace(oldCfg.Watcher.TickTimeout) != strings.TrimSpace(newCfg.Watcher.TickTimeout) ||
		strings.TrimSpace(oldCfg.Watcher.Timezone) != strings.TrimSpace(newCfg.Watcher.Timezone) ||
		oldCfg.Watcher.HistorySize != newCfg.Watcher.HistorySize {
		changed = append(changed, "watcher")
		attrs = append(attrs,
			logx.Int("watcher.interval_seconds", newCfg.Watcher.IntervalSeconds),
			logx.String("watcher.tick_timeout", strings.TrimSpace(newCfg.Watcher.TickTimeout)),
			logx.String("watcher.timezone", strings.TrimSpace(newCfg.Watcher.Timezone)),
		)
	}

	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
			logx.String("notifier.send_timeout", strings.TrimSpace(newCfg.Notifier.SendTimeout)),
		)
	}

	if oldCfg.Commands != newCfg.Commands {
		changed = append(changed, "commands")
		attrs = append(attrs, logx.Int("commands.workers", newCfg.Commands.Workers))
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.Bool("storage.path_changed", oldCfg.Storage.Path != newCfg.Storage.Path),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	sort.Strings(changed)
	var restart []string
	for _, s := range changed {
		if !liveSections[s] {
			restart = append(restart, s)
		}
	}
	return changed, attrs, restart
}
