package app

import (
	"strconv"
	"strings"
	"time"

	"kickbot/internal/config"
	"kickbot/internal/kick"
	"kickbot/internal/notifier"
	"kickbot/internal/storage"
	"kickbot/internal/task/scheduler"
	"kickbot/internal/transport/telegram/router"
	logx "kickbot/pkg/logx"
)

// Durations below were checked by Config.Validate, so parse errors are
// returned only for configs that skipped it.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// groupLogChat returns the operator chat id, or 0 when unset.
func groupLogChat(cfg *config.Config) int64 {
	s := strings.TrimSpace(cfg.Telegram.GroupLog)
	if s == "" {
		return 0
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func mapKickConfig(cfg *config.Config) (kick.Config, error) {
	timeout, err := config.DurationOr("kick.request_timeout", cfg.Kick.RequestTimeout, 10*time.Second)
	if err != nil {
		return kick.Config{}, err
	}
	bulk, err := config.Duration("kick.bulk_timeout", cfg.Kick.BulkTimeout)
	if err != nil {
		return kick.Config{}, err
	}
	return kick.Config{
		BaseURL:        cfg.Kick.BaseURL,
		RequestTimeout: timeout,
		BulkTimeout:    bulk,
		Concurrency:    cfg.Kick.Concurrency,
		RetryAttempts:  cfg.Kick.RetryAttempts,
		UserAgent:      cfg.Kick.UserAgent,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	timeout, err := config.Duration("notifier.send_timeout", cfg.Notifier.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{RatePerSec: cfg.Notifier.RatePerSec, SendTimeout: timeout}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.Duration("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Path: cfg.Storage.Path, BusyTimeout: busy}, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Timezone: cfg.Watcher.Timezone, HistorySize: cfg.Watcher.HistorySize}
}

func mapRouterOptions(cfg *config.Config) (router.Options, error) {
	timeout, err := config.Duration("commands.default_timeout", cfg.Commands.DefaultTimeout)
	if err != nil {
		return router.Options{}, err
	}
	return router.Options{
		Workers:        cfg.Commands.Workers,
		QueueSize:      cfg.Commands.QueueSize,
		DefaultTimeout: timeout,
	}, nil
}

// watchSchedule is the tick timing derived from the watcher section.
type watchSchedule struct {
	every, initialDelay, timeout time.Duration
}

func mapWatchSchedule(cfg *config.Config) (watchSchedule, error) {
	timeout, err := config.DurationOr("watcher.tick_timeout", cfg.Watcher.TickTimeout, config.DefaultTickTimeout)
	if err != nil {
		return watchSchedule{}, err
	}
	return watchSchedule{
		every:        cfg.Watcher.Interval(),
		initialDelay: cfg.Watcher.InitialDelay(),
		timeout:      timeout,
	}, nil
}
