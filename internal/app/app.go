package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"kickbot/internal/commands"
	"kickbot/internal/config"
	"kickbot/internal/eventbus"
	"kickbot/internal/kick"
	"kickbot/internal/notifier"
	rtsup "kickbot/internal/runtime/supervisor"
	"kickbot/internal/storage"
	"kickbot/internal/task/scheduler"
	kit "kickbot/internal/transport"
	telegram "kickbot/internal/transport/telegram/adapter"
	"kickbot/internal/transport/telegram/router"
	"kickbot/internal/watcher"
	logx "kickbot/pkg/logx"
	"kickbot/pkg/systemd"
)

// watchTask is the scheduler name of the poll loop.
const watchTask = "watch.tick"

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter
	kick    *kick.Client
	disp    *notifier.Dispatcher
	engine  *watcher.Engine
	sched   *scheduler.Service
	router  *router.Router

	watchMu sync.Mutex
	watch   watchSchedule

	updates chan kit.Update
}

// New loads the config and builds every component. Any error is fatal.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.DurationOr("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, bootLog)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return build(cfgm, cfg, ad)
}

func build(cfgm *config.ConfigManager, cfg *config.Config, ad kit.Adapter) (*App, error) {
	// Telegram logging is enabled only after its target is set, so Apply doesn't warn.
	logCfg := mapLoggingConfig(cfg)
	tgEnabled := logCfg.Telegram.Enabled
	logCfg.Telegram.Enabled = false
	logSvc, log := logx.New(logCfg, ad)
	if chatID := groupLogChat(cfg); chatID != 0 {
		logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	logCfg.Telegram.Enabled = tgEnabled
	logSvc.Apply(logCfg)
	appLog := log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	kc, err := mapKickConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	kickClient, err := kick.New(kc, log.With(logx.String("comp", "kick")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	nc, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	disp := notifier.New(nc, ad, log.With(logx.String("comp", "notifier")), bus)

	eng := watcher.New(watcher.Config{ChannelURL: cfg.Kick.ChannelURL}, store, kickClient, disp, bus,
		log.With(logx.String("comp", "watcher")))

	sched := scheduler.New(mapSchedulerConfig(cfg), log.With(logx.String("comp", "scheduler")), bus)

	ws, err := mapWatchSchedule(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	ropt, err := mapRouterOptions(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	rt := router.New(log.With(logx.String("comp", "commands")), ad, bus, ropt)

	a := &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		kick:    kickClient,
		disp:    disp,
		engine:  eng,
		sched:   sched,
		router:  rt,
		watch:   ws,
		updates: make(chan kit.Update, 256),
	}
	hopt := commands.Options{
		Operator: func() int64 {
			if c := cfgm.Get(); c != nil {
				return groupLogChat(c)
			}
			return 0
		},
		Runtime: a,
	}
	rt.SetRegistry(commands.New(store, kickClient, sched, hopt, log.With(logx.String("comp", "handlers"))).Commands())
	return a, nil
}

// Store exposes the state store (operational tooling, tests).
func (a *App) Store() storage.Store { return a.store }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Counters reports the app supervisor's goroutines.
func (a *App) Counters() rtsup.SupervisorCounters { return a.sup.Counters() }

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if u, ok := a.adapter.(interface{ Username() string }); ok {
		a.router.SetBotUsername(u.Username())
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("commands.menu", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 15*time.Second)
		defer cancel()
		if err := a.router.SyncMenu(mctx); err != nil {
			a.log.Warn("command menu update failed", logx.Err(err))
		}
	})

	a.watchMu.Lock()
	ws := a.watch
	a.watchMu.Unlock()
	if err := a.sched.AddInterval(watchTask, ws.every, ws.initialDelay, ws.timeout, a.tick); err != nil {
		return err
	}
	// Runs outlive the signal that stops the app; Stop drains them.
	a.sched.Start(context.WithoutCancel(a.sup.Context()))

	a.startEventLog()
	a.startConfigReload()
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if iv := systemd.WatchdogInterval(); iv > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			systemd.Watchdog(c, iv, func() bool { return a.sup.Err() == nil })
		})
	}
	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("app started",
		logx.Duration("interval", ws.every),
		logx.Duration("initial_delay", ws.initialDelay),
	)
	return nil
}

func (a *App) tick(ctx context.Context) error {
	rep, err := a.engine.Tick(ctx)
	if err != nil {
		return err
	}
	_, _ = systemd.Status(fmt.Sprintf("last tick %s: %d channels, %d went live",
		time.Now().Format(time.TimeOnly), rep.Channels, rep.WentLive))
	return nil
}

// startEventLog logs bus events at DEBUG.
func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if !a.log.Enabled(logx.LevelDebug) {
					continue
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
			}
		}
	})
}

func (a *App) startConfigReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
}

// applyConfig applies the live sections of a reloaded config.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	if len(restart) > 0 {
		a.log.Warn("config sections changed; restart required for them to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}

	// Target first so Apply doesn't warn when Telegram logging is enabled.
	a.logs.SetTelegramTarget(groupLogChat(newCfg), newCfg.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLoggingConfig(newCfg))

	if nc, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.disp.Apply(nc)
	}

	a.sched.Apply(mapSchedulerConfig(newCfg))

	ws, err := mapWatchSchedule(newCfg)
	if err != nil {
		a.log.Warn("invalid watcher config; keeping previous", logx.Err(err))
	} else {
		a.watchMu.Lock()
		changed := ws.every != a.watch.every || ws.timeout != a.watch.timeout
		a.watch = ws
		a.watchMu.Unlock()
		if changed {
			// The next tick is one full interval away.
			if err := a.sched.AddInterval(watchTask, ws.every, ws.every, ws.timeout, a.tick); err != nil {
				a.log.Warn("reschedule watcher failed", logx.Err(err))
			}
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}

// Stop shuts components down in reverse order. Each step is bounded so one
// component can't stall the whole stop.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return a.store.Close()
	}
	a.log.Info("stopping")
	_, _ = systemd.Stopping()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// The in-flight tick gets the longest budget: it may be mid-notify.
	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.sup.Cancel()
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 4*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	// Last: command workers and the tick use the store.
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
