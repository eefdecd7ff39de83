package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kickbot/internal/channel"
	"kickbot/internal/eventbus"
	"kickbot/internal/kick"
	"kickbot/internal/notifier"
	"kickbot/internal/storage"
	kit "kickbot/internal/transport"
	logx "kickbot/pkg/logx"
)

// Store is the subset of storage.Store the engine needs.
type Store interface {
	ListChannels(ctx context.Context) ([]storage.Channel, error)
	SetChannelStatus(ctx context.Context, key string, status channel.Status) error
	ListSubscribers(ctx context.Context, key string) ([]int64, error)
}

type Provider interface {
	BulkStatus(ctx context.Context, keys []string) (map[string]kick.Status, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg notifier.Message, recipients []int64) notifier.Report
}

type Config struct {
	// ChannelURL is the public base URL used in notifications.
	ChannelURL string
}

// TickReport summarizes one tick. It is also the Data of the watch.tick event.
type TickReport struct {
	ID            string        `json:"id"`
	Channels      int           `json:"channels"`
	WentLive      int           `json:"went_live"`
	WentOffline   int           `json:"went_offline"`
	Skipped       int           `json:"skipped"`
	PersistFailed int           `json:"persist_failed"`
	Sent          int           `json:"sent"`
	SendFailed    int           `json:"send_failed"`
	Took          time.Duration `json:"took"`
}

// TransitionEvent is the Data of the watch.transition event.
type TransitionEvent struct {
	Tick        string `json:"tick"`
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Transition  string `json:"transition"`
	Title       string `json:"title,omitempty"`
	Category    string `json:"category,omitempty"`
}

type Engine struct {
	cfg        Config
	store      Store
	provider   Provider
	dispatcher Dispatcher
	bus        eventbus.Bus
	log        logx.Logger
}

func New(cfg Config, store Store, provider Provider, dispatcher Dispatcher, bus eventbus.Bus, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{cfg: cfg, store: store, provider: provider, dispatcher: dispatcher, bus: bus, log: log}
}

// Tick runs one poll-diff-notify cycle.
//
// It returns an error only when the cycle could not run at all (store listing
// failed, or the provider failed as a whole); no state is mutated in that case.
// Per-channel persistence and per-recipient delivery failures are logged and
// counted in the report.
func (e *Engine) Tick(ctx context.Context) (TickReport, error) {
	start := time.Now()
	rep := TickReport{ID: uuid.NewString()}
	log := e.log.With(logx.String("tick", rep.ID))

	chs, err := e.store.ListChannels(ctx)
	if err != nil {
		return rep, fmt.Errorf("list channels: %w", err)
	}
	rep.Channels = len(chs)
	if len(chs) == 0 {
		log.Debug("no tracked channels; tick skipped")
		rep.Took = time.Since(start)
		eventbus.Emit(e.bus, eventbus.TypeTick, rep)
		return rep, nil
	}

	keys := make([]string, 0, len(chs))
	for _, ch := range chs {
		keys = append(keys, ch.Key)
	}
	statuses, err := e.provider.BulkStatus(ctx, keys)
	if err != nil {
		return rep, fmt.Errorf("bulk status: %w", err)
	}

	for _, ch := range chs {
		st, ok := statuses[ch.Key]
		if !ok {
			rep.Skipped++
			log.Warn("no status returned for channel; retrying next tick", logx.String("channel", ch.Key))
			continue
		}

		tr := Decide(ch.LastStatus, st.Live)
		if tr == NoChange {
			continue
		}
		next := channel.FromBool(st.Live)

		// Persist before notifying: a crash after this point can only lose a
		// notification, never leave the stored status behind the provider.
		if err := e.store.SetChannelStatus(ctx, ch.Key, next); err != nil {
			rep.PersistFailed++
			log.Error("persist channel status failed", logx.String("channel", ch.Key), logx.String("transition", tr.String()), logx.Err(err))
			continue
		}
		log.Info("channel transition", logx.String("channel", ch.Key), logx.String("name", ch.Name()), logx.String("transition", tr.String()))
		eventbus.Emit(e.bus, eventbus.TypeTransition, TransitionEvent{
			Tick:        rep.ID,
			Key:         ch.Key,
			DisplayName: ch.Name(),
			Transition:  tr.String(),
			Title:       st.Title,
			Category:    st.Category,
		})

		if tr == WentOffline {
			rep.WentOffline++
			continue
		}
		rep.WentLive++
		e.announce(ctx, log, ch, st, &rep)
	}

	rep.Took = time.Since(start)
	eventbus.Emit(e.bus, eventbus.TypeTick, rep)
	log.Debug("tick finished",
		logx.Int("channels", rep.Channels),
		logx.Int("went_live", rep.WentLive),
		logx.Int("went_offline", rep.WentOffline),
		logx.Int("sent", rep.Sent),
		logx.Int("send_failed", rep.SendFailed),
		logx.Duration("took", rep.Took),
	)
	return rep, nil
}

func (e *Engine) announce(ctx context.Context, log logx.Logger, ch storage.Channel, st kick.Status, rep *TickReport) {
	subs, err := e.store.ListSubscribers(ctx, ch.Key)
	if err != nil {
		log.Error("list subscribers failed", logx.String("channel", ch.Key), logx.Err(err))
		return
	}
	if len(subs) == 0 || e.dispatcher == nil {
		return
	}
	r := e.dispatcher.Dispatch(ctx, notifier.Message{
		Text:    RenderLive(ch, st, e.cfg.ChannelURL),
		Options: &kit.SendOptions{ParseMode: "HTML"},
		Key:     ch.Key,
	}, subs)
	rep.Sent += r.Sent
	rep.SendFailed += r.Failed
}
