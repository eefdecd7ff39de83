package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"kickbot/internal/eventbus"
	kit "kickbot/internal/transport"
	logx "kickbot/pkg/logx"
)

const (
	defaultRatePerSec  = 25
	defaultSendTimeout = 10 * time.Second
)

// Dispatcher is safe for concurrent use; Apply may run while Dispatch is sending.
type Dispatcher struct {
	mu sync.Mutex

	cfg     Config
	adapter kit.Adapter
	log     logx.Logger
	bus     eventbus.Bus
	limiter *rate.Limiter
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{adapter: adapter, log: log, bus: bus}
	d.applyLocked(cfg)
	return d
}

func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.applyLocked(cfg)
	d.mu.Unlock()
}

func (d *Dispatcher) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	d.cfg = cfg
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Dispatch sends msg to every recipient once and never returns an error:
// failures are reported in Report and logged per recipient.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message, recipients []int64) Report {
	var rep Report
	if len(recipients) == 0 || msg.Text == "" {
		return rep
	}

	// Snapshot mutable dependencies to avoid races with Apply().
	d.mu.Lock()
	lim := d.limiter
	timeout := d.cfg.SendTimeout
	ad := d.adapter
	d.mu.Unlock()

	start := time.Now()
	for i, id := range recipients {
		if ad == nil {
			rep.Failed += len(recipients) - i
			d.log.Error("dispatch skipped", logx.String("key", msg.Key), logx.Err(ErrNoAdapter))
			break
		}
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				rep.Failed += len(recipients) - i
				d.log.Warn("dispatch interrupted", logx.String("key", msg.Key), logx.Int("remaining", len(recipients)-i), logx.Err(err))
				break
			}
		}

		err := d.sendOne(ctx, ad, timeout, id, msg)
		now := time.Now()
		if err == nil {
			rep.Sent++
			eventbus.Emit(d.bus, eventbus.TypeNotifySent, NotificationEvent{ChatID: id, Key: msg.Key, At: now})
			continue
		}

		rep.Failed++
		if errors.Is(err, kit.ErrRecipientUnreachable) {
			rep.Unreachable = append(rep.Unreachable, id)
			d.log.Warn("recipient unreachable", logx.Int64("chat_id", id), logx.String("key", msg.Key), logx.Err(err))
		} else {
			d.log.Warn("notify send failed", logx.Int64("chat_id", id), logx.String("key", msg.Key), logx.Err(err))
		}
		eventbus.Emit(d.bus, eventbus.TypeNotifyFailed, NotificationEvent{ChatID: id, Key: msg.Key, At: now, Error: err.Error()})
	}

	fields := []logx.Field{
		logx.String("key", msg.Key),
		logx.Int("total", len(recipients)),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Duration("dur", time.Since(start)),
	}
	if rep.Failed > 0 {
		d.log.Warn("dispatch finished with failures", fields...)
	} else {
		d.log.Debug("dispatch finished", fields...)
	}
	return rep
}

func (d *Dispatcher) sendOne(ctx context.Context, ad kit.Adapter, timeout time.Duration, id int64, msg Message) (err error) {
	// A panicking adapter must not take the remaining recipients down with it.
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("panic in adapter send")
			d.log.Error("panic in notify send", logx.Int64("chat_id", id), logx.Any("panic", r))
		}
	}()

	// Bound per-send call. Keep tight to avoid hanging a tick.
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err = ad.SendText(callCtx, kit.ChatTarget{ChatID: id}, msg.Text, msg.Options)
	return err
}
