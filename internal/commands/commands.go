package commands

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"kickbot/internal/channel"
	"kickbot/internal/kick"
	rtsup "kickbot/internal/runtime/supervisor"
	"kickbot/internal/storage"
	"kickbot/internal/task/scheduler"
	"kickbot/internal/transport/telegram/router"
	logx "kickbot/pkg/logx"
)

// Store is the part of storage.Store the handlers need.
type Store interface {
	AddSubscriber(ctx context.Context, subscriberID int64) (bool, error)
	Subscribe(ctx context.Context, subscriberID int64, key, displayName string) (bool, error)
	RemoveSubscription(ctx context.Context, subscriberID int64, key string) error
	ListSubscriptions(ctx context.Context, subscriberID int64) ([]storage.Channel, error)
}

// Lookup validates a channel against the platform.
type Lookup interface {
	LookupChannel(ctx context.Context, raw string) (kick.Channel, error)
}

// Snapshotter exposes scheduler state for /status.
type Snapshotter interface {
	Snapshot() scheduler.Snapshot
}

// Runtime exposes goroutine counters for /status.
type Runtime interface {
	Counters() rtsup.SupervisorCounters
}

type Options struct {
	// Operator returns the only chat allowed to use /status; 0 means nobody.
	// It is a func so a config reload of telegram.group_log applies at once.
	Operator func() int64
	Runtime  Runtime
}

const (
	replyStoreFailed  = "⚠️ Something went wrong while saving. Please try again later."
	replyLookupFailed = "⚠️ Kick is not reachable right now. Please try again later."
)

type Handlers struct {
	store     Store
	lookup    Lookup
	sched     Snapshotter
	opt       Options
	log       logx.Logger
	startedAt time.Time

	// help is rendered from the registry once it is known.
	help func() []router.Command
}

func New(store Store, lookup Lookup, sched Snapshotter, opt Options, log logx.Logger) *Handlers {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handlers{
		store:     store,
		lookup:    lookup,
		sched:     sched,
		opt:       opt,
		log:       log,
		startedAt: time.Now(),
	}
}

// Commands returns the command registry for the router.
func (h *Handlers) Commands() []router.Command {
	cmds := []router.Command{
		{
			Name:        "start",
			Description: "start the bot",
			Usage:       "/start",
			Handle:      h.cmdStart,
		},
		{
			Name:        "help",
			Description: "show help",
			Usage:       "/help",
			Handle:      h.cmdHelp,
		},
		{
			Name:        "add",
			Aliases:     []string{"follow"},
			Description: "get notified when a channel goes live",
			Usage:       "/add <channel>",
			Timeout:     45 * time.Second,
			Handle:      h.cmdAdd,
		},
		{
			Name:        "remove",
			Aliases:     []string{"rm", "unfollow"},
			Description: "stop notifications for a channel",
			Usage:       "/remove <channel>",
			Handle:      h.cmdRemove,
		},
		{
			Name:        "list",
			Aliases:     []string{"ls"},
			Description: "list your channels",
			Usage:       "/list",
			Handle:      h.cmdList,
		},
		{
			Name:        "ping",
			Description: "health check",
			Usage:       "/ping",
			Hidden:      true,
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, "pong")
			},
		},
		{
			Name:        "status",
			Description: "uptime and watcher schedule (operator chat only)",
			Usage:       "/status",
			Hidden:      true,
			Handle:      h.cmdStatus,
		},
	}
	h.help = func() []router.Command { return cmds }
	return cmds
}

func (h *Handlers) register(ctx context.Context, req *router.Request) {
	if _, err := h.store.AddSubscriber(ctx, req.Chat.ChatID); err != nil {
		req.Logger.Warn("register subscriber failed", logx.Err(err))
	}
}

func (h *Handlers) cmdStart(ctx context.Context, req *router.Request) error {
	h.register(ctx, req)
	return req.Reply(ctx, "👋 Hi! I watch Kick channels and message you when they go live.\n\n"+h.helpText())
}

func (h *Handlers) cmdHelp(ctx context.Context, req *router.Request) error {
	h.register(ctx, req)
	return req.Reply(ctx, h.helpText())
}

func (h *Handlers) helpText() string {
	var b strings.Builder
	b.WriteString("<b>Commands</b>\n")
	if h.help == nil {
		return b.String()
	}
	for _, c := range h.help() {
		if c.Hidden {
			continue
		}
		fmt.Fprintf(&b, "%s - %s\n", html.EscapeString(c.Usage), html.EscapeString(c.Description))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *Handlers) cmdAdd(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, "Usage: /add &lt;channel&gt;")
	}
	raw := strings.Join(req.Args, " ")
	if _, err := channel.Key(raw); err != nil {
		return req.Reply(ctx, fmt.Sprintf("❌ <code>%s</code> is not a valid channel name.", html.EscapeString(raw)))
	}

	ch, err := h.lookup.LookupChannel(ctx, raw)
	switch {
	case errors.Is(err, kick.ErrNotFound):
		return req.Reply(ctx, fmt.Sprintf("❌ Channel <code>%s</code> was not found on Kick.", html.EscapeString(raw)))
	case err != nil:
		req.Logger.Warn("channel lookup failed", logx.String("channel", raw), logx.Err(err))
		_ = req.Reply(ctx, replyLookupFailed)
		return err
	}

	added, err := h.store.Subscribe(ctx, req.Chat.ChatID, ch.Key, ch.DisplayName)
	if err != nil {
		_ = req.Reply(ctx, replyStoreFailed)
		return err
	}
	name := html.EscapeString(displayName(ch.DisplayName, ch.Key))
	if !added {
		return req.Reply(ctx, fmt.Sprintf("ℹ️ You are already subscribed to <b>%s</b>.", name))
	}
	return req.Reply(ctx, fmt.Sprintf("✅ Added <b>%s</b>. You will be notified when the channel goes live.", name))
}

func (h *Handlers) cmdRemove(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, "Usage: /remove &lt;channel&gt;")
	}
	raw := strings.Join(req.Args, " ")
	key, err := channel.Key(raw)
	if err != nil {
		return req.Reply(ctx, fmt.Sprintf("❌ <code>%s</code> is not a valid channel name.", html.EscapeString(raw)))
	}
	if err := h.store.RemoveSubscription(ctx, req.Chat.ChatID, key); err != nil {
		_ = req.Reply(ctx, replyStoreFailed)
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("🗑 Removed <b>%s</b>.", html.EscapeString(key)))
}

func (h *Handlers) cmdList(ctx context.Context, req *router.Request) error {
	subs, err := h.store.ListSubscriptions(ctx, req.Chat.ChatID)
	if err != nil {
		_ = req.Reply(ctx, replyStoreFailed)
		return err
	}
	return req.Reply(ctx, renderList(subs))
}

func renderList(subs []storage.Channel) string {
	if len(subs) == 0 {
		return "You are not following any channels yet. Use /add &lt;channel&gt;."
	}
	lines := make([]string, 0, len(subs)+1)
	lines = append(lines, "<b>Your channels</b>")
	for _, c := range subs {
		lines = append(lines, fmt.Sprintf("%s (%s) — %s",
			html.EscapeString(c.Name()), html.EscapeString(c.Key), c.LastStatus))
	}
	return strings.Join(lines, "\n")
}

func (h *Handlers) isOperator(chatID int64) bool {
	if h.opt.Operator == nil {
		return false
	}
	op := h.opt.Operator()
	return op != 0 && op == chatID
}

func (h *Handlers) cmdStatus(ctx context.Context, req *router.Request) error {
	if !h.isOperator(req.Chat.ChatID) {
		req.Logger.Debug("status refused outside operator chat")
		return nil
	}
	lines := []string{
		"<b>status</b>",
		"uptime: " + time.Since(h.startedAt).Truncate(time.Second).String(),
	}
	if h.opt.Runtime != nil {
		c := h.opt.Runtime.Counters()
		lines = append(lines, fmt.Sprintf("goroutines: %d active, %d started", c.Active, c.Started))
	}
	if h.sched != nil {
		snap := h.sched.Snapshot()
		for _, s := range snap.Schedules {
			line := fmt.Sprintf("%s: every %s", html.EscapeString(s.Name), s.Every)
			if !s.Prev.IsZero() {
				line += ", last " + s.Prev.Format(time.TimeOnly)
			}
			if !s.Next.IsZero() {
				line += ", next " + s.Next.Format(time.TimeOnly)
			}
			if s.Running {
				line += " (running)"
			}
			lines = append(lines, line)
		}
		if n := len(snap.History); n > 0 {
			last := snap.History[n-1]
			if last.Error != "" {
				lines = append(lines, "last error: "+html.EscapeString(last.Error))
			}
		}
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func displayName(name, key string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return key
}
