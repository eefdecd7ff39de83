package router

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"kickbot/internal/eventbus"
	rtsup "kickbot/internal/runtime/supervisor"
	kit "kickbot/internal/transport"
	logx "kickbot/pkg/logx"
)

type Command struct {
	Name        string   // without the leading slash, e.g. "add"
	Aliases     []string // e.g. ["a"]
	Description string
	Usage       string
	Timeout     time.Duration // optional per-command override
	Hidden      bool          // not shown in the Telegram menu
	Handle      HandlerFunc
}

type Request struct {
	Update       kit.Update
	Chat         kit.ChatTarget
	FromID       int64
	FromUsername string
	Command      string
	Args         []string
	ReqID        string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends an HTML message back to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

type Options struct {
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
	// BotUsername filters "/cmd@other_bot" in groups. Empty accepts any suffix.
	BotUsername string
	UnknownText string
}

type Router struct {
	mu    sync.RWMutex
	cmds  map[string]Command
	alias map[string]string
	list  []Command

	opt     Options
	log     logx.Logger
	adapter kit.Adapter
	bus     eventbus.Bus

	jobs chan func()
}

func New(log logx.Logger, adapter kit.Adapter, bus eventbus.Bus, opt Options) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Workers <= 0 {
		opt.Workers = 4
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = 256
	}
	if opt.DefaultTimeout <= 0 {
		opt.DefaultTimeout = 30 * time.Second
	}
	if opt.UnknownText == "" {
		opt.UnknownText = "Unknown command. Try /help"
	}
	return &Router{
		cmds:    map[string]Command{},
		alias:   map[string]string{},
		opt:     opt,
		log:     log,
		adapter: adapter,
		bus:     bus,
		jobs:    make(chan func(), opt.QueueSize),
	}
}

// SetBotUsername updates the @username used to filter group commands.
func (m *Router) SetBotUsername(name string) {
	m.mu.Lock()
	m.opt.BotUsername = strings.TrimPrefix(strings.TrimSpace(name), "@")
	m.mu.Unlock()
}

// SetRegistry replaces the command set.
func (m *Router) SetRegistry(cmds []Command) {
	byName := map[string]Command{}
	alias := map[string]string{}
	list := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		byName[name] = c
		list = append(list, c)
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a != "" && a != name {
				alias[a] = name
			}
		}
	}

	m.mu.Lock()
	m.cmds = byName
	m.alias = alias
	m.list = list
	m.mu.Unlock()
}

// Commands returns the registered commands in registration order.
func (m *Router) Commands() []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Command(nil), m.list...)
}

// SyncMenu pushes the visible commands to the platform menu, if supported.
func (m *Router) SyncMenu(ctx context.Context) error {
	up, ok := m.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	var menu []kit.BotCommand
	for _, c := range m.Commands() {
		if c.Hidden {
			continue
		}
		menu = append(menu, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return up.UpdateMenuCommands(ctx, menu)
}

func (m *Router) lookup(word string) (Command, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.cmds[word]; ok {
		return c, true
	}
	if name, ok := m.alias[word]; ok {
		c, ok := m.cmds[name]
		return c, ok
	}
	return Command{}, false
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (m *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop routes updates to a bounded worker pool until ctx is done
// or updates is closed.
func (m *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(m.log),
		rtsup.WithCancelOnError(false),
	)
	m.log.Info("command dispatcher started", logx.Int("workers", m.opt.Workers), logx.Int("job_queue_cap", cap(m.jobs)))

	for i := 0; i < m.opt.Workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		close(m.jobs)
		// Wait briefly for workers to drain.
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.routeUpdate(ctx, up)
		}
	}
}

func (m *Router) routeUpdate(ctx context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message
	word, args, ok := m.parse(msg.Text)
	if !ok {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	cmd, found := m.lookup(word)
	if !found {
		// Stay quiet in groups: other bots may own the command.
		if !msg.IsGroup {
			_, _ = m.adapter.SendText(ctx, chat, m.opt.UnknownText, nil)
		}
		return
	}

	rid := uuid.NewString()[:8]
	req := &Request{
		Update:       up,
		Chat:         chat,
		FromID:       msg.FromID,
		FromUsername: msg.FromUsername,
		Command:      cmd.Name,
		Args:         args,
		ReqID:        rid,
		Adapter:      m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.String("cmd", cmd.Name),
		),
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = m.opt.DefaultTimeout
	}
	final := Chain(
		cmd.Handle,
		MWEvent(m.bus),
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(timeout),
	)

	if !m.tryEnqueue(func() { _ = final(ctx, req) }) {
		_, _ = m.adapter.SendText(ctx, chat, "Busy, try again in a moment.", nil)
	}
}

// parse extracts the command word and args from "/cmd@bot a b".
func (m *Router) parse(text string) (word string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return "", nil, false
	}
	word = strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		target := word[i+1:]
		word = word[:i]
		m.mu.RLock()
		bot := strings.ToLower(m.opt.BotUsername)
		m.mu.RUnlock()
		if bot != "" && target != bot {
			return "", nil, false
		}
	}
	if word == "" {
		return "", nil, false
	}
	return word, parts[1:], true
}
