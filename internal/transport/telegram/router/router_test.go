package router

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"kickbot/internal/eventbus"
	kit "kickbot/internal/transport"
	logx "kickbot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
	menu []kit.BotCommand
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }
func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}
func (f *fakeAdapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menu = cmds
	return nil
}
func (f *fakeAdapter) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestTokenizeCommandLine(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"/add foo", []string{"/add", "foo"}},
		{`/add "adin ross"  x`, []string{"/add", "adin ross", "x"}},
		{`/x 'a b' c\ d`, []string{"/x", "a b", "c d"}},
	}
	for _, tc := range cases {
		if got := tokenizeCommandLine(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("tokenize(%q)=%#v want %#v", tc.in, got, tc.want)
		}
	}
}

func TestParse(t *testing.T) {
	t.Parallel()
	r := New(logx.Nop(), &fakeAdapter{}, nil, Options{BotUsername: "kick_bot"})
	cases := []struct {
		in   string
		word string
		args []string
		ok   bool
	}{
		{"hello", "", nil, false},
		{"/ADD xqc", "add", []string{"xqc"}, true},
		{"/add@kick_bot xqc", "add", []string{"xqc"}, true},
		{"/add@Kick_Bot", "add", []string{}, true},
		{"/add@other_bot xqc", "", nil, false},
		{"/", "", nil, false},
	}
	for _, tc := range cases {
		word, args, ok := r.parse(tc.in)
		if ok != tc.ok || word != tc.word {
			t.Fatalf("parse(%q)=(%q,%v) want (%q,%v)", tc.in, word, ok, tc.word, tc.ok)
		}
		if ok && len(args) != len(tc.args) {
			t.Fatalf("parse(%q) args=%v want %v", tc.in, args, tc.args)
		}
	}
}

func TestSetRegistryAndSyncMenu(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	r := New(logx.Nop(), ad, nil, Options{})
	noop := func(context.Context, *Request) error { return nil }
	r.SetRegistry([]Command{
		{Name: "List", Aliases: []string{"ls"}, Description: "list", Handle: noop},
		{Name: "debug", Hidden: true, Handle: noop},
		{Name: "broken"},
	})
	if got := len(r.Commands()); got != 2 {
		t.Fatalf("commands=%d want 2", got)
	}
	if c, ok := r.lookup("ls"); !ok || c.Name != "list" {
		t.Fatalf("alias lookup failed: %+v %v", c, ok)
	}
	if err := r.SyncMenu(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(ad.menu) != 1 || ad.menu[0].Command != "list" {
		t.Fatalf("menu=%+v", ad.menu)
	}
}

func TestDispatchLoopRoutesCommands(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	r := New(logx.Nop(), ad, bus, Options{Workers: 2})
	handled := make(chan *Request, 4)
	r.SetRegistry([]Command{
		{Name: "add", Handle: func(ctx context.Context, req *Request) error {
			handled <- req
			return req.Reply(ctx, "ok")
		}},
		{Name: "boom", Handle: func(ctx context.Context, req *Request) error {
			panic("kaboom")
		}},
		{Name: "fail", Handle: func(ctx context.Context, req *Request) error {
			return errors.New("nope")
		}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 8)
	done := make(chan error, 1)
	go func() { done <- r.DispatchLoop(ctx, updates) }()

	msg := func(text string, group bool) kit.Update {
		return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 42, FromID: 7, Text: text, IsGroup: group}}
	}
	updates <- msg("/add xqc", false)

	select {
	case req := <-handled:
		if req.Command != "add" || len(req.Args) != 1 || req.Args[0] != "xqc" || req.Chat.ChatID != 42 || req.ReqID == "" {
			t.Fatalf("unexpected request: %+v", req)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}

	updates <- msg("/boom", false)
	updates <- msg("/fail", false)
	updates <- msg("/nope", true)  // silent in groups
	updates <- msg("/nope", false) // unknown reply in private chats
	updates <- msg("plain text", false)

	seen := map[string]int{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 3 {
		select {
		case ev := <-events:
			if ev.Type == eventbus.TypeCommand {
				ce := ev.Data.(CommandEvent)
				seen[ce.Command]++
				if ce.Command != "add" && ce.Error == "" {
					t.Fatalf("expected error for %s", ce.Command)
				}
			}
		case <-deadline:
			t.Fatalf("missing command events: %v", seen)
		}
	}

	countUnknown := func() int {
		n := 0
		for _, s := range ad.texts() {
			if s == "Unknown command. Try /help" {
				n++
			}
		}
		return n
	}
	for end := time.Now().Add(2 * time.Second); countUnknown() == 0 && time.Now().Before(end); {
		time.Sleep(10 * time.Millisecond)
	}
	// The trailing plain-text update is ignored; give the loop a moment to drain it.
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("DispatchLoop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("DispatchLoop did not stop")
	}

	if n := countUnknown(); n != 1 {
		t.Fatalf("unknown replies=%d want 1 (%v)", n, ad.texts())
	}
}
