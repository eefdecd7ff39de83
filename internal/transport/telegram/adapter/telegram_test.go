package adapter

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "kickbot/internal/transport"
)

func TestSplitTelegramTextShort(t *testing.T) {
	t.Parallel()
	got := splitTelegramText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextPrefersNewline(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitTelegramText(s, 10, "")
	if len(got) != 2 || got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextAvoidsOpenTag(t *testing.T) {
	t.Parallel()
	s := "abcdef<b>bold</b>"
	got := splitTelegramText(s, 8, "HTML")
	if got[0] != "abcdef" {
		t.Fatalf("first chunk = %q, want %q", got[0], "abcdef")
	}
	if strings.Join(got, "") != s {
		t.Fatalf("chunks %q lose content", got)
	}
}

func TestMapSendError(t *testing.T) {
	t.Parallel()
	if err := mapSendError(nil); err != nil {
		t.Fatalf("nil err mapped to %v", err)
	}
	for _, e := range []error{tele.ErrBlockedByUser, fmt.Errorf("wrapped: %w", tele.ErrChatNotFound)} {
		if err := mapSendError(e); !errors.Is(err, kit.ErrRecipientUnreachable) {
			t.Fatalf("mapSendError(%v) = %v, want ErrRecipientUnreachable", e, err)
		}
	}
	other := errors.New("flood")
	if err := mapSendError(other); errors.Is(err, kit.ErrRecipientUnreachable) || err != other {
		t.Fatalf("mapSendError(other) = %v", err)
	}
}
