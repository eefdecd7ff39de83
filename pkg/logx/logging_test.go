package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFormatTelegramJSON(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","message":"send failed","chat_id":42,"time":"x"}` + "\n")
	got := formatTelegramJSON(line)
	if !strings.HasPrefix(got, "[WARN] send failed") {
		t.Fatalf("unexpected prefix: %q", got)
	}
	if !strings.Contains(got, "- chat_id=42") {
		t.Fatalf("missing field: %q", got)
	}
	if strings.Contains(got, "time=") {
		t.Fatalf("time should be dropped: %q", got)
	}
}

func TestFormatTelegramJSONNotJSON(t *testing.T) {
	t.Parallel()
	if got := formatTelegramJSON([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("got %q", got)
	}
}

func TestLoggerWithFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "test"))
	log.Info("hello", Int("n", 3))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if m["comp"] != "test" || m["message"] != "hello" || m["n"] != float64(3) {
		t.Fatalf("unexpected record: %v", m)
	}
}

func TestZeroLoggerIsNop(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Info("dropped") // must not panic
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	if parseLevel("warning", zerolog.InfoLevel) != zerolog.WarnLevel {
		t.Fatal("warning should map to warn")
	}
	if parseLevel("bogus", zerolog.InfoLevel) != zerolog.InfoLevel {
		t.Fatal("unknown level should fall back to default")
	}
}
