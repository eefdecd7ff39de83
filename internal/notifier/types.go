package notifier

import (
	"errors"
	"time"

	kit "kickbot/internal/transport"
)

var ErrNoAdapter = errors.New("notifier: no transport adapter")

type Config struct {
	RatePerSec  int
	SendTimeout time.Duration
}

// Message is a rendered notification body.
type Message struct {
	Text    string
	Options *kit.SendOptions
	// Key identifies the event in logs and bus events (e.g. the channel key).
	Key string
}

// Report summarizes one Dispatch call.
type Report struct {
	Sent        int
	Failed      int
	Unreachable []int64
}

// NotificationEvent is emitted on the event bus for notifier lifecycle events.
// Keep it small; Data may be logged/serialized by subscribers.
type NotificationEvent struct {
	ChatID int64     `json:"chat_id"`
	Key    string    `json:"key"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
}
