package watcher

import "kickbot/internal/channel"

type Transition int

const (
	NoChange Transition = iota
	WentLive
	WentOffline
)

func (t Transition) String() string {
	switch t {
	case WentLive:
		return "went_live"
	case WentOffline:
		return "went_offline"
	default:
		return "no_change"
	}
}

// Decide maps the stored status and the provider's live flag onto a transition.
// Self-transitions are NoChange.
func Decide(prev channel.Status, live bool) Transition {
	switch {
	case prev != channel.Live && live:
		return WentLive
	case prev == channel.Live && !live:
		return WentOffline
	default:
		return NoChange
	}
}
