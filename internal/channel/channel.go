// Package channel holds the small value types shared by the provider, the
// store and the watcher: the canonical channel key and its liveness status.
package channel

import (
	"errors"
	"net/url"
	"strings"
)

var ErrInvalidKey = errors.New("channel: invalid key")

// Status is the last observed liveness of a tracked channel.
type Status int

const (
	Offline Status = 0
	Live    Status = 1
)

func (s Status) String() string {
	if s == Live {
		return "live"
	}
	return "offline"
}

// FromBool maps a provider live flag onto a Status.
func FromBool(live bool) Status {
	if live {
		return Live
	}
	return Offline
}

// Key returns the canonical (lowercase) slug for user input.
//
// Accepted forms: "AdinRoss", "@adinross", "kick.com/adinross",
// "https://www.kick.com/adinross/".
func Key(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "@")
	if s == "" {
		return "", ErrInvalidKey
	}

	lower := strings.ToLower(s)
	hasScheme := strings.Contains(lower, "://")
	candidate := lower
	if !hasScheme {
		candidate = "https://" + lower
	}
	if u, err := url.Parse(candidate); err == nil && isKickHost(u.Hostname()) {
		lower = strings.Trim(u.Path, "/")
		if i := strings.IndexByte(lower, '/'); i >= 0 {
			lower = lower[:i]
		}
	} else if hasScheme {
		return "", ErrInvalidKey
	}

	if lower == "" || len(lower) > 64 {
		return "", ErrInvalidKey
	}
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
		default:
			return "", ErrInvalidKey
		}
	}
	return lower, nil
}

func isKickHost(host string) bool {
	return host == "kick.com" || host == "www.kick.com"
}

// MustKey normalizes an already-trusted key (e.g. one read back from the store).
// Invalid input is returned lowercased and trimmed.
func MustKey(raw string) string {
	k, err := Key(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return k
}

// URL builds the public channel URL.
func URL(base, key string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "https://kick.com/"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + MustKey(key)
}
