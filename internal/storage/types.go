package storage

import (
	"context"
	"errors"
	"time"

	"kickbot/internal/channel"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Channel is one tracked channel row.
type Channel struct {
	Key         string
	DisplayName string
	LastStatus  channel.Status
}

// Name returns the display name, falling back to the key.
func (c Channel) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Key
}

// Store is the persistence API used by the watcher and the command handlers.
//
// Add* methods are insert-or-ignore and report whether a row was created.
// Every key argument is normalized before use.
type Store interface {
	AddSubscriber(ctx context.Context, subscriberID int64) (bool, error)
	AddChannel(ctx context.Context, key, displayName string) (bool, error)
	AddSubscription(ctx context.Context, subscriberID int64, key string) (bool, error)
	// Subscribe creates subscriber, channel and link in one transaction.
	Subscribe(ctx context.Context, subscriberID int64, key, displayName string) (bool, error)
	RemoveSubscription(ctx context.Context, subscriberID int64, key string) error

	ListChannels(ctx context.Context) ([]Channel, error)
	SetChannelStatus(ctx context.Context, key string, status channel.Status) error
	ListSubscribers(ctx context.Context, key string) ([]int64, error)
	ListSubscriptions(ctx context.Context, subscriberID int64) ([]Channel, error)

	Close() error
}
