package storage

import (
	"context"
	"path/filepath"
	"testing"

	"kickbot/internal/channel"
	logx "kickbot/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "data", "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestAddIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	if ok, err := st.AddSubscriber(ctx, 1); err != nil || !ok {
		t.Fatalf("AddSubscriber first = %v, %v", ok, err)
	}
	if ok, err := st.AddSubscriber(ctx, 1); err != nil || ok {
		t.Fatalf("AddSubscriber second = %v, %v, want false", ok, err)
	}
	if ok, err := st.AddChannel(ctx, "foo", "Foo"); err != nil || !ok {
		t.Fatalf("AddChannel first = %v, %v", ok, err)
	}
	if ok, err := st.AddChannel(ctx, "FOO", "Foo"); err != nil || ok {
		t.Fatalf("AddChannel second = %v, %v, want false", ok, err)
	}
	if ok, err := st.AddSubscription(ctx, 1, "foo"); err != nil || !ok {
		t.Fatalf("AddSubscription first = %v, %v", ok, err)
	}
	if ok, err := st.AddSubscription(ctx, 1, "Foo"); err != nil || ok {
		t.Fatalf("AddSubscription second = %v, %v, want false", ok, err)
	}

	subs, err := st.ListSubscribers(ctx, "foo")
	if err != nil {
		t.Fatalf("ListSubscribers: %v", err)
	}
	if len(subs) != 1 || subs[0] != 1 {
		t.Fatalf("subscribers = %v, want [1]", subs)
	}
}

func TestSubscribeNormalizesCase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	created, err := st.Subscribe(ctx, 7, "AdinRoss", "AdinRoss")
	if err != nil || !created {
		t.Fatalf("Subscribe first = %v, %v", created, err)
	}
	created, err = st.Subscribe(ctx, 7, "adinross", "adinross")
	if err != nil {
		t.Fatalf("Subscribe second: %v", err)
	}
	if created {
		t.Fatal("second Subscribe should report existing link")
	}

	chs, err := st.ListChannels(ctx)
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}
	if len(chs) != 1 {
		t.Fatalf("channels = %d, want 1", len(chs))
	}
	if chs[0].Key != "adinross" || chs[0].DisplayName != "AdinRoss" || chs[0].LastStatus != channel.Offline {
		t.Fatalf("channel = %+v", chs[0])
	}
}

func TestSubscriptionRequiresChannel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	if _, err := st.AddSubscriber(ctx, 1); err != nil {
		t.Fatalf("AddSubscriber: %v", err)
	}
	if _, err := st.AddSubscription(ctx, 1, "ghost"); err == nil {
		t.Fatal("expected foreign key error for missing channel")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	if _, err := st.Subscribe(ctx, 1, "foo", "Foo"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := st.RemoveSubscription(ctx, 1, "FOO"); err != nil {
			t.Fatalf("RemoveSubscription #%d: %v", i, err)
		}
	}
	if err := st.RemoveSubscription(ctx, 99, "never"); err != nil {
		t.Fatalf("RemoveSubscription missing: %v", err)
	}

	subs, err := st.ListSubscriptions(ctx, 1)
	if err != nil {
		t.Fatalf("ListSubscriptions: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("subscriptions = %v, want none", subs)
	}
	// Orphaned channels stay tracked.
	chs, _ := st.ListChannels(ctx)
	if len(chs) != 1 {
		t.Fatalf("channels = %d, want 1", len(chs))
	}
}

func TestStatusAndJoins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	for _, id := range []int64{3, 1, 2} {
		if _, err := st.Subscribe(ctx, id, "foo", "Foo"); err != nil {
			t.Fatalf("Subscribe %d: %v", id, err)
		}
	}
	if _, err := st.Subscribe(ctx, 1, "bar", "Bar"); err != nil {
		t.Fatalf("Subscribe bar: %v", err)
	}

	if err := st.SetChannelStatus(ctx, "Foo", channel.Live); err != nil {
		t.Fatalf("SetChannelStatus: %v", err)
	}
	if err := st.SetChannelStatus(ctx, "missing", channel.Live); err == nil {
		t.Fatal("SetChannelStatus on unknown key should fail")
	}

	subs, err := st.ListSubscribers(ctx, "foo")
	if err != nil {
		t.Fatalf("ListSubscribers: %v", err)
	}
	if len(subs) != 3 || subs[0] != 1 || subs[2] != 3 {
		t.Fatalf("subscribers = %v, want [1 2 3]", subs)
	}

	mine, err := st.ListSubscriptions(ctx, 1)
	if err != nil {
		t.Fatalf("ListSubscriptions: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("subscriptions = %v, want 2", mine)
	}
	if mine[0].Key != "bar" || mine[0].LastStatus != channel.Offline {
		t.Fatalf("first = %+v", mine[0])
	}
	if mine[1].Key != "foo" || mine[1].LastStatus != channel.Live || mine[1].Name() != "Foo" {
		t.Fatalf("second = %+v", mine[1])
	}
}

func TestReopenKeepsState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "k.db")

	st, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := st.Subscribe(ctx, 1, "foo", ""); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := st.SetChannelStatus(ctx, "foo", channel.Live); err != nil {
		t.Fatalf("SetChannelStatus: %v", err)
	}
	_ = st.Close()

	st, err = Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	chs, err := st.ListChannels(ctx)
	if err != nil || len(chs) != 1 {
		t.Fatalf("ListChannels = %v, %v", chs, err)
	}
	if chs[0].LastStatus != channel.Live || chs[0].Name() != "foo" {
		t.Fatalf("channel = %+v", chs[0])
	}
}
