// Package watcher is the poll-diff-notify engine.
//
// One Tick lists tracked channels from the store, fetches their status in
// bulk, and walks each channel through a two-state machine (offline, live).
// An offline to live transition is persisted first and then announced to
// every subscriber of the channel; live to offline is persisted silently.
//
// Ticks must not overlap. The scheduler enforces that; Tick itself holds no
// locks.
package watcher
