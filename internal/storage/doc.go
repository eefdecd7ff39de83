// Package storage persists subscribers, tracked channels and the links between
// them, together with the last observed liveness status of every channel.
//
// The only backend is SQLite (modernc.org/sqlite, pure Go). The schema lives in
// migrations.sql and is applied idempotently on open.
package storage
