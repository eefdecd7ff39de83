package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"kickbot/internal/channel"
	logx "kickbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const defaultBusyTimeout = 5 * time.Second

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer; one connection also keeps PRAGMAs in effect.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	bt := cfg.BusyTimeout
	if bt <= 0 {
		bt = defaultBusyTimeout
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", bt.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ready() error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	return nil
}

func (s *sqliteStore) AddSubscriber(ctx context.Context, subscriberID int64) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	return addSubscriber(ctx, s.db, subscriberID)
}

func (s *sqliteStore) AddChannel(ctx context.Context, key, displayName string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	return addChannel(ctx, s.db, channel.MustKey(key), displayName)
}

func (s *sqliteStore) AddSubscription(ctx context.Context, subscriberID int64, key string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	return addSubscription(ctx, s.db, subscriberID, channel.MustKey(key))
}

func (s *sqliteStore) Subscribe(ctx context.Context, subscriberID int64, key, displayName string) (created bool, err error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	key = channel.MustKey(key)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = addSubscriber(ctx, tx, subscriberID); err != nil {
		return false, err
	}
	if _, err = addChannel(ctx, tx, key, displayName); err != nil {
		return false, err
	}
	if created, err = addSubscription(ctx, tx, subscriberID, key); err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return created, nil
}

func (s *sqliteStore) RemoveSubscription(ctx context.Context, subscriberID int64, key string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE chat_id = ? AND channel_key = ?`,
		subscriberID, channel.MustKey(key),
	)
	return err
}

func (s *sqliteStore) ListChannels(ctx context.Context) ([]Channel, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_key, display_name, last_status FROM channels ORDER BY channel_key`)
	if err != nil {
		return nil, err
	}
	return scanChannels(rows)
}

func (s *sqliteStore) SetChannelStatus(ctx context.Context, key string, status channel.Status) error {
	if err := s.ready(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE channels SET last_status = ? WHERE channel_key = ?`,
		int(status), channel.MustKey(key),
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set status %q: %w", key, sql.ErrNoRows)
	}
	return nil
}

func (s *sqliteStore) ListSubscribers(ctx context.Context, key string) ([]int64, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.chat_id
		   FROM subscriptions s
		   JOIN subscribers u ON u.chat_id = s.chat_id
		  WHERE s.channel_key = ?
		  ORDER BY s.chat_id`,
		channel.MustKey(key),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListSubscriptions(ctx context.Context, subscriberID int64) ([]Channel, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.channel_key, c.display_name, c.last_status
		   FROM subscriptions s
		   JOIN channels c ON c.channel_key = s.channel_key
		  WHERE s.chat_id = ?
		  ORDER BY c.channel_key`,
		subscriberID,
	)
	if err != nil {
		return nil, err
	}
	return scanChannels(rows)
}

func addSubscriber(ctx context.Context, ex execer, id int64) (bool, error) {
	res, err := ex.ExecContext(ctx, `INSERT OR IGNORE INTO subscribers(chat_id) VALUES(?)`, id)
	return inserted(res, err)
}

func addChannel(ctx context.Context, ex execer, key, displayName string) (bool, error) {
	if key == "" {
		return false, channel.ErrInvalidKey
	}
	res, err := ex.ExecContext(ctx,
		`INSERT OR IGNORE INTO channels(channel_key, display_name, last_status) VALUES(?,?,0)`,
		key, strings.TrimSpace(displayName),
	)
	return inserted(res, err)
}

func addSubscription(ctx context.Context, ex execer, id int64, key string) (bool, error) {
	if key == "" {
		return false, channel.ErrInvalidKey
	}
	res, err := ex.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriptions(chat_id, channel_key) VALUES(?,?)`, id, key)
	return inserted(res, err)
}

func inserted(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanChannels(rows *sql.Rows) ([]Channel, error) {
	defer rows.Close()
	var out []Channel
	for rows.Next() {
		var c Channel
		var st int
		if err := rows.Scan(&c.Key, &c.DisplayName, &st); err != nil {
			return nil, err
		}
		c.LastStatus = channel.Status(st)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
