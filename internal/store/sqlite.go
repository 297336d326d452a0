package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"trendbot/internal/logging"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logging.Logger
}

// Open initializes the SQLite store, applying pragmas and migrations.
func Open(cfg Config, log logging.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
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

func (s *sqliteStore) UpsertUser(ctx context.Context, chatID int64, username string) (User, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(chat_id, username) VALUES(?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET username=excluded.username`,
		chatID, username,
	)
	if err != nil {
		return User{}, err
	}
	var u User
	err = s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, username FROM users WHERE chat_id = ?`, chatID,
	).Scan(&u.ID, &u.ChatID, &u.Username)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *sqliteStore) GetOrCreateTopic(ctx context.Context, name string) (Topic, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Topic{}, errors.New("topic name is empty")
	}
	now := formatTime(time.Now())
	// The NOCASE unique index makes this race-free under concurrent
	// identical requests.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO topics(name, created_at, updated_at) VALUES(?,?,?)
		 ON CONFLICT(name) DO NOTHING`,
		name, now, now,
	)
	if err != nil {
		return Topic{}, err
	}
	return s.GetTopic(ctx, name)
}

func (s *sqliteStore) GetTopic(ctx context.Context, name string) (Topic, error) {
	var (
		t                    Topic
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM topics WHERE name = ?`,
		strings.TrimSpace(name),
	).Scan(&t.ID, &t.Name, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Topic{}, ErrNotFound
	}
	if err != nil {
		return Topic{}, err
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}

func (s *sqliteStore) ListTopics(ctx context.Context) ([]Topic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM topics ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTopics(rows)
}

func (s *sqliteStore) Subscribe(ctx context.Context, userID, topicID int64) (bool, error) {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions(user_id, topic_id, created_at) VALUES(?,?,?)
		 ON CONFLICT(user_id, topic_id) DO NOTHING`,
		userID, topicID, now,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) Unsubscribe(ctx context.Context, userID, topicID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE user_id = ? AND topic_id = ?`,
		userID, topicID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) ListUserTopics(ctx context.Context, userID int64) ([]Topic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.created_at, t.updated_at
		 FROM subscriptions s JOIN topics t ON t.id = s.topic_id
		 WHERE s.user_id = ? ORDER BY t.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTopics(rows)
}

func (s *sqliteStore) ListSubscriptions(ctx context.Context) ([]SubscriptionView, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, u.id, u.chat_id, u.username, t.id, t.name
		 FROM subscriptions s
		 JOIN users u ON u.id = s.user_id
		 JOIN topics t ON t.id = s.topic_id
		 ORDER BY s.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SubscriptionView
	for rows.Next() {
		var v SubscriptionView
		if err := rows.Scan(&v.SubscriptionID, &v.UserID, &v.ChatID, &v.Username, &v.TopicID, &v.TopicName); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendFeedItem(ctx context.Context, item FeedItem) (FeedItem, error) {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feed_items(topic_id, title, content, url, source, created_at)
		 VALUES(?,?,?,?,?,?)`,
		item.TopicID, item.Title, nullStr(item.Content), item.URL, item.Source,
		formatTime(item.CreatedAt),
	)
	if err != nil {
		return FeedItem{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return FeedItem{}, err
	}
	item.ID = id
	return item, nil
}

func (s *sqliteStore) LatestFeedItem(ctx context.Context, topicID int64) (FeedItem, bool, error) {
	var (
		item      FeedItem
		content   sql.NullString
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, topic_id, title, content, url, source, created_at
		 FROM feed_items WHERE topic_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`, topicID,
	).Scan(&item.ID, &item.TopicID, &item.Title, &content, &item.URL, &item.Source, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return FeedItem{}, false, nil
	}
	if err != nil {
		return FeedItem{}, false, err
	}
	item.Content = content.String
	item.CreatedAt = parseTime(createdAt)
	return item, true, nil
}

func scanTopics(rows *sql.Rows) ([]Topic, error) {
	var out []Topic
	for rows.Next() {
		var (
			t                    Topic
			createdAt, updatedAt string
		)
		if err := rows.Scan(&t.ID, &t.Name, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		t.CreatedAt = parseTime(createdAt)
		t.UpdatedAt = parseTime(updatedAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

// timeLayout is RFC 3339 in UTC with a fixed nine-digit fraction, so
// lexicographic order on the TEXT column matches chronological order.
// A variable-width fraction would not: "10:00:00Z" sorts after
// "10:00:00.5Z" because 'Z' compares greater than '.'.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
