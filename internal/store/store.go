// Package store is the data-access layer for users, topics, subscriptions
// and feed items, backed by SQLite.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals absence as a normal outcome, distinct from failure.
// Callers map it to a specific user-facing message.
var ErrNotFound = errors.New("not found")

type User struct {
	ID       int64
	ChatID   int64 // stable external chat identity used for delivery
	Username string
}

type Topic struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FeedItem is one persisted unit of fetched content attached to a Topic.
// Feed items are append-only; newest-first is the only traversal order.
type FeedItem struct {
	ID        int64
	TopicID   int64
	Title     string
	Content   string // optional long text
	URL       string
	Source    string
	CreatedAt time.Time
}

// SubscriptionView is a subscription joined with its user and topic, as
// produced by the single-pass broadcast query.
type SubscriptionView struct {
	SubscriptionID int64
	UserID         int64
	ChatID         int64
	Username       string
	TopicID        int64
	TopicName      string
}

// Store is the persistence API consumed by the pipeline and the command
// surface.
type Store interface {
	// UpsertUser atomically creates or refreshes a user keyed by chat id.
	UpsertUser(ctx context.Context, chatID int64, username string) (User, error)

	// GetOrCreateTopic resolves a topic by name (case-insensitive),
	// creating it when absent. Idempotent.
	GetOrCreateTopic(ctx context.Context, name string) (Topic, error)

	// GetTopic returns ErrNotFound when no topic matches the name.
	GetTopic(ctx context.Context, name string) (Topic, error)

	ListTopics(ctx context.Context) ([]Topic, error)

	// Subscribe creates the (user, topic) subscription. The duplicate case
	// is an idempotent no-op reported as created=false, never an error.
	// Uniqueness is enforced by the store, not by check-then-act.
	Subscribe(ctx context.Context, userID, topicID int64) (created bool, err error)

	// Unsubscribe removes the subscription; removed=false when none existed.
	Unsubscribe(ctx context.Context, userID, topicID int64) (removed bool, err error)

	ListUserTopics(ctx context.Context, userID int64) ([]Topic, error)

	// ListSubscriptions returns every subscription joined with its user and
	// topic in one query.
	ListSubscriptions(ctx context.Context) ([]SubscriptionView, error)

	// AppendFeedItem appends one feed item; prior items are never mutated.
	AppendFeedItem(ctx context.Context, item FeedItem) (FeedItem, error)

	// LatestFeedItem returns the newest feed item for the topic, ok=false
	// when the topic has none yet.
	LatestFeedItem(ctx context.Context, topicID int64) (item FeedItem, ok bool, err error)

	Close() error
}

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}
