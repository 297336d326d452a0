package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"trendbot/internal/logging"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")}, logging.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestUpsertUserIdempotent(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	u1, err := st.UpsertUser(ctx, 1001, "alice")
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	u2, err := st.UpsertUser(ctx, 1001, "alice_renamed")
	if err != nil {
		t.Fatalf("second UpsertUser: %v", err)
	}
	if u1.ID != u2.ID {
		t.Fatalf("upsert created a second row: ids %d and %d", u1.ID, u2.ID)
	}
	if u2.Username != "alice_renamed" {
		t.Fatalf("username = %q, want refreshed value", u2.Username)
	}
}

func TestGetOrCreateTopicCaseInsensitive(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	t1, err := st.GetOrCreateTopic(ctx, "Crypto")
	if err != nil {
		t.Fatalf("GetOrCreateTopic: %v", err)
	}
	t2, err := st.GetOrCreateTopic(ctx, "crypto")
	if err != nil {
		t.Fatalf("second GetOrCreateTopic: %v", err)
	}
	if t1.ID != t2.ID {
		t.Fatalf("case-insensitive names created two topics: %d and %d", t1.ID, t2.ID)
	}

	got, err := st.GetTopic(ctx, "CRYPTO")
	if err != nil {
		t.Fatalf("GetTopic: %v", err)
	}
	if got.ID != t1.ID {
		t.Fatalf("GetTopic id = %d, want %d", got.ID, t1.ID)
	}
}

func TestGetTopicNotFound(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)

	_, err := st.GetTopic(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	user, err := st.UpsertUser(ctx, 42, "bob")
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	topic, err := st.GetOrCreateTopic(ctx, "crypto")
	if err != nil {
		t.Fatalf("GetOrCreateTopic: %v", err)
	}

	created, err := st.Subscribe(ctx, user.ID, topic.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if !created {
		t.Fatal("first Subscribe should report created=true")
	}

	// The duplicate is a no-op, not an error.
	created, err = st.Subscribe(ctx, user.ID, topic.ID)
	if err != nil {
		t.Fatalf("duplicate Subscribe must not error: %v", err)
	}
	if created {
		t.Fatal("duplicate Subscribe should report created=false")
	}

	subs, err := st.ListSubscriptions(ctx)
	if err != nil {
		t.Fatalf("ListSubscriptions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("subscription rows = %d, want exactly 1", len(subs))
	}
	if subs[0].ChatID != 42 || subs[0].TopicName != "crypto" {
		t.Fatalf("unexpected joined row: %+v", subs[0])
	}
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	user, _ := st.UpsertUser(ctx, 7, "carol")
	topic, _ := st.GetOrCreateTopic(ctx, "news")

	removed, err := st.Unsubscribe(ctx, user.ID, topic.ID)
	if err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if removed {
		t.Fatal("Unsubscribe without subscription should report removed=false")
	}

	if _, err := st.Subscribe(ctx, user.ID, topic.ID); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	removed, err = st.Unsubscribe(ctx, user.ID, topic.ID)
	if err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if !removed {
		t.Fatal("Unsubscribe should report removed=true")
	}
}

func TestListUserTopics(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	user, _ := st.UpsertUser(ctx, 9, "dave")
	crypto, _ := st.GetOrCreateTopic(ctx, "crypto")
	if _, err := st.GetOrCreateTopic(ctx, "news"); err != nil {
		t.Fatalf("GetOrCreateTopic: %v", err)
	}
	if _, err := st.Subscribe(ctx, user.ID, crypto.ID); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	mine, err := st.ListUserTopics(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListUserTopics: %v", err)
	}
	if len(mine) != 1 || mine[0].Name != "crypto" {
		t.Fatalf("ListUserTopics = %+v, want just crypto", mine)
	}
}

func TestLatestFeedItemOrdering(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	topic, _ := st.GetOrCreateTopic(ctx, "crypto")

	if _, ok, err := st.LatestFeedItem(ctx, topic.ID); err != nil || ok {
		t.Fatalf("LatestFeedItem on empty topic = ok=%v err=%v, want miss", ok, err)
	}

	base := time.Now().UTC().Add(-time.Hour)
	for i, title := range []string{"first", "second", "third"} {
		_, err := st.AppendFeedItem(ctx, FeedItem{
			TopicID:   topic.ID,
			Title:     title,
			URL:       "https://example.com",
			Source:    "test",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("AppendFeedItem: %v", err)
		}
	}

	item, ok, err := st.LatestFeedItem(ctx, topic.ID)
	if err != nil || !ok {
		t.Fatalf("LatestFeedItem = ok=%v err=%v", ok, err)
	}
	if item.Title != "third" {
		t.Fatalf("latest title = %q, want third", item.Title)
	}
}

func TestLatestFeedItemOrderingWithFractionalSeconds(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	topic, _ := st.GetOrCreateTopic(ctx, "stocks")

	// A whole-second timestamp followed by a fractional one in the same
	// second. The stored format must keep the fractional item latest.
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, it := range []FeedItem{
		{TopicID: topic.ID, Title: "whole", URL: "https://example.com", Source: "test", CreatedAt: base},
		{TopicID: topic.ID, Title: "fractional", URL: "https://example.com", Source: "test", CreatedAt: base.Add(500 * time.Millisecond)},
	} {
		if _, err := st.AppendFeedItem(ctx, it); err != nil {
			t.Fatalf("AppendFeedItem: %v", err)
		}
	}

	item, ok, err := st.LatestFeedItem(ctx, topic.ID)
	if err != nil || !ok {
		t.Fatalf("LatestFeedItem = ok=%v err=%v", ok, err)
	}
	if item.Title != "fractional" {
		t.Fatalf("latest title = %q, want fractional", item.Title)
	}
}

func TestFormatTimeSortsChronologically(t *testing.T) {
	t.Parallel()
	frac := time.Date(2026, 3, 1, 10, 0, 0, 500_000_000, time.UTC)
	whole := frac.Add(500 * time.Millisecond)

	if a, b := formatTime(frac), formatTime(whole); a >= b {
		t.Fatalf("%q must sort before %q", a, b)
	}
	if got := parseTime(formatTime(frac)); !got.Equal(frac) {
		t.Fatalf("round trip = %v, want %v", got, frac)
	}
}

func TestFeedItemContentRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	topic, _ := st.GetOrCreateTopic(ctx, "news")
	_, err := st.AppendFeedItem(ctx, FeedItem{
		TopicID: topic.ID,
		Title:   "News Headlines Update",
		Content: "entry one\n\nentry two",
		URL:     "https://newsapi.org",
		Source:  "newsapi",
	})
	if err != nil {
		t.Fatalf("AppendFeedItem: %v", err)
	}

	item, ok, err := st.LatestFeedItem(ctx, topic.ID)
	if err != nil || !ok {
		t.Fatalf("LatestFeedItem = ok=%v err=%v", ok, err)
	}
	if item.Content != "entry one\n\nentry two" {
		t.Fatalf("content = %q", item.Content)
	}
	if item.Source != "newsapi" {
		t.Fatalf("source = %q", item.Source)
	}
}
