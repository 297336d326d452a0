// Package broadcast fans the latest feed item of each topic out to its
// subscribers. One recipient's failure never aborts the batch.
package broadcast

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"trendbot/internal/logging"
	"trendbot/internal/store"
)

// Notifier is the chat-delivery contract. Send delivers Markdown text to
// the recipient's chat id.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type Config struct {
	RatePerSec  int           // token bucket rate for sends (default 10)
	SendTimeout time.Duration // per-send bound (default 10s)
}

// Summary is the aggregate result of one broadcast run. No per-recipient
// error propagates past the engine; failures are counted here instead.
type Summary struct {
	Sent    int
	Failed  int
	Skipped int
}

type Engine struct {
	store    store.Store
	notifier Notifier
	limiter  *rate.Limiter
	timeout  time.Duration
	log      logging.Logger
}

func NewEngine(cfg Config, st store.Store, n Notifier, log logging.Logger) *Engine {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Engine{
		store:    st,
		notifier: n,
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
		timeout:  timeout,
		log:      log,
	}
}

// SetRate re-applies the send rate (live config reload).
func (e *Engine) SetRate(ratePerSec int) {
	if ratePerSec <= 0 {
		ratePerSec = 10
	}
	e.limiter.SetLimit(rate.Limit(ratePerSec))
	e.limiter.SetBurst(ratePerSec)
}

// Run executes one fan-out pass: load every subscription joined with its
// user and topic, resolve the latest feed item per topic, render and
// dispatch. Subscriptions whose topic has no feed item yet are skipped.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	var sum Summary

	subs, err := e.store.ListSubscriptions(ctx)
	if err != nil {
		return sum, fmt.Errorf("broadcast: list subscriptions: %w", err)
	}

	// Latest-item lookups are memoized per topic so N subscribers to one
	// topic cost one query.
	type latest struct {
		item store.FeedItem
		ok   bool
	}
	byTopic := map[int64]latest{}

	for _, sub := range subs {
		l, seen := byTopic[sub.TopicID]
		if !seen {
			item, ok, err := e.store.LatestFeedItem(ctx, sub.TopicID)
			if err != nil {
				e.log.Error("latest feed item lookup failed",
					logging.String("topic", sub.TopicName), logging.Err(err))
				sum.Failed++
				continue
			}
			l = latest{item: item, ok: ok}
			byTopic[sub.TopicID] = l
		}
		if !l.ok {
			sum.Skipped++
			continue
		}

		if err := e.send(ctx, sub.ChatID, Render(sub.TopicName, l.item)); err != nil {
			sum.Failed++
			e.log.Warn("send failed",
				logging.Int64("chat_id", sub.ChatID),
				logging.String("topic", sub.TopicName),
				logging.Err(err))
			continue
		}
		sum.Sent++
	}

	e.log.Info("broadcast finished",
		logging.Int("sent", sum.Sent),
		logging.Int("failed", sum.Failed),
		logging.Int("skipped", sum.Skipped),
		logging.Duration("took", time.Since(start)))
	return sum, nil
}

func (e *Engine) send(ctx context.Context, chatID int64, text string) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.notifier.Send(sctx, chatID, text)
}

// Render builds the per-user message from the topic name and its latest
// feed item.
func Render(topicName string, item store.FeedItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📰 *%s Update*\n\n%s", topicName, item.Title)
	if strings.TrimSpace(item.Content) != "" {
		b.WriteString("\n\n")
		b.WriteString(item.Content)
	}
	b.WriteString("\n\n")
	b.WriteString(item.URL)
	return b.String()
}
