// Package feed turns fresh provider output into persisted feed items.
package feed

import (
	"context"
	"fmt"

	"trendbot/internal/logging"
	"trendbot/internal/provider"
	"trendbot/internal/store"
)

// Service ingests one topic per call: resolve or create the topic, fetch
// the provider's trending entries, and append at most one feed item.
type Service struct {
	store     store.Store
	providers *provider.Service
	log       logging.Logger
}

func NewService(st store.Store, providers *provider.Service, log logging.Logger) *Service {
	return &Service{store: st, providers: providers, log: log}
}

// Ingest runs one ingestion pass for the named topic. A fetch failure or
// an empty result is a logged no-op, never an error to the scheduler:
// the next scheduled run is the retry. Prior feed items are never touched.
func (s *Service) Ingest(ctx context.Context, topicName string) error {
	p, ok := s.providers.Lookup(topicName)
	if !ok {
		return fmt.Errorf("ingest: no provider for topic %q", topicName)
	}

	topic, err := s.store.GetOrCreateTopic(ctx, p.Name())
	if err != nil {
		return fmt.Errorf("ingest %s: resolve topic: %w", topicName, err)
	}

	entries, err := s.providers.Trending(ctx, p.Name())
	if err != nil {
		s.log.Warn("ingest skipped: fetch failed", logging.String("topic", topic.Name), logging.Err(err))
		return nil
	}
	if len(entries) == 0 {
		s.log.Info("ingest skipped: no data", logging.String("topic", topic.Name))
		return nil
	}

	meta := p.Feed()
	item, err := s.store.AppendFeedItem(ctx, store.FeedItem{
		TopicID: topic.ID,
		Title:   meta.Title,
		Content: provider.Join(entries),
		URL:     meta.URL,
		Source:  meta.Source,
	})
	if err != nil {
		return fmt.Errorf("ingest %s: append feed item: %w", topicName, err)
	}

	s.log.Info("feed item ingested",
		logging.String("topic", topic.Name),
		logging.Int64("item_id", item.ID),
		logging.Int("entries", len(entries)))
	return nil
}
