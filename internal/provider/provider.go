// Package provider wraps the external trending-data sources (crypto,
// news, stocks) behind one cache-aware fetch surface.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trendbot/internal/cache"
	"trendbot/internal/logging"
)

// Delimiter joins rendered entries into the cached payload. Split is the
// exact inverse of Join for entries that do not contain the delimiter.
const Delimiter = "\n\n"

func Join(entries []string) string { return strings.Join(entries, Delimiter) }

func Split(payload string) []string {
	if payload == "" {
		return nil
	}
	return strings.Split(payload, Delimiter)
}

// FeedMeta is the provenance a provider stamps onto ingested feed items.
type FeedMeta struct {
	Title  string
	URL    string
	Source string
}

// Provider is one external data source. Fetch returns display-ready
// entries; an empty slice is a valid "no data" outcome, not an error.
type Provider interface {
	Name() string
	CacheKey() string
	TTL() time.Duration
	Feed() FeedMeta
	Fetch(ctx context.Context) ([]string, error)
}

// Service fronts the providers with the TTL cache. A cache hit answers
// without any network call; a fetch failure is never written to the cache
// so the next call retries the network.
type Service struct {
	cache        cache.Store
	providers    map[string]Provider
	names        []string
	fetchTimeout time.Duration
	log          logging.Logger
}

func NewService(cs cache.Store, fetchTimeout time.Duration, log logging.Logger, providers ...Provider) *Service {
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}
	s := &Service{
		cache:        cs,
		providers:    make(map[string]Provider, len(providers)),
		fetchTimeout: fetchTimeout,
		log:          log,
	}
	for _, p := range providers {
		s.providers[p.Name()] = p
		s.names = append(s.names, p.Name())
	}
	return s
}

// Names returns the registered provider names in registration order.
func (s *Service) Names() []string { return append([]string(nil), s.names...) }

// Lookup resolves a provider by name.
func (s *Service) Lookup(name string) (Provider, bool) {
	p, ok := s.providers[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Trending returns the rendered trending entries for the named provider,
// consulting the cache first. The error is non-nil for an unknown provider
// or an upstream fetch failure; an empty result with a nil error means the
// source genuinely had no data.
func (s *Service) Trending(ctx context.Context, name string) ([]string, error) {
	p, ok := s.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}

	if payload, hit := s.cache.Get(ctx, p.CacheKey()); hit {
		s.log.Debug("using cached data", logging.String("key", p.CacheKey()))
		return Split(payload), nil
	}

	fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	entries, err := p.Fetch(fctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s trending: %w", p.Name(), err)
	}
	if len(entries) > 0 {
		s.cache.Set(ctx, p.CacheKey(), Join(entries), p.TTL())
	}
	s.log.Info("new data fetched", logging.String("key", p.CacheKey()), logging.Int("entries", len(entries)))
	return entries, nil
}

// Entries is the chat-surface variant of Trending: an upstream failure
// comes back in-band as a single human-readable error entry, so the caller
// always has something to show the user.
func (s *Service) Entries(ctx context.Context, name string) []string {
	entries, err := s.Trending(ctx, name)
	if err != nil {
		s.log.Warn("trending fetch failed", logging.String("provider", name), logging.Err(err))
		return []string{fmt.Sprintf("Error fetching %s trending: %v", name, err)}
	}
	return entries
}
