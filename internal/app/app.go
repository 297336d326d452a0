// Package app wires configuration, storage, cache, providers, the
// broadcast engine, the Telegram adapter and the scheduler together and
// owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"trendbot/internal/broadcast"
	"trendbot/internal/cache"
	"trendbot/internal/config"
	"trendbot/internal/feed"
	"trendbot/internal/logging"
	"trendbot/internal/provider"
	"trendbot/internal/scheduler"
	"trendbot/internal/store"
	"trendbot/internal/transport/telegram"
)

type App struct {
	cfgm *config.Manager
	log  logging.Logger

	logClose func() error

	store      store.Store
	cacheClose func() error

	providers *provider.Service
	ingester  *feed.Service
	engine    *broadcast.Engine
	adapter   *telegram.Adapter
	sched     *scheduler.Service

	ingestTopics []string

	watchCancel context.CancelFunc
	watchWG     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	bootLog := logging.NewConsole("info")

	cfgm := config.NewManager(cfgPath, bootLog.With(logging.String("comp", "config")))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, logClose, err := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logging.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	a := &App{cfgm: cfgm, log: log.With(logging.String("comp", "app")), logClose: logClose}
	if err := a.build(cfg, log); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, log logging.Logger) error {
	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return err
	}
	st, err := store.Open(store.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logging.String("comp", "store")))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.store = st

	cs, err := a.buildCache(cfg, log)
	if err != nil {
		return err
	}

	fetchTimeout, err := config.ParseDurationOrDefault("providers.fetch_timeout", cfg.Providers.FetchTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	cryptoTTL, err := config.ParseDurationOrDefault("providers.crypto.ttl", cfg.Providers.Crypto.TTL, time.Hour)
	if err != nil {
		return err
	}
	newsTTL, err := config.ParseDurationOrDefault("providers.news.ttl", cfg.Providers.News.TTL, 30*time.Minute)
	if err != nil {
		return err
	}
	stocksTTL, err := config.ParseDurationOrDefault("providers.stocks.ttl", cfg.Providers.Stocks.TTL, time.Hour)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: fetchTimeout}
	a.providers = provider.NewService(cs, fetchTimeout, log.With(logging.String("comp", "provider")),
		provider.NewCrypto(provider.CryptoConfig{TTL: cryptoTTL}, httpClient),
		provider.NewNews(provider.NewsConfig{
			APIKey:   cfg.Providers.News.APIKey,
			Country:  cfg.Providers.News.Country,
			Category: cfg.Providers.News.Category,
			PageSize: cfg.Providers.News.PageSize,
			TTL:      newsTTL,
		}, httpClient),
		provider.NewStocks(provider.StocksConfig{
			Symbols: cfg.Providers.Stocks.Symbols,
			TTL:     stocksTTL,
		}, httpClient),
	)

	a.ingester = feed.NewService(st, a.providers, log.With(logging.String("comp", "feed")))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, st, a.providers, log.With(logging.String("comp", "telegram")))
	if err != nil {
		return fmt.Errorf("init telegram: %w", err)
	}
	a.adapter = adapter

	sendTimeout, err := config.ParseDurationOrDefault("broadcast.send_timeout", cfg.Broadcast.SendTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	a.engine = broadcast.NewEngine(broadcast.Config{
		RatePerSec:  cfg.Broadcast.RatePerSec,
		SendTimeout: sendTimeout,
	}, st, adapter, log.With(logging.String("comp", "broadcast")))

	a.sched = scheduler.New(log.With(logging.String("comp", "scheduler")))
	a.ingestTopics = cfg.Schedules.Ingest.Topics

	if spec := strings.TrimSpace(cfg.Schedules.Ingest.Spec); spec != "" {
		for _, topic := range a.ingestTopics {
			topic := topic
			err := a.sched.Add("ingest:"+topic, spec, 2*time.Minute, func(ctx context.Context) error {
				return a.ingester.Ingest(ctx, topic)
			})
			if err != nil {
				return err
			}
		}
	}
	if spec := strings.TrimSpace(cfg.Schedules.Broadcast.Spec); spec != "" {
		err := a.sched.Add("broadcast", spec, 10*time.Minute, func(ctx context.Context) error {
			_, err := a.engine.Run(ctx)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *App) buildCache(cfg *config.Config, log logging.Logger) (cache.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Cache.Driver)) {
	case "", "memory":
		a.cacheClose = func() error { return nil }
		return cache.NewMemory(), nil
	case "redis":
		r, err := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		}, log.With(logging.String("comp", "cache")))
		if err != nil {
			return nil, err
		}
		a.cacheClose = r.Close
		return r, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}
}

// Start seeds the configured topics, starts polling and the scheduler,
// and begins watching the config file.
func (a *App) Start(ctx context.Context) error {
	// Seeding topics up front lets users subscribe before the first
	// ingestion run has created them.
	for _, name := range a.ingestTopics {
		if _, err := a.store.GetOrCreateTopic(ctx, name); err != nil {
			return fmt.Errorf("seed topic %q: %w", name, err)
		}
	}

	a.adapter.Start(ctx)
	if err := a.sched.Start(ctx); err != nil {
		return err
	}

	wctx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	a.watchWG.Add(1)
	go func() {
		defer a.watchWG.Done()
		_ = a.cfgm.Watch(wctx, a.applyConfig)
	}()

	a.log.Info("started")
	return nil
}

// applyConfig re-applies the live-tunable settings after a config reload.
// Structural settings (token, storage path, schedules, providers) need a
// restart, which is logged instead.
func (a *App) applyConfig(cfg *config.Config) {
	logging.SetLevel(cfg.Logging.Level)
	a.engine.SetRate(cfg.Broadcast.RatePerSec)
	a.log.Info("live settings re-applied; structural changes need a restart",
		logging.String("level", cfg.Logging.Level),
		logging.Int("broadcast_rps", cfg.Broadcast.RatePerSec))
}

func (a *App) Stop(ctx context.Context) error {
	if a.watchCancel != nil {
		a.watchCancel()
		a.watchWG.Wait()
	}
	if a.sched != nil {
		a.sched.Stop(ctx)
	}
	if a.adapter != nil {
		a.adapter.Stop()
	}
	a.log.Info("stopped")
	return a.Close()
}

// Close releases resources; safe to call after a partial New.
func (a *App) Close() error {
	var first error
	if a.cacheClose != nil {
		if err := a.cacheClose(); err != nil && first == nil {
			first = err
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && first == nil {
			first = err
		}
	}
	if a.logClose != nil {
		if err := a.logClose(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
