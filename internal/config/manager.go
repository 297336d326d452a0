package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"trendbot/internal/logging"
)

// Manager loads the config file and optionally watches it for changes.
// A change is re-parsed and validated before it is published; a broken
// edit keeps the previous config active.
type Manager struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	log logging.Logger

	// lastHash tracks the last committed content so editor write storms
	// without content changes do not republish.
	lastHash uint64
}

func NewManager(path string, log logging.Logger) *Manager {
	return &Manager{path: path, log: log}
}

// Load parses, validates and commits the config file.
func (m *Manager) Load() (*Config, error) {
	cfg, h, err := m.parse()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = h
	m.mu.Unlock()
	return cfg, nil
}

// Current returns the last committed config.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) parse() (*Config, uint64, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, 0, err
	}
	jb, err := coerceToJSONBytes(m.path, b)
	if err != nil {
		return nil, 0, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, 0, err
	}
	// Reject trailing tokens (e.g. concatenated JSON documents).
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, 0, fmt.Errorf("invalid config: trailing data")
		}
		return nil, 0, err
	}

	h := fnv.New64a()
	_, _ = h.Write(jb)
	return &cfg, h.Sum64(), nil
}

// Watch re-parses the config on file change and invokes onChange with the
// new config. It returns when ctx is cancelled. Watching the directory
// instead of the file survives rename-based atomic saves.
func (m *Manager) Watch(ctx context.Context, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(m.path)
	if err := w.Add(dir); err != nil {
		return err
	}
	base := filepath.Base(m.path)

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Debounce editor write bursts.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(250*time.Millisecond, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.log.Warn("config watcher error", logging.Err(err))
		case <-fire:
			m.reload(onChange)
		}
	}
}

func (m *Manager) reload(onChange func(*Config)) {
	cfg, h, err := m.parse()
	if err != nil {
		m.log.Warn("config reload rejected: parse failed", logging.Err(err))
		return
	}
	if err := Validate(cfg); err != nil {
		m.log.Warn("config reload rejected: validation failed", logging.Err(err))
		return
	}

	m.mu.Lock()
	if h == m.lastHash {
		m.mu.Unlock()
		return
	}
	m.cfg = cfg
	m.lastHash = h
	m.mu.Unlock()

	m.log.Info("config reloaded")
	if onChange != nil {
		onChange(cfg)
	}
}

// Validate checks invariants the rest of the app relies on.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Cache.Driver)) {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(cfg.Cache.Redis.Addr) == "" {
			return errors.New("cache.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("cache.driver: unknown driver %q", cfg.Cache.Driver)
	}
	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"providers.fetch_timeout", cfg.Providers.FetchTimeout},
		{"providers.crypto.ttl", cfg.Providers.Crypto.TTL},
		{"providers.news.ttl", cfg.Providers.News.TTL},
		{"providers.stocks.ttl", cfg.Providers.Stocks.TTL},
		{"broadcast.send_timeout", cfg.Broadcast.SendTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if cfg.Broadcast.RatePerSec < 0 {
		return errors.New("broadcast.rate_per_sec must be >= 0")
	}
	if cfg.Providers.News.PageSize < 0 {
		return errors.New("providers.news.page_size must be >= 0")
	}
	return nil
}

// ParseDurationField parses an optional duration field. Empty means
// unset and yields zero; negative values are rejected.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault substitutes def when the field is unset.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
