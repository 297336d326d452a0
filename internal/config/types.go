package config

// Config is the root of the bot configuration file (YAML or JSON).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1h").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Cache     CacheConfig     `json:"cache,omitempty"`
	Providers ProvidersConfig `json:"providers"`
	Schedules SchedulesConfig `json:"schedules"`
	Broadcast BroadcastConfig `json:"broadcast,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is the long-poll timeout (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// CacheConfig selects the cache driver.
//
// Driver values:
//   - "memory" (default): in-process TTL cache
//   - "redis": shared Redis instance; any Redis failure degrades to a miss
type CacheConfig struct {
	Driver string      `json:"driver,omitempty"`
	Redis  RedisConfig `json:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

type ProvidersConfig struct {
	// FetchTimeout bounds a single upstream call (default "10s").
	FetchTimeout string `json:"fetch_timeout,omitempty"`

	Crypto CryptoProviderConfig `json:"crypto,omitempty"`
	News   NewsProviderConfig   `json:"news,omitempty"`
	Stocks StocksProviderConfig `json:"stocks,omitempty"`
}

type CryptoProviderConfig struct {
	TTL string `json:"ttl,omitempty"` // default "1h"
}

type NewsProviderConfig struct {
	APIKey   string `json:"api_key,omitempty"`
	Country  string `json:"country,omitempty"`  // default "us"
	Category string `json:"category,omitempty"` // default "business"
	PageSize int    `json:"page_size,omitempty"`
	TTL      string `json:"ttl,omitempty"` // default "30m"
}

type StocksProviderConfig struct {
	Symbols []string `json:"symbols,omitempty"`
	TTL     string   `json:"ttl,omitempty"` // default "1h"
}

type SchedulesConfig struct {
	Ingest    IngestSchedule `json:"ingest"`
	Broadcast JobSchedule    `json:"broadcast"`
}

// IngestSchedule drives the periodic feed ingestion. Topics lists the topic
// names to ingest each run; each must match a provider name.
type IngestSchedule struct {
	Spec   string   `json:"spec"` // cron spec or "@every <duration>"
	Topics []string `json:"topics"`
}

type JobSchedule struct {
	Spec string `json:"spec"`
}

type BroadcastConfig struct {
	RatePerSec  int    `json:"rate_per_sec,omitempty"` // default 10
	SendTimeout string `json:"send_timeout,omitempty"` // default "10s"
}
