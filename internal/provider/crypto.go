package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const coingeckoTrendingURL = "https://api.coingecko.com/api/v3/search/trending"

type CryptoConfig struct {
	// BaseURL overrides the CoinGecko endpoint (tests).
	BaseURL string
	TTL     time.Duration
}

// Crypto fetches trending coins from CoinGecko.
type Crypto struct {
	url  string
	ttl  time.Duration
	http *http.Client
}

func NewCrypto(cfg CryptoConfig, client *http.Client) *Crypto {
	url := cfg.BaseURL
	if url == "" {
		url = coingeckoTrendingURL
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Crypto{url: url, ttl: ttl, http: client}
}

func (c *Crypto) Name() string       { return "crypto" }
func (c *Crypto) CacheKey() string   { return "crypto_trending" }
func (c *Crypto) TTL() time.Duration { return c.ttl }

func (c *Crypto) Feed() FeedMeta {
	return FeedMeta{
		Title:  "Crypto Trending Update",
		URL:    "https://coingecko.com/en",
		Source: "coingecko",
	}
}

type coingeckoResponse struct {
	Coins []struct {
		Item struct {
			Name          string  `json:"name"`
			Symbol        string  `json:"symbol"`
			MarketCapRank int     `json:"market_cap_rank"`
			PriceBTC      float64 `json:"price_btc"`
		} `json:"item"`
	} `json:"coins"`
}

func (c *Crypto) Fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko: unexpected status %s", resp.Status)
	}

	var data coingeckoResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("coingecko: decode: %w", err)
	}

	entries := make([]string, 0, len(data.Coins))
	for _, coin := range data.Coins {
		it := coin.Item
		entries = append(entries, fmt.Sprintf(
			"💰 *%s* (%s)\n🔻 Rank: %d\n₿ Price in BTC: %.8f",
			it.Name, strings.ToUpper(it.Symbol), it.MarketCapRank, it.PriceBTC,
		))
	}
	return entries, nil
}
