package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const yahooQuoteURL = "https://query1.finance.yahoo.com/v7/finance/quote"

type StocksConfig struct {
	// BaseURL overrides the Yahoo Finance endpoint (tests).
	BaseURL string
	Symbols []string
	TTL     time.Duration
}

// Stocks fetches quotes for a fixed symbol list from Yahoo Finance.
type Stocks struct {
	cfg  StocksConfig
	http *http.Client
}

func NewStocks(cfg StocksConfig, client *http.Client) *Stocks {
	if cfg.BaseURL == "" {
		cfg.BaseURL = yahooQuoteURL
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = []string{"AAPL", "MSFT", "GOOGL", "META", "TSLA"}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &Stocks{cfg: cfg, http: client}
}

func (s *Stocks) Name() string       { return "stocks" }
func (s *Stocks) CacheKey() string   { return "stocks_trending" }
func (s *Stocks) TTL() time.Duration { return s.cfg.TTL }

func (s *Stocks) Feed() FeedMeta {
	return FeedMeta{
		Title:  "Stocks Trending Update",
		URL:    "https://finance.yahoo.com",
		Source: "yahoo-finance",
	}
}

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol        string  `json:"symbol"`
			LongName      string  `json:"longName"`
			Price         float64 `json:"regularMarketPrice"`
			PreviousClose float64 `json:"regularMarketPreviousClose"`
		} `json:"result"`
	} `json:"quoteResponse"`
}

func (s *Stocks) Fetch(ctx context.Context) ([]string, error) {
	q := url.Values{}
	q.Set("symbols", strings.Join(s.cfg.Symbols, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo finance: unexpected status %s", resp.Status)
	}

	var data yahooQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("yahoo finance: decode: %w", err)
	}

	entries := make([]string, 0, len(data.QuoteResponse.Result))
	for _, r := range data.QuoteResponse.Result {
		name := r.LongName
		if name == "" {
			name = r.Symbol
		}
		var (
			change float64
			emoji  string
		)
		if r.PreviousClose != 0 {
			change = (r.Price - r.PreviousClose) / r.PreviousClose * 100
			if change > 0 {
				emoji = "📈"
			} else {
				emoji = "📉"
			}
		} else {
			emoji = "❌"
		}
		entries = append(entries, fmt.Sprintf(
			"%s *%s* (%s)\n💵 Price: $%.2f\n📊 Change: %+.2f%%",
			emoji, name, r.Symbol, r.Price, change,
		))
	}
	return entries, nil
}
