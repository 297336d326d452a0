package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const newsAPIURL = "https://newsapi.org/v2/top-headlines"

type NewsConfig struct {
	// BaseURL overrides the NewsAPI endpoint (tests).
	BaseURL  string
	APIKey   string
	Country  string
	Category string
	PageSize int
	TTL      time.Duration
}

// News fetches top headlines from NewsAPI.
type News struct {
	cfg  NewsConfig
	http *http.Client
}

func NewNews(cfg NewsConfig, client *http.Client) *News {
	if cfg.BaseURL == "" {
		cfg.BaseURL = newsAPIURL
	}
	if cfg.Country == "" {
		cfg.Country = "us"
	}
	if cfg.Category == "" {
		cfg.Category = "business"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 5
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	return &News{cfg: cfg, http: client}
}

func (n *News) Name() string       { return "news" }
func (n *News) CacheKey() string   { return "news_trending" }
func (n *News) TTL() time.Duration { return n.cfg.TTL }

func (n *News) Feed() FeedMeta {
	return FeedMeta{
		Title:  "News Headlines Update",
		URL:    "https://newsapi.org",
		Source: "newsapi",
	}
}

type newsAPIResponse struct {
	Articles []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Description string `json:"description"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

func (n *News) Fetch(ctx context.Context) ([]string, error) {
	q := url.Values{}
	q.Set("apiKey", n.cfg.APIKey)
	q.Set("country", n.cfg.Country)
	q.Set("category", n.cfg.Category)
	q.Set("pageSize", strconv.Itoa(n.cfg.PageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := n.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsapi: unexpected status %s", resp.Status)
	}

	var data newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("newsapi: decode: %w", err)
	}

	entries := make([]string, 0, len(data.Articles))
	for _, a := range data.Articles {
		title := a.Title
		if title == "" {
			title = "No title"
		}
		source := a.Source.Name
		if source == "" {
			source = "Unknown"
		}
		entries = append(entries, fmt.Sprintf(
			"📰 *%s*\n🏢 Source: %s\n📝 %s\n🔗 %s",
			title, source, truncate(a.Description, 150), a.URL,
		))
	}
	return entries, nil
}

// truncate shortens s to at most max runes, reserving three for "...".
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
