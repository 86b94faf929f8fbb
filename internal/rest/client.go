// Package rest is the minimal HTTP collaborator the gateway needs to
// bootstrap: the connection URL, the session-start budget, and the
// current guild count used to size the shard count. The full REST
// surface (rate-limit buckets included) lives outside this module.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/halcyonchat/gateway/internal/circuitbreaker"
	"github.com/halcyonchat/gateway/internal/retry"
)

// guildPageSize is the maximum page size the guilds endpoint allows.
const guildPageSize = 200

// Breaker thresholds for the API as a whole. Reconnecting shards share
// one client, so a dead API fails fast instead of stacking timeouts.
const (
	breakerMaxFailures = 5
	breakerCooldown    = 30 * time.Second
)

// SessionStartLimit is the server-granted connection budget.
type SessionStartLimit struct {
	Total          int   `json:"total"`
	Remaining      int   `json:"remaining"`
	ResetAfter     int64 `json:"reset_after"` // milliseconds
	MaxConcurrency int   `json:"max_concurrency"`
}

// GatewayBot is the bootstrap response: where to connect and how fast.
type GatewayBot struct {
	URL               string            `json:"url"`
	Shards            int               `json:"shards"`
	SessionStartLimit SessionStartLimit `json:"session_start_limit"`
}

type guild struct {
	ID string `json:"id"`
}

// Config configures the REST client.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Client performs the bootstrap calls.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	retryCfg   retry.Config
	breaker    *circuitbreaker.Breaker
}

// NewClient creates a REST client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		retryCfg:   retry.Config{MaxRetries: cfg.MaxRetries, RetryDelay: cfg.RetryDelay},
		breaker:    circuitbreaker.NewBreaker(breakerMaxFailures, breakerCooldown),
	}
}

// GetGatewayBot fetches the gateway URL and session-start budget.
// Transient failures are retried with exponential backoff.
func (c *Client) GetGatewayBot(ctx context.Context) (*GatewayBot, error) {
	var info GatewayBot
	err := retry.Do(ctx, c.retryCfg, func() error {
		return c.getJSON(ctx, "/gateway/bot", nil, &info)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch gateway bootstrap info: %w", err)
	}
	return &info, nil
}

// GetGuildCount counts the guilds the current user is in, paging
// through the guilds endpoint.
func (c *Client) GetGuildCount(ctx context.Context) (int, error) {
	count := 0
	after := ""
	for {
		query := url.Values{"limit": {fmt.Sprint(guildPageSize)}}
		if after != "" {
			query.Set("after", after)
		}
		var page []guild
		if err := c.getJSON(ctx, "/users/@me/guilds", query, &page); err != nil {
			return 0, fmt.Errorf("fetch guild page: %w", err)
		}
		count += len(page)
		if len(page) < guildPageSize {
			return count, nil
		}
		after = page[len(page)-1].ID
	}
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.breaker.Do(func() error {
		return c.doGetJSON(ctx, path, query, out)
	})
}

func (c *Client) doGetJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("Authorization", fmt.Sprintf("Bot %s", c.token))

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("GET %s: status %d: %s", path, res.StatusCode, body)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode response: %w", path, err)
	}
	return nil
}
