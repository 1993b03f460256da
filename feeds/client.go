// Package feeds queries the off-chain fee tracker that publishes per-chain
// fee schedules, spot prices, the bot reward rate and aggregate bot
// statistics. The tracker is plain HTTP with optional backup endpoints.
package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tezexlabs/coordinator/chain"
	"github.com/tezexlabs/coordinator/models"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "feeds").Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "feeds").Logger()
}

// Config controls retry and failover behavior.
type Config struct {
	// MaxRetries is the number of times to retry a failed request on the
	// current endpoint before failing over.
	MaxRetries int
	// RetryDelay is the initial delay between retries (doubles each retry).
	RetryDelay time.Duration
	// HealthCheckInterval is how often to probe whether the primary
	// endpoint is back up after a failover.
	HealthCheckInterval time.Duration
	// Timeout is the HTTP request timeout.
	Timeout time.Duration
}

// DefaultConfig returns sensible retry/failover defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:          2,
		RetryDelay:          500 * time.Millisecond,
		HealthCheckInterval: 30 * time.Second,
		Timeout:             10 * time.Second,
	}
}

// Client is the fee tracker client. It satisfies chain.FeedSource.
type Client struct {
	httpClient *http.Client
	primaryURL string
	backupURLs []string
	cfg        Config

	mu         sync.RWMutex
	currentURL string

	stopHealth chan struct{}
	healthDone chan struct{}
}

var _ chain.FeedSource = (*Client)(nil)

// NewClient creates a tracker client with optional backup endpoints.
func NewClient(primaryURL string, backupURLs []string, cfg Config) (*Client, error) {
	if _, err := url.Parse(primaryURL); err != nil {
		return nil, fmt.Errorf("invalid tracker URL %q: %w", primaryURL, err)
	}
	valid := make([]string, 0, len(backupURLs))
	for _, u := range backupURLs {
		if _, err := url.Parse(u); err != nil {
			log.Warn().Err(err).Str("url", u).Msg("invalid backup URL, skipping")
			continue
		}
		valid = append(valid, u)
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		primaryURL: primaryURL,
		backupURLs: valid,
		currentURL: primaryURL,
		cfg:        cfg,
	}
	if len(valid) > 0 {
		c.stopHealth = make(chan struct{})
		c.healthDone = make(chan struct{})
		go c.watchPrimary()
	}

	log.Info().
		Str("primary", primaryURL).
		Int("backups", len(valid)).
		Msg("fee tracker client initialized")
	return c, nil
}

// Close stops the background health checker.
func (c *Client) Close() {
	if c.stopHealth != nil {
		close(c.stopHealth)
		<-c.healthDone
	}
}

// watchPrimary restores the primary endpoint once it responds again.
func (c *Client) watchPrimary() {
	defer close(c.healthDone)
	ticker := time.NewTicker(c.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopHealth:
			return
		case <-ticker.C:
			c.mu.RLock()
			onPrimary := c.currentURL == c.primaryURL
			c.mu.RUnlock()
			if onPrimary {
				continue
			}
			if c.healthy(c.primaryURL) {
				c.mu.Lock()
				c.currentURL = c.primaryURL
				c.mu.Unlock()
				log.Info().Str("url", c.primaryURL).Msg("restored primary endpoint")
			}
		}
	}
}

func (c *Client) healthy(endpoint string) bool {
	resp, err := c.httpClient.Get(endpoint + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) current() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentURL
}

// failover switches to the next healthy endpoint, if any.
func (c *Client) failover() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := append([]string{c.primaryURL}, c.backupURLs...)
	currentIdx := 0
	for i, u := range all {
		if u == c.currentURL {
			currentIdx = i
			break
		}
	}
	for i := 1; i <= len(all); i++ {
		next := all[(currentIdx+i)%len(all)]
		if next == c.currentURL {
			continue
		}
		if c.healthy(next) {
			c.currentURL = next
			log.Info().Str("url", next).Msg("failover to endpoint")
			return true
		}
	}
	log.Warn().Str("url", c.currentURL).Msg("all endpoints unhealthy, staying on current")
	return false
}

// get performs a GET with retries on the current endpoint, then a single
// attempt on a failover endpoint. A context deadline surfaces as
// chain.ErrAdapterTimeout.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	delay := c.cfg.RetryDelay

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", chain.ErrAdapterTimeout, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		body, err := c.getOnce(ctx, c.current()+path)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %w", chain.ErrAdapterTimeout, err)
		}
		lastErr = err
	}

	if len(c.backupURLs) > 0 && c.failover() {
		body, err := c.getOnce(ctx, c.current()+path)
		if err == nil {
			return body, nil
		}
		return nil, fmt.Errorf("failover request failed: %w (original: %w)", err, lastErr)
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

func (c *Client) getOnce(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// GetFees returns both chains' per-operation fee schedules.
func (c *Client) GetFees(ctx context.Context) (models.FeeSchedules, error) {
	body, err := c.get(ctx, "/fees")
	if err != nil {
		return models.FeeSchedules{}, err
	}
	var schedules models.FeeSchedules
	if err := json.Unmarshal(body, &schedules); err != nil {
		return models.FeeSchedules{}, fmt.Errorf("failed to parse fee schedules: %w", err)
	}
	return schedules, nil
}

// GetPrice returns the spot price for a pair such as "ETH-USD".
func (c *Client) GetPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	body, err := c.get(ctx, "/price?pair="+url.QueryEscape(pair))
	if err != nil {
		return decimal.Decimal{}, err
	}

	// The tracker keys the response by pair, the value is a string price.
	var priceResponse map[string]string
	if err := json.Unmarshal(body, &priceResponse); err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to parse price response: %w", err)
	}
	priceStr, ok := priceResponse[pair]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("price for %s not found", pair)
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid price %q: %w", priceStr, err)
	}
	return price, nil
}

// GetReward returns the current bot reward rate in percent.
func (c *Client) GetReward(ctx context.Context) (decimal.Decimal, error) {
	body, err := c.get(ctx, "/reward")
	if err != nil {
		return decimal.Decimal{}, err
	}
	var rewardResponse struct {
		Reward string `json:"reward"`
	}
	if err := json.Unmarshal(body, &rewardResponse); err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to parse reward response: %w", err)
	}
	reward, err := decimal.NewFromString(rewardResponse.Reward)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid reward %q: %w", rewardResponse.Reward, err)
	}
	return reward, nil
}

// GetBotStats returns the aggregate bot-activity snapshot.
func (c *Client) GetBotStats(ctx context.Context) (models.BotStats, error) {
	body, err := c.get(ctx, "/stats")
	if err != nil {
		return models.BotStats{}, err
	}
	var stats models.BotStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return models.BotStats{}, fmt.Errorf("failed to parse stats response: %w", err)
	}
	return stats, nil
}
