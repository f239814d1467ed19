// Package feed pulls real last-trade prices from a Polygon-style snapshot
// REST API and publishes them into the price cache. It is the alternative to
// the simulator: same Provider contract, slower cadence, real data.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/metrics"
)

const (
	// DefaultBaseURL is the Polygon.io REST endpoint.
	DefaultBaseURL = "https://api.polygon.io"

	// DefaultInterval respects the free-tier rate limit (5 calls/min).
	DefaultInterval = 15 * time.Second

	// DefaultRequestTimeout bounds each poll; a timed-out request counts as
	// a failed poll and is skipped.
	DefaultRequestTimeout = 10 * time.Second
)

type Config struct {
	BaseURL        string
	APIKey         string
	Interval       time.Duration
	RequestTimeout time.Duration
}

// Client polls the snapshot endpoint for the cache's tracked ticker set on a
// fixed interval. A failed poll is logged and skipped; cached prices stay
// stale until the next successful poll. Client implements market.Provider.
type Client struct {
	cache      *market.Cache
	log        zerolog.Logger
	baseURL    string
	apiKey     string
	interval   time.Duration
	httpClient *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cache *market.Cache, cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("feed: api key is required")
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return &Client{
		cache:    cache,
		log:      log,
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		interval: interval,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Start launches the poll loop. The first poll fires immediately.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return errors.New("feed: already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go c.run(ctx, done)

	c.log.Info().Dur("interval", c.interval).Msg("polled feed started")
	return nil
}

// Stop halts the loop, waits for it to exit, and releases idle connections.
// The cache keeps its last polled values. No-op when not running.
func (c *Client) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	c.httpClient.CloseIdleConnections()
	c.log.Info().Msg("polled feed stopped")
	return nil
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	tick := time.NewTicker(c.interval)
	defer tick.Stop()

	c.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			c.pollOnce(ctx)
		}
	}
}

// pollOnce fetches and publishes one batch. Errors never escape the loop.
func (c *Client) pollOnce(ctx context.Context) {
	if err := c.poll(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		metrics.PollFailuresTotal.Inc()
		c.log.Warn().Err(err).Msg("poll failed")
	}
}

// snapshotResponse mirrors the fields we need from the snapshot endpoint.
type snapshotResponse struct {
	Tickers []struct {
		Ticker    string `json:"ticker"`
		LastTrade struct {
			Price float64 `json:"p"`
		} `json:"lastTrade"`
	} `json:"tickers"`
}

func (c *Client) poll(ctx context.Context) error {
	tracked := c.cache.Tickers()
	if len(tracked) == 0 {
		return nil
	}

	u := fmt.Sprintf("%s/v2/snapshot/locale/us/markets/stocks/tickers", c.baseURL)
	q := url.Values{}
	q.Set("tickers", strings.Join(tracked, ","))
	q.Set("apiKey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("snapshot request: unexpected status %s", resp.Status)
	}

	var snap snapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot response: %w", err)
	}

	// Publish the poll as one batch: readers see the whole response or the
	// previous one, never a mix.
	batch := make(map[string]float64, len(snap.Tickers))
	for _, item := range snap.Tickers {
		if item.Ticker == "" || item.LastTrade.Price <= 0 {
			continue
		}
		batch[item.Ticker] = item.LastTrade.Price
	}

	c.cache.UpdateBatch(batch)
	metrics.PriceUpdatesTotal.WithLabelValues("poll").Add(float64(len(batch)))
	return nil
}
