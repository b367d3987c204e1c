package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/market-stream-service/internal/entity"
)

var (
	ErrUpstreamStatus = errors.New("unexpected upstream status")
	ErrUnhealthy      = errors.New("relay gateway unhealthy")
)

const (
	pathHealth      = "/health"
	pathForwardTick = "/api/forward/tick"
	pathForwardBar  = "/api/forward/bar"
)

// Client pushes market events to a remote ingestion gateway over HTTP. It is
// the entity.MarketSink used by the forwarding agent.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	pushTimeout   time.Duration
	healthTimeout time.Duration
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithPushTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.pushTimeout = timeout
		}
	}
}

func WithHealthTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.healthTimeout = timeout
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    http.DefaultClient,
		pushTimeout:   5 * time.Second,
		healthTimeout: 10 * time.Second,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

func (c *Client) SubmitTick(ctx context.Context, tick entity.TickEvent) error {
	return c.push(ctx, pathForwardTick, tick)
}

func (c *Client) SubmitBar(ctx context.Context, bar entity.BarEvent) error {
	return c.push(ctx, pathForwardBar, bar)
}

// Health probes the gateway health endpoint. A transport failure or non-200
// status means the gateway is not ready to accept pushes.
func (c *Client) Health(ctx context.Context) (entity.GatewayHealth, error) {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathHealth, nil)
	if err != nil {
		return entity.GatewayHealth{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return entity.GatewayHealth{}, fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return entity.GatewayHealth{}, fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}

	var health entity.GatewayHealth
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return entity.GatewayHealth{}, fmt.Errorf("decode health response: %w", err)
	}

	return health, nil
}

func (c *Client) push(ctx context.Context, path string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, c.pushTimeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %s returned %d", ErrUpstreamStatus, path, resp.StatusCode)
	}

	return nil
}
