package flatex

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultProvider = "flatex_at"
	DefaultPlatform = "android"
	defaultTimeout  = 5 * time.Second
	defaultRate     = 5
)

// Options configures a Client. Zero values select the defaults.
type Options struct {
	BaseURL    string
	Provider   string
	Platform   string
	Timeout    time.Duration
	RatePerSec float64
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client speaks the brokerage proxy protocol. It holds no session state:
// every method takes the identifiers it needs explicitly.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	provider   string
	platform   string
	logger     *zap.Logger
}

// NewClient creates a new protocol client.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("flatex: base URL is required")
	}
	if opts.Provider == "" {
		opts.Provider = DefaultProvider
	}
	if opts.Platform == "" {
		opts.Platform = DefaultPlatform
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = defaultRate
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Client{
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
		baseURL:    opts.BaseURL,
		provider:   opts.Provider,
		platform:   opts.Platform,
		logger:     opts.Logger.Named("flatex"),
	}, nil
}

// acceptedStatus reports whether a response carries a body worth decoding.
func acceptedStatus(code int) bool {
	return (code >= 200 && code < 300) || (code >= 400 && code < 500)
}

// post sends one action and decodes the body into out.
func (c *Client) post(ctx context.Context, action string, args any, out response) error {
	body, err := encodeRequest(action, args, c.provider, c.platform)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", action, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return &TransportError{Action: action, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Action: action, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", zap.String("action", action), zap.Error(err))
		return &TransportError{Action: action, Cause: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("request",
		zap.String("action", action),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if !acceptedStatus(resp.StatusCode) {
		return &TransportError{Action: action, Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Action: action, Cause: err}
	}

	if err := decode(raw, out); err != nil {
		c.logger.Debug("action rejected", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}
