// Package onvista provides a read-only client for the onvista market data API.
package onvista

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"flatex_bot/internal/cache"
)

const defaultTimeout = 5 * time.Second

// ErrUnknownEntityType is returned by Snapshot for an unmapped entity type.
var ErrUnknownEntityType = errors.New("unknown entity type")

// Client handles onvista API operations.
type Client struct {
	client *resty.Client
	cache  *cache.Cache
	logger *zap.Logger
}

// NewClient creates a new onvista client. c may be nil to disable caching
// of search results.
func NewClient(baseURL string, c *cache.Cache, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(defaultTimeout)
	client.SetHeader("Accept", "application/json")

	return &Client{
		client: client,
		cache:  c,
		logger: logger.Named("onvista"),
	}
}

// Search looks up instruments by name, ISIN, WKN or symbol.
func (c *Client) Search(ctx context.Context, query string, limit int) (*SearchResponse, error) {
	if limit <= 0 {
		limit = 1
	}
	key := cache.Search("onvista:"+strconv.Itoa(limit), query)
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			return v.(*SearchResponse), nil
		}
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"searchValue": query,
			"limit":       strconv.Itoa(limit),
		}).
		Get("/api/v1/instruments/query")
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}

	var out SearchResponse
	if err := c.decode(resp, &out); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Set(key, &out)
	}
	return &out, nil
}

// Snapshot fetches the current quotes of one instrument.
func (c *Client) Snapshot(ctx context.Context, entityType EntityType, entityValue string) (*SnapshotResponse, error) {
	segment, ok := pathSegments[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntityType, entityType)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"segment": segment,
			"value":   entityValue,
		}).
		Get("/api/v1/{segment}/{value}/snapshot")
	if err != nil {
		return nil, fmt.Errorf("fetching snapshot of %s: %w", entityValue, err)
	}

	var out SnapshotResponse
	if err := c.decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// decode accepts 2xx and 4xx bodies. A body carrying errorCode becomes *Error.
func (c *Client) decode(resp *resty.Response, out any) error {
	status := resp.StatusCode()
	c.logger.Debug("onvista response",
		zap.String("url", resp.Request.URL),
		zap.Int("status", status),
		zap.Duration("elapsed", resp.Time()),
	)
	if status < 200 || (status >= 300 && status < 400) || status >= 500 {
		return fmt.Errorf("onvista: unexpected status %d", status)
	}

	var probe struct {
		ErrorCode *int `json:"errorCode"`
	}
	if err := json.Unmarshal(resp.Body(), &probe); err != nil {
		return fmt.Errorf("onvista: parsing response: %w", err)
	}
	if probe.ErrorCode != nil {
		apiErr := &Error{}
		if err := json.Unmarshal(resp.Body(), apiErr); err != nil {
			return fmt.Errorf("onvista: parsing error body: %w", err)
		}
		return apiErr
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("onvista: parsing response: %w", err)
	}
	return nil
}
