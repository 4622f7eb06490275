package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"quill/internal/retrieval"
	"quill/internal/settings"
)

const defaultURL = "https://google.serper.dev/search"

var ErrNoAPIKey = errors.New("serper api key not configured")

type SettingsProvider interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// Client queries the Serper Google search API. The key is read from settings
// on every call and falls back to the one given at construction.
type Client struct {
	settings    SettingsProvider
	fallbackKey string
	client      *http.Client
	limiter     *rate.Limiter
	baseURL     string
}

func NewClient(svc SettingsProvider, fallbackKey string) *Client {
	return &Client{
		settings:    svc,
		fallbackKey: fallbackKey,
		client:      &http.Client{Timeout: 15 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(5), 5),
		baseURL:     defaultURL,
	}
}

func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

func (c *Client) apiKey(ctx context.Context) (string, error) {
	key := c.fallbackKey
	if c.settings != nil {
		s, err := c.settings.Get(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to get settings: %w", err)
		}
		if s.SerperAPIKey != "" {
			key = s.SerperAPIKey
		}
	}
	if key == "" {
		return "", ErrNoAPIKey
	}
	return key, nil
}

func (c *Client) Search(ctx context.Context, query string) (*retrieval.SearchResponse, error) {
	key, err := c.apiKey(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	jsonBody, err := json.Marshal(map[string]string{"q": query})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", key)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("serper api error: %d %s", resp.StatusCode, body)
	}

	var out retrieval.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &out, nil
}
