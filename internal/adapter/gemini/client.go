package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"quill/internal/settings"
)

var ErrNoAPIKey = errors.New("gemini api key not configured")

type SettingsProvider interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// clientCache holds one genai client for the API key currently configured in
// settings. A key change replaces the client.
type clientCache struct {
	settings    SettingsProvider
	fallbackKey string
	clientOpts  []option.ClientOption

	mu         sync.RWMutex
	client     *genai.Client
	currentKey string
}

func newClientCache(svc SettingsProvider, fallbackKey string, opts []option.ClientOption) *clientCache {
	return &clientCache{settings: svc, fallbackKey: fallbackKey, clientOpts: opts}
}

// resolve returns the client for the configured key along with the settings
// it was resolved from.
func (c *clientCache) resolve(ctx context.Context) (*genai.Client, *settings.Settings, error) {
	s, err := c.settings.Get(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get settings: %w", err)
	}

	key := s.GeminiAPIKey
	if key == "" {
		key = c.fallbackKey
	}
	if key == "" {
		return nil, nil, ErrNoAPIKey
	}

	client, err := c.get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	return client, s, nil
}

func (c *clientCache) get(ctx context.Context, key string) (*genai.Client, error) {
	c.mu.RLock()
	if c.client != nil && c.currentKey == key {
		defer c.mu.RUnlock()
		return c.client, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.currentKey == key {
		return c.client, nil
	}

	if c.client != nil {
		if err := c.client.Close(); err != nil {
			slog.Warn("failed to close previous genai client", "error", err)
		}
	}

	opts := append(append([]option.ClientOption(nil), c.clientOpts...), option.WithAPIKey(key))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	c.client = client
	c.currentKey = key
	return client, nil
}

func (c *clientCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	c.currentKey = ""
	return err
}
