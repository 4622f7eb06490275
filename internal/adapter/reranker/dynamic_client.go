package reranker

import (
	"context"
	"fmt"
	"sync"

	"quill/internal/settings"
)

type SettingsProvider interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// DynamicClient picks the provider and key from settings on every call.
type DynamicClient struct {
	settings SettingsProvider

	mu       sync.Mutex
	client   *Client
	provider string
	key      string
}

func NewDynamicClient(svc SettingsProvider) *DynamicClient {
	return &DynamicClient{settings: svc}
}

func (d *DynamicClient) Rerank(ctx context.Context, query string, docs []string) ([]int, error) {
	s, err := d.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if s.RerankProvider == "" || s.RerankProvider == ProviderNone {
		return identity(len(docs)), nil
	}
	return d.getClient(s.RerankProvider, s.RerankAPIKey).Rerank(ctx, query, docs)
}

func (d *DynamicClient) getClient(provider, key string) *Client {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil && d.provider == provider && d.key == key {
		return d.client
	}
	d.client = NewClient(provider, key)
	d.provider = provider
	d.key = key
	return d.client
}
