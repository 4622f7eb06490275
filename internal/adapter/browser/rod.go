package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

type RodOptions struct {
	// Bin is the Chrome binary. Empty lets the launcher download or locate one.
	Bin string
	// ControlURL attaches to a running browser instead of launching.
	ControlURL string
	NoSandbox  bool
	Timeout    time.Duration
	// Settle is how long to wait after load for client-side rendering.
	Settle time.Duration
}

// RodFetcher renders pages in headless Chrome. The browser is started on the
// first Fetch and reused until Close.
type RodFetcher struct {
	opts RodOptions

	mu      sync.Mutex
	browser *rod.Browser
}

func NewRodFetcher(opts RodOptions) *RodFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &RodFetcher{opts: opts}
}

func (f *RodFetcher) ensureBrowser(ctx context.Context) (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		return f.browser, nil
	}

	controlURL := f.opts.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(true).NoSandbox(f.opts.NoSandbox)
		if f.opts.Bin != "" {
			l = l.Bin(f.opts.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
	}

	// the browser outlives this call, so it is not bound to ctx
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	slog.InfoContext(ctx, "headless browser started", "control_url", controlURL)
	f.browser = b
	return b, nil
}

func (f *RodFetcher) Fetch(ctx context.Context, url string) (string, error) {
	b, err := f.ensureBrowser(ctx)
	if err != nil {
		return "", err
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			slog.Debug("failed to close page", "url", url, "error", cerr)
		}
	}()

	p := page.Context(ctx).Timeout(f.opts.Timeout)
	if err := p.Navigate(url); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load %s: %w", url, err)
	}

	if f.opts.Settle > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.opts.Settle):
		}
	}

	html, err := p.HTML()
	if err != nil {
		return "", fmt.Errorf("read html %s: %w", url, err)
	}
	if html == "" {
		return "", ErrEmptyPage
	}
	return html, nil
}

func (f *RodFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.browser = nil
	return err
}
