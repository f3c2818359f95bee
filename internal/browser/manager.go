// Package browser manages the shared headless Chromium instance behind the
// browser tool set. One page is shared across missions, so all access is
// serialized through a semaphore.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/sync/semaphore"
)

// Options configures the managed browser.
type Options struct {
	Headless      bool
	NavTimeout    time.Duration
	ActionTimeout time.Duration
}

// Manager owns the Playwright runtime, the browser process, and a single
// lazily-created page. All page operations acquire the semaphore first, so
// concurrent missions never interleave actions on the shared page.
type Manager struct {
	opts Options

	sem *semaphore.Weighted

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
}

// NewManager creates a Manager. Start must be called before use.
func NewManager(opts Options) *Manager {
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 60 * time.Second
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 10 * time.Second
	}
	return &Manager{
		opts: opts,
		sem:  semaphore.NewWeighted(1),
	}
}

// Start launches the Playwright driver and the Chromium process.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		return nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("browser: starting playwright: %w", err)
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("browser: launching chromium: %w", err)
	}

	m.pw = pw
	m.browser = b
	return nil
}

// Stop closes the page, the browser, and the driver. Safe to call twice.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	if m.page != nil {
		if err := m.page.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.page = nil
	}
	if m.browser != nil {
		if err := m.browser.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.browser = nil
	}
	if m.pw != nil {
		if err := m.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.pw = nil
	}
	return firstErr
}

// Alive reports whether the browser process is up and connected.
func (m *Manager) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser != nil && m.browser.IsConnected()
}

// currentPage returns the shared page, creating it on first use. Callers
// must hold the semaphore.
func (m *Manager) currentPage() (playwright.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		return nil, fmt.Errorf("browser: not started")
	}
	if m.page != nil && !m.page.IsClosed() {
		return m.page, nil
	}

	page, err := m.browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("browser: creating page: %w", err)
	}
	m.page = page
	return page, nil
}

// acquire serializes page access and honors the caller's deadline while
// waiting for the page to free up.
func (m *Manager) acquire(ctx context.Context) error {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		m.sem.Release(1)
		return err
	}
	return nil
}

// Navigate loads the URL and returns the HTTP status of the main document.
func (m *Manager) Navigate(ctx context.Context, url string) (int, error) {
	if err := m.acquire(ctx); err != nil {
		return 0, err
	}
	defer m.sem.Release(1)

	page, err := m.currentPage()
	if err != nil {
		return 0, err
	}

	resp, err := page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(m.opts.NavTimeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return 0, err
	}
	if resp == nil {
		// Same-document navigation (e.g. fragment change).
		return 200, nil
	}
	return resp.Status(), nil
}

// Click clicks the first element matching the selector.
func (m *Manager) Click(ctx context.Context, selector string) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.sem.Release(1)

	page, err := m.currentPage()
	if err != nil {
		return err
	}

	return page.Click(selector, playwright.PageClickOptions{
		Timeout: playwright.Float(float64(m.opts.ActionTimeout.Milliseconds())),
	})
}

// Content returns the current page's full HTML.
func (m *Manager) Content(ctx context.Context) (string, error) {
	if err := m.acquire(ctx); err != nil {
		return "", err
	}
	defer m.sem.Release(1)

	page, err := m.currentPage()
	if err != nil {
		return "", err
	}
	return page.Content()
}

// CurrentURL returns the page's current URL.
func (m *Manager) CurrentURL(ctx context.Context) (string, error) {
	if err := m.acquire(ctx); err != nil {
		return "", err
	}
	defer m.sem.Release(1)

	page, err := m.currentPage()
	if err != nil {
		return "", err
	}
	return page.URL(), nil
}

// GoBack navigates back one history entry. hasHistory is false when there
// is no previous page.
func (m *Manager) GoBack(ctx context.Context) (int, bool, error) {
	if err := m.acquire(ctx); err != nil {
		return 0, false, err
	}
	defer m.sem.Release(1)

	page, err := m.currentPage()
	if err != nil {
		return 0, false, err
	}

	resp, err := page.GoBack(playwright.PageGoBackOptions{
		Timeout:   playwright.Float(float64(m.opts.NavTimeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return 0, false, err
	}
	if resp == nil {
		return 0, false, nil
	}
	return resp.Status(), true, nil
}

// Elements returns the requested attributes of every element matching the
// selector. The pseudo-attribute "innerText" returns the element's text.
func (m *Manager) Elements(ctx context.Context, selector string, attributes []string) ([]map[string]string, error) {
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	defer m.sem.Release(1)

	page, err := m.currentPage()
	if err != nil {
		return nil, err
	}

	handles, err := page.QuerySelectorAll(selector)
	if err != nil {
		return nil, err
	}

	results := make([]map[string]string, 0, len(handles))
	for _, h := range handles {
		attrs := make(map[string]string, len(attributes))
		for _, name := range attributes {
			switch name {
			case "innerText":
				text, err := h.InnerText()
				if err != nil {
					return nil, err
				}
				attrs[name] = text
			default:
				val, err := h.GetAttribute(name)
				if err != nil {
					return nil, err
				}
				attrs[name] = val
			}
		}
		results = append(results, attrs)
	}
	return results, nil
}

// Reset discards the current page so the next operation starts on a fresh
// one. Used after the page's execution context is destroyed mid-action.
func (m *Manager) Reset(ctx context.Context) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.sem.Release(1)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.page != nil {
		err := m.page.Close()
		m.page = nil
		return err
	}
	return nil
}
