package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/szaher/missiongate/internal/llm"
)

const (
	fetchMaxChars = 20_000
	maxRedirects  = 5
	userAgent     = "Mozilla/5.0 (compatible; MissionGate/1.0)"
)

// truncate caps s at limit characters, appending a marker when content was cut.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + fmt.Sprintf("\n\n[Truncated - showing first %d characters]", limit)
}

// FetchPageDefinition describes the fetch_page tool to the model.
func FetchPageDefinition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "fetch_page",
		Description: "Fetch raw HTML via HTTP. Fast. Use first; fall back to browser tools for JS-heavy sites.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"url": map[string]interface{}{"type": "string", "description": "Absolute http(s) URL to fetch"},
			},
			"required": []string{"url"},
		},
	}
}

// FetchPageExecutor fetches pages over HTTP with SSRF protection. The guard
// validates before the request and again at dial time, pinning the
// connection to the validated address.
type FetchPageExecutor struct {
	guard  *Guard
	client *http.Client
}

// NewFetchPageExecutor creates the fetch_page executor.
func NewFetchPageExecutor(guard *Guard) *FetchPageExecutor {
	return &FetchPageExecutor{
		guard: guard,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: guard.Transport(),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				// Redirect targets re-resolve through the guarded dialer;
				// reject scheme downgrades here before any connection.
				if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
					return fmt.Errorf("redirect to disallowed scheme %q", req.URL.Scheme)
				}
				return nil
			},
		},
	}
}

// Execute fetches the URL and returns its body, truncated for the model.
// All failures are returned as descriptive strings.
func (e *FetchPageExecutor) Execute(ctx context.Context, input map[string]interface{}) (string, error) {
	rawURL := stringArg(input, "url")
	if rawURL == "" {
		return "Error: fetch_page requires a 'url' argument.", nil
	}

	if verdict := e.guard.Validate(ctx, rawURL); !verdict.Allowed() {
		return verdict.Reason, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Sprintf("Request error fetching %s: %v", rawURL, err), nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		// Deadline expiry must abort the mission, not feed the agent.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return fmt.Sprintf("Request error fetching %s: %v", rawURL, err), nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Sprintf("HTTP error %d fetching %s: %s", resp.StatusCode, rawURL, http.StatusText(resp.StatusCode)), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxChars+1))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return fmt.Sprintf("Request error fetching %s: %v", rawURL, err), nil
	}

	return truncate(string(body), fetchMaxChars), nil
}
