package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/szaher/missiongate/internal/llm"
)

// ExtractArticleDefinition describes the extract_article tool to the model.
func ExtractArticleDefinition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "extract_article",
		Description: "Fetch a page and extract its readable article text, stripped of navigation and boilerplate. Best for news articles and blog posts.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"url": map[string]interface{}{"type": "string", "description": "Absolute http(s) URL of the article"},
			},
			"required": []string{"url"},
		},
	}
}

// ExtractArticleExecutor fetches a page through the SSRF guard and runs the
// Readability algorithm over it.
type ExtractArticleExecutor struct {
	guard  *Guard
	client *http.Client
}

// NewExtractArticleExecutor creates the extract_article executor.
func NewExtractArticleExecutor(guard *Guard) *ExtractArticleExecutor {
	return &ExtractArticleExecutor{
		guard: guard,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: guard.Transport(),
		},
	}
}

// Execute fetches the URL and returns the extracted article text.
func (e *ExtractArticleExecutor) Execute(ctx context.Context, input map[string]interface{}) (string, error) {
	rawURL := stringArg(input, "url")
	if rawURL == "" {
		return "Error: extract_article requires a 'url' argument.", nil
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
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return fmt.Sprintf("Request error fetching %s: %v", rawURL, err), nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Sprintf("HTTP error %d fetching %s: %s", resp.StatusCode, rawURL, http.StatusText(resp.StatusCode)), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2*fetchMaxChars))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return fmt.Sprintf("Request error fetching %s: %v", rawURL, err), nil
	}

	pageURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), pageURL)
	if err != nil {
		return fmt.Sprintf("Could not extract readable content from %s: %v", rawURL, err), nil
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return fmt.Sprintf("No readable article content found at %s.", rawURL), nil
	}
	if article.Title != "" {
		text = article.Title + "\n\n" + text
	}
	return truncate(text, fetchMaxChars), nil
}
