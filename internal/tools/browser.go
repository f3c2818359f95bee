package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/szaher/missiongate/internal/llm"
)

// BrowserSession is the surface the browser tools need from the shared
// headless browser. Implementations serialize access internally; tool calls
// from concurrent missions may arrive at any time.
type BrowserSession interface {
	Navigate(ctx context.Context, url string) (status int, err error)
	Click(ctx context.Context, selector string) error
	Content(ctx context.Context) (string, error)
	CurrentURL(ctx context.Context) (string, error)
	GoBack(ctx context.Context) (status int, hasHistory bool, err error)
	Elements(ctx context.Context, selector string, attributes []string) ([]map[string]string, error)
	Reset(ctx context.Context) error
}

const contextDestroyedMarker = "Execution context was destroyed"

const resetMessage = "Browser context was destroyed and has been reset. Please navigate to the URL again."

func isTimeoutErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Timeout")
}

// recoverDestroyedContext resets the page when the browser reports a dead
// execution context, so the next navigation starts clean.
func recoverDestroyedContext(ctx context.Context, session BrowserSession, err error) (string, bool) {
	if err == nil || !strings.Contains(err.Error(), contextDestroyedMarker) {
		return "", false
	}
	_ = session.Reset(ctx)
	return resetMessage, true
}

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// RegisterBrowserTools registers the headless-browser tool set against the
// shared session. Only called when the browser is enabled. Navigation goes
// through the same guard as fetch_page, so the browser cannot be steered at
// internal addresses.
func RegisterBrowserTools(r *Registry, session BrowserSession, guard *Guard) {
	r.Register(llm.ToolDefinition{
		Name:        "navigate_browser",
		Description: "Navigate browser to a URL. Use for JS-heavy pages.",
		InputSchema: objectSchema(map[string]interface{}{
			"url": map[string]interface{}{"type": "string"},
		}, "url"),
	}, &navigateExecutor{session: session, guard: guard})

	r.Register(llm.ToolDefinition{
		Name:        "click_element",
		Description: "Click a visible element matching a CSS selector.",
		InputSchema: objectSchema(map[string]interface{}{
			"selector": map[string]interface{}{"type": "string"},
		}, "selector"),
	}, &clickExecutor{session})

	r.Register(llm.ToolDefinition{
		Name:        "get_elements",
		Description: "Get elements matching a CSS selector. Returns JSON list of attributes.",
		InputSchema: objectSchema(map[string]interface{}{
			"selector":   map[string]interface{}{"type": "string"},
			"attributes": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		}, "selector"),
	}, &getElementsExecutor{session})

	r.Register(llm.ToolDefinition{
		Name:        "extract_text",
		Description: "Extract all visible text from the current page.",
		InputSchema: objectSchema(map[string]interface{}{}),
	}, &extractTextExecutor{session})

	r.Register(llm.ToolDefinition{
		Name:        "extract_hyperlinks",
		Description: "Extract all hyperlinks from the current page as JSON.",
		InputSchema: objectSchema(map[string]interface{}{
			"absolute_urls": map[string]interface{}{"type": "boolean"},
		}),
	}, &extractHyperlinksExecutor{session})

	r.Register(llm.ToolDefinition{
		Name:        "current_webpage",
		Description: "Return the current page URL.",
		InputSchema: objectSchema(map[string]interface{}{}),
	}, &currentWebpageExecutor{session})

	r.Register(llm.ToolDefinition{
		Name:        "previous_webpage",
		Description: "Go back to the previous page.",
		InputSchema: objectSchema(map[string]interface{}{}),
	}, &previousWebpageExecutor{session})
}

type navigateExecutor struct {
	session BrowserSession
	guard   *Guard
}

func (e *navigateExecutor) Execute(ctx context.Context, input map[string]interface{}) (string, error) {
	target := stringArg(input, "url")
	if target == "" {
		return "Error: navigate_browser requires a 'url' argument.", nil
	}
	if verdict := e.guard.Validate(ctx, target); !verdict.Allowed() {
		return verdict.Reason, nil
	}
	status, err := e.session.Navigate(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if msg, ok := recoverDestroyedContext(ctx, e.session, err); ok {
			return msg, nil
		}
		if isTimeoutErr(err) {
			return fmt.Sprintf("Timed out navigating to %s. The page may be partially loaded - try extract_text to see what's available.", target), nil
		}
		return fmt.Sprintf("Browser error navigating to %s: %v", target, err), nil
	}
	return fmt.Sprintf("Navigated to %s (status %d)", target, status), nil
}

type clickExecutor struct{ session BrowserSession }

func (e *clickExecutor) Execute(ctx context.Context, input map[string]interface{}) (string, error) {
	selector := stringArg(input, "selector")
	if selector == "" {
		return "Error: click_element requires a 'selector' argument.", nil
	}
	if err := e.session.Click(ctx, selector); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if msg, ok := recoverDestroyedContext(ctx, e.session, err); ok {
			return msg, nil
		}
		if isTimeoutErr(err) {
			return fmt.Sprintf("Timed out clicking '%s'. The element may not be visible or may not exist.", selector), nil
		}
		return fmt.Sprintf("Browser error clicking '%s': %v", selector, err), nil
	}
	return fmt.Sprintf("Clicked element matching '%s'", selector), nil
}

type getElementsExecutor struct{ session BrowserSession }

func (e *getElementsExecutor) Execute(ctx context.Context, input map[string]interface{}) (string, error) {
	selector := stringArg(input, "selector")
	if selector == "" {
		return "Error: get_elements requires a 'selector' argument.", nil
	}
	attributes := stringSliceArg(input, "attributes")
	if len(attributes) == 0 {
		attributes = []string{"innerText"}
	}

	elements, err := e.session.Elements(ctx, selector, attributes)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if msg, ok := recoverDestroyedContext(ctx, e.session, err); ok {
			return msg, nil
		}
		return fmt.Sprintf("Browser error querying '%s': %v", selector, err), nil
	}

	encoded, err := json.Marshal(elements)
	if err != nil {
		return fmt.Sprintf("Could not encode elements: %v", err), nil
	}
	return truncate(string(encoded), fetchMaxChars), nil
}

type extractTextExecutor struct{ session BrowserSession }

func (e *extractTextExecutor) Execute(ctx context.Context, _ map[string]interface{}) (string, error) {
	content, err := e.session.Content(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if msg, ok := recoverDestroyedContext(ctx, e.session, err); ok {
			return msg, nil
		}
		return fmt.Sprintf("Browser error extracting text: %v", err), nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return fmt.Sprintf("Could not parse page content: %v", err), nil
	}
	doc.Find("script, style, noscript").Remove()
	return truncate(collapseWhitespace(doc.Text()), fetchMaxChars), nil
}

type extractHyperlinksExecutor struct{ session BrowserSession }

func (e *extractHyperlinksExecutor) Execute(ctx context.Context, input map[string]interface{}) (string, error) {
	absolute, _ := input["absolute_urls"].(bool)

	content, err := e.session.Content(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if msg, ok := recoverDestroyedContext(ctx, e.session, err); ok {
			return msg, nil
		}
		return fmt.Sprintf("Browser error extracting hyperlinks: %v", err), nil
	}

	base := ""
	if absolute {
		base, err = e.session.CurrentURL(ctx)
		if err != nil {
			return fmt.Sprintf("Browser error getting current URL: %v", err), nil
		}
	}

	out, err := extractLinks(content, base, absolute)
	if err != nil {
		return fmt.Sprintf("Could not parse page content: %v", err), nil
	}
	return truncate(out, fetchMaxChars), nil
}

// extractLinks renders every anchor on the page as {"text","href"} JSON.
func extractLinks(pageHTML, base string, absolute bool) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return "", err
	}

	var baseURL *url.URL
	if absolute && base != "" {
		baseURL, _ = url.Parse(base)
	}

	links := []map[string]string{}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if baseURL != nil {
			if ref, err := url.Parse(href); err == nil {
				href = baseURL.ResolveReference(ref).String()
			}
		}
		links = append(links, map[string]string{
			"text": collapseWhitespace(a.Text()),
			"href": href,
		})
	})

	encoded, err := json.Marshal(links)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

type currentWebpageExecutor struct{ session BrowserSession }

func (e *currentWebpageExecutor) Execute(ctx context.Context, _ map[string]interface{}) (string, error) {
	current, err := e.session.CurrentURL(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if msg, ok := recoverDestroyedContext(ctx, e.session, err); ok {
			return msg, nil
		}
		return fmt.Sprintf("Browser error getting current URL: %v", err), nil
	}
	return current, nil
}

type previousWebpageExecutor struct{ session BrowserSession }

func (e *previousWebpageExecutor) Execute(ctx context.Context, _ map[string]interface{}) (string, error) {
	status, hasHistory, err := e.session.GoBack(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if msg, ok := recoverDestroyedContext(ctx, e.session, err); ok {
			return msg, nil
		}
		if isTimeoutErr(err) {
			return "Timed out navigating back.", nil
		}
		return fmt.Sprintf("Browser error navigating back: %v", err), nil
	}
	if !hasHistory {
		return "No previous page in browser history.", nil
	}

	current, err := e.session.CurrentURL(ctx)
	if err != nil {
		current = "previous page"
	}
	return fmt.Sprintf("Navigated back to %s (status %d)", current, status), nil
}
