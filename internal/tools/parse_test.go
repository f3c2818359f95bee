package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

const fixtureHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Quarterly Report</title>
  <meta name="description" content="Numbers for Q2">
  <meta property="og:title" content="Q2 Report">
  <meta property="og:type" content="article">
  <link rel="canonical" href="https://example.com/q2">
</head>
<body>
  <h1 class="headline">Results</h1>
  <p class="summary">Revenue   grew
  strongly.</p>
  <a href="/about">About</a>
  <a href="https://example.org/ext">External</a>
  <img src="/logo.png">
  <table>
    <tr><th>Region</th><th>Revenue</th></tr>
    <tr><td>EMEA</td><td>120</td></tr>
    <tr><td>APAC</td><td>95</td></tr>
  </table>
</body>
</html>`

func TestParseHTML_TextExtraction(t *testing.T) {
	out, err := ParseHTMLExecutor{}.Execute(context.Background(), map[string]interface{}{
		"html":     fixtureHTML,
		"selector": "p.summary",
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if out != "Revenue grew strongly." {
		t.Fatalf("output = %q, want collapsed text", out)
	}
}

func TestParseHTML_HTMLExtraction(t *testing.T) {
	out, err := ParseHTMLExecutor{}.Execute(context.Background(), map[string]interface{}{
		"html":     fixtureHTML,
		"selector": "h1.headline",
		"extract":  "html",
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(out, `<h1 class="headline">Results</h1>`) {
		t.Fatalf("output = %q, want outer HTML", out)
	}
}

func TestParseHTML_AttrsExtraction(t *testing.T) {
	out, err := ParseHTMLExecutor{}.Execute(context.Background(), map[string]interface{}{
		"html":     fixtureHTML,
		"selector": "a",
		"extract":  "attrs",
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	parts := strings.Split(out, "\n---\n")
	if len(parts) != 2 {
		t.Fatalf("got %d elements, want 2", len(parts))
	}
	var attrs map[string]string
	if err := json.Unmarshal([]byte(parts[0]), &attrs); err != nil {
		t.Fatalf("first element is not JSON: %v", err)
	}
	if attrs["href"] != "/about" {
		t.Fatalf("href = %q, want /about", attrs["href"])
	}
}

func TestParseHTML_NoMatches(t *testing.T) {
	out, err := ParseHTMLExecutor{}.Execute(context.Background(), map[string]interface{}{
		"html":     fixtureHTML,
		"selector": "div.missing",
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(out, "No elements found") {
		t.Fatalf("output = %q, want no-elements message", out)
	}
}

func TestParseHTML_InvalidSelector(t *testing.T) {
	out, err := ParseHTMLExecutor{}.Execute(context.Background(), map[string]interface{}{
		"html":     fixtureHTML,
		"selector": "p[unclosed",
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(out, "Invalid CSS selector") {
		t.Fatalf("output = %q, want invalid-selector message", out)
	}
}

func TestParseHTML_ElementCap(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < parseMaxElements+20; i++ {
		b.WriteString("<li>item</li>")
	}
	b.WriteString("</body></html>")

	out, err := ParseHTMLExecutor{}.Execute(context.Background(), map[string]interface{}{
		"html":     b.String(),
		"selector": "li",
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if got := strings.Count(out, "item"); got != parseMaxElements {
		t.Fatalf("got %d elements, want cap of %d", got, parseMaxElements)
	}
}

func TestExtractTable_Markdown(t *testing.T) {
	out, err := ExtractTableExecutor{}.Execute(context.Background(), map[string]interface{}{
		"html": fixtureHTML,
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	lines := strings.Split(out, "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4 (header, separator, 2 rows):\n%s", len(lines), out)
	}
	if lines[0] != "| Region | Revenue |" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != "| --- | --- |" {
		t.Fatalf("separator = %q", lines[1])
	}
	if lines[2] != "| EMEA | 120 |" {
		t.Fatalf("first row = %q", lines[2])
	}
}

func TestExtractTable_IndexOutOfRange(t *testing.T) {
	out, err := ExtractTableExecutor{}.Execute(context.Background(), map[string]interface{}{
		"html":        fixtureHTML,
		"table_index": float64(3), // JSON numbers arrive as float64
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(out, "out of range") {
		t.Fatalf("output = %q, want out-of-range message", out)
	}
}

func TestExtractTable_NoTables(t *testing.T) {
	out, err := ExtractTableExecutor{}.Execute(context.Background(), map[string]interface{}{
		"html": "<html><body><p>nothing here</p></body></html>",
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(out, "No tables found") {
		t.Fatalf("output = %q, want no-tables message", out)
	}
}

func TestExtractMetadata(t *testing.T) {
	out, err := ExtractMetadataExecutor{}.Execute(context.Background(), map[string]interface{}{
		"html": fixtureHTML,
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	var meta struct {
		Title        string            `json:"title"`
		Description  string            `json:"description"`
		CanonicalURL string            `json:"canonical_url"`
		OG           map[string]string `json:"og"`
		Counts       map[string]int    `json:"counts"`
	}
	if err := json.Unmarshal([]byte(out), &meta); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if meta.Title != "Quarterly Report" {
		t.Fatalf("title = %q", meta.Title)
	}
	if meta.Description != "Numbers for Q2" {
		t.Fatalf("description = %q", meta.Description)
	}
	if meta.CanonicalURL != "https://example.com/q2" {
		t.Fatalf("canonical_url = %q", meta.CanonicalURL)
	}
	if meta.OG["og:title"] != "Q2 Report" || meta.OG["og:type"] != "article" {
		t.Fatalf("og tags = %v", meta.OG)
	}
	if meta.Counts["links"] != 2 || meta.Counts["images"] != 1 || meta.Counts["tables"] != 1 {
		t.Fatalf("counts = %v", meta.Counts)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	got := collapseWhitespace("  a\tb\n\n c  ")
	if got != "a b c" {
		t.Fatalf("collapseWhitespace = %q, want %q", got, "a b c")
	}
}
