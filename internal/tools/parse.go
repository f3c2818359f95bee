package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/szaher/missiongate/internal/llm"
)

const (
	parseMaxChars    = 10_000
	parseMaxElements = 50
)

// ParseHTMLDefinition describes the parse_html tool to the model.
func ParseHTMLDefinition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "parse_html",
		Description: "Parse HTML with a CSS selector. extract: 'text', 'html', or 'attrs'.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"html":     map[string]interface{}{"type": "string"},
				"selector": map[string]interface{}{"type": "string"},
				"extract":  map[string]interface{}{"type": "string", "enum": []string{"text", "html", "attrs"}},
			},
			"required": []string{"html", "selector"},
		},
	}
}

// ParseHTMLExecutor extracts elements from HTML using CSS selectors.
type ParseHTMLExecutor struct{}

// Execute selects up to parseMaxElements elements and renders each according
// to the extract mode.
func (ParseHTMLExecutor) Execute(_ context.Context, input map[string]interface{}) (string, error) {
	htmlIn := stringArg(input, "html")
	selector := stringArg(input, "selector")
	extract := stringArg(input, "extract")
	if extract == "" {
		extract = "text"
	}

	sel, err := cascadia.Compile(selector)
	if err != nil {
		return fmt.Sprintf("Invalid CSS selector %q: %v", selector, err), nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlIn))
	if err != nil {
		return fmt.Sprintf("Could not parse HTML: %v", err), nil
	}

	matches := doc.FindMatcher(sel)
	if matches.Length() == 0 {
		return fmt.Sprintf("No elements found matching selector '%s'.", selector), nil
	}

	var results []string
	matches.EachWithBreak(func(i int, el *goquery.Selection) bool {
		if i >= parseMaxElements {
			return false
		}
		switch extract {
		case "html":
			h, err := goquery.OuterHtml(el)
			if err != nil {
				h = fmt.Sprintf("(error rendering element: %v)", err)
			}
			results = append(results, h)
		case "attrs":
			attrs := make(map[string]string)
			for _, a := range el.Nodes[0].Attr {
				attrs[a.Key] = a.Val
			}
			encoded, _ := json.Marshal(attrs)
			results = append(results, string(encoded))
		default:
			results = append(results, collapseWhitespace(el.Text()))
		}
		return true
	})

	return truncate(strings.Join(results, "\n---\n"), parseMaxChars), nil
}

// ExtractTableDefinition describes the extract_table_data tool to the model.
func ExtractTableDefinition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "extract_table_data",
		Description: "Extract a table from HTML into markdown. table_index is 0-based.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"html":        map[string]interface{}{"type": "string"},
				"table_index": map[string]interface{}{"type": "integer"},
			},
			"required": []string{"html"},
		},
	}
}

// ExtractTableExecutor renders one HTML table as a markdown table.
type ExtractTableExecutor struct{}

// Execute converts the table at table_index into markdown rows.
func (ExtractTableExecutor) Execute(_ context.Context, input map[string]interface{}) (string, error) {
	htmlIn := stringArg(input, "html")
	tableIndex := intArg(input, "table_index", 0)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlIn))
	if err != nil {
		return fmt.Sprintf("Could not parse HTML: %v", err), nil
	}

	tables := doc.Find("table")
	if tables.Length() == 0 {
		return "No tables found in the HTML.", nil
	}
	if tableIndex < 0 || tableIndex >= tables.Length() {
		return fmt.Sprintf("table_index %d is out of range. Found %d table(s) (indices 0-%d).",
			tableIndex, tables.Length(), tables.Length()-1), nil
	}

	rows := tables.Eq(tableIndex).Find("tr")
	if rows.Length() == 0 {
		return "Table has no rows.", nil
	}

	var md []string
	rows.Each(func(i int, row *goquery.Selection) {
		var values []string
		row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			values = append(values, collapseWhitespace(cell.Text()))
		})
		md = append(md, "| "+strings.Join(values, " | ")+" |")
		if i == 0 {
			seps := make([]string, len(values))
			for j := range seps {
				seps[j] = "---"
			}
			md = append(md, "| "+strings.Join(seps, " | ")+" |")
		}
	})

	return truncate(strings.Join(md, "\n"), parseMaxChars), nil
}

// ExtractMetadataDefinition describes the extract_metadata tool to the model.
func ExtractMetadataDefinition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "extract_metadata",
		Description: "Extract page metadata (title, description, OG tags, link/image/table counts) as JSON.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"html": map[string]interface{}{"type": "string"},
			},
			"required": []string{"html"},
		},
	}
}

// ExtractMetadataExecutor summarizes page metadata as JSON.
type ExtractMetadataExecutor struct{}

// Execute collects the title, description, canonical URL, OpenGraph tags,
// and element counts from the HTML.
func (ExtractMetadataExecutor) Execute(_ context.Context, input map[string]interface{}) (string, error) {
	htmlIn := stringArg(input, "html")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlIn))
	if err != nil {
		return fmt.Sprintf("Could not parse HTML: %v", err), nil
	}

	og := make(map[string]string)
	doc.Find("meta[property]").Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		if strings.HasPrefix(prop, "og:") {
			og[prop], _ = s.Attr("content")
		}
	})

	meta := map[string]interface{}{
		"title":         strings.TrimSpace(doc.Find("title").First().Text()),
		"description":   doc.Find(`meta[name="description"]`).First().AttrOr("content", ""),
		"canonical_url": doc.Find(`link[rel="canonical"]`).First().AttrOr("href", ""),
		"og":            og,
		"counts": map[string]int{
			"links":  doc.Find("a").Length(),
			"images": doc.Find("img").Length(),
			"tables": doc.Find("table").Length(),
		},
	}

	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Sprintf("Could not encode metadata: %v", err), nil
	}
	return string(encoded), nil
}

// collapseWhitespace joins all whitespace runs into single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
