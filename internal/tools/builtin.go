package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/mainbong/copilot_kit/internal/httpclient"
)

const (
	WebSearchTool   = "web_search"
	WebPageTextTool = "web_page_text"
	CurrentTimeTool = "current_time"

	defaultSearchLimit = 5
	maxPageTextChars   = 20000
	maxPageBytes       = 4 << 20
	userAgent          = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// SearchURL is the HTML endpoint used by web_search
var SearchURL = "https://html.duckduckgo.com/html/"

// SearchResult is one web_search hit
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// BuiltinDescriptors describes the local tools registered by RegisterBuiltins
func BuiltinDescriptors() []Descriptor {
	return []Descriptor{
		{
			ID:          WebSearchTool,
			Name:        WebSearchTool,
			Description: "Search the web and return titles, URLs and snippets of the top results.",
			Route:       LocalRoute,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{"type": "string", "description": "Search query"},
					"limit": map[string]interface{}{"type": "integer", "description": "Maximum number of results"},
				},
				"required": []string{"query"},
			},
		},
		{
			ID:          WebPageTextTool,
			Name:        WebPageTextTool,
			Description: "Fetch a web page and return its visible text.",
			Route:       LocalRoute,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"url": map[string]interface{}{"type": "string", "description": "Absolute http(s) URL"},
				},
				"required": []string{"url"},
			},
		},
		{
			ID:          CurrentTimeTool,
			Name:        CurrentTimeTool,
			Description: "Return the current time, optionally in an IANA time zone.",
			Route:       LocalRoute,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"timezone": map[string]interface{}{"type": "string", "description": "IANA zone such as Europe/Berlin"},
				},
			},
		},
	}
}

// RegisterBuiltins registers the built-in local runners
func RegisterBuiltins(d *Dispatcher, client httpclient.HTTPClient) {
	if client == nil {
		client = httpclient.NewDefaultHTTPClient()
	}
	d.RegisterRunner(WebSearchTool, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		query, _ := args["query"].(string)
		if strings.TrimSpace(query) == "" {
			return nil, fmt.Errorf("query is required")
		}
		limit := defaultSearchLimit
		if n, ok := args["limit"].(float64); ok && n > 0 {
			limit = int(n)
		}
		ReportProgress(ctx, fmt.Sprintf("Searching the web for %q\n", query))
		return webSearch(ctx, client, query, limit)
	})
	d.RegisterRunner(WebPageTextTool, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		target, _ := args["url"].(string)
		return webPageText(ctx, client, target)
	})
	d.RegisterRunner(CurrentTimeTool, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		loc := time.Local
		if tz, _ := args["timezone"].(string); tz != "" {
			l, err := time.LoadLocation(tz)
			if err != nil {
				return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
			}
			loc = l
		}
		now := time.Now().In(loc)
		return map[string]interface{}{
			"time":     now.Format(time.RFC3339),
			"timezone": loc.String(),
			"unix":     now.Unix(),
		}, nil
	})
}

func fetch(ctx context.Context, client httpclient.HTTPClient, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %d", target, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

func webSearch(ctx context.Context, client httpclient.HTTPClient, query string, limit int) ([]SearchResult, error) {
	body, err := fetch(ctx, client, SearchURL+"?q="+url.QueryEscape(query))
	if err != nil {
		return nil, err
	}
	return parseSearchResults(string(body), limit), nil
}

func webPageText(ctx context.Context, client httpclient.HTTPClient, target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("url must be an absolute http(s) URL")
	}
	body, err := fetch(ctx, client, target)
	if err != nil {
		return "", err
	}
	text, err := visibleText(string(body))
	if err != nil {
		return "", err
	}
	if runes := []rune(text); len(runes) > maxPageTextChars {
		text = string(runes[:maxPageTextChars]) + "..."
	}
	return text, nil
}

func parseSearchResults(raw string, limit int) []SearchResult {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil
	}

	var results []SearchResult
	for _, link := range findAll(doc, withClass("result__a")) {
		if limit > 0 && len(results) >= limit {
			break
		}
		hit := SearchResult{
			Title: strings.TrimSpace(textOf(link)),
			URL:   resultTarget(attr(link, "href")),
		}
		if block := closest(link, withClass("result")); block != nil {
			if snippets := findAll(block, withClass("result__snippet")); len(snippets) > 0 {
				hit.Snippet = strings.TrimSpace(textOf(snippets[0]))
			}
		}
		if hit.Title != "" || hit.URL != "" {
			results = append(results, hit)
		}
	}
	return results
}

// resultTarget unwraps the search engine's redirect link to the destination URL
func resultTarget(href string) string {
	href = strings.TrimSpace(href)
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if dest := u.Query().Get("uddg"); dest != "" && strings.HasSuffix(u.Path, "/l/") {
		return dest
	}
	return href
}

// visibleText joins the text nodes of a document outside script, style and head
func visibleText(raw string) (string, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head", "template", "svg":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
				parts = append(parts, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(parts, "\n"), nil
}

type nodeMatcher func(*html.Node) bool

func withClass(class string) nodeMatcher {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == class {
				return true
			}
		}
		return false
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// findAll returns matching nodes in document order without descending into matches
func findAll(root *html.Node, match nodeMatcher) []*html.Node {
	var out []*html.Node
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	return out
}

// closest returns the nearest ancestor of n that matches
func closest(n *html.Node, match nodeMatcher) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if match(p) {
			return p
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textOf(c))
	}
	return b.String()
}
