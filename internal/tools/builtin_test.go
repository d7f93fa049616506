package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/mainbong/copilot_kit/internal/httpclient"
	"github.com/mainbong/copilot_kit/internal/llm"
)

func TestBuiltin_WebSearch(t *testing.T) {
	mockClient := httpclient.NewMockHTTPClient()
	htmlResponse := `<html><body>
<div class="result"><a class="result__a" href="https://go.dev">The Go Programming Language</a>
<a class="result__snippet">Build simple, secure, scalable systems.</a></div>
<div class="result"><a class="result__a" href="https://pkg.go.dev">Go Packages</a></div>
</body></html>`
	mockClient.SetResponse("https://html.duckduckgo.com/html/?q=golang", 200, htmlResponse, nil)

	d := NewDispatcher()
	RegisterBuiltins(d, mockClient)
	res := d.Dispatch(context.Background(), llm.ToolCall{Name: WebSearchTool, Arguments: map[string]interface{}{"query": "golang", "limit": 1.0}}, BuiltinDescriptors())
	if !res.OK() {
		t.Fatalf("Dispatch() err = %v", res.Err)
	}
	results := res.Value.([]SearchResult)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].URL != "https://go.dev" || results[0].Snippet != "Build simple, secure, scalable systems." {
		t.Errorf("result = %+v", results[0])
	}
}

func TestBuiltin_WebSearchRequiresQuery(t *testing.T) {
	d := NewDispatcher()
	RegisterBuiltins(d, httpclient.NewMockHTTPClient())
	if res := d.Dispatch(context.Background(), llm.ToolCall{Name: WebSearchTool}, BuiltinDescriptors()); res.OK() {
		t.Error("expected failure without a query")
	}
}

func TestBuiltin_WebPageText(t *testing.T) {
	mockClient := httpclient.NewMockHTTPClient()
	mockClient.SetResponse("https://example.test/page", 200, `<html><head><title>T</title><style>body{}</style></head>
<body><h1>Hello</h1><script>var x = 1;</script><p>Visible   text
here.</p></body></html>`, nil)

	d := NewDispatcher()
	RegisterBuiltins(d, mockClient)
	res := d.Dispatch(context.Background(), llm.ToolCall{Name: WebPageTextTool, Arguments: map[string]interface{}{"url": "https://example.test/page"}}, BuiltinDescriptors())
	if !res.OK() {
		t.Fatalf("Dispatch() err = %v", res.Err)
	}
	text := res.Value.(string)
	if text != "Hello\nVisible text here." {
		t.Errorf("text = %q", text)
	}
	if strings.Contains(text, "var x") || strings.Contains(text, "body{}") {
		t.Errorf("script or style leaked: %q", text)
	}
}

func TestBuiltin_WebPageTextRejectsBadURL(t *testing.T) {
	d := NewDispatcher()
	RegisterBuiltins(d, httpclient.NewMockHTTPClient())
	for _, u := range []string{"", "file:///etc/passwd", "not a url"} {
		res := d.Dispatch(context.Background(), llm.ToolCall{Name: WebPageTextTool, Arguments: map[string]interface{}{"url": u}}, BuiltinDescriptors())
		if res.OK() {
			t.Errorf("url %q accepted", u)
		}
	}
}

func TestBuiltin_CurrentTime(t *testing.T) {
	d := NewDispatcher()
	RegisterBuiltins(d, nil)

	res := d.Dispatch(context.Background(), llm.ToolCall{Name: CurrentTimeTool, Arguments: map[string]interface{}{"timezone": "UTC"}}, BuiltinDescriptors())
	if !res.OK() {
		t.Fatalf("Dispatch() err = %v", res.Err)
	}
	m := res.Value.(map[string]interface{})
	if m["timezone"] != "UTC" || !strings.HasSuffix(m["time"].(string), "Z") {
		t.Errorf("value = %v", m)
	}

	if res := d.Dispatch(context.Background(), llm.ToolCall{Name: CurrentTimeTool, Arguments: map[string]interface{}{"timezone": "Mars/Olympus"}}, BuiltinDescriptors()); res.OK() {
		t.Error("expected failure for unknown timezone")
	}
}

func TestResultTarget(t *testing.T) {
	tests := []struct{ href, want string }{
		{"//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&rut=abc", "https://go.dev/doc/"},
		{"https://go.dev", "https://go.dev"},
		{" https://example.com/l/?x=1 ", "https://example.com/l/?x=1"},
	}
	for _, tt := range tests {
		if got := resultTarget(tt.href); got != tt.want {
			t.Errorf("resultTarget(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}
