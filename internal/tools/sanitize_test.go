package tools

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"get_weather", "get_weather"},
		{"My Tool!", "My_Tool_"},
		{"My_Tool_", "My_Tool_"},
		{"a.b/c", "a_b_c"},
		{"dash-ok", "dash-ok"},
		{"héllo", "h_llo"},
		{"", ""},
		{strings.Repeat("x", 80), strings.Repeat("x", MaxNameLength)},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"My Tool!", "search.web", "日本語ツール", "a b\tc\nd", "emoji 🚀 tool",
		strings.Repeat("é", 100), "__local__", "tool-name_01",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		if twice := Sanitize(once); twice != once {
			t.Errorf("Sanitize(Sanitize(%q)) = %q, want %q", in, twice, once)
		}
		if len([]rune(once)) > MaxNameLength {
			t.Errorf("Sanitize(%q) is %d runes long", in, len([]rune(once)))
		}
	}
}

func TestMatch(t *testing.T) {
	descriptors := []Descriptor{
		{ID: "weather.lookup", Name: "Weather Lookup", Route: LocalRoute},
		{Name: "My Tool!", Route: LocalRoute},
	}

	tests := []struct {
		call   string
		wantOK bool
		wantID string
	}{
		{"weather_lookup", true, "weather.lookup"},
		{"Weather_Lookup", true, "weather.lookup"},
		{"My_Tool_", true, ""},
		{"my_tool_", false, ""},
		{"unknown", false, ""},
		{"", false, ""},
	}
	for _, tt := range tests {
		d, ok := Match(tt.call, descriptors)
		if ok != tt.wantOK {
			t.Errorf("Match(%q) ok = %v, want %v", tt.call, ok, tt.wantOK)
			continue
		}
		if ok && d.ID != tt.wantID {
			t.Errorf("Match(%q) = %+v", tt.call, d)
		}
	}
}

func TestDescriptorDefinition(t *testing.T) {
	def := Descriptor{ID: "kb.search", Name: "Knowledge search", Description: "d"}.Definition()
	if def.Name != "kb_search" {
		t.Errorf("Name = %q", def.Name)
	}
	if def.InputSchema == nil {
		t.Error("expected a default object schema")
	}
	if got := Definitions(BuiltinDescriptors()); len(got) != 3 {
		t.Errorf("Definitions() = %d tools", len(got))
	}
}

func TestDescriptorValidate(t *testing.T) {
	tests := []struct {
		name    string
		d       Descriptor
		wantErr bool
	}{
		{"local", Descriptor{ID: "a", Route: LocalRoute}, false},
		{"http", Descriptor{ID: "a", Route: "https://tools.test/a", Transport: TransportHTTP}, false},
		{"default sse", Descriptor{ID: "a", Route: "http://tools.test/a"}, false},
		{"no id", Descriptor{Route: LocalRoute}, true},
		{"no route", Descriptor{ID: "a"}, true},
		{"bad transport", Descriptor{ID: "a", Route: "http://tools.test", Transport: "grpc"}, true},
		{"relative route", Descriptor{ID: "a", Route: "/tools/a"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.d.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
