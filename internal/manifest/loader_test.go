package manifest

import (
	"errors"
	"testing"

	"github.com/mainbong/copilot_kit/internal/filesystem"
	"github.com/mainbong/copilot_kit/internal/tools"
)

const yamlManifest = `tools:
  - id: weather.lookup
    name: Weather
    description: Current weather for a city
    route: https://tools.test/weather
    transport: http
    input_schema:
      type: object
      properties:
        city:
          type: string
  - id: clock
    route: __local__
`

const tomlManifest = `[[tools]]
id = "kb.search"
name = "Knowledge search"
description = "Search the knowledge base"
route = "https://tools.test/kb"
`

const jsonManifest = `{"tools":[{"id":"notes","route":"__local__","description":"Notes"}]}`

func TestParse_Formats(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		data  string
		count int
		first string
	}{
		{"yaml", "tools.yaml", yamlManifest, 2, "weather.lookup"},
		{"yml", "tools.YML", yamlManifest, 2, "weather.lookup"},
		{"toml", "tools.toml", tomlManifest, 1, "kb.search"},
		{"json", "tools.json", jsonManifest, 1, "notes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.file, []byte(tt.data))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(got) != tt.count || got[0].ID != tt.first {
				t.Errorf("Parse() = %+v", got)
			}
		})
	}
}

func TestParse_YAMLDetails(t *testing.T) {
	got, err := Parse("tools.yaml", []byte(yamlManifest))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	w := got[0]
	if w.Transport != tools.TransportHTTP || w.Name != "Weather" {
		t.Errorf("descriptor = %+v", w)
	}
	props, ok := w.InputSchema["properties"].(map[string]interface{})
	if !ok || props["city"] == nil {
		t.Errorf("input schema = %#v", w.InputSchema)
	}
	if !got[1].IsLocal() {
		t.Errorf("clock should be local: %+v", got[1])
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := Parse("tools.ini", []byte("x")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := Parse("tools.json", []byte("{not json")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Parse("tools.yaml", []byte("tools:\n  - id: x\n")); err == nil {
		t.Error("expected validation error for a tool without route")
	}
}

func TestLoad_File(t *testing.T) {
	fs := filesystem.NewMockFileSystem()
	fs.AddFile("/etc/copilot/tools.toml", []byte(tomlManifest), 0644)

	got, err := Load(fs, "/etc/copilot/tools.toml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 1 || got[0].Name != "Knowledge search" {
		t.Errorf("Load() = %+v", got)
	}
}

func TestLoad_Directory(t *testing.T) {
	fs := filesystem.NewMockFileSystem()
	fs.AddDir("/tools", 0755)
	fs.AddFile("/tools/a.yaml", []byte(yamlManifest), 0644)
	fs.AddFile("/tools/b.json", []byte(jsonManifest), 0644)
	fs.AddFile("/tools/c.json", []byte(`{"tools":[{"id":"weather_lookup","route":"__local__"}]}`), 0644)
	fs.AddFile("/tools/README.md", []byte("# not a manifest"), 0644)

	got, err := Load(fs, "/tools")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	ids := make([]string, len(got))
	for i, d := range got {
		ids[i] = d.ID
	}
	// c.json redefines weather.lookup under its sanitized name and is skipped
	want := []string{"weather.lookup", "clock", "notes"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids = %v, want %v", ids, want)
			break
		}
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filesystem.NewMockFileSystem(), "/nope"); err == nil {
		t.Error("expected error for a missing path")
	}
}
