package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/mainbong/copilot_kit/internal/filesystem"
	"github.com/mainbong/copilot_kit/internal/logger"
	"github.com/mainbong/copilot_kit/internal/tools"
)

// ErrUnsupportedFormat is returned for files that are not yaml, toml or json
var ErrUnsupportedFormat = errors.New("unsupported manifest format")

// File is the on-disk shape of a tool manifest
type File struct {
	Tools []tools.Descriptor `json:"tools" yaml:"tools" toml:"tools"`
}

// Supported reports whether path has a manifest extension
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".toml", ".json":
		return true
	}
	return false
}

// Parse decodes manifest data according to the extension of name
func Parse(name string, data []byte) ([]tools.Descriptor, error) {
	var f File
	var err error
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	case ".toml":
		err = toml.Unmarshal(data, &f)
	case ".json":
		err = json.Unmarshal(data, &f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}

	for i, d := range f.Tools {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%s: tool #%d: %w", name, i+1, err)
		}
	}
	return f.Tools, nil
}

// LoadFile reads one manifest file
func LoadFile(fs filesystem.FileSystem, path string) ([]tools.Descriptor, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(path, data)
}

// Load reads a manifest file, or every manifest below a directory in
// lexical order. A tool whose sanitized id was already loaded is skipped.
func Load(fs filesystem.FileSystem, path string) ([]tools.Descriptor, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat manifest path: %w", err)
	}
	if !info.IsDir() {
		return LoadFile(fs, path)
	}

	var files []string
	err = fs.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && Supported(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan manifest directory: %w", err)
	}
	sort.Strings(files)

	var all []tools.Descriptor
	seen := map[string]string{}
	for _, file := range files {
		descriptors, err := LoadFile(fs, file)
		if err != nil {
			return nil, err
		}
		for _, d := range descriptors {
			key := d.Definition().Name
			if prev, ok := seen[key]; ok {
				logger.Warn("tool %s in %s is already defined in %s, skipping", key, file, prev)
				continue
			}
			seen[key] = file
			all = append(all, d)
		}
	}
	return all, nil
}
