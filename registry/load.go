package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadDocument reads and parses a registry Document from path. Supported
// formats mirror the root package's LoadConfig: JSON (.json) and YAML
// (.yaml, .yml).
func LoadDocument(path string) (Document, error) {
	var doc Document

	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return doc, fmt.Errorf("reading registry document: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return doc, fmt.Errorf("parsing YAML registry document: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return doc, fmt.Errorf("parsing JSON registry document: %w", err)
		}
	default:
		return doc, fmt.Errorf("unsupported registry document extension %q: use .json, .yaml, or .yml", ext)
	}

	return doc, nil
}
