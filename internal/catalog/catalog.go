// Package catalog holds the static property catalog used before a registry
// is deployed and as the payload of a full push.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/property_registry/internal/domain/property"
)

//go:embed properties.yaml
var seed []byte

var defaultCatalog = mustParse(seed)

type document struct {
	Properties []property.Property `yaml:"properties"`
}

// Default returns a copy of the embedded catalog.
func Default() []property.Property {
	out := make([]property.Property, len(defaultCatalog))
	copy(out, defaultCatalog)
	return out
}

// Load returns the catalog at path, or the embedded one when path is empty.
func Load(path string) ([]property.Property, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a catalog document. Missing slugs are derived from titles,
// statuses are normalized and every entry is validated. Slugs must be unique.
func Parse(data []byte) ([]property.Property, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	seen := make(map[string]bool, len(doc.Properties))
	items := make([]property.Property, 0, len(doc.Properties))
	for i, p := range doc.Properties {
		p.Status = property.ParseStatus(string(p.Status))
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}
		p.Slug = p.Key()
		if seen[p.Slug] {
			return nil, fmt.Errorf("catalog entry %d: duplicate slug %q", i, p.Slug)
		}
		seen[p.Slug] = true
		items = append(items, p)
	}
	return items, nil
}

func mustParse(data []byte) []property.Property {
	items, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return items
}
