package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/lead-finder/internal/domain"
)

type verticalsFile struct {
	Verticals []domain.Vertical `yaml:"verticals"`
}

// LoadVerticals returns the vertical table from a YAML file, or the built-in
// table when path is empty. Declaration order is kept; it decides classification.
func LoadVerticals(path string) ([]domain.Vertical, error) {
	if path == "" {
		return domain.DefaultVerticals(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read verticals file: %w", err)
	}

	var f verticalsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse verticals file %s: %w", path, err)
	}
	if len(f.Verticals) == 0 {
		return nil, errors.New("verticals file defines no verticals")
	}

	seen := make(map[string]bool, len(f.Verticals))
	for i, v := range f.Verticals {
		if v.Name == "" {
			return nil, fmt.Errorf("vertical %d: name is required", i)
		}
		if len(v.Predicate) == 0 {
			return nil, fmt.Errorf("vertical %q: at least one tag is required", v.Name)
		}
		if seen[v.Name] {
			return nil, fmt.Errorf("vertical %q: duplicate name", v.Name)
		}
		seen[v.Name] = true
	}
	return f.Verticals, nil
}
