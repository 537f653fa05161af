package feed

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type catalogEntry struct {
	Kind     string `yaml:"kind"`
	URL      string `yaml:"url"`
	Name     string `yaml:"name"`
	Language string `yaml:"language"`
	Enabled  *bool  `yaml:"enabled"`
}

// LoadCatalog reads the feed catalog at path. A missing file is an empty
// catalog. Entries default to enabled.
func LoadCatalog(path string) ([]Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) ([]Feed, error) {
	var raw struct {
		Feeds []catalogEntry `yaml:"feeds"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse feed catalog: %w", err)
	}
	out := make([]Feed, 0, len(raw.Feeds))
	for _, e := range raw.Feeds {
		out = append(out, Feed{
			Kind:     e.Kind,
			URL:      e.URL,
			Name:     e.Name,
			Language: e.Language,
			Enabled:  e.Enabled == nil || *e.Enabled,
		})
	}
	return out, nil
}
