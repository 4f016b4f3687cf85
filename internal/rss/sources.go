package rss

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"geopulse/internal/model"
)

// Source is one configured feed. The perspective is attached here, at
// configuration time; it is never inferred from article content.
type Source struct {
	Name        string            `yaml:"name"`
	URL         string            `yaml:"url"`
	Perspective model.Perspective `yaml:"perspective"`
}

type sourcesConfig struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads the feed list from a YAML file and validates it.
func LoadSources(path string) ([]Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg sourcesConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse sources config: %w", err)
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("no sources configured in %s", path)
	}

	seen := make(map[string]bool, len(cfg.Sources))
	for i, src := range cfg.Sources {
		if src.Name == "" || src.URL == "" {
			return nil, fmt.Errorf("source %d: name and url are required", i)
		}
		if seen[src.Name] {
			return nil, fmt.Errorf("duplicate source name %q", src.Name)
		}
		seen[src.Name] = true
		if src.Perspective == "" {
			cfg.Sources[i].Perspective = model.PerspectiveOther
		} else if !src.Perspective.Valid() {
			return nil, fmt.Errorf("source %q: unknown perspective %q", src.Name, src.Perspective)
		}
	}

	return cfg.Sources, nil
}
