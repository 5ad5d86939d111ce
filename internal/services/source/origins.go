package source

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// OriginKind selects the fetch strategy for an origin.
type OriginKind string

const (
	// KindJSON reads a reddit-style JSON listing endpoint.
	KindJSON OriginKind = "json"
	// KindHTML scrapes a page with CSS selectors.
	KindHTML OriginKind = "html"
)

// Origin is one configured content source.
type Origin struct {
	Name     string     `yaml:"name"`
	Kind     OriginKind `yaml:"kind"`
	URL      string     `yaml:"url"`
	Priority int        `yaml:"priority"`

	// Selectors drive the HTML strategy and are ignored for JSON origins.
	Selectors Selectors `yaml:"selectors"`
}

// Selectors name the CSS paths used to pull stories out of an HTML page.
type Selectors struct {
	Item  string `yaml:"item"`
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
	Link  string `yaml:"link"`
}

type originsFile struct {
	Origins []Origin `yaml:"origins"`
}

// LoadOrigins reads and validates the origins file.
func LoadOrigins(path string) ([]Origin, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read origins file: %w", err)
	}
	var parsed originsFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse origins file: %w", err)
	}
	if len(parsed.Origins) == 0 {
		return nil, fmt.Errorf("origins file %s lists no origins", path)
	}

	for i := range parsed.Origins {
		origin := &parsed.Origins[i]
		origin.Name = strings.TrimSpace(origin.Name)
		origin.URL = strings.TrimSpace(origin.URL)
		if origin.Name == "" {
			return nil, fmt.Errorf("origin %d has no name", i+1)
		}
		if origin.URL == "" {
			return nil, fmt.Errorf("origin %q has no url", origin.Name)
		}
		switch origin.Kind {
		case KindJSON:
		case KindHTML:
			if origin.Selectors.Item == "" || origin.Selectors.Title == "" {
				return nil, fmt.Errorf("origin %q needs item and title selectors", origin.Name)
			}
		case "":
			origin.Kind = KindJSON
		default:
			return nil, fmt.Errorf("origin %q has unknown kind %q", origin.Name, origin.Kind)
		}
	}
	return parsed.Origins, nil
}
