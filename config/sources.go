package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/use-agent/uniassist/models"
)

type sourcesFile struct {
	Sources []sourceEntry `yaml:"sources"`
}

type sourceEntry struct {
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	Kind        string `yaml:"kind"`
	University  string `yaml:"university"`
	MaxItems    int    `yaml:"max_items"`
	PathPattern string `yaml:"path_pattern"`
	Active      *bool  `yaml:"active"`
}

// LoadSources reads the YAML sources file at path. Sources default to
// active; kind and URL are validated.
func LoadSources(path string) ([]models.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read sources: %w", err)
	}
	return ParseSources(data)
}

// ParseSources decodes a YAML sources document.
func ParseSources(data []byte) ([]models.Source, error) {
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse sources: %w", err)
	}

	out := make([]models.Source, 0, len(f.Sources))
	seen := make(map[string]bool, len(f.Sources))
	for i, e := range f.Sources {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("config: source %d: name is required", i)
		}
		id := slugify(name)
		if seen[id] {
			return nil, fmt.Errorf("config: source %q: duplicate name", name)
		}
		seen[id] = true

		kind, err := models.ParseKind(e.Kind)
		if err != nil {
			return nil, fmt.Errorf("config: source %q: %w", name, err)
		}
		u, err := url.Parse(e.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("config: source %q: invalid url %q", name, e.URL)
		}

		active := true
		if e.Active != nil {
			active = *e.Active
		}
		out = append(out, models.Source{
			ID:          id,
			Name:        name,
			URL:         u.String(),
			Kind:        kind,
			University:  e.University,
			MaxItems:    e.MaxItems,
			PathPattern: e.PathPattern,
			Active:      active,
		})
	}
	return out, nil
}

// slugify turns a source name into a stable identifier:
// "Northampton News" -> "northampton-news".
func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
