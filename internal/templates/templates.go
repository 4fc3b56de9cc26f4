// Package templates holds the catalog of OS-specific task templates: short
// command sequences with {{PLACEHOLDER}} parameters.
package templates

import (
	_ "embed"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/acolita/shelltabs/internal/adapters/realfs"
	"github.com/acolita/shelltabs/internal/ports"
	"github.com/acolita/shelltabs/internal/probe"
	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

//go:embed builtin.yaml
var builtin []byte

var placeholderPattern = regexp.MustCompile(`\{\{([A-Z0-9_]+)\}\}`)

// Placeholder is one parameter of a template.
type Placeholder struct {
	Name    string `yaml:"name" json:"name"`
	Prompt  string `yaml:"prompt" json:"prompt"`
	Default string `yaml:"default,omitempty" json:"default,omitempty"`
}

// Template is a named command sequence for a set of OS families.
type Template struct {
	ID           string        `yaml:"id" json:"id"`
	Name         string        `yaml:"name" json:"name"`
	Description  string        `yaml:"description" json:"description"`
	OS           []string      `yaml:"os" json:"os"`
	Placeholders []Placeholder `yaml:"placeholders,omitempty" json:"placeholders,omitempty"`
	Commands     []string      `yaml:"commands" json:"commands"`
}

// Supports reports whether the template runs on family.
func (t Template) Supports(family probe.OSFamily) bool {
	for _, os := range t.OS {
		if os == string(family) {
			return true
		}
		// A plain "Linux" template covers any more specific Linux family.
		if os == string(probe.Linux) && strings.HasPrefix(string(family), string(probe.Linux)) {
			return true
		}
	}
	return false
}

// Render substitutes values into the commands. Placeholders without a value
// fall back to their default; a placeholder with neither is an error.
func (t Template) Render(values map[string]string) ([]string, error) {
	resolved := make(map[string]string, len(t.Placeholders))
	var missing []string
	for _, p := range t.Placeholders {
		v, ok := values[p.Name]
		if !ok || v == "" {
			v = p.Default
		}
		if v == "" {
			missing = append(missing, p.Name)
			continue
		}
		resolved[p.Name] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("template %s: missing values for %s", t.ID, strings.Join(missing, ", "))
	}

	out := make([]string, len(t.Commands))
	for i, cmd := range t.Commands {
		out[i] = placeholderPattern.ReplaceAllStringFunc(cmd, func(m string) string {
			name := m[2 : len(m)-2]
			if v, ok := resolved[name]; ok {
				return v
			}
			return m
		})
	}
	return out, nil
}

// Script joins rendered commands into one line that stops at the first
// failure.
func Script(commands []string) string {
	return strings.Join(commands, " && ")
}

// Catalog is an immutable set of templates keyed by id.
type Catalog struct {
	byID  map[string]Template
	order []string
}

// Option configures Load.
type Option func(*loader)

type loader struct {
	fs ports.FileSystem
}

// WithFileSystem sets the filesystem user template files are read from.
func WithFileSystem(fs ports.FileSystem) Option {
	return func(l *loader) { l.fs = fs }
}

// Load returns the built-in templates plus those in files matching the
// doublestar globs in patterns. A user template replaces a built-in one with
// the same id.
func Load(patterns []string, opts ...Option) (*Catalog, error) {
	l := &loader{fs: realfs.New()}
	for _, opt := range opts {
		opt(l)
	}

	c := &Catalog{byID: make(map[string]Template)}
	if err := c.add(builtin, "builtin"); err != nil {
		return nil, err
	}

	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("template glob %q: %w", pattern, err)
		}
		sort.Strings(matches)
		for _, path := range matches {
			data, err := l.fs.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read templates %s: %w", path, err)
			}
			if err := c.add(data, path); err != nil {
				return nil, err
			}
			slog.Debug("loaded templates", slog.String("path", path))
		}
	}
	return c, nil
}

// Parse builds a catalog from YAML alone, without the built-ins.
func Parse(data []byte) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Template)}
	if err := c.add(data, "input"); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) add(data []byte, source string) error {
	var list []Template
	if err := yaml.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("parse templates %s: %w", source, err)
	}
	for i, t := range list {
		if err := validate(t); err != nil {
			return fmt.Errorf("templates %s entry %d: %w", source, i, err)
		}
		if _, exists := c.byID[t.ID]; !exists {
			c.order = append(c.order, t.ID)
		}
		c.byID[t.ID] = t
	}
	return nil
}

func validate(t Template) error {
	switch {
	case t.ID == "":
		return fmt.Errorf("missing id")
	case t.Name == "":
		return fmt.Errorf("%s: missing name", t.ID)
	case len(t.Commands) == 0:
		return fmt.Errorf("%s: no commands", t.ID)
	case len(t.OS) == 0:
		return fmt.Errorf("%s: no os families", t.ID)
	}
	seen := make(map[string]bool, len(t.Placeholders))
	for _, p := range t.Placeholders {
		if !placeholderPattern.MatchString("{{" + p.Name + "}}") {
			return fmt.Errorf("%s: invalid placeholder name %q", t.ID, p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("%s: duplicate placeholder %s", t.ID, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// Get returns the template with id.
func (c *Catalog) Get(id string) (Template, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// All returns every template in load order.
func (c *Catalog) All() []Template {
	out := make([]Template, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// ForOS returns the templates supporting family. An unidentified family
// gets none.
func (c *Catalog) ForOS(family probe.OSFamily) []Template {
	if !family.Known() {
		return nil
	}
	var out []Template
	for _, id := range c.order {
		if t := c.byID[id]; t.Supports(family) {
			out = append(out, t)
		}
	}
	return out
}
