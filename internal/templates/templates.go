// Package templates loads the reply template catalog from a YAML file and
// keeps it current as the file changes on disk.
package templates

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"murmur/internal/logging"
)

// Template is one reply template.
type Template struct {
	ID       string    `yaml:"id"`
	Name     string    `yaml:"name"`
	Category string    `yaml:"category"`
	Keywords []string  `yaml:"keywords"`
	Text     string    `yaml:"text"`
	Priority int       `yaml:"priority"`
	Updated  time.Time `yaml:"updated_at"`
	// Active defaults to true when omitted.
	Active   *bool     `yaml:"active"`
}

// Enabled reports whether the template may be selected.
func (t Template) Enabled() bool {
	return t.Active == nil || *t.Active
}

// UpdatedAt reports when the template last changed.
func (t Template) UpdatedAt() time.Time {
	return t.Updated
}

type catalogFile struct {
	Templates []Template `yaml:"templates"`
}

// Catalog holds the active template set. Readers always see a complete
// snapshot; a reload that fails to parse keeps the previous one.
type Catalog struct {
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	templates []Template
	byID      map[string]Template
	loadedAt  time.Time
}

// Load reads the catalog at path. A missing file yields an empty catalog so
// the daemon can start before templates are authored.
func Load(path string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Catalog{
		path:   path,
		logger: logging.NewComponentLogger(logger, "templates"),
		byID:   map[string]Template{},
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the catalog file location.
func (c *Catalog) Path() string {
	return c.path
}

// Reload re-reads the catalog file.
func (c *Catalog) Reload() error {
	templates, disabled, err := readCatalog(c.path)
	if err != nil {
		return err
	}
	byID := make(map[string]Template, len(templates))
	for _, tpl := range templates {
		byID[tpl.ID] = tpl
	}

	c.mu.Lock()
	c.templates = templates
	c.byID = byID
	c.loadedAt = time.Now()
	c.mu.Unlock()

	c.logger.Info("template catalog loaded",
		logging.String("path", c.path),
		logging.Int("templates", len(templates)),
		logging.Int("disabled", disabled),
		logging.String(logging.FieldEventType, "templates_loaded"),
	)
	return nil
}

// Snapshot returns a copy of the active templates ordered by ID.
func (c *Catalog) Snapshot() []Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Template, len(c.templates))
	copy(out, c.templates)
	return out
}

// Get returns the template with the given ID.
func (c *Catalog) Get(id string) (Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tpl, ok := c.byID[id]
	return tpl, ok
}

// Len returns the number of active templates.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.templates)
}

// readCatalog parses and validates the catalog file. Inactive templates are
// validated like the rest and then left out of the returned set.
func readCatalog(path string) ([]Template, int, error) {
	if strings.TrimSpace(path) == "" {
		return nil, 0, nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("stat template catalog: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read template catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, 0, fmt.Errorf("parse template catalog %s: %w", path, err)
	}

	disabled := 0
	seen := make(map[string]struct{}, len(file.Templates))
	templates := make([]Template, 0, len(file.Templates))
	for i, tpl := range file.Templates {
		tpl.ID = strings.TrimSpace(tpl.ID)
		tpl.Category = strings.TrimSpace(tpl.Category)
		if tpl.ID == "" {
			return nil, 0, fmt.Errorf("templates[%d].id must be set", i)
		}
		if _, dup := seen[tpl.ID]; dup {
			return nil, 0, fmt.Errorf("templates[%d].id %q is duplicated", i, tpl.ID)
		}
		seen[tpl.ID] = struct{}{}
		if strings.TrimSpace(tpl.Text) == "" {
			return nil, 0, fmt.Errorf("templates[%d].text must be set", i)
		}
		keywords := tpl.Keywords[:0]
		for _, kw := range tpl.Keywords {
			if kw = strings.TrimSpace(kw); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		tpl.Keywords = keywords
		if tpl.Updated.IsZero() {
			tpl.Updated = info.ModTime().UTC()
		}
		if !tpl.Enabled() {
			disabled++
			continue
		}
		templates = append(templates, tpl)
	}
	sort.Slice(templates, func(a, b int) bool { return templates[a].ID < templates[b].ID })
	return templates, disabled, nil
}
