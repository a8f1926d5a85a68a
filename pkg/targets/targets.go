package targets

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/menta2k/spywhere/pkg/types"
)

// MinVertices is the smallest vertex count that encloses an area
const MinVertices = 3

// Loader decodes target files
type Loader struct {
	config Config
	logger *slog.Logger
}

// Config holds configuration for the target loader
type Config struct {
	// Strict turns polygons with fewer than MinVertices vertices into a load error
	Strict bool
	// AllowEmpty permits targets without polygons
	AllowEmpty bool
}

// Catalogue is an ordered, read-only list of targets
type Catalogue struct {
	targets []types.Target
}

// New creates a lenient Loader that logs through logger
func New(logger *slog.Logger) *Loader {
	return NewWithConfig(Config{}, logger)
}

// NewWithConfig creates a Loader with custom configuration
func NewWithConfig(config Config, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{config: config, logger: logger}
}

// Load reads a target file
func (l *Loader) Load(path string) (*Catalogue, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open target file: %w", err)
	}
	defer file.Close()

	cat, err := l.LoadFromReader(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}

// LoadFromReader decodes a JSON array of [name, credit, polygons] tuples
func (l *Loader) LoadFromReader(r io.Reader) (*Catalogue, error) {
	var list []types.Target
	if err := json.NewDecoder(r).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode targets: %w", err)
	}

	if err := l.validate(list); err != nil {
		return nil, err
	}

	l.logger.Debug("targets loaded", "count", len(list))
	return NewCatalogue(list), nil
}

func (l *Loader) validate(list []types.Target) error {
	for i, t := range list {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("target %d has no name", i)
		}
		if len(t.Polygons) == 0 && !l.config.AllowEmpty {
			return fmt.Errorf("target %d (%s) has no polygons", i, t.Name)
		}
		for j, poly := range t.Polygons {
			if len(poly) >= MinVertices {
				continue
			}
			if l.config.Strict {
				return fmt.Errorf("target %d (%s) polygon %d has %d vertices (minimum: %d)",
					i, t.Name, j, len(poly), MinVertices)
			}
			l.logger.Warn("degenerate polygon", "target", i, "name", t.Name, "polygon", j, "vertices", len(poly))
		}
	}
	return nil
}

// NewCatalogue wraps a target list. The list and its polygons are copied.
func NewCatalogue(list []types.Target) *Catalogue {
	return &Catalogue{targets: cloneTargets(list)}
}

// Len returns the number of targets
func (c *Catalogue) Len() int {
	return len(c.targets)
}

// Get returns the target at index i
func (c *Catalogue) Get(i int) (types.Target, bool) {
	if i < 0 || i >= len(c.targets) {
		return types.Target{}, false
	}
	return cloneTarget(c.targets[i]), true
}

// Find returns the index of the first target whose name matches, ignoring case
func (c *Catalogue) Find(name string) (int, bool) {
	for i, t := range c.targets {
		if strings.EqualFold(t.Name, name) {
			return i, true
		}
	}
	return -1, false
}

// All returns a copy of the target list
func (c *Catalogue) All() []types.Target {
	return cloneTargets(c.targets)
}

func cloneTargets(list []types.Target) []types.Target {
	if list == nil {
		return nil
	}
	out := make([]types.Target, len(list))
	for i, t := range list {
		out[i] = cloneTarget(t)
	}
	return out
}

func cloneTarget(t types.Target) types.Target {
	if t.Polygons == nil {
		return t
	}
	polygons := make([]types.Polygon, len(t.Polygons))
	for i, p := range t.Polygons {
		polygons[i] = append(types.Polygon(nil), p...)
	}
	t.Polygons = polygons
	return t
}
