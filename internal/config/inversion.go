package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical inversion defaults file.
const DefaultConfigPath = "config/inversion.defaults.json"

// InversionConfig is the on-disk form of the inversion parameters. Every
// field is optional; the Get* accessors return the built-in default for
// fields the file leaves out, so partial configs are safe.
type InversionConfig struct {
	// Candidate resolution
	Strategy     *string  `json:"strategy,omitempty"`      // max_flow, avg_flow, max_image, avg_image
	ImageEpsilon *float64 `json:"image_epsilon,omitempty"` // floor on photometric difference

	// Hole filling
	Fill               *string `json:"fill,omitempty"` // min, avg, oriented, none
	MinNeighbors       *int    `json:"min_neighbors,omitempty"`
	MaxRadius          *int    `json:"max_radius,omitempty"` // 0 = unbounded
	OrientedDirections *int    `json:"oriented_directions,omitempty"`
	OrientedReduce     *string `json:"oriented_reduce,omitempty"` // avg, min

	// Execution
	Workers *int `json:"workers,omitempty"` // 0 = GOMAXPROCS
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyInversionConfig returns a config with every field unset.
func EmptyInversionConfig() *InversionConfig {
	return &InversionConfig{}
}

// DefaultInversionConfig returns a config with every field set to its
// built-in default.
func DefaultInversionConfig() *InversionConfig {
	return &InversionConfig{
		Strategy:           ptrString("max_flow"),
		ImageEpsilon:       ptrFloat64(1e-3),
		Fill:               ptrString("oriented"),
		MinNeighbors:       ptrInt(4),
		MaxRadius:          ptrInt(0),
		OrientedDirections: ptrInt(8),
		OrientedReduce:     ptrString("avg"),
		Workers:            ptrInt(0),
	}
}

// LoadInversionConfig loads a config from a JSON file.
// The path must have a .json extension and the file must be under 1MB.
func LoadInversionConfig(path string) (*InversionConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyInversionConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *InversionConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/flow/inverse/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadInversionConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set. Names are checked here only for
// their shape; the inverse package owns the authoritative enumerations.
func (c *InversionConfig) Validate() error {
	if c.Strategy != nil && *c.Strategy == "" {
		return fmt.Errorf("strategy must not be empty")
	}
	if c.Fill != nil && *c.Fill == "" {
		return fmt.Errorf("fill must not be empty")
	}
	if c.ImageEpsilon != nil && *c.ImageEpsilon <= 0 {
		return fmt.Errorf("image_epsilon must be positive, got %f", *c.ImageEpsilon)
	}
	if c.MinNeighbors != nil && *c.MinNeighbors < 1 {
		return fmt.Errorf("min_neighbors must be at least 1, got %d", *c.MinNeighbors)
	}
	if c.MaxRadius != nil && *c.MaxRadius < 0 {
		return fmt.Errorf("max_radius must be non-negative, got %d", *c.MaxRadius)
	}
	if c.OrientedDirections != nil && *c.OrientedDirections != 4 && *c.OrientedDirections != 8 {
		return fmt.Errorf("oriented_directions must be 4 or 8, got %d", *c.OrientedDirections)
	}
	if c.OrientedReduce != nil && *c.OrientedReduce != "avg" && *c.OrientedReduce != "min" {
		return fmt.Errorf("oriented_reduce must be avg or min, got %q", *c.OrientedReduce)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	return nil
}

// GetStrategy returns the strategy or the default.
func (c *InversionConfig) GetStrategy() string {
	if c.Strategy == nil {
		return "max_flow"
	}
	return *c.Strategy
}

// GetImageEpsilon returns the image_epsilon value or the default.
func (c *InversionConfig) GetImageEpsilon() float64 {
	if c.ImageEpsilon == nil {
		return 1e-3
	}
	return *c.ImageEpsilon
}

// GetFill returns the fill or the default.
func (c *InversionConfig) GetFill() string {
	if c.Fill == nil {
		return "oriented"
	}
	return *c.Fill
}

// GetMinNeighbors returns the min_neighbors value or the default.
func (c *InversionConfig) GetMinNeighbors() int {
	if c.MinNeighbors == nil {
		return 4
	}
	return *c.MinNeighbors
}

// GetMaxRadius returns the max_radius value or the default (unbounded).
func (c *InversionConfig) GetMaxRadius() int {
	if c.MaxRadius == nil {
		return 0
	}
	return *c.MaxRadius
}

// GetOrientedDirections returns the oriented_directions value or the default.
func (c *InversionConfig) GetOrientedDirections() int {
	if c.OrientedDirections == nil {
		return 8
	}
	return *c.OrientedDirections
}

// GetOrientedReduce returns the oriented_reduce value or the default.
func (c *InversionConfig) GetOrientedReduce() string {
	if c.OrientedReduce == nil {
		return "avg"
	}
	return *c.OrientedReduce
}

// GetWorkers returns the workers value or the default.
func (c *InversionConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// Override copies every field set in o over c. It is used to layer
// command-line flags on top of a file.
func (c *InversionConfig) Override(o *InversionConfig) {
	if o == nil {
		return
	}
	if o.Strategy != nil {
		c.Strategy = o.Strategy
	}
	if o.ImageEpsilon != nil {
		c.ImageEpsilon = o.ImageEpsilon
	}
	if o.Fill != nil {
		c.Fill = o.Fill
	}
	if o.MinNeighbors != nil {
		c.MinNeighbors = o.MinNeighbors
	}
	if o.MaxRadius != nil {
		c.MaxRadius = o.MaxRadius
	}
	if o.OrientedDirections != nil {
		c.OrientedDirections = o.OrientedDirections
	}
	if o.OrientedReduce != nil {
		c.OrientedReduce = o.OrientedReduce
	}
	if o.Workers != nil {
		c.Workers = o.Workers
	}
}

// SetStrategy sets the strategy field.
func (c *InversionConfig) SetStrategy(s string) { c.Strategy = ptrString(s) }

// SetFill sets the fill field.
func (c *InversionConfig) SetFill(s string) { c.Fill = ptrString(s) }

// SetWorkers sets the workers field.
func (c *InversionConfig) SetWorkers(n int) { c.Workers = ptrInt(n) }
