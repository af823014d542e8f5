package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
)

// DefaultConfigPath is the path to the canonical reconcile defaults file.
const DefaultConfigPath = "config/reconcile.defaults.json"

// ReconcileConfig holds the parameters of one reconciliation run. Fields are
// pointers so a partial JSON file only overrides what it names; the Get*
// accessors supply defaults for everything else.
type ReconcileConfig struct {
	// Classification
	Workers       *int `json:"workers,omitempty"`
	MinRegionArea *int `json:"min_region_area,omitempty"`

	// Growth distance
	GrowthDistance   *float64 `json:"growth_distance,omitempty"` // overrides the matched-pair estimate
	TruncateDistance *bool    `json:"truncate_distance,omitempty"`

	// Pre-pass on raw model masks
	RelabelInputs *bool    `json:"relabel_inputs,omitempty"`
	ErodeWidth    *float64 `json:"erode_width,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyReconcileConfig returns a config with every field unset.
func EmptyReconcileConfig() *ReconcileConfig {
	return &ReconcileConfig{}
}

// DefaultReconcileConfig returns a config with every field set to its default.
// Workers is left unset so it follows the host's CPU count.
func DefaultReconcileConfig() *ReconcileConfig {
	return &ReconcileConfig{
		MinRegionArea:    ptrInt(0),
		TruncateDistance: ptrBool(true),
		RelabelInputs:    ptrBool(false),
		ErodeWidth:       ptrFloat64(1),
	}
}

// LoadReconcileConfig loads a ReconcileConfig from a JSON file.
// The file must have a .json extension and be at most 1MB. Fields omitted
// from the file keep their defaults.
func LoadReconcileConfig(path string) (*ReconcileConfig, error) {
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

	cfg := EmptyReconcileConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *ReconcileConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadReconcileConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that set values are in range.
func (c *ReconcileConfig) Validate() error {
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.MinRegionArea != nil && *c.MinRegionArea < 0 {
		return fmt.Errorf("min_region_area must be non-negative, got %d", *c.MinRegionArea)
	}
	if c.GrowthDistance != nil {
		if d := *c.GrowthDistance; d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return fmt.Errorf("growth_distance must be a finite non-negative number, got %v", d)
		}
	}
	if c.ErodeWidth != nil {
		if w := *c.ErodeWidth; w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("erode_width must be a finite non-negative number, got %v", w)
		}
	}
	return nil
}

// Merge overlays every field set in o onto c.
func (c *ReconcileConfig) Merge(o *ReconcileConfig) {
	if o == nil {
		return
	}
	if o.Workers != nil {
		c.Workers = o.Workers
	}
	if o.MinRegionArea != nil {
		c.MinRegionArea = o.MinRegionArea
	}
	if o.GrowthDistance != nil {
		c.GrowthDistance = o.GrowthDistance
	}
	if o.TruncateDistance != nil {
		c.TruncateDistance = o.TruncateDistance
	}
	if o.RelabelInputs != nil {
		c.RelabelInputs = o.RelabelInputs
	}
	if o.ErodeWidth != nil {
		c.ErodeWidth = o.ErodeWidth
	}
}

// GetWorkers returns the worker count. Unset, zero or negative values
// fall back to the number of CPUs.
func (c *ReconcileConfig) GetWorkers() int {
	if c.Workers == nil || *c.Workers <= 0 {
		return runtime.NumCPU()
	}
	return *c.Workers
}

// GetMinRegionArea returns min_region_area or 0 (no filtering).
func (c *ReconcileConfig) GetMinRegionArea() int {
	if c.MinRegionArea == nil {
		return 0
	}
	return *c.MinRegionArea
}

// GetGrowthDistance returns the fixed growth distance and whether one is set.
func (c *ReconcileConfig) GetGrowthDistance() (float64, bool) {
	if c.GrowthDistance == nil {
		return 0, false
	}
	return *c.GrowthDistance, true
}

// GetTruncateDistance returns truncate_distance or the default (true).
func (c *ReconcileConfig) GetTruncateDistance() bool {
	if c.TruncateDistance == nil {
		return true
	}
	return *c.TruncateDistance
}

// GetRelabelInputs returns relabel_inputs or the default (false).
func (c *ReconcileConfig) GetRelabelInputs() bool {
	if c.RelabelInputs == nil {
		return false
	}
	return *c.RelabelInputs
}

// GetErodeWidth returns erode_width or the default (1 pixel).
func (c *ReconcileConfig) GetErodeWidth() float64 {
	if c.ErodeWidth == nil {
		return 1
	}
	return *c.ErodeWidth
}
