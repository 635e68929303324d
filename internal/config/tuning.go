package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for the grasp pipeline
// tuning parameters. All fields are optional pointers so a partial JSON
// file overrides only what it names; the Get* methods supply defaults.
type TuningConfig struct {
	// Candidate acquisition params
	HemisphereRadius *float64 `json:"hemisphere_radius,omitempty"`
	HemisphereGrid   *int     `json:"hemisphere_grid,omitempty"`
	PhiMaxDegrees    *float64 `json:"phi_max_degrees,omitempty"`
	DetectorBatch    *int     `json:"detector_batch,omitempty"`

	// Candidate filter params
	FloorHeight   *float64 `json:"floor_height,omitempty"`
	FloorLift     *float64 `json:"floor_lift,omitempty"`
	WorkspaceMinX *float64 `json:"workspace_min_x,omitempty"`
	MaxAxisTilt   *float64 `json:"max_axis_tilt,omitempty"`

	// Duplicate suppression params
	NMSTranslation     *float64 `json:"nms_translation,omitempty"`
	NMSRotationDegrees *float64 `json:"nms_rotation_degrees,omitempty"`

	// Fusion and selection params
	FusionWeight      *float64 `json:"fusion_weight,omitempty"`
	SelectionQuantile *float64 `json:"selection_quantile,omitempty"`

	// Trajectory synthesis params
	RotationTrials *int     `json:"rotation_trials,omitempty"`
	LiftHeight     *float64 `json:"lift_height,omitempty"`
	ToolClearance  *float64 `json:"tool_clearance,omitempty"`
	RotationPivot  *float64 `json:"rotation_pivot,omitempty"`
	PlanTimeout    *string  `json:"plan_timeout,omitempty"` // duration string like "120s"

	// Persistence params
	CacheDir *string `json:"cache_dir,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
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

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.FusionWeight != nil {
		if *c.FusionWeight < 0 || *c.FusionWeight > 1 {
			return fmt.Errorf("fusion_weight must be between 0 and 1, got %f", *c.FusionWeight)
		}
	}

	if c.SelectionQuantile != nil {
		if *c.SelectionQuantile <= 0 || *c.SelectionQuantile >= 1 {
			return fmt.Errorf("selection_quantile must be in (0, 1), got %f", *c.SelectionQuantile)
		}
	}

	if c.HemisphereRadius != nil && *c.HemisphereRadius <= 0 {
		return fmt.Errorf("hemisphere_radius must be positive, got %f", *c.HemisphereRadius)
	}

	if c.HemisphereGrid != nil && *c.HemisphereGrid < 1 {
		return fmt.Errorf("hemisphere_grid must be at least 1, got %d", *c.HemisphereGrid)
	}

	if c.DetectorBatch != nil && *c.DetectorBatch < 1 {
		return fmt.Errorf("detector_batch must be at least 1, got %d", *c.DetectorBatch)
	}

	if c.NMSTranslation != nil && *c.NMSTranslation <= 0 {
		return fmt.Errorf("nms_translation must be positive, got %f", *c.NMSTranslation)
	}

	if c.NMSRotationDegrees != nil && *c.NMSRotationDegrees <= 0 {
		return fmt.Errorf("nms_rotation_degrees must be positive, got %f", *c.NMSRotationDegrees)
	}

	if c.RotationTrials != nil && *c.RotationTrials < 1 {
		return fmt.Errorf("rotation_trials must be at least 1, got %d", *c.RotationTrials)
	}

	if c.LiftHeight != nil && *c.LiftHeight <= 0 {
		return fmt.Errorf("lift_height must be positive, got %f", *c.LiftHeight)
	}

	// Validate PlanTimeout can be parsed if set
	if c.PlanTimeout != nil && *c.PlanTimeout != "" {
		if _, err := time.ParseDuration(*c.PlanTimeout); err != nil {
			return fmt.Errorf("invalid plan_timeout '%s': %w", *c.PlanTimeout, err)
		}
	}

	return nil
}

// GetHemisphereRadius returns the hemisphere_radius value or the default.
func (c *TuningConfig) GetHemisphereRadius() float64 {
	if c.HemisphereRadius == nil {
		return 2.0
	}
	return *c.HemisphereRadius
}

// GetHemisphereGrid returns the hemisphere_grid value or the default.
func (c *TuningConfig) GetHemisphereGrid() int {
	if c.HemisphereGrid == nil {
		return 15
	}
	return *c.HemisphereGrid
}

// GetPhiMaxDegrees returns the phi_max_degrees value or the default.
func (c *TuningConfig) GetPhiMaxDegrees() float64 {
	if c.PhiMaxDegrees == nil {
		return 70.0
	}
	return *c.PhiMaxDegrees
}

// GetDetectorBatch returns the detector_batch value or the default.
func (c *TuningConfig) GetDetectorBatch() int {
	if c.DetectorBatch == nil {
		return 15
	}
	return *c.DetectorBatch
}

// GetFloorHeight returns the floor_height value or the default.
func (c *TuningConfig) GetFloorHeight() float64 {
	if c.FloorHeight == nil {
		return -0.16
	}
	return *c.FloorHeight
}

// GetFloorLift returns the floor_lift value or the default.
func (c *TuningConfig) GetFloorLift() float64 {
	if c.FloorLift == nil {
		return 0.01
	}
	return *c.FloorLift
}

// GetWorkspaceMinX returns the workspace_min_x value or the default.
func (c *TuningConfig) GetWorkspaceMinX() float64 {
	if c.WorkspaceMinX == nil {
		return 0.22
	}
	return *c.WorkspaceMinX
}

// GetMaxAxisTilt returns the max_axis_tilt value or the default.
func (c *TuningConfig) GetMaxAxisTilt() float64 {
	if c.MaxAxisTilt == nil {
		return 0.5
	}
	return *c.MaxAxisTilt
}

// GetNMSTranslation returns the nms_translation value or the default.
func (c *TuningConfig) GetNMSTranslation() float64 {
	if c.NMSTranslation == nil {
		return 0.01
	}
	return *c.NMSTranslation
}

// GetNMSRotationDegrees returns the nms_rotation_degrees value or the default.
func (c *TuningConfig) GetNMSRotationDegrees() float64 {
	if c.NMSRotationDegrees == nil {
		return 30.0
	}
	return *c.NMSRotationDegrees
}

// GetFusionWeight returns the fusion_weight value or the default.
func (c *TuningConfig) GetFusionWeight() float64 {
	if c.FusionWeight == nil {
		return 0.95
	}
	return *c.FusionWeight
}

// GetSelectionQuantile returns the selection_quantile value or the default.
func (c *TuningConfig) GetSelectionQuantile() float64 {
	if c.SelectionQuantile == nil {
		return 0.95
	}
	return *c.SelectionQuantile
}

// GetRotationTrials returns the rotation_trials value or the default.
func (c *TuningConfig) GetRotationTrials() int {
	if c.RotationTrials == nil {
		return 4
	}
	return *c.RotationTrials
}

// GetLiftHeight returns the lift_height value or the default.
func (c *TuningConfig) GetLiftHeight() float64 {
	if c.LiftHeight == nil {
		return 0.2
	}
	return *c.LiftHeight
}

// GetToolClearance returns the tool_clearance value or the default.
func (c *TuningConfig) GetToolClearance() float64 {
	if c.ToolClearance == nil {
		return 0.015
	}
	return *c.ToolClearance
}

// GetRotationPivot returns the rotation_pivot value or the default.
func (c *TuningConfig) GetRotationPivot() float64 {
	if c.RotationPivot == nil {
		return 0.02
	}
	return *c.RotationPivot
}

// GetPlanTimeout parses and returns the PlanTimeout as a time.Duration.
func (c *TuningConfig) GetPlanTimeout() time.Duration {
	if c.PlanTimeout == nil || *c.PlanTimeout == "" {
		return 120 * time.Second // default
	}
	d, err := time.ParseDuration(*c.PlanTimeout)
	if err != nil {
		return 120 * time.Second // default on parse error
	}
	return d
}

// GetCacheDir returns the cache_dir value or the default.
func (c *TuningConfig) GetCacheDir() string {
	if c.CacheDir == nil || *c.CacheDir == "" {
		return "graspdata"
	}
	return *c.CacheDir
}
