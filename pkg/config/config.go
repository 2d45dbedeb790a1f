// Package config provides configuration loading and management for dose3d.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RunCollection names a scoring campaign and whether it scores per voxel
type RunCollection struct {
	Name      string `yaml:"name"`
	Voxelised bool   `yaml:"voxelised"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// DataDir is the base directory for relative mesh and positioning paths
	DataDir string `yaml:"dataDir"`

	// Detector level parameters
	Detector struct {
		// Label prefixes every layer and cell label
		Label string `yaml:"label"`

		// Cells is the number of cells along x, y (layers) and z
		Cells [3]int `yaml:"cells"`

		// TopPositionInEnv is the detector reference point in the environment, in mm
		TopPositionInEnv [3]float64 `yaml:"topPositionInEnv"`

		// EnvTranslation is the translation of the environment in the world frame, in mm
		EnvTranslation [3]float64 `yaml:"envTranslation"`

		// Geometry is an optional STL mesh used as the detector envelope
		Geometry string `yaml:"geometry"`

		// CheckEnvelope requires every cell to lie within the mesh bounds
		CheckEnvelope bool `yaml:"checkEnvelope"`
	} `yaml:"detector"`

	// Layer level parameters
	Layer struct {
		// RowShift offsets odd layers by half a pitch along x
		RowShift bool `yaml:"rowShift"`

		// LayerShift offsets odd rows within a layer by half a pitch along x
		LayerShift bool `yaml:"layerShift"`

		// Positioning is an optional CSV file with cell offsets grouped in layers
		Positioning string `yaml:"positioning"`

		// Mask marks which (x,z) slots hold a cell, indexed [iz][ix]. Empty means all.
		Mask [][]int `yaml:"mask,omitempty"`
	} `yaml:"layer"`

	// Cell level parameters
	Cell struct {
		// Voxels is the voxel grid of a cell along x, y and z
		Voxels [3]int `yaml:"voxels"`

		// Medium is the material the cell is made of
		Medium string `yaml:"medium"`

		// Size is the cell edge length in mm
		Size float64 `yaml:"size"`

		// CoverWidth is the width of the protective shell around a cell in mm
		CoverWidth float64 `yaml:"coverWidth"`

		// TracksAnalysis enables per-track bookkeeping in the scoring volumes
		TracksAnalysis bool `yaml:"tracksAnalysis"`
	} `yaml:"cell"`

	// Scoring parameters
	Scoring struct {
		RunCollections []RunCollection `yaml:"runCollections"`
	} `yaml:"scoring"`

	// Materials extends the built-in medium table, name -> g/cm3
	Materials map[string]float64 `yaml:"materials,omitempty"`

	// Output parameters
	Output struct {
		// Dir is where exports are written
		Dir string `yaml:"dir"`

		// LogLevel is one of debug, info, warning, error
		LogLevel string `yaml:"logLevel"`

		// WriteImages renders the alignment layer pads as JPEG images
		WriteImages bool `yaml:"writeImages"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.DataDir = "."

	// Default 4x4x4 detector with shifted layers
	cfg.Detector.Label = "D3D"
	cfg.Detector.Cells = [3]int{4, 4, 4}

	cfg.Layer.RowShift = true
	cfg.Layer.LayerShift = true

	cfg.Cell.Voxels = [3]int{4, 4, 4}
	cfg.Cell.Medium = "PMMA"
	cfg.Cell.Size = 10.0
	cfg.Cell.CoverWidth = 1.0

	cfg.Scoring.RunCollections = []RunCollection{
		{Name: "Dose3D", Voxelised: false},
		{Name: "Dose3DVoxelised", Voxelised: true},
	}

	cfg.Output.Dir = "output"
	cfg.Output.LogLevel = "info"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Relative data paths are resolved against the config file location
	if !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(filepath.Dir(configPath), cfg.DataDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that cannot be fixed up by defaults
func (cfg *Config) Validate() error {
	for i, n := range cfg.Detector.Cells {
		if n <= 0 && cfg.Layer.Positioning == "" {
			return fmt.Errorf("detector.cells[%d] must be positive, got %d", i, n)
		}
	}
	if cfg.Layer.Positioning != "" && cfg.Detector.Cells[0] <= 0 {
		return fmt.Errorf("detector.cells[0] sets the row length of positioned layers and must be positive, got %d", cfg.Detector.Cells[0])
	}
	for i, n := range cfg.Cell.Voxels {
		if n < 0 {
			return fmt.Errorf("cell.voxels[%d] must not be negative, got %d", i, n)
		}
	}
	if cfg.Cell.Size <= 0 {
		return fmt.Errorf("cell.size must be positive, got %g", cfg.Cell.Size)
	}
	if cfg.Cell.CoverWidth < 0 {
		return fmt.Errorf("cell.coverWidth must not be negative, got %g", cfg.Cell.CoverWidth)
	}
	if cfg.Cell.Medium == "" {
		return fmt.Errorf("cell.medium must be set")
	}

	seen := make(map[string]bool, len(cfg.Scoring.RunCollections))
	for _, rc := range cfg.Scoring.RunCollections {
		if rc.Name == "" {
			return fmt.Errorf("scoring.runCollections: empty collection name")
		}
		if seen[rc.Name] {
			return fmt.Errorf("scoring.runCollections: duplicate collection %q", rc.Name)
		}
		seen[rc.Name] = true
	}
	return nil
}

// ResolvePath returns p relative to DataDir unless it is absolute or empty
func (cfg *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cfg.DataDir, p)
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
