// Package config provides configuration loading and management for ebsdrecon.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"ebsdrecon/internal/models"
	"ebsdrecon/pkg/reconstruction"
	"ebsdrecon/pkg/symmetry"
	"ebsdrecon/pkg/voxel"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid configuration")

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// MisorientationTolerance is the segmentation tolerance in degrees
		MisorientationTolerance float64 `yaml:"misorientationTolerance"`

		// MinGrainSize is the smallest grain, in voxels, that survives cleanup
		MinGrainSize int `yaml:"minGrainSize"`

		// MinSeedImageQuality is the lowest image quality a grain seed may have
		MinSeedImageQuality float64 `yaml:"minSeedImageQuality"`

		// MinConfidence is the confidence below which a voxel is refilled
		MinConfidence float64 `yaml:"minConfidence"`

		FillLowConfidence bool `yaml:"fillLowConfidence"`
		MergeTwins        bool `yaml:"mergeTwins"`
		MergeColonies     bool `yaml:"mergeColonies"`
		MergeContained    bool `yaml:"mergeContained"`
	} `yaml:"processing"`

	// Geometry of the input grid
	Geometry voxel.Geometry `yaml:"geometry"`

	// Phases maps the phase ids of the input to crystal structures
	Phases []models.PhaseInfo `yaml:"phases"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults determines whether to save grain id sections
		// after segmentation and renumbering
		SaveIntermediaryResults bool   `yaml:"saveIntermediaryResults"`
		IntermediaryDir         string `yaml:"intermediaryDir"`

		// DatabasePath is the SQLite file receiving the grain table; empty disables it
		DatabasePath string `yaml:"databasePath"`

		// HistogramPath is the PNG receiving the grain size histogram; empty disables it
		HistogramPath string `yaml:"histogramPath"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.MisorientationTolerance = 5
	cfg.Processing.MinGrainSize = 10
	cfg.Processing.MinSeedImageQuality = 0
	cfg.Processing.MinConfidence = 0.1
	cfg.Processing.FillLowConfidence = true
	cfg.Processing.MergeTwins = true
	cfg.Processing.MergeColonies = false
	cfg.Processing.MergeContained = true

	cfg.Geometry = voxel.Geometry{
		XPoints: 100, YPoints: 100, ZPoints: 100,
		XRes: 0.25, YRes: 0.25, ZRes: 0.25,
	}
	cfg.Phases = []models.PhaseInfo{
		{ID: 1, Name: "primary", CrystalStructure: symmetry.Cubic.String()},
	}

	// Set default output parameters
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary"
	cfg.Output.Verbose = true

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

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
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

// Validate checks the values that the YAML decoder cannot.
func (c *Config) Validate() error {
	if t := c.Processing.MisorientationTolerance; math.IsNaN(t) || t < 0 || t > 180 {
		return fmt.Errorf("%w: misorientationTolerance %g outside [0, 180]", ErrInvalid, t)
	}
	if c.Processing.MinGrainSize < 0 {
		return fmt.Errorf("%w: minGrainSize %d is negative", ErrInvalid, c.Processing.MinGrainSize)
	}
	if ci := c.Processing.MinConfidence; ci < 0 || ci > 1 {
		return fmt.Errorf("%w: minConfidence %g outside [0, 1]", ErrInvalid, ci)
	}
	if err := c.Geometry.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if len(c.Phases) == 0 {
		return fmt.Errorf("%w: no phases", ErrInvalid)
	}
	if _, err := c.PhaseTable(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// PhaseTable converts the phase list into a lookup table. Duplicate ids and
// unknown structure names are rejected.
func (c *Config) PhaseTable() (symmetry.PhaseTable, error) {
	table := make(symmetry.PhaseTable, len(c.Phases))
	for _, p := range c.Phases {
		if _, dup := table[p.ID]; dup {
			return nil, fmt.Errorf("phase %d listed twice", p.ID)
		}
		structure, err := symmetry.ParseCrystalStructure(p.CrystalStructure)
		if err != nil {
			return nil, fmt.Errorf("phase %d: %w", p.ID, err)
		}
		table[p.ID] = structure
	}
	return table, nil
}

// Params converts the configuration into reconstruction parameters.
func (c *Config) Params() reconstruction.Params {
	return reconstruction.Params{
		MisorientationTolerance: c.Processing.MisorientationTolerance * math.Pi / 180,
		MinGrainSize:            c.Processing.MinGrainSize,
		MinSeedImageQuality:     c.Processing.MinSeedImageQuality,
		FillLowConfidence:       c.Processing.FillLowConfidence,
		MinConfidence:           c.Processing.MinConfidence,
		MergeTwins:              c.Processing.MergeTwins,
		MergeColonies:           c.Processing.MergeColonies,
		MergeContained:          c.Processing.MergeContained,
		SaveIntermediaryResults: c.Output.SaveIntermediaryResults,
		IntermediaryDir:         c.Output.IntermediaryDir,
	}
}
