// Package config provides configuration loading and management for brainprep.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"brainprep/internal/models"
	"brainprep/pkg/bbox"
	"brainprep/pkg/crop"
	"brainprep/pkg/labels"
	"brainprep/pkg/orientation"
	"brainprep/pkg/visualization"
	"brainprep/pkg/volumeio"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many cases are preprocessed concurrently
		NumCores int `yaml:"numCores"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"processing"`

	// Preprocessing parameters applied to every case
	Preprocessing struct {
		// Margin widens the bounding box; a number or a [depth, height, width] list
		Margin bbox.Margin `yaml:"margin"`

		// TargetSize is the fixed crop shape as [depth, height, width]
		TargetSize [3]int `yaml:"targetSize"`

		// Slack is the extra shift applied when a crop runs off an edge
		Slack int `yaml:"slack"`

		// Orientation is axial, sagittal or coronal
		Orientation string `yaml:"orientation"`

		// LabelMode is whole, core or enhancing
		LabelMode string `yaml:"labelMode"`

		// Normalize z-scores every modality over its foreground
		Normalize bool `yaml:"normalize"`
	} `yaml:"preprocessing"`

	// Input describes the raw voxel dumps
	Input struct {
		// Shape is the volume shape as [depth, height, width]
		Shape [3]int `yaml:"shape"`

		// DataType is the stored element type of scans
		DataType string `yaml:"dataType"`

		// LabelDataType is the stored element type of label maps
		LabelDataType string `yaml:"labelDataType"`

		// ByteOrder is little or big
		ByteOrder string `yaml:"byteOrder"`

		// Modalities are the file names read from every case directory
		Modalities []string `yaml:"modalities"`

		// Label is the label map file name in every case directory
		Label string `yaml:"label"`
	} `yaml:"input"`

	// Output parameters
	Output struct {
		// Dir receives preprocessed cases and the run report
		Dir string `yaml:"dir"`

		// DataType is the element type of written scans
		DataType string `yaml:"dataType"`

		// SaveMontage writes a slice montage of every processed case
		SaveMontage bool `yaml:"saveMontage"`

		// JPEGQuality is used for montage images
		JPEGQuality int `yaml:"jpegQuality"`

		// TileGap is the blank spacing between montage panels
		TileGap int `yaml:"tileGap"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.Verbose = false

	// BraTS volumes are 155x240x240; crops follow the 144x192x192 training box
	cfg.Preprocessing.Margin = bbox.UniformMargin(0)
	cfg.Preprocessing.TargetSize = [3]int{144, 192, 192}
	cfg.Preprocessing.Slack = crop.DefaultSlack
	cfg.Preprocessing.Orientation = orientation.Axial.String()
	cfg.Preprocessing.LabelMode = labels.Whole.String()
	cfg.Preprocessing.Normalize = true

	cfg.Input.Shape = [3]int{155, 240, 240}
	cfg.Input.DataType = string(volumeio.Int16)
	cfg.Input.LabelDataType = string(volumeio.Uint8)
	cfg.Input.ByteOrder = "little"
	cfg.Input.Modalities = []string{"flair.raw", "t1.raw", "t1ce.raw", "t2.raw"}
	cfg.Input.Label = "seg.raw"

	cfg.Output.Dir = "preprocessed"
	cfg.Output.DataType = string(volumeio.Float32)
	cfg.Output.SaveMontage = false
	cfg.Output.JPEGQuality = 90
	cfg.Output.TileGap = visualization.DefaultGap

	return cfg
}

// Validate checks that every setting can be resolved
func (c *Config) Validate() error {
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("numCores must be at least 1, got %d", c.Processing.NumCores)
	}
	if _, err := c.Preprocessing.Margin.Resolve(3); err != nil {
		return err
	}
	if err := models.TargetSize(c.Preprocessing.TargetSize).Validate(); err != nil {
		return err
	}
	if c.Preprocessing.Slack < 0 {
		return fmt.Errorf("slack must be non-negative, got %d", c.Preprocessing.Slack)
	}
	if _, err := orientation.Parse(c.Preprocessing.Orientation); err != nil {
		return err
	}
	if _, err := labels.ParseMode(c.Preprocessing.LabelMode); err != nil {
		return err
	}
	for i, n := range c.Input.Shape {
		if n <= 0 {
			return fmt.Errorf("input shape axis %d must be positive, got %d", i, n)
		}
	}
	for _, dt := range []string{c.Input.DataType, c.Input.LabelDataType, c.Output.DataType} {
		if _, err := volumeio.DataType(dt).Size(); err != nil {
			return err
		}
	}
	if _, err := volumeio.ParseByteOrder(c.Input.ByteOrder); err != nil {
		return err
	}
	if len(c.Input.Modalities) == 0 {
		return fmt.Errorf("at least one input modality is required")
	}
	return nil
}

// ByteOrder resolves the configured input byte order
func (c *Config) ByteOrder() binary.ByteOrder {
	order, err := volumeio.ParseByteOrder(c.Input.ByteOrder)
	if err != nil {
		return binary.LittleEndian
	}
	return order
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
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
