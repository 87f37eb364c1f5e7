// Package config holds the YAML run configuration of a conversion.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mrsinham/dicomvol/internal/dicom/modalities"
	"github.com/mrsinham/dicomvol/internal/histogram"
	"github.com/mrsinham/dicomvol/internal/selection"
	"github.com/mrsinham/dicomvol/internal/storage"
	"gopkg.in/yaml.v3"
)

// Config is the complete run configuration.
type Config struct {
	Selection  SelectionConfig  `yaml:"selection"`
	Output     OutputConfig     `yaml:"output"`
	Histogram  HistogramConfig  `yaml:"histogram"`
	Processing ProcessingConfig `yaml:"processing"`
	Log        LogConfig        `yaml:"log"`
}

// SelectionConfig controls which series are converted.
type SelectionConfig struct {
	MaxPerModality         int    `yaml:"max_per_modality"`
	MinSlices              int    `yaml:"min_slices"`
	MinSlicesDistinguished int    `yaml:"min_slices_distinguished"`
	DistinguishedModality  string `yaml:"distinguished_modality"`
}

// OutputConfig controls what is written for each converted series.
type OutputConfig struct {
	PackHistograms bool   `yaml:"pack_histograms"`
	CopyOriginals  bool   `yaml:"copy_originals"`
	Format         string `yaml:"format"`
	Collection     string `yaml:"collection,omitempty"`
}

// HistogramConfig sets the histogram resolution.
type HistogramConfig struct {
	Bins int `yaml:"bins"`
}

// ProcessingConfig sets the degree of parallelism.
type ProcessingConfig struct {
	Workers int `yaml:"workers"`
}

// LogConfig sets the log level and the optional rotating log file.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	p := selection.DefaultPolicy()
	return &Config{
		Selection: SelectionConfig{
			MaxPerModality:         p.MaxPerModality,
			MinSlices:              p.MinSlices,
			MinSlicesDistinguished: p.MinSlicesDistinguished,
			DistinguishedModality:  p.DistinguishedModality,
		},
		Output: OutputConfig{
			Format: string(storage.FormatRaw),
		},
		Histogram:  HistogramConfig{Bins: histogram.DefaultBins},
		Processing: ProcessingConfig{Workers: 1},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxAgeDays: 30,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result. Keys
// missing from the file keep their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Selection.MinSlices < 0 {
		errs = append(errs, fmt.Errorf("selection.min_slices must be >= 0, got %d", c.Selection.MinSlices))
	}
	if c.Selection.MinSlicesDistinguished < 0 {
		errs = append(errs, fmt.Errorf("selection.min_slices_distinguished must be >= 0, got %d", c.Selection.MinSlicesDistinguished))
	}
	if _, err := storage.ParseFormat(c.Output.Format); err != nil {
		errs = append(errs, fmt.Errorf("output.format: %w", err))
	}
	if err := histogram.ValidateBins(c.Histogram.Bins); err != nil {
		errs = append(errs, fmt.Errorf("histogram.bins: %w", err))
	}
	if c.Processing.Workers < 1 {
		errs = append(errs, fmt.Errorf("processing.workers must be >= 1, got %d", c.Processing.Workers))
	}
	if c.Output.Collection != "" && filepath.Base(c.Output.Collection) != c.Output.Collection {
		errs = append(errs, fmt.Errorf("output.collection must be a single directory name, got %q", c.Output.Collection))
	}
	return errors.Join(errs...)
}

// Policy returns the selection policy described by c.
func (c *Config) Policy() selection.Policy {
	return selection.Policy{
		MaxPerModality:         c.Selection.MaxPerModality,
		MinSlices:              c.Selection.MinSlices,
		MinSlicesDistinguished: c.Selection.MinSlicesDistinguished,
		DistinguishedModality:  string(modalities.Normalize(c.Selection.DistinguishedModality)),
	}
}
