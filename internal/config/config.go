// Package config loads segmentation settings from parameter files and the
// environment.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/segmenter-mcp/internal/segmenter"
	"github.com/ironsheep/segmenter-mcp/internal/tiling"
)

// Environment variables read by ApplyEnv, LogLevel and LogFormat.
const (
	EnvStrategy       = "SEGMENTER_STRATEGY"
	EnvMinSegmentSize = "SEGMENTER_MIN_SEGMENT_SIZE"
	EnvThreshold      = "SEGMENTER_THRESHOLD"
	EnvWorkers        = "SEGMENTER_WORKERS"
	EnvLogLevel       = "SEGMENTER_LOG_LEVEL"
	EnvLogFormat      = "SEGMENTER_LOG_FORMAT"
)

// Lookup returns the value of an environment variable. os.LookupEnv
// satisfies it.
type Lookup func(key string) (string, bool)

// Tiling holds the block and worker settings of a run.
type Tiling struct {
	MaxBlockPixels      int   `json:"max_block_pixels" yaml:"max_block_pixels"`
	MemoryBudget        int64 `json:"memory_budget" yaml:"memory_budget"`
	BlockOverlap        int   `json:"block_overlap" yaml:"block_overlap"`
	Workers             int   `json:"workers" yaml:"workers"`
	DisableBlockMerging bool  `json:"disable_block_merging" yaml:"disable_block_merging"`
}

// Config is the content of a parameter file.
type Config struct {
	Segmentation segmenter.Parameters `json:"segmentation" yaml:"segmentation"`
	Tiling       Tiling               `json:"tiling" yaml:"tiling"`
}

// Default returns the stock parameters with a single-block tiling.
func Default() *Config {
	return &Config{Segmentation: segmenter.DefaultParameters()}
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	if c.Segmentation.BandsWeights != nil {
		out.Segmentation.BandsWeights = append([]float64(nil), c.Segmentation.BandsWeights...)
	}
	return &out
}

// Load reads a YAML (.yaml, .yml) or JSON (.json) parameter file. Keys
// missing from the file keep their default values; unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (use .yaml, .yml or .json)", ext)
	}

	kind, err := segmenter.ParseMergerKind(string(cfg.Segmentation.Strategy))
	if err != nil {
		return nil, err
	}
	cfg.Segmentation.Strategy = kind
	return cfg, nil
}

// ApplyEnv overrides strategy, minimum segment size, similarity threshold
// and worker count from the environment.
func (c *Config) ApplyEnv(lookup Lookup) error {
	if v, ok := lookup(EnvStrategy); ok && v != "" {
		k, err := segmenter.ParseMergerKind(v)
		if err != nil {
			return err
		}
		c.Segmentation.Strategy = k
	}
	if v, ok := lookup(EnvMinSegmentSize); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &segmenter.ConfigError{Field: "min_segment_size", Reason: fmt.Sprintf("%s=%q is not an integer", EnvMinSegmentSize, v)}
		}
		c.Segmentation.MinSegmentSize = n
	}
	if v, ok := lookup(EnvThreshold); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &segmenter.ConfigError{Field: "similarity_threshold", Reason: fmt.Sprintf("%s=%q is not a number", EnvThreshold, v)}
		}
		c.Segmentation.SimilarityThreshold = f
	}
	if v, ok := lookup(EnvWorkers); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return &segmenter.ConfigError{Field: "workers", Reason: fmt.Sprintf("%s=%q is not a non-negative integer", EnvWorkers, v)}
		}
		c.Tiling.Workers = n
	}
	return nil
}

// TilingOptions converts the tiling section into controller options.
func (c *Config) TilingOptions(log logrus.FieldLogger, progress segmenter.Progress) tiling.Options {
	opts := tiling.DefaultOptions()
	opts.MaxBlockPixels = c.Tiling.MaxBlockPixels
	opts.MemoryBudget = c.Tiling.MemoryBudget
	opts.BlockOverlap = c.Tiling.BlockOverlap
	if c.Tiling.Workers > 0 {
		opts.Workers = c.Tiling.Workers
	}
	opts.EnableBlockMerging = !c.Tiling.DisableBlockMerging
	opts.Logger = log
	opts.Progress = progress
	return opts
}

// LogLevel reads SEGMENTER_LOG_LEVEL. Unset or unknown values give info.
func LogLevel(lookup Lookup) logrus.Level {
	v, ok := lookup(EnvLogLevel)
	if !ok {
		return logrus.InfoLevel
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// LogFormat reports whether SEGMENTER_LOG_FORMAT asks for JSON logs.
func LogFormat(lookup Lookup) bool {
	v, _ := lookup(EnvLogFormat)
	return strings.EqualFold(strings.TrimSpace(v), "json")
}
