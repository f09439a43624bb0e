// Package config loads the registry configuration from a YAML file,
// falling back to built-in defaults when no file is present.
//
// Config file locations (priority order):
//  1. $ARTREGISTRY_CONFIG
//  2. ./artregistry.yaml
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"artregistry/fingerprint"
)

// Config holds every tunable of the registry process.
type Config struct {
	DatabasePath string           `yaml:"databasePath"`
	ListenAddr   string           `yaml:"listenAddr"`
	NonceTTL     time.Duration    `yaml:"nonceTTL"`
	Similarity   SimilarityConfig `yaml:"similarity"`
}

// SimilarityConfig tunes the fingerprint comparison stage.
type SimilarityConfig struct {
	HashWeight         float64 `yaml:"hashWeight"`
	ColorWeight        float64 `yaml:"colorWeight"`
	StructuralWeight   float64 `yaml:"structuralWeight"`
	DuplicateThreshold float64 `yaml:"duplicateThreshold"`
	ModifiedThreshold  float64 `yaml:"modifiedThreshold"`
	CandidateLimit     int     `yaml:"candidateLimit"`
	TopMatches         int     `yaml:"topMatches"`
}

// Load finds and loads the config file, or returns defaults if none found.
func Load() (*Config, string, error) {
	path := findConfigPath()
	if path == "" {
		return DefaultConfig(), "", nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path.
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// DefaultConfig returns the defaults for a new installation.
func DefaultConfig() *Config {
	opts := fingerprint.DefaultCompareOptions()
	return &Config{
		DatabasePath: "artworks.db",
		ListenAddr:   ":8487",
		NonceTTL:     5 * time.Minute,
		Similarity: SimilarityConfig{
			HashWeight:         opts.HashWeight,
			ColorWeight:        opts.ColorWeight,
			StructuralWeight:   opts.StructuralWeight,
			DuplicateThreshold: opts.DuplicateThreshold,
			ModifiedThreshold:  opts.ModifiedThreshold,
			CandidateLimit:     50,
			TopMatches:         5,
		},
	}
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.DatabasePath == "" {
		c.DatabasePath = def.DatabasePath
	}
	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.NonceTTL <= 0 {
		c.NonceTTL = def.NonceTTL
	}

	s := &c.Similarity
	if s.HashWeight == 0 && s.ColorWeight == 0 && s.StructuralWeight == 0 {
		s.HashWeight = def.Similarity.HashWeight
		s.ColorWeight = def.Similarity.ColorWeight
		s.StructuralWeight = def.Similarity.StructuralWeight
	}
	if s.DuplicateThreshold == 0 {
		s.DuplicateThreshold = def.Similarity.DuplicateThreshold
	}
	if s.ModifiedThreshold == 0 {
		s.ModifiedThreshold = def.Similarity.ModifiedThreshold
	}
	if s.CandidateLimit <= 0 {
		s.CandidateLimit = def.Similarity.CandidateLimit
	}
	if s.TopMatches <= 0 {
		s.TopMatches = def.Similarity.TopMatches
	}
}

// Validate rejects configurations that would silently skew scoring.
func (c *Config) Validate() error {
	s := c.Similarity
	if s.HashWeight < 0 || s.ColorWeight < 0 || s.StructuralWeight < 0 {
		return fmt.Errorf("invalid config: similarity weights must be non-negative")
	}
	sum := s.HashWeight + s.ColorWeight + s.StructuralWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("invalid config: similarity weights sum to %g, want 1", sum)
	}
	if s.DuplicateThreshold < s.ModifiedThreshold {
		return fmt.Errorf("invalid config: duplicateThreshold %g below modifiedThreshold %g",
			s.DuplicateThreshold, s.ModifiedThreshold)
	}
	if s.DuplicateThreshold > 100 || s.ModifiedThreshold < 0 {
		return fmt.Errorf("invalid config: thresholds must lie within [0, 100]")
	}
	return nil
}

// CompareOptions converts the similarity section into comparator options.
func (c *Config) CompareOptions() fingerprint.CompareOptions {
	return fingerprint.CompareOptions{
		HashWeight:         c.Similarity.HashWeight,
		ColorWeight:        c.Similarity.ColorWeight,
		StructuralWeight:   c.Similarity.StructuralWeight,
		DuplicateThreshold: c.Similarity.DuplicateThreshold,
		ModifiedThreshold:  c.Similarity.ModifiedThreshold,
	}
}

func findConfigPath() string {
	if path := os.Getenv("ARTREGISTRY_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat("artregistry.yaml"); err == nil {
		return "artregistry.yaml"
	}
	return ""
}
