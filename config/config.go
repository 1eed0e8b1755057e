// Package config provides configuration loading for the terrain pipeline,
// the particle system and the preprocess tools.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is returned by Validate for inconsistent settings.
var ErrInvalid = errors.New("config: invalid value")

// Config holds all configuration parameters.
type Config struct {
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Terrain    TerrainConfig    `yaml:"terrain"`
	Cache      CacheConfig      `yaml:"cache"`
	Graph      GraphConfig      `yaml:"graph"`
	Elevation  ElevationConfig  `yaml:"elevation"`
	Roads      RoadsConfig      `yaml:"roads"`
	Hydro      HydroConfig      `yaml:"hydro"`
	Particles  ParticlesConfig  `yaml:"particles"`
	Preprocess PreprocessConfig `yaml:"preprocess"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SchedulerConfig holds task scheduler settings.
type SchedulerConfig struct {
	Workers int `yaml:"workers"` // <= 1 runs tasks inline
}

// TerrainConfig holds the quadtree shared by every producer.
type TerrainConfig struct {
	RootQuadSize float64 `yaml:"root_quad_size"` // side of the level 0 tile in world units
	MaxLevel     int     `yaml:"max_level"`
}

// CacheConfig holds per-producer cache capacities, in tiles.
type CacheConfig struct {
	Graph     int `yaml:"graph"`
	Elevation int `yaml:"elevation"`
	Residual  int `yaml:"residual"`
	Flow      int `yaml:"flow"`
	Roads     int `yaml:"roads"`
	Color     int `yaml:"color"`
}

// GraphConfig holds graph producer settings.
type GraphConfig struct {
	MaxNodes          int     `yaml:"max_nodes"` // 0 always clips
	Flatness          float64 `yaml:"flatness"`  // squared tolerance, 0 keeps control points
	TileSize          int     `yaml:"tile_size"`
	PrecomputedLevels []int   `yaml:"precomputed_levels"`
	StoreDir          string  `yaml:"store_dir"` // empty disables precomputed graphs
}

// ElevationConfig holds elevation producer settings.
type ElevationConfig struct {
	TileSize      int     `yaml:"tile_size"` // without border, even
	ResidualScale float64 `yaml:"residual_scale"`
	File          string  `yaml:"file"` // DEM file, empty for a flat terrain
}

// RoadsConfig holds road ortho producer settings.
type RoadsConfig struct {
	TileSize   int    `yaml:"tile_size"`
	ColorSpace string `yaml:"color_space"` // srgb or linear
}

// HydroConfig holds flow producer settings.
type HydroConfig struct {
	MinLevel    int     `yaml:"min_level"`
	GridSize    int     `yaml:"grid_size"`
	MinCellSize float64 `yaml:"min_cell_size"`
	Speed       float64 `yaml:"speed"`
	AxisType    int     `yaml:"axis_type"`
	BankType    int     `yaml:"bank_type"`
	Display     int     `yaml:"display"`
}

// ParticlesConfig holds particle system settings.
type ParticlesConfig struct {
	Capacity    int     `yaml:"capacity"`
	Radius      float64 `yaml:"radius"` // screen-space Poisson radius in pixels
	MaxPerCell  int     `yaml:"max_per_cell"`
	FadeIn      float64 `yaml:"fade_in"`      // seconds
	ActiveDelay float64 `yaml:"active_delay"` // seconds
	FadeOut     float64 `yaml:"fade_out"`     // seconds
	SpeedFactor float64 `yaml:"speed_factor"`
	Seed        uint64  `yaml:"seed"`
}

// PreprocessConfig holds offline pipeline settings.
type PreprocessConfig struct {
	TileSize        int     `yaml:"tile_size"`
	MinLevel        int     `yaml:"min_level"` // chain tiles above the root
	MaxLevel        int     `yaml:"max_level"` // quadtree depth below the root
	ResidualScale   float64 `yaml:"residual_scale"`
	ColorChannels   int     `yaml:"color_channels"`
	ColorSpace      string  `yaml:"color_space"`
	ColorEncoding   string  `yaml:"color_encoding"` // deflate, jpeg or dxt
	JPEGQuality     int     `yaml:"jpeg_quality"`
	ResidualStep    float64 `yaml:"residual_step"` // 0 writes plain color mipmaps
	NoBorder        bool    `yaml:"no_border"`
	ApertureSamples int     `yaml:"aperture_samples"`
	ApertureSize    float64 `yaml:"aperture_size"` // world size of the source
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	FadeIn           time.Duration
	ActiveDelay      time.Duration
	FadeOut          time.Duration
	ElevationSamples int     // elevation tile side including borders
	FinestCellSize   float64 // elevation sample spacing at MaxLevel
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
		// Only overwrites fields present in the file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Validate checks the settings that producers would otherwise reject
// late.
func (c *Config) Validate() error {
	switch {
	case c.Terrain.RootQuadSize <= 0:
		return fmt.Errorf("%w: terrain.root_quad_size %g", ErrInvalid, c.Terrain.RootQuadSize)
	case c.Elevation.TileSize <= 0 || c.Elevation.TileSize%2 != 0:
		return fmt.Errorf("%w: elevation.tile_size %d must be positive and even", ErrInvalid, c.Elevation.TileSize)
	case c.Preprocess.TileSize <= 0 || c.Preprocess.TileSize%2 != 0:
		return fmt.Errorf("%w: preprocess.tile_size %d must be positive and even", ErrInvalid, c.Preprocess.TileSize)
	case c.Preprocess.TileSize>>c.Preprocess.MinLevel == 0:
		return fmt.Errorf("%w: preprocess.min_level %d too large for tile size %d",
			ErrInvalid, c.Preprocess.MinLevel, c.Preprocess.TileSize)
	case c.Graph.MaxNodes < 0:
		return fmt.Errorf("%w: graph.max_nodes %d", ErrInvalid, c.Graph.MaxNodes)
	case c.Particles.Radius <= 0:
		return fmt.Errorf("%w: particles.radius %g", ErrInvalid, c.Particles.Radius)
	case c.Particles.FadeIn < 0 || c.Particles.ActiveDelay < 0 || c.Particles.FadeOut < 0:
		return fmt.Errorf("%w: negative particle delay", ErrInvalid)
	}
	for _, l := range c.Graph.PrecomputedLevels {
		if l < 0 || l > c.Terrain.MaxLevel {
			return fmt.Errorf("%w: precomputed level %d outside [0, %d]", ErrInvalid, l, c.Terrain.MaxLevel)
		}
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.FadeIn = seconds(c.Particles.FadeIn)
	c.Derived.ActiveDelay = seconds(c.Particles.ActiveDelay)
	c.Derived.FadeOut = seconds(c.Particles.FadeOut)
	// Two border samples on each side plus the shared last sample.
	c.Derived.ElevationSamples = c.Elevation.TileSize + 5
	c.Derived.FinestCellSize = c.Terrain.RootQuadSize / float64(int64(1)<<c.Terrain.MaxLevel) / float64(c.Elevation.TileSize)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// WriteYAML writes the configuration to a file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing config file: %w", err)
	}
	return nil
}
