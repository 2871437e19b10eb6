package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zeusync/cubenav/internal/core/observability/log"
	"github.com/zeusync/cubenav/internal/core/orientation"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the config file when Load gets an empty path.
const EnvConfigPath = "CUBENAV_CONFIG"

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Log         LogConfig         `json:"log" yaml:"log"`
	Graph       GraphConfig       `json:"graph" yaml:"graph"`
	Pathfinding PathfindingConfig `json:"pathfinding" yaml:"pathfinding"`
	World       WorldConfig       `json:"world" yaml:"world"`
	Inspect     InspectConfig     `json:"inspect" yaml:"inspect"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// GraphConfig holds the distances used by the tile graph. All lengths are in
// world units; GridSize is the edge length of one cube.
type GraphConfig struct {
	GridSize             float64 `json:"grid_size" yaml:"grid_size"`
	ProximityRadius      float64 `json:"proximity_radius" yaml:"proximity_radius"`
	BridgeRadius         float64 `json:"bridge_radius" yaml:"bridge_radius"`
	BridgeAlignTolerance float64 `json:"bridge_align_tolerance" yaml:"bridge_align_tolerance"`
	MaxBridgeDepth       int     `json:"max_bridge_depth" yaml:"max_bridge_depth"`
	HitRadius            float64 `json:"hit_radius" yaml:"hit_radius"`
	ProbeMargin          float64 `json:"probe_margin" yaml:"probe_margin"`
	FallDistance         float64 `json:"fall_distance" yaml:"fall_distance"`
}

type PathfindingConfig struct {
	MaxExpanded int `json:"max_expanded" yaml:"max_expanded"`
	Workers     int `json:"workers" yaml:"workers"`
}

type WorldConfig struct {
	Gravity  orientation.Orientation `json:"gravity" yaml:"gravity"`
	TickRate int                     `json:"tick_rate" yaml:"tick_rate"`
}

type InspectConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Addr       string `json:"addr" yaml:"addr"`
	EveryTicks int    `json:"every_ticks" yaml:"every_ticks"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Graph: GraphConfig{
			GridSize:             10,
			ProximityRadius:      10.5,
			BridgeRadius:         10.5,
			BridgeAlignTolerance: 1.0,
			MaxBridgeDepth:       8,
			HitRadius:            2.5,
			ProbeMargin:          1.0,
			FallDistance:         200,
		},
		Pathfinding: PathfindingConfig{MaxExpanded: 4096, Workers: 4},
		World:       WorldConfig{Gravity: orientation.Down, TickRate: 30},
		Inspect:     InspectConfig{Enabled: false, Addr: "127.0.0.1:7788", EveryTicks: 10},
	}
}

// Load reads a YAML file on top of Default. An empty path falls back to
// $CUBENAV_CONFIG, and if that is unset too the defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return Default(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = f.Close() }()

	c, err := LoadYAML(f)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// LoadYAML decodes YAML from r over the defaults and validates the result.
func LoadYAML(r io.Reader) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	_, err := log.ParseLevel(c.Log.Level)
	check(err == nil, "log.level %q", c.Log.Level)

	g := c.Graph
	check(g.GridSize > 0, "graph.grid_size must be positive, got %v", g.GridSize)
	check(g.ProximityRadius > 0, "graph.proximity_radius must be positive, got %v", g.ProximityRadius)
	check(g.BridgeRadius > 0, "graph.bridge_radius must be positive, got %v", g.BridgeRadius)
	check(g.BridgeAlignTolerance >= 0, "graph.bridge_align_tolerance must not be negative, got %v", g.BridgeAlignTolerance)
	check(g.MaxBridgeDepth >= 1, "graph.max_bridge_depth must be at least 1, got %d", g.MaxBridgeDepth)
	check(g.HitRadius > 0, "graph.hit_radius must be positive, got %v", g.HitRadius)
	check(g.ProbeMargin >= 0, "graph.probe_margin must not be negative, got %v", g.ProbeMargin)
	check(g.FallDistance > 0, "graph.fall_distance must be positive, got %v", g.FallDistance)

	check(c.Pathfinding.MaxExpanded > 0, "pathfinding.max_expanded must be positive, got %d", c.Pathfinding.MaxExpanded)
	check(c.Pathfinding.Workers > 0, "pathfinding.workers must be positive, got %d", c.Pathfinding.Workers)

	check(c.World.Gravity.Valid(), "world.gravity must be one of the six directions, got %s", c.World.Gravity)
	check(c.World.TickRate > 0, "world.tick_rate must be positive, got %d", c.World.TickRate)

	if c.Inspect.Enabled {
		check(c.Inspect.Addr != "", "inspect.addr is required when inspect is enabled")
		check(c.Inspect.EveryTicks > 0, "inspect.every_ticks must be positive, got %d", c.Inspect.EveryTicks)
	}
	return errors.Join(errs...)
}
