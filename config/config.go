// Package config loads the CLI configuration with priority: env > file >
// defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"pomcp/belief"
	"pomcp/grid"
	"pomcp/searcher"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Planner Planner     `yaml:"planner"`
	Grid    grid.Config `yaml:"grid"`
	Run     Run         `yaml:"run"`
	Log     Log         `yaml:"log"`
}

type Planner struct {
	Goroutines  int           `yaml:"goroutines" validate:"min=1"`
	Duration    time.Duration `yaml:"duration" validate:"gte=0"`
	Episodes    int           `yaml:"episodes" validate:"gte=0"` // Simulations per search, overrides Duration
	Discount    float64       `yaml:"discount" validate:"gt=0,lte=1"`
	Exploration float64       `yaml:"exploration" validate:"gte=0"`
	Epsilon     float64       `yaml:"epsilon" validate:"gt=0,lt=1"`
	MaxDepth    int           `yaml:"max_depth" validate:"gte=0"`
	Seed        uint64        `yaml:"seed"`
	// One probability per grid cell, uniform when empty
	InitialBelief []float64 `yaml:"initial_belief" validate:"omitempty,dive,gte=0,lte=1"`
}

type Run struct {
	Episodes    int    `yaml:"episodes" validate:"min=1"`
	MaxSteps    int    `yaml:"max_steps" validate:"gte=0"`
	Recovery    string `yaml:"recovery" validate:"oneof=reset abort"`
	Output      string `yaml:"output"` // CSV directory, none when empty
	Render      bool   `yaml:"render"`
	MetricsAddr string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
	Remote      string `yaml:"remote" validate:"omitempty,url"` // Communication server hosting the grid
}

type Log struct {
	Level   string `yaml:"level" validate:"oneof=debug info warn error"`
	Console bool   `yaml:"console"`
}

func Default() Config {
	return Config{
		Planner: Planner{
			Goroutines:  1,
			Duration:    searcher.DefaultDuration,
			Discount:    searcher.DefaultDiscount,
			Exploration: searcher.DefaultExploration,
			Epsilon:     searcher.DefaultEpsilon,
			Seed:        1,
		},
		Grid: grid.DefaultConfig(),
		Run: Run{
			Episodes: 1,
			MaxSteps: 100,
			Recovery: "reset",
		},
		Log: Log{
			Level:   "info",
			Console: true,
		},
	}
}

// Load merges defaults, the YAML file at path (skipped when empty or missing)
// and POMCP_* environment variables, then validates the result.
func Load(path string) (Config, error) {
	config := Default()

	if path != "" {
		if err := loadFile(path, &config); err != nil {
			return config, fmt.Errorf("%w: load %s: %w", ErrInvalidConfig, path, err)
		}
	}
	if err := loadEnv(&config); err != nil {
		return config, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Defaults
		}
		return err
	}
	return yaml.Unmarshal(data, config)
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Planner.Discount == 1 && c.Planner.MaxDepth == 0 {
		return fmt.Errorf("%w: an undiscounted planner needs max_depth", ErrInvalidConfig)
	}
	if len(c.Planner.InitialBelief) > 0 {
		cells := c.Grid.Width * c.Grid.Height
		if err := belief.Belief(c.Planner.InitialBelief).Validate(cells); err != nil {
			return fmt.Errorf("%w: initial_belief: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

func loadEnv(config *Config) error {
	for _, v := range []struct {
		name string
		set  func(string) error
	}{
		{"POMCP_PLANNER_GOROUTINES", intVar(&config.Planner.Goroutines)},
		{"POMCP_PLANNER_DURATION", durationVar(&config.Planner.Duration)},
		{"POMCP_PLANNER_EPISODES", intVar(&config.Planner.Episodes)},
		{"POMCP_PLANNER_DISCOUNT", floatVar(&config.Planner.Discount)},
		{"POMCP_PLANNER_EXPLORATION", floatVar(&config.Planner.Exploration)},
		{"POMCP_PLANNER_EPSILON", floatVar(&config.Planner.Epsilon)},
		{"POMCP_PLANNER_MAX_DEPTH", intVar(&config.Planner.MaxDepth)},
		{"POMCP_PLANNER_SEED", uintVar(&config.Planner.Seed)},
		{"POMCP_PLANNER_INITIAL_BELIEF", floatsVar(&config.Planner.InitialBelief)},
		{"POMCP_GRID_NOISE", floatVar(&config.Grid.Noise)},
		{"POMCP_GRID_SLIP", floatVar(&config.Grid.Slip)},
		{"POMCP_GRID_SEED", uintVar(&config.Grid.Seed)},
		{"POMCP_RUN_EPISODES", intVar(&config.Run.Episodes)},
		{"POMCP_RUN_MAX_STEPS", intVar(&config.Run.MaxSteps)},
		{"POMCP_RUN_RECOVERY", stringVar(&config.Run.Recovery)},
		{"POMCP_RUN_OUTPUT", stringVar(&config.Run.Output)},
		{"POMCP_RUN_METRICS_ADDR", stringVar(&config.Run.MetricsAddr)},
		{"POMCP_RUN_REMOTE", stringVar(&config.Run.Remote)},
		{"POMCP_LOG_LEVEL", stringVar(&config.Log.Level)},
	} {
		s, ok := os.LookupEnv(v.name)
		if !ok || s == "" {
			continue
		}
		if err := v.set(s); err != nil {
			return fmt.Errorf("%s=%q: %w", v.name, s, err)
		}
	}
	return nil
}

func intVar(p *int) func(string) error {
	return func(s string) error {
		i, err := strconv.Atoi(s)
		*p = i
		return err
	}
}

func uintVar(p *uint64) func(string) error {
	return func(s string) error {
		u, err := strconv.ParseUint(s, 10, 64)
		*p = u
		return err
	}
}

func floatVar(p *float64) func(string) error {
	return func(s string) error {
		f, err := strconv.ParseFloat(s, 64)
		*p = f
		return err
	}
}

// floatsVar parses a comma separated list, e.g. "0.5,0.5".
func floatsVar(p *[]float64) func(string) error {
	return func(s string) error {
		fields := strings.Split(s, ",")
		floats := make([]float64, len(fields))
		for i, field := range fields {
			f, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return err
			}
			floats[i] = f
		}
		*p = floats
		return nil
	}
}

func durationVar(p *time.Duration) func(string) error {
	return func(s string) error {
		d, err := time.ParseDuration(s)
		*p = d
		return err
	}
}

func stringVar(p *string) func(string) error {
	return func(s string) error {
		*p = s
		return nil
	}
}

// Options turns the planner section into searcher options.
func (p Planner) Options() []searcher.Option {
	options := []searcher.Option{
		searcher.WithGoroutines(p.Goroutines),
		searcher.WithDuration(p.Duration),
		searcher.WithDiscount(p.Discount),
		searcher.WithExploration(p.Exploration),
		searcher.WithEpsilon(p.Epsilon),
		searcher.WithSeed(p.Seed),
	}
	if p.Episodes > 0 {
		options = append(options, searcher.WithEpisodes(p.Episodes))
	}
	if p.MaxDepth > 0 {
		options = append(options, searcher.WithMaxDepth(p.MaxDepth))
	}
	if len(p.InitialBelief) > 0 {
		options = append(options, searcher.WithInitialBelief(belief.Belief(p.InitialBelief)))
	}
	return options
}
