package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// ErrInvalidConfig is returned, wrapped, when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all information parsed from the
// supplied config file of a simulation run.
type Config struct {
	LogLevel   string
	Simulation Simulation
}

// Simulation describes the replicas of a run and
// the way operations travel between them.
type Simulation struct {
	Replicas      int
	Steps         int
	Seed          int64
	DuplicateRate float64
	DecrementRate float64
	FlushEvery    int
	GossipEvery   int
}

// Default returns the configuration used for
// values missing from the config file.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Simulation: Simulation{
			Replicas:      3,
			Steps:         1000,
			Seed:          1,
			DuplicateRate: 0.1,
			DecrementRate: 0.3,
			FlushEvery:    10,
			GossipEvery:   100,
		},
	}
}

// LoadConfig takes in the path to a config file in
// TOML syntax and places the values from the file
// on top of the defaults.
func LoadConfig(configFile string) (*Config, error) {
	conf := Default()
	if _, err := toml.DecodeFile(configFile, conf); err != nil {
		return nil, errors.Wrapf(err, "failed to read in TOML config file at '%s'", configFile)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// LoadEnv reads an optional .env file and applies the
// COUNTERS_SEED and COUNTERS_LOGLEVEL overrides found
// there or in the process environment. A missing file
// is not an error.
func (c *Config) LoadEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return errors.Wrapf(err, "failed to read in env file at '%s'", envFile)
		}
	}
	if seed, ok := os.LookupEnv("COUNTERS_SEED"); ok {
		n, err := strconv.ParseInt(seed, 10, 64)
		if err != nil {
			return errors.Wrapf(ErrInvalidConfig, "COUNTERS_SEED=%q: %v", seed, err)
		}
		c.Simulation.Seed = n
	}
	if lvl, ok := os.LookupEnv("COUNTERS_LOGLEVEL"); ok {
		c.LogLevel = lvl
	}
	return c.Validate()
}

// Validate checks that all values are in range.
func (c *Config) Validate() error {
	s := c.Simulation
	switch {
	case s.Replicas < 1:
		return errors.Wrapf(ErrInvalidConfig, "need at least one replica, got %d", s.Replicas)
	case s.Steps < 0:
		return errors.Wrapf(ErrInvalidConfig, "negative number of steps: %d", s.Steps)
	case s.DuplicateRate < 0 || s.DuplicateRate > 1:
		return errors.Wrapf(ErrInvalidConfig, "duplicate rate out of [0, 1]: %v", s.DuplicateRate)
	case s.DecrementRate < 0 || s.DecrementRate > 1:
		return errors.Wrapf(ErrInvalidConfig, "decrement rate out of [0, 1]: %v", s.DecrementRate)
	case s.FlushEvery < 0 || s.GossipEvery < 0:
		return errors.Wrapf(ErrInvalidConfig, "negative flush or gossip interval")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown log level %q", c.LogLevel)
	}
	return nil
}
