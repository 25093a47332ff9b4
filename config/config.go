// Package config loads the YAML configuration of the zkpipe command.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/eon-protocol/zkpipe"
	"github.com/eon-protocol/zkpipe/onchain"
	"github.com/eon-protocol/zkpipe/store"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	DataDir string           `yaml:"data_dir"`
	Log     Log              `yaml:"log"`
	SRS     zkpipe.SRSSource `yaml:"srs"`
	Prover  Prover           `yaml:"prover"`
	Chain   Chain            `yaml:"chain"`
	Store   Store            `yaml:"store"`
	Metrics Metrics          `yaml:"metrics"`
}

type Log struct {
	Level string `yaml:"level"`
}

type Prover struct {
	Workers     int    `yaml:"workers"` // zero means GOMAXPROCS
	Seed        string `yaml:"seed"`
	Accelerator string `yaml:"accelerator"`
	Strict      bool   `yaml:"strict"`
}

type Chain struct {
	GasLimit uint64 `yaml:"gas_limit"`
}

type Store struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"` // relative to data_dir
}

type Metrics struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

func Default() *Config {
	return &Config{
		DataDir: "data",
		Log:     Log{Level: zerolog.InfoLevel.String()},
		SRS:     zkpipe.SRSSource{Path: zkpipe.SRS_FILE},
		Prover:  Prover{Accelerator: zkpipe.ACCELERATOR_NONE},
		Chain:   Chain{GasLimit: onchain.DEFAULT_GAS_LIMIT},
		Store:   Store{Backend: store.BACKEND_DIR, Path: "artifacts"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalidConfig, err)
	}
	if c.Prover.Workers < 0 {
		return fmt.Errorf("%w: prover.workers must not be negative", ErrInvalidConfig)
	}
	if _, err := zkpipe.NewProverConfig(c.ProverOptions()...); err != nil {
		return fmt.Errorf("%w: prover: %w", ErrInvalidConfig, err)
	}
	switch c.Store.Backend {
	case store.BACKEND_DIR, store.BACKEND_BADGER:
	default:
		return fmt.Errorf("%w: store.backend %q", ErrInvalidConfig, c.Store.Backend)
	}
	if c.Chain.GasLimit == 0 {
		return fmt.Errorf("%w: chain.gas_limit must be positive", ErrInvalidConfig)
	}
	if c.SRS.Path == "" && c.SRS.URL == "" && c.SRS.DevSecret == "" {
		return fmt.Errorf("%w: srs needs a path, an url or a dev_secret", ErrInvalidConfig)
	}
	return nil
}

// ProverOptions converts the prover section to prover options.
func (c *Config) ProverOptions() []zkpipe.ProverOption {
	opts := []zkpipe.ProverOption{zkpipe.WithAccelerator(c.Prover.Accelerator)}
	if c.Prover.Seed != "" {
		opts = append(opts, zkpipe.WithSeed([]byte(c.Prover.Seed)))
	}
	return opts
}

// Path resolves a path relative to the data directory.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// SRSSource returns the SRS section with its path resolved.
func (c *Config) SRSSource() zkpipe.SRSSource {
	src := c.SRS
	src.Path = c.Path(src.Path)
	return src
}

func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func (c *Config) OpenStore() (store.Store, error) {
	return store.Open(c.Store.Backend, c.Path(c.Store.Path))
}
