package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Runtime RuntimeConfig `toml:"runtime"`
	Bench   BenchConfig   `toml:"bench"`
	Logging LoggingConfig `toml:"logging"`
}

type RuntimeConfig struct {
	Workers int `toml:"workers"` // 0 = all CPUs
}

type BenchConfig struct {
	Scenario   string `toml:"scenario"` // scenario yaml path; empty = built-in default
	Ticks      int    `toml:"ticks"`
	Worlds     int    `toml:"worlds"`      // independent worlds run in parallel
	Profile    string `toml:"profile"`     // "", "cpu" or "mem"
	FlushEvery int    `toml:"flush_every"` // ticks between deallocation flushes
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			Workers: 0,
		},
		Bench: BenchConfig{
			Ticks:      600,
			Worlds:     1,
			FlushEvery: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
