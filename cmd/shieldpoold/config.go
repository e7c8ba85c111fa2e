package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/kysee/shieldpool/merkle"
)

// Config selects the pool parameters and proof backend of the demo run.
type Config struct {
	PoolID      uint64 `json:"pool_id"`
	MinPoolSize uint64 `json:"min_pool_size"`
	Depth       int    `json:"depth"`
	Amount      uint64 `json:"amount"`
	Backend     string `json:"backend"` // "attest" or "plonk"
	LogLevel    string `json:"log_level"`
}

func DefaultConfig() *Config {
	return &Config{
		PoolID:      1,
		MinPoolSize: 10,
		Depth:       4,
		Amount:      100,
		Backend:     "attest",
		LogLevel:    "info",
	}
}

// LoadConfig reads a JSON config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(bz, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.MinPoolSize == 0 {
		return errors.New("config: min_pool_size must be greater than 0")
	}
	if c.Depth < 1 || c.Depth > merkle.MaxDepth {
		return fmt.Errorf("config: depth must be within 1..%d", merkle.MaxDepth)
	}
	if c.MinPoolSize > uint64(1)<<c.Depth {
		return fmt.Errorf("config: min_pool_size %d exceeds tree capacity %d", c.MinPoolSize, uint64(1)<<c.Depth)
	}
	if c.Amount == 0 {
		return errors.New("config: amount must be greater than 0")
	}
	switch c.Backend {
	case "attest", "plonk":
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	return nil
}
