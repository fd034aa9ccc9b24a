// Package config loads server settings from defaults, an optional YAML file
// and TTT_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type Config struct {
	Addr          string        `yaml:"addr"`
	BotDelay      time.Duration `yaml:"bot_delay"`
	RecordTimeout time.Duration `yaml:"record_timeout"`
	// GameTTL is how long a game may sit untouched before it is evicted.
	GameTTL time.Duration `yaml:"game_ttl"`
	// StorePath is the gob snapshot of the match history; empty keeps it in memory.
	StorePath string `yaml:"store_path"`
	// Seed fixes the bot's random source; zero seeds from the clock.
	Seed uint64 `yaml:"seed"`
	Log  Log    `yaml:"log"`
}

func Default() Config {
	return Config{
		Addr:          ":8080",
		BotDelay:      600 * time.Millisecond,
		RecordTimeout: 5 * time.Second,
		GameTTL:       30 * time.Minute,
		StorePath:     "data/matches.gob",
		Log:           Log{Level: "info", Pretty: true},
	}
}

// Load reads path (skipped when empty) over the defaults, then applies the
// environment and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("TTT_ADDR"); ok {
		c.Addr = v
	}
	if v, ok := os.LookupEnv("TTT_BOT_DELAY"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TTT_BOT_DELAY: %w", err)
		}
		c.BotDelay = d
	}
	if v, ok := os.LookupEnv("TTT_GAME_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TTT_GAME_TTL: %w", err)
		}
		c.GameTTL = d
	}
	if v, ok := os.LookupEnv("TTT_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv("TTT_STORE_PATH"); ok {
		c.StorePath = v
	}
	if v, ok := os.LookupEnv("TTT_SEED"); ok {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TTT_SEED: %w", err)
		}
		c.Seed = seed
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.BotDelay < 0 {
		errs = append(errs, fmt.Errorf("bot_delay must not be negative, got %s", c.BotDelay))
	}
	if c.RecordTimeout <= 0 {
		errs = append(errs, fmt.Errorf("record_timeout must be positive, got %s", c.RecordTimeout))
	}
	if c.GameTTL <= 0 {
		errs = append(errs, fmt.Errorf("game_ttl must be positive, got %s", c.GameTTL))
	}
	if _, err := c.Log.ZerologLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ZerologLevel parses Level; empty means info.
func (l Log) ZerologLevel() (zerolog.Level, error) {
	if l.Level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(l.Level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log level %q: %w", l.Level, err)
	}
	return lvl, nil
}
