// Package config loads the daemon configuration: an optional YAML file
// overlaid with SIGNET_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	GRPCListen string `yaml:"grpc_listen" env:"SIGNET_GRPC_LISTEN"`
	HTTPListen string `yaml:"http_listen" env:"SIGNET_HTTP_LISTEN"`

	// JWKSFile is the trusted key set used when a request brings none.
	JWKSFile  string `yaml:"jwks_file" env:"SIGNET_JWKS_FILE"`
	StrictKey bool   `yaml:"strict_key" env:"SIGNET_STRICT_KEY"`

	// StoreConfig points at a casconfig JSON/YAML file. Empty disables
	// hydration.
	StoreConfig string `yaml:"store_config" env:"SIGNET_STORE_CONFIG"`

	ChainConcurrency int  `yaml:"chain_concurrency" env:"SIGNET_CHAIN_CONCURRENCY"`
	CheckReceiptHash bool `yaml:"check_receipt_hash" env:"SIGNET_CHECK_RECEIPT_HASH"`

	HTTP HTTPConfig `yaml:"http" envPrefix:"SIGNET_HTTP_"`
	Log  LogConfig  `yaml:"log" envPrefix:"SIGNET_LOG_"`
}

type HTTPConfig struct {
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type LogConfig struct {
	JSON    bool `yaml:"json" env:"JSON"`
	Verbose bool `yaml:"verbose" env:"VERBOSE"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		GRPCListen: "127.0.0.1:7443",
		HTTPListen: "127.0.0.1:7080",
		HTTP: HTTPConfig{
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			MaxBodyBytes:    8 << 20,
			ShutdownTimeout: 5 * time.Second,
		},
	}
}

// Load reads path (when non-empty) over Default, then applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c Config) Validate() error {
	if c.GRPCListen == "" && c.HTTPListen == "" {
		return errors.New("config: at least one of grpc_listen or http_listen is required")
	}
	if c.ChainConcurrency < 0 {
		return fmt.Errorf("config: chain_concurrency must be >= 0, got %d", c.ChainConcurrency)
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("config: http.max_body_bytes must be > 0, got %d", c.HTTP.MaxBodyBytes)
	}
	if c.HTTP.ReadTimeout < 0 || c.HTTP.WriteTimeout < 0 || c.HTTP.ShutdownTimeout < 0 {
		return errors.New("config: http timeouts must not be negative")
	}
	return nil
}
