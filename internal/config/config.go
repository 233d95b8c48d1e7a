// Package config loads service configuration from the environment, an
// optional YAML file, and the deployment-address file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultDeploymentsFile is where the contract deploy script writes the
// address mapping.
const DefaultDeploymentsFile = "deployments/addresses.json"

// ConfigurationError reports missing or invalid required settings. It is
// fatal: the process refuses to start.
type ConfigurationError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required configuration: %v", e.Missing))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, fmt.Sprintf("invalid configuration values: %v", e.Invalid))
	}
	return strings.Join(parts, "; ")
}

// Config holds all service configuration, resolved once at startup.
type Config struct {
	PrivateKey      string
	RPCURL          string
	Network         string
	ChainID         uint64
	APIHost         string
	APIPort         int
	DeploymentsFile string

	ConfirmTimeout time.Duration
	PollInterval   time.Duration

	AllowedOrigins []string
	RateLimit      int
	RateBurst      int
}

// fileConfig is the optional YAML tuning file. Environment variables take
// precedence over it.
type fileConfig struct {
	Network         string   `yaml:"network"`
	ChainID         uint64   `yaml:"chain_id"`
	APIHost         string   `yaml:"api_host"`
	APIPort         int      `yaml:"api_port"`
	DeploymentsFile string   `yaml:"deployments_file"`
	ConfirmTimeout  string   `yaml:"confirm_timeout"`
	PollInterval    string   `yaml:"poll_interval"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	RateLimit       int      `yaml:"rate_limit"`
	RateBurst       int      `yaml:"rate_burst"`
}

// Load resolves configuration. A .env file in the working directory is
// folded into the environment first, without overriding variables already
// set; the YAML file named by CONFIG_FILE (or config/service.yaml when
// present) supplies tuning defaults; PRIVATE_KEY and RPC_URL must come from
// the environment and are required.
func Load() (*Config, error) {
	// Missing .env is the common case in deployed environments.
	_ = godotenv.Load()

	cfg := &Config{
		Network:         "sepolia",
		ChainID:         11155111,
		APIHost:         "localhost",
		APIPort:         8000,
		DeploymentsFile: DefaultDeploymentsFile,
		ConfirmTimeout:  2 * time.Minute,
		PollInterval:    2 * time.Second,
		AllowedOrigins:  []string{"*"},
		RateLimit:       20,
		RateBurst:       40,
	}

	if err := cfg.applyFile(configFilePath()); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, cfg.validate()
}

func configFilePath() string {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return path
	}
	const fallback = "config/service.yaml"
	if _, err := os.Stat(fallback); err == nil {
		return fallback
	}
	return ""
}

func (c *Config) applyFile(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Network != "" {
		c.Network = fc.Network
	}
	if fc.ChainID != 0 {
		c.ChainID = fc.ChainID
	}
	if fc.APIHost != "" {
		c.APIHost = fc.APIHost
	}
	if fc.APIPort != 0 {
		c.APIPort = fc.APIPort
	}
	if fc.DeploymentsFile != "" {
		c.DeploymentsFile = fc.DeploymentsFile
	}
	if fc.ConfirmTimeout != "" {
		d, err := time.ParseDuration(fc.ConfirmTimeout)
		if err != nil {
			return fmt.Errorf("parse confirm_timeout: %w", err)
		}
		c.ConfirmTimeout = d
	}
	if fc.PollInterval != "" {
		d, err := time.ParseDuration(fc.PollInterval)
		if err != nil {
			return fmt.Errorf("parse poll_interval: %w", err)
		}
		c.PollInterval = d
	}
	if len(fc.AllowedOrigins) > 0 {
		c.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.RateLimit != 0 {
		c.RateLimit = fc.RateLimit
	}
	if fc.RateBurst != 0 {
		c.RateBurst = fc.RateBurst
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		c.PrivateKey = v
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		c.RPCURL = v
	}
	if v := os.Getenv("NETWORK"); v != "" {
		c.Network = v
	}
	if v := os.Getenv("API_HOST"); v != "" {
		c.APIHost = v
	}
	if v := os.Getenv("DEPLOYMENTS_FILE"); v != "" {
		c.DeploymentsFile = v
	}

	// Numeric variables fail loudly: a typo'd chain id must not fall back
	// to signing for the wrong network.
	var invalid []string
	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			invalid = append(invalid, "CHAIN_ID")
		} else {
			c.ChainID = id
		}
	}
	if v := os.Getenv("API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			invalid = append(invalid, "API_PORT")
		} else {
			c.APIPort = port
		}
	}
	if len(invalid) > 0 {
		return &ConfigurationError{Invalid: invalid}
	}
	return nil
}

func (c *Config) validate() error {
	var missing []string
	if c.PrivateKey == "" {
		missing = append(missing, "PRIVATE_KEY")
	}
	if c.RPCURL == "" {
		missing = append(missing, "RPC_URL")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}

// ListenAddr returns the facade's host:port.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}
