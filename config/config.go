// Package config loads runtime settings from the environment, an optional
// .env file and an optional YAML file. Environment variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"

	envConfigFile = "PRISM_CONFIG"
	envDotEnvFile = "PRISM_ENV_FILE"
)

type CredentialConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	Slot    string `yaml:"slot"`
	// RedisConnectionString is a redis:// URL or "host:port,password=..,ssl=true".
	RedisConnectionString string `yaml:"redis_connection_string"`
	SQLitePath            string `yaml:"sqlite_path"`
}

type TokenConfig struct {
	Verification string `yaml:"verification"`
	Secret       string `yaml:"secret"`
	JWKSURL      string `yaml:"jwks_url"`
	Audience     string `yaml:"audience"`
	Issuer       string `yaml:"issuer"`
}

type MockConfig struct {
	Addr     string        `yaml:"addr"`
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// Config is the complete runtime configuration.
type Config struct {
	APIURL         string           `yaml:"api_url"`
	RequestTimeout time.Duration    `yaml:"request_timeout"`
	Credential     CredentialConfig `yaml:"credential"`
	Token          TokenConfig      `yaml:"token"`
	Debug          bool             `yaml:"debug"`
	LogFormat      string           `yaml:"log_format"`
	Mock           MockConfig       `yaml:"mock"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		APIURL:         "http://localhost:8080",
		RequestTimeout: 10 * time.Second,
		Credential: CredentialConfig{
			Backend:    BackendFile,
			Path:       defaultDataPath("credential"),
			Slot:       "token",
			SQLitePath: defaultDataPath("credentials.db"),
		},
		Token:     TokenConfig{Verification: "none"},
		LogFormat: "text",
		Mock: MockConfig{
			Addr:     ":8080",
			Secret:   "prism-mock-secret",
			TokenTTL: time.Hour,
		},
	}
}

func defaultDataPath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "prism-board", name)
}

// Load builds the configuration: defaults, then .env, then the YAML file
// named by PRISM_CONFIG, then environment variables.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	cfg := Default()
	if path := os.Getenv(envConfigFile); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv reads PRISM_ENV_FILE, or ./.env when present. Variables that
// are already set are not overridden.
func loadDotEnv() error {
	if p := os.Getenv(envDotEnvFile); p != "" {
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load()
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	envStr("API_URL", &c.APIURL)
	if err := envDur("REQUEST_TIMEOUT", &c.RequestTimeout); err != nil {
		return err
	}
	envStr("CREDENTIAL_BACKEND", &c.Credential.Backend)
	envStr("CREDENTIAL_PATH", &c.Credential.Path)
	envStr("CREDENTIAL_SLOT", &c.Credential.Slot)
	envStr("REDIS_CONNECTION_STRING", &c.Credential.RedisConnectionString)
	envStr("SQLITE_PATH", &c.Credential.SQLitePath)
	envStr("TOKEN_VERIFICATION", &c.Token.Verification)
	envStr("JWT_SECRET", &c.Token.Secret)
	envStr("JWKS_URL", &c.Token.JWKSURL)
	envStr("JWT_AUDIENCE", &c.Token.Audience)
	envStr("JWT_ISSUER", &c.Token.Issuer)
	if err := envBool("DEBUG", &c.Debug); err != nil {
		return err
	}
	envStr("LOG_FORMAT", &c.LogFormat)
	envStr("MOCK_ADDR", &c.Mock.Addr)
	envStr("MOCK_JWT_SECRET", &c.Mock.Secret)
	return envDur("MOCK_TOKEN_TTL", &c.Mock.TokenTTL)
}

// Validate rejects settings the rest of the program cannot work with.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("missing API_URL")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("invalid REQUEST_TIMEOUT: must be greater than zero")
	}
	c.Credential.Backend = strings.ToLower(c.Credential.Backend)
	switch c.Credential.Backend {
	case BackendFile:
		if c.Credential.Path == "" {
			return errors.New("missing CREDENTIAL_PATH")
		}
	case BackendRedis:
		if c.Credential.RedisConnectionString == "" {
			return errors.New("missing redis config")
		}
	case BackendSQLite:
		if c.Credential.SQLitePath == "" {
			return errors.New("missing SQLITE_PATH")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unsupported CREDENTIAL_BACKEND %q", c.Credential.Backend)
	}
	if c.Credential.Slot == "" {
		return errors.New("missing CREDENTIAL_SLOT")
	}
	c.Token.Verification = strings.ToLower(c.Token.Verification)
	switch c.Token.Verification {
	case "", "none":
	case "hs256":
		if c.Token.Secret == "" {
			return errors.New("JWT_SECRET must be set when TOKEN_VERIFICATION=hs256")
		}
	case "jwks":
		if c.Token.JWKSURL == "" {
			return errors.New("JWKS_URL must be set when TOKEN_VERIFICATION=jwks")
		}
	default:
		return fmt.Errorf("unsupported TOKEN_VERIFICATION %q", c.Token.Verification)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported LOG_FORMAT %q", c.LogFormat)
	}
	if c.Mock.TokenTTL <= 0 {
		return errors.New("invalid MOCK_TOKEN_TTL: must be greater than zero")
	}
	return nil
}

func envStr(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envDur(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s: must be greater than zero", key)
	}
	*dst = d
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}
