// Package config loads the server configuration.
//
// Values are layered: built-in defaults, then the YAML file named by
// LENDING_CONFIG (default config.yaml, optional), then variables from .env,
// then the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

const defaultConfigFile = "config.yaml"

// Config is the resolved configuration.
type Config struct {
	Addr        string     `yaml:"addr"`
	WebDir      string     `yaml:"web_dir"`
	Store       string     `yaml:"store"`
	DatabaseURL string     `yaml:"database_url"`
	Timezone    string     `yaml:"timezone"`
	Log         LogConfig  `yaml:"log"`
	Auth        AuthConfig `yaml:"auth"`
	OIDC        OIDCConfig `yaml:"oidc"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AuthConfig struct {
	// JWTSecret enables bearer tokens when set.
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	ForwardAuth bool          `yaml:"forward_auth"`

	// PublicAPIToken enables the read-only /api/public catalog when set.
	PublicAPIToken string `yaml:"public_api_token"`
}

type OIDCConfig struct {
	Issuer       string `yaml:"issuer"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// Enabled reports whether SSO is fully configured.
func (o OIDCConfig) Enabled() bool {
	return o.Issuer != "" && o.ClientID != "" && o.ClientSecret != "" && o.RedirectURL != ""
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Addr:     ":8080",
		WebDir:   "web",
		Store:    StorePostgres,
		Timezone: "UTC",
		Log:      LogConfig{Level: "info", Format: "text"},
		Auth:     AuthConfig{TokenTTL: 24 * time.Hour},
	}
}

// Load resolves the configuration from the working directory and the
// environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Defaults()

	path, explicit := lookup("LENDING_CONFIG")
	if !explicit || path == "" {
		path = defaultConfigFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("ADDR", &cfg.Addr)
	str("WEB_DIR", &cfg.WebDir)
	str("STORE", &cfg.Store)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("TIMEZONE", &cfg.Timezone)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("PUBLIC_API_TOKEN", &cfg.Auth.PublicAPIToken)
	str("OIDC_ISSUER", &cfg.OIDC.Issuer)
	str("OIDC_CLIENT_ID", &cfg.OIDC.ClientID)
	str("OIDC_CLIENT_SECRET", &cfg.OIDC.ClientSecret)
	str("OIDC_REDIRECT_URL", &cfg.OIDC.RedirectURL)

	if v, ok := lookup("TOKEN_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TOKEN_TTL: %w", err)
		}
		cfg.Auth.TokenTTL = d
	}
	if v, ok := lookup("FORWARD_AUTH"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FORWARD_AUTH: %w", err)
		}
		cfg.Auth.ForwardAuth = b
	}
	return nil
}

// Validate checks the resolved values.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	return nil
}

// Location returns the time zone calendar days are counted in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// String summarizes the configuration with secrets masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Addr: %s, Store: %s, DB: %s, TZ: %s, SSO: %t, Tokens: %t}",
		c.Addr, c.Store, maskPassword(c.DatabaseURL), c.Timezone, c.OIDC.Enabled(), c.Auth.JWTSecret != "")
}

var passwordInURL = regexp.MustCompile(`(://[^:/@]+:)([^@]+)(@)`)

func maskPassword(url string) string {
	return passwordInURL.ReplaceAllString(url, "${1}***${3}")
}

func (c *Config) normalize() {
	c.Store = strings.ToLower(c.Store)
	c.Log.Format = strings.ToLower(c.Log.Format)
}
