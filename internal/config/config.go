// Package config loads runtime settings for the server and the CLI.
//
// Values are layered by viper, lowest precedence first:
//
//  1. built-in defaults (LoadDefaults)
//  2. an optional config file (--config flag or RUSTACEANS_CONFIG)
//  3. environment variables (PORT, DB_PATH, GITHUB_TOKEN, ...)
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileEnv names the environment variable that points at a config file.
const ConfigFileEnv = "RUSTACEANS_CONFIG"

// Config holds runtime settings.
type Config struct {
	Port   int
	DBPath string

	GitHubToken  string
	GitHubRepo   string // "owner/name"
	GitHubAPIURL string

	// DataDir is the repository directory holding the profile files. Empty
	// means the legacy layout with files at the repository root.
	DataDir      string
	FetchTimeout time.Duration

	WebhookSecret     string
	JWTSecret         string
	AdminPasswordHash string
	TokenTTL          time.Duration

	LogLevel  string
	LogFormat string
	LogFile   string

	QueueSize int
}

// keys maps viper keys to the environment variables that set them.
var keys = map[string]string{
	"port":                "PORT",
	"db_path":             "DB_PATH",
	"github_token":        "GITHUB_TOKEN",
	"github_repo":         "GITHUB_REPO",
	"github_api_url":      "GITHUB_API_URL",
	"data_dir":            "DATA_DIR",
	"fetch_timeout":       "FETCH_TIMEOUT",
	"webhook_secret":      "WEBHOOK_SECRET",
	"jwt_secret":          "JWT_SECRET",
	"admin_password_hash": "ADMIN_PASSWORD_HASH",
	"token_ttl":           "TOKEN_TTL",
	"log_level":           "LOG_LEVEL",
	"log_format":          "LOG_FORMAT",
	"log_file":            "LOG_FILE",
	"queue_size":          "QUEUE_SIZE",
}

// LoadDefaults populates c with development defaults.
func (c *Config) LoadDefaults() {
	c.Port = 8080
	c.DBPath = "rustaceans.db"
	c.GitHubRepo = "nrc/rustaceans.org"
	c.GitHubAPIURL = "https://api.github.com"
	c.DataDir = "data"
	c.FetchTimeout = 30 * time.Second
	c.TokenTTL = time.Hour
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.QueueSize = 16
}

// Load builds a Config from defaults, the optional config file and the
// environment. An empty configFile falls back to $RUSTACEANS_CONFIG.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	var defaults Config
	defaults.LoadDefaults()
	v.SetDefault("port", defaults.Port)
	v.SetDefault("db_path", defaults.DBPath)
	v.SetDefault("github_repo", defaults.GitHubRepo)
	v.SetDefault("github_api_url", defaults.GitHubAPIURL)
	v.SetDefault("data_dir", defaults.DataDir)
	v.SetDefault("fetch_timeout", defaults.FetchTimeout)
	v.SetDefault("token_ttl", defaults.TokenTTL)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_format", defaults.LogFormat)
	v.SetDefault("queue_size", defaults.QueueSize)

	for key, env := range keys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("config: binding %s: %w", env, err)
		}
	}

	if configFile == "" {
		configFile = os.Getenv(ConfigFileEnv)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		Port:              v.GetInt("port"),
		DBPath:            v.GetString("db_path"),
		GitHubToken:       v.GetString("github_token"),
		GitHubRepo:        strings.TrimSpace(v.GetString("github_repo")),
		GitHubAPIURL:      v.GetString("github_api_url"),
		DataDir:           normalizeDataDir(v.GetString("data_dir")),
		FetchTimeout:      v.GetDuration("fetch_timeout"),
		WebhookSecret:     v.GetString("webhook_secret"),
		JWTSecret:         v.GetString("jwt_secret"),
		AdminPasswordHash: v.GetString("admin_password_hash"),
		TokenTTL:          v.GetDuration("token_ttl"),
		LogLevel:          strings.ToLower(v.GetString("log_level")),
		LogFormat:         strings.ToLower(v.GetString("log_format")),
		LogFile:           v.GetString("log_file"),
		QueueSize:         v.GetInt("queue_size"),
	}
	return cfg, nil
}

// normalizeDataDir maps "." and "/" to the legacy root layout.
func normalizeDataDir(dir string) string {
	dir = strings.Trim(strings.TrimSpace(dir), "/")
	if dir == "." {
		return ""
	}
	return dir
}

// Validate reports every setting that cannot work, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535 (got %d)", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH is required"))
	}
	owner, name, ok := strings.Cut(c.GitHubRepo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		errs = append(errs, fmt.Errorf("GITHUB_REPO must be \"owner/name\" (got %q)", c.GitHubRepo))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, errors.New("FETCH_TIMEOUT must be positive"))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, errors.New("QUEUE_SIZE must be positive"))
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not a level", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json (got %q)", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// AdminEnabled reports whether the admin login and sync routes can be served.
func (c *Config) AdminEnabled() bool {
	return c.JWTSecret != "" && c.AdminPasswordHash != ""
}

// WebhookEnabled reports whether GitHub webhook deliveries can be verified.
func (c *Config) WebhookEnabled() bool {
	return c.WebhookSecret != ""
}
