// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/recthink/recthink-client/internal/domain"
	"github.com/recthink/recthink-client/internal/transport"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	APIURL         string
	StreamURL      string // empty derives ws(s)://host/ws from APIURL
	APIKey         string
	Model          string
	ThinkingRounds domain.RoundPolicy
	Alternatives   int
	ShowThinking   bool
	RequestTimeout time.Duration
	JournalPath    string // empty disables the journal
	ListenAddr     string
	AllowedOrigins []string
	LogLevel       string
}

// fileConfig is the optional YAML overlay. Unset keys keep the env value.
type fileConfig struct {
	APIURL         *string   `yaml:"api_url"`
	StreamURL      *string   `yaml:"ws_url"`
	APIKey         *string   `yaml:"api_key"`
	Model          *string   `yaml:"model"`
	ThinkingRounds *string   `yaml:"thinking_rounds"`
	Alternatives   *int      `yaml:"alternatives_per_round"`
	ShowThinking   *bool     `yaml:"show_thinking_process"`
	RequestTimeout *string   `yaml:"request_timeout"`
	JournalPath    *string   `yaml:"journal_path"`
	ListenAddr     *string   `yaml:"listen_addr"`
	AllowedOrigins *[]string `yaml:"allowed_origins"`
	LogLevel       *string   `yaml:"log_level"`
}

// Load reads configuration from environment variables, then applies the
// YAML file named by RECTHINK_CONFIG when set.
func Load() (*Config, error) {
	rounds, err := domain.ParseRoundPolicy(getEnv("RECTHINK_THINKING_ROUNDS", "auto"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: RECTHINK_THINKING_ROUNDS: %w", err)
	}

	cfg := &Config{
		APIURL:         getEnv("RECTHINK_API_URL", "http://localhost:8000/api"),
		StreamURL:      getEnv("RECTHINK_WS_URL", ""),
		APIKey:         getEnv("RECTHINK_API_KEY", ""),
		Model:          getEnv("RECTHINK_MODEL", domain.DefaultModel),
		ThinkingRounds: rounds,
		Alternatives:   getEnvInt("RECTHINK_ALTERNATIVES", domain.DefaultAlternativesPerRound),
		ShowThinking:   getEnvBool("RECTHINK_SHOW_THINKING", false),
		RequestTimeout: getEnvDuration("RECTHINK_REQUEST_TIMEOUT", 120*time.Second),
		JournalPath:    getEnv("RECTHINK_JOURNAL_PATH", "./data/recthink.db"),
		ListenAddr:     getEnv("RECTHINK_LISTEN_ADDR", "127.0.0.1:8090"),
		AllowedOrigins: splitList(getEnv("RECTHINK_ALLOWED_ORIGINS", "*")),
		LogLevel:       getEnv("RECTHINK_LOG_LEVEL", "info"),
	}

	if path := getEnv("RECTHINK_CONFIG", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.APIURL, f.APIURL)
	setString(&c.StreamURL, f.StreamURL)
	setString(&c.APIKey, f.APIKey)
	setString(&c.Model, f.Model)
	setString(&c.JournalPath, f.JournalPath)
	setString(&c.ListenAddr, f.ListenAddr)
	setString(&c.LogLevel, f.LogLevel)
	if f.ThinkingRounds != nil {
		rounds, err := domain.ParseRoundPolicy(*f.ThinkingRounds)
		if err != nil {
			return fmt.Errorf("thinking_rounds: %w", err)
		}
		c.ThinkingRounds = rounds
	}
	if f.Alternatives != nil {
		c.Alternatives = *f.Alternatives
	}
	if f.ShowThinking != nil {
		c.ShowThinking = *f.ShowThinking
	}
	if f.RequestTimeout != nil {
		d, err := time.ParseDuration(*f.RequestTimeout)
		if err != nil {
			return fmt.Errorf("request_timeout: %w", err)
		}
		c.RequestTimeout = d
	}
	if f.AllowedOrigins != nil {
		c.AllowedOrigins = *f.AllowedOrigins
	}
	return nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("RECTHINK_API_URL cannot be empty")
	}
	if err := c.Settings().Validate(); err != nil {
		return err
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("RECTHINK_REQUEST_TIMEOUT must be > 0")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("RECTHINK_LISTEN_ADDR cannot be empty")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Settings returns the initial conversation settings.
func (c *Config) Settings() domain.Settings {
	return domain.Settings{
		Model:                c.Model,
		ThinkingRounds:       c.ThinkingRounds,
		AlternativesPerRound: c.Alternatives,
		ShowThinkingProcess:  c.ShowThinking,
	}
}

// ClientConfig returns the transport configuration.
func (c *Config) ClientConfig() transport.ClientConfig {
	cc := transport.DefaultClientConfig()
	cc.BaseURL = c.APIURL
	cc.StreamURL = c.StreamURL
	cc.RequestTimeout = c.RequestTimeout
	return cc
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("RECTHINK_LOG_LEVEL must be debug, info, warn or error, got %q", s)
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
