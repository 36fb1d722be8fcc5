package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Executor transports.
const (
	TransportLocal = "local"
	TransportNATS  = "nats"
	TransportRedis = "redis"
)

// Transports lists the supported executor transports.
var Transports = []string{TransportLocal, TransportNATS, TransportRedis}

const (
	defaultListenAddr = ":8080"
	defaultDBPath     = "botrunner.db"
	defaultTransport  = TransportLocal
	defaultNATSURL    = "nats://127.0.0.1:4222"
	defaultRedisURL   = "redis://127.0.0.1:6379/0"

	envConfigPath = "BOTRUNNER_CONFIG"
	envListenAddr = "BOTRUNNER_LISTEN_ADDR"
	envDBPath     = "BOTRUNNER_DB_PATH"
	envLogLevel   = "BOTRUNNER_LOG_LEVEL"
	envTransport  = "BOTRUNNER_TRANSPORT"
	envNATSURL    = "BOTRUNNER_NATS_URL"
	envRedisURL   = "BOTRUNNER_REDIS_URL"
	envTaskPrefix = "BOTRUNNER_TASK_PREFIX"
)

// Config holds application configuration.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level
	Executor   ExecutorConfig
}

// ExecutorConfig selects how tasks reach workers. Transport is the default
// for every task type; Routes sends individual task types elsewhere.
type ExecutorConfig struct {
	Transport string
	NATSURL   string
	RedisURL  string
	// Prefix overrides the transport's subject or key prefix when set.
	Prefix string
	Routes map[string]string
}

// Uses returns the distinct transports the configuration needs, default first.
func (e ExecutorConfig) Uses() []string {
	used := []string{e.Transport}
	keys := make([]string, 0, len(e.Routes))
	for k := range e.Routes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if t := e.Routes[k]; !slices.Contains(used, t) {
			used = append(used, t)
		}
	}
	return used
}

// fileConfig is the YAML layout of a config file.
type fileConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`
	LogLevel   string `yaml:"log_level"`
	Executor   struct {
		Transport string            `yaml:"transport"`
		NATSURL   string            `yaml:"nats_url"`
		RedisURL  string            `yaml:"redis_url"`
		Prefix    string            `yaml:"prefix"`
		Routes    map[string]string `yaml:"routes"`
	} `yaml:"executor"`
}

// Load builds the configuration from defaults, then the YAML file at path
// (or $BOTRUNNER_CONFIG when path is empty), then BOTRUNNER_* environment
// variables. A missing path means no file.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddr: defaultListenAddr,
		DBPath:     defaultDBPath,
		LogLevel:   slog.LevelInfo,
		Executor: ExecutorConfig{
			Transport: defaultTransport,
			NATSURL:   defaultNATSURL,
			RedisURL:  defaultRedisURL,
		},
	}

	if path == "" {
		path = os.Getenv(envConfigPath)
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var fc fileConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setIf(&cfg.ListenAddr, fc.ListenAddr)
	setIf(&cfg.DBPath, fc.DBPath)
	if fc.LogLevel != "" {
		cfg.LogLevel = parseLogLevel(fc.LogLevel)
	}
	setIf(&cfg.Executor.Transport, fc.Executor.Transport)
	setIf(&cfg.Executor.NATSURL, fc.Executor.NATSURL)
	setIf(&cfg.Executor.RedisURL, fc.Executor.RedisURL)
	setIf(&cfg.Executor.Prefix, fc.Executor.Prefix)
	if len(fc.Executor.Routes) > 0 {
		cfg.Executor.Routes = fc.Executor.Routes
	}
	return nil
}

func applyEnv(cfg *Config) {
	setIf(&cfg.ListenAddr, os.Getenv(envListenAddr))
	setIf(&cfg.DBPath, os.Getenv(envDBPath))
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	setIf(&cfg.Executor.Transport, os.Getenv(envTransport))
	setIf(&cfg.Executor.NATSURL, os.Getenv(envNATSURL))
	setIf(&cfg.Executor.RedisURL, os.Getenv(envRedisURL))
	setIf(&cfg.Executor.Prefix, os.Getenv(envTaskPrefix))
}

// Validate checks that every transport named is supported.
func (c Config) Validate() error {
	for _, t := range c.Executor.Uses() {
		if !slices.Contains(Transports, t) {
			return fmt.Errorf("unknown executor transport %q (want one of %s)", t, strings.Join(Transports, ", "))
		}
	}
	return nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// ParseLogLevel maps a level name to a slog level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	return parseLogLevel(s)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
