package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/floorboard/internal/kvstore"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix                   = "FLOORBOARD"
	defaultHTTPAddress          = "0.0.0.0:8080"
	defaultStorageDriver        = kvstore.DriverSQLite
	defaultStorageKey           = "yakiniku-tables"
	defaultDatabasePath         = "floorboard.db"
	defaultBadgerDir            = "data/badger"
	defaultBadgerGCInterval     = 10 * time.Minute
	defaultServiceWindowMinutes = 90
	defaultTickInterval         = time.Second
	defaultHeartbeatInterval    = 15 * time.Second
	defaultLogLevel             = "info"
	defaultLogFormat            = "json"
	defaultTokenTTL             = 12 * time.Hour
)

// AppConfig captures runtime configuration for the floor server.
type AppConfig struct {
	HTTPAddress       string
	AllowedOrigins    []string
	StorageDriver     string
	StorageKey        string
	DatabasePath      string
	BadgerDir         string
	BadgerGCInterval  time.Duration
	LayoutPath        string
	ServiceWindow     time.Duration
	TickInterval      time.Duration
	HeartbeatInterval time.Duration
	LogLevel          string
	LogFormat         string
	SigningSecret     string
	TokenTTL          time.Duration
}

// AuthEnabled reports whether mutating routes require a device token.
func (c AppConfig) AuthEnabled() bool {
	return strings.TrimSpace(c.SigningSecret) != ""
}

// LoadDotEnv loads variables from the named .env files when they exist. Variables
// already present in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !isNotExist(err) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("storage.driver", defaultStorageDriver)
	configViper.SetDefault("storage.key", defaultStorageKey)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("badger.dir", defaultBadgerDir)
	configViper.SetDefault("badger.gc_interval", defaultBadgerGCInterval)
	configViper.SetDefault("floor.layout_path", "")
	configViper.SetDefault("floor.service_window_minutes", defaultServiceWindowMinutes)
	configViper.SetDefault("tick.interval", defaultTickInterval)
	configViper.SetDefault("stream.heartbeat_interval", defaultHeartbeatInterval)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.token_ttl", defaultTokenTTL)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	driver, err := kvstore.ParseDriver(configViper.GetString("storage.driver"))
	if err != nil {
		return AppConfig{}, err
	}

	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		AllowedOrigins:    configViper.GetStringSlice("http.allowed_origins"),
		StorageDriver:     driver,
		StorageKey:        configViper.GetString("storage.key"),
		DatabasePath:      configViper.GetString("database.path"),
		BadgerDir:         configViper.GetString("badger.dir"),
		BadgerGCInterval:  configViper.GetDuration("badger.gc_interval"),
		LayoutPath:        strings.TrimSpace(configViper.GetString("floor.layout_path")),
		ServiceWindow:     time.Duration(configViper.GetInt("floor.service_window_minutes")) * time.Minute,
		TickInterval:      configViper.GetDuration("tick.interval"),
		HeartbeatInterval: configViper.GetDuration("stream.heartbeat_interval"),
		LogLevel:          configViper.GetString("log.level"),
		LogFormat:         configViper.GetString("log.format"),
		SigningSecret:     configViper.GetString("auth.signing_secret"),
		TokenTTL:          configViper.GetDuration("auth.token_ttl"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if strings.TrimSpace(c.StorageKey) == "" {
		return fmt.Errorf("storage.key is required")
	}
	switch c.StorageDriver {
	case kvstore.DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case kvstore.DriverBadger:
		if strings.TrimSpace(c.BadgerDir) == "" {
			return fmt.Errorf("badger.dir is required")
		}
	}
	if c.ServiceWindow <= 0 {
		return fmt.Errorf("floor.service_window_minutes must be positive")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick.interval must be positive")
	}
	if c.AuthEnabled() && c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
