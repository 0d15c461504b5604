package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/pg-embed/internal/domain/pg"
	"github.com/oshokin/pg-embed/internal/logger"
	"github.com/oshokin/pg-embed/internal/service/fetch"
	"github.com/oshokin/pg-embed/internal/service/postgres"
)

// Config is the settings file of the command line tool.
type Config struct {
	// CacheDir overrides the user cache directory as the binary cache root.
	CacheDir string `yaml:"cache_dir,omitempty"`
	// Host is the Maven repository serving the binaries.
	Host string `yaml:"host"`
	// Version is the PostgreSQL binaries version, e.g. 17.2.0.
	Version string `yaml:"version"`
	// OS overrides the detected operating system.
	OS string `yaml:"os"`
	// Arch overrides the detected architecture.
	Arch string `yaml:"arch"`
	// DatabaseDir is the cluster data directory.
	DatabaseDir string `yaml:"database_dir"`
	// Port is the server port.
	Port uint16 `yaml:"port"`
	// User is the superuser name.
	User string `yaml:"user"`
	// Password is the superuser password.
	Password string `yaml:"password"`
	// AuthMethod is one of password, md5 or scram-sha-256.
	AuthMethod string `yaml:"auth_method"`
	// Persistent keeps the cluster on exit.
	Persistent bool `yaml:"persistent"`
	// Timeout bounds each control tool invocation.
	Timeout time.Duration `yaml:"timeout"`
	// MigrationDir holds migration scripts for the migrate command.
	MigrationDir string `yaml:"migration_dir,omitempty"`
	// LogLevel is the minimum level of the tool's own log lines.
	LogLevel string `yaml:"log_level"`
}

const (
	// DefaultConfigFilename is the settings file looked up when no path is given.
	DefaultConfigFilename = "pg-embed.yaml"

	// DefaultDatabaseDir is the data directory used when none is configured.
	DefaultDatabaseDir = "pg-embed-data"

	// DefaultLogLevel is the log level used when none is configured.
	DefaultLogLevel = "info"

	// DefaultFilePermissions is the file permission of saved settings, which hold a password.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInvalidHost is returned for a repository host that is not an http(s) URL.
	errInvalidHost = errors.New("host must be an absolute http or https URL")
	// errInvalidLogLevel is returned for an unknown log level.
	errInvalidLogLevel = errors.New("unknown log level")
	// errNegativeTimeout is returned for a timeout below zero.
	errNegativeTimeout = errors.New("timeout must not be negative")
)

// Default returns validated settings for the current platform.
func Default() *Config {
	cfg := new(Config)
	_ = Validate(cfg)

	return cfg
}

// Load reads the settings file at path. When path is empty the default file
// is read if it exists, and defaults are returned otherwise.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if !explicit && errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills defaults and checks the formatting of every field.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.Host == "" {
		settings.Host = fetch.DefaultHost
	}

	host, err := url.ParseRequestURI(settings.Host)
	if err != nil || (host.Scheme != "http" && host.Scheme != "https") {
		return fmt.Errorf("%w: %q", errInvalidHost, settings.Host)
	}

	if settings.Version == "" {
		settings.Version = string(fetch.V17)
	}

	operatingSystem, err := pg.ParseOperatingSystem(settings.OS)
	if err != nil {
		return fmt.Errorf("invalid os: %w", err)
	}

	settings.OS = string(operatingSystem)

	architecture, err := pg.ParseArchitecture(settings.Arch)
	if err != nil {
		return fmt.Errorf("invalid arch: %w", err)
	}

	settings.Arch = string(architecture)

	if settings.DatabaseDir == "" {
		settings.DatabaseDir = DefaultDatabaseDir
	}

	if settings.Port == 0 {
		settings.Port = postgres.DefaultPort
	}

	if settings.User == "" {
		settings.User = postgres.DefaultUser
	}

	if settings.Password == "" {
		settings.Password = postgres.DefaultUser
	}

	authMethod, err := pg.ParseAuthMethod(settings.AuthMethod)
	if err != nil {
		return fmt.Errorf("invalid auth method: %w", err)
	}

	settings.AuthMethod = authMethod.String()

	if settings.Timeout < 0 {
		return errNegativeTimeout
	}

	if settings.Timeout == 0 {
		settings.Timeout = postgres.DefaultTimeout
	}

	if settings.LogLevel == "" {
		settings.LogLevel = DefaultLogLevel
	}

	if _, ok := logger.ParseLogLevel(settings.LogLevel); !ok {
		return fmt.Errorf("%w: %q", errInvalidLogLevel, settings.LogLevel)
	}

	return nil
}

// FetchSettings describes the binaries selected by cfg.
func (c *Config) FetchSettings() (fetch.Settings, error) {
	operatingSystem, err := pg.ParseOperatingSystem(c.OS)
	if err != nil {
		return fetch.Settings{}, err
	}

	architecture, err := pg.ParseArchitecture(c.Arch)
	if err != nil {
		return fetch.Settings{}, err
	}

	return fetch.Settings{
		Host:            c.Host,
		OperatingSystem: operatingSystem,
		Architecture:    architecture,
		Version:         fetch.Version(c.Version),
	}, nil
}

// ServerSettings describes the server instance configured by cfg.
func (c *Config) ServerSettings() (postgres.Settings, error) {
	authMethod, err := pg.ParseAuthMethod(c.AuthMethod)
	if err != nil {
		return postgres.Settings{}, err
	}

	return postgres.Settings{
		CacheRoot:    c.CacheDir,
		DatabaseDir:  c.DatabaseDir,
		Port:         c.Port,
		User:         c.User,
		Password:     c.Password,
		AuthMethod:   authMethod,
		Persistent:   c.Persistent,
		Timeout:      c.Timeout,
		MigrationDir: c.MigrationDir,
	}, nil
}
