package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "RELEASEKPI"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultGrammar is the release identifier grammar used when none is set.
	DefaultGrammar = "${version}_${environment}"

	// DefaultVersionPattern validates the version token of a title.
	DefaultVersionPattern = `^[A-Z0-9][A-Z0-9.\-]*$`

	// DefaultOrdering is the release ordering used to pick the active release.
	DefaultOrdering = "lexicographic"

	// DefaultFallbackRelease is used when no artifact title parses.
	DefaultFallbackRelease = "UNKNOWN"

	// DefaultConcurrency is the number of projects processed in parallel.
	DefaultConcurrency = 4

	// DefaultSQLitePath is the snapshot database path when none is set.
	DefaultSQLitePath = "./releasekpi.db"
)

// Config is the root configuration for releasekpi.
type Config struct {
	Global   GlobalConfig   `yaml:"global" mapstructure:"global"`
	Release  ReleaseConfig  `yaml:"release" mapstructure:"release"`
	KPI      KPIConfig      `yaml:"kpi" mapstructure:"kpi"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Source   SourceConfig   `yaml:"source" mapstructure:"source"`
	API      *APIConfig     `yaml:"api,omitempty" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// ReleaseConfig describes how a release identity is recovered from a title.
type ReleaseConfig struct {
	Grammar         string   `yaml:"grammar" mapstructure:"grammar"`
	VersionPattern  string   `yaml:"version_pattern" mapstructure:"version_pattern"`
	Environments    []string `yaml:"environments" mapstructure:"environments"`
	Platforms       []string `yaml:"platforms,omitempty" mapstructure:"platforms"`
	Languages       []string `yaml:"languages,omitempty" mapstructure:"languages"`
	TestTypes       []string `yaml:"test_types,omitempty" mapstructure:"test_types"`
	Sprints         []string `yaml:"sprints,omitempty" mapstructure:"sprints"`
	Ordering        string   `yaml:"ordering,omitempty" mapstructure:"ordering"`
	FallbackRelease string   `yaml:"fallback_release,omitempty" mapstructure:"fallback_release"`
}

// KPIConfig contains KPI computation and panel settings.
type KPIConfig struct {
	MaxPanelReleases int      `yaml:"max_panel_releases" mapstructure:"max_panel_releases"`
	PanelKeys        []string `yaml:"panel_keys,omitempty" mapstructure:"panel_keys"`
	Concurrency      int      `yaml:"concurrency,omitempty" mapstructure:"concurrency"`
}

// DatabaseConfig contains snapshot database connection settings.
type DatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// SourceConfig selects where consolidated plan/run documents are read from.
// Only one backend (S3 or local) may be enabled at a time.
type SourceConfig struct {
	Local    *LocalSourceConfig `yaml:"local,omitempty" mapstructure:"local"`
	S3       *S3SourceConfig    `yaml:"s3,omitempty" mapstructure:"s3"`
	Projects []string           `yaml:"projects,omitempty" mapstructure:"projects"`
}

// LocalSourceConfig reads documents from {root}/{project}/plans.json and
// {root}/{project}/runs.json.
type LocalSourceConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Root    string `yaml:"root" mapstructure:"root"`
}

// S3SourceConfig reads documents from {prefix}/{project}/plans.json and
// {prefix}/{project}/runs.json in an S3-compatible bucket.
type S3SourceConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}

// Load reads one or more YAML configuration files and merges them in
// order, later files overriding earlier ones. Environment variables with
// the RELEASEKPI_ prefix override file values.
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("at least one config file is required")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for i, path := range paths {
		v.SetConfigFile(path)

		var err error
		if i == 0 {
			err = v.ReadInConfig()
		} else {
			err = v.MergeInConfig()
		}

		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	// AutomaticEnv only applies to keys viper already knows about, so bind
	// the scalar keys that may be absent from the file explicitly.
	for _, key := range envBoundKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

var envBoundKeys = []string{
	"global.log_level",
	"release.grammar",
	"release.version_pattern",
	"release.ordering",
	"release.fallback_release",
	"kpi.max_panel_releases",
	"kpi.concurrency",
	"database.driver",
	"database.sqlite.path",
	"database.postgres.password",
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Release.Grammar == "" {
		c.Release.Grammar = DefaultGrammar
	}

	if c.Release.VersionPattern == "" {
		c.Release.VersionPattern = DefaultVersionPattern
	}

	if c.Release.Ordering == "" {
		c.Release.Ordering = DefaultOrdering
	}

	if c.Release.FallbackRelease == "" {
		c.Release.FallbackRelease = DefaultFallbackRelease
	}

	if c.KPI.Concurrency <= 0 {
		c.KPI.Concurrency = DefaultConcurrency
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}

	if c.Database.Driver == "sqlite" && c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = DefaultSQLitePath
	}

	if c.Database.Driver == "postgres" {
		if c.Database.Postgres.Port == 0 {
			c.Database.Postgres.Port = 5432
		}

		if c.Database.Postgres.SSLMode == "" {
			c.Database.Postgres.SSLMode = "disable"
		}
	}

	if c.API != nil {
		c.API.applyDefaults()
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Release.Validate(); err != nil {
		return fmt.Errorf("release: %w", err)
	}

	if c.KPI.MaxPanelReleases < 0 {
		return fmt.Errorf("kpi.max_panel_releases must be >= 0")
	}

	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	return nil
}

// ValidateSource checks that exactly one artifact source is configured.
func (c *Config) ValidateSource() error {
	return c.Source.Validate()
}

// Validate checks the release settings. The grammar itself is compiled and
// validated by the release package, which owns its syntax.
func (r *ReleaseConfig) Validate() error {
	if len(r.Environments) == 0 {
		return fmt.Errorf("at least one environment must be configured")
	}

	if _, err := regexp.Compile(r.VersionPattern); err != nil {
		return fmt.Errorf("invalid version_pattern: %w", err)
	}

	if _, ok := validOrderings[r.Ordering]; !ok {
		return fmt.Errorf("unknown ordering %q", r.Ordering)
	}

	return nil
}

var validOrderings = map[string]struct{}{
	"lexicographic": {},
	"natural":       {},
}

// Validate checks the database driver settings.
func (d *DatabaseConfig) Validate() error {
	switch d.Driver {
	case "sqlite":
		if d.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required")
		}
	case "postgres":
		if d.Postgres.Host == "" {
			return fmt.Errorf("postgres.host is required")
		}

		if d.Postgres.Database == "" {
			return fmt.Errorf("postgres.database is required")
		}
	default:
		return fmt.Errorf("unsupported driver %q", d.Driver)
	}

	return nil
}

// Validate checks that exactly one source backend is enabled.
func (s *SourceConfig) Validate() error {
	localEnabled := s.Local != nil && s.Local.Enabled
	s3Enabled := s.S3 != nil && s.S3.Enabled

	switch {
	case localEnabled && s3Enabled:
		return fmt.Errorf("source: only one of local or s3 may be enabled")
	case localEnabled:
		if s.Local.Root == "" {
			return fmt.Errorf("source.local.root is required")
		}
	case s3Enabled:
		if s.S3.Bucket == "" {
			return fmt.Errorf("source.s3.bucket is required")
		}
	default:
		return fmt.Errorf("source: no backend enabled")
	}

	return nil
}
