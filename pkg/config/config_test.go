package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	configContent := `
global:
  log_level: info
release:
  grammar: "${version}_${environment}_${platform}"
  environments: [PROD, UAT]
  platforms: [WEB, IOS]
  fallback_release: NONE
kpi:
  max_panel_releases: 5
  panel_keys: [releaseCoverage, plannedScope]
database:
  driver: sqlite
  sqlite:
    path: /tmp/original.db
`

	configPath := writeConfig(t, "config.yaml", configContent)

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Global.LogLevel)
				assert.Equal(t, "${version}_${environment}_${platform}", cfg.Release.Grammar)
				assert.Equal(t, []string{"PROD", "UAT"}, cfg.Release.Environments)
				assert.Equal(t, 5, cfg.KPI.MaxPanelReleases)
				assert.Equal(t, []string{"releaseCoverage", "plannedScope"}, cfg.KPI.PanelKeys)
				assert.Equal(t, "/tmp/original.db", cfg.Database.SQLite.Path)
			},
		},
		{
			name: "string override - log_level",
			envVars: map[string]string{
				"RELEASEKPI_GLOBAL_LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Global.LogLevel)
			},
		},
		{
			name: "int override - max_panel_releases",
			envVars: map[string]string{
				"RELEASEKPI_KPI_MAX_PANEL_RELEASES": "12",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 12, cfg.KPI.MaxPanelReleases)
			},
		},
		{
			name: "nested field override - database.sqlite.path",
			envVars: map[string]string{
				"RELEASEKPI_DATABASE_SQLITE_PATH": "/tmp/custom.db",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/tmp/custom.db", cfg.Database.SQLite.Path)
			},
		},
		{
			name: "multiple overrides",
			envVars: map[string]string{
				"RELEASEKPI_GLOBAL_LOG_LEVEL":         "trace",
				"RELEASEKPI_RELEASE_FALLBACK_RELEASE": "R0",
				"RELEASEKPI_RELEASE_ORDERING":         "natural",
				"RELEASEKPI_KPI_CONCURRENCY":          "9",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "trace", cfg.Global.LogLevel)
				assert.Equal(t, "R0", cfg.Release.FallbackRelease)
				assert.Equal(t, "natural", cfg.Release.Ordering)
				assert.Equal(t, 9, cfg.KPI.Concurrency)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load(configPath)
			require.NoError(t, err)

			tt.validate(t, cfg)
		})
	}
}

func TestLoad_DefaultsAppliedWhenEmpty(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
release:
  environments: [PROD]
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, DefaultGrammar, cfg.Release.Grammar)
	assert.Equal(t, DefaultVersionPattern, cfg.Release.VersionPattern)
	assert.Equal(t, DefaultOrdering, cfg.Release.Ordering)
	assert.Equal(t, DefaultFallbackRelease, cfg.Release.FallbackRelease)
	assert.Equal(t, DefaultConcurrency, cfg.KPI.Concurrency)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, DefaultSQLitePath, cfg.Database.SQLite.Path)
	assert.Nil(t, cfg.API)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MergesLaterFiles(t *testing.T) {
	base := writeConfig(t, "base.yaml", `
release:
  environments: [PROD]
kpi:
  max_panel_releases: 3
`)
	override := writeConfig(t, "override.yaml", `
kpi:
  max_panel_releases: 8
api:
  server:
    listen: ":7000"
`)

	cfg, err := Load(base, override)
	require.NoError(t, err)

	assert.Equal(t, []string{"PROD"}, cfg.Release.Environments)
	assert.Equal(t, 8, cfg.KPI.MaxPanelReleases)
	require.NotNil(t, cfg.API)
	assert.Equal(t, ":7000", cfg.API.Server.Listen)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", "invalid: yaml: content:")

	_, err := Load(configPath)
	require.Error(t, err)
}

func TestLoad_NoPaths(t *testing.T) {
	_, err := Load()
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{
			Release: ReleaseConfig{Environments: []string{"PROD"}},
		}
		cfg.applyDefaults()

		return cfg
	}

	tests := []struct {
		name      string
		mutate    func(cfg *Config)
		errSubstr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:      "missing environments",
			mutate:    func(cfg *Config) { cfg.Release.Environments = nil },
			errSubstr: "at least one environment",
		},
		{
			name:      "bad version pattern",
			mutate:    func(cfg *Config) { cfg.Release.VersionPattern = "([" },
			errSubstr: "invalid version_pattern",
		},
		{
			name:   "malformed grammar is left to the release parser",
			mutate: func(cfg *Config) { cfg.Release.Grammar = "${version}" },
		},
		{
			name:      "unknown ordering",
			mutate:    func(cfg *Config) { cfg.Release.Ordering = "random" },
			errSubstr: "unknown ordering",
		},
		{
			name:      "negative panel releases",
			mutate:    func(cfg *Config) { cfg.KPI.MaxPanelReleases = -1 },
			errSubstr: "max_panel_releases",
		},
		{
			name:      "unsupported driver",
			mutate:    func(cfg *Config) { cfg.Database.Driver = "mysql" },
			errSubstr: "unsupported driver",
		},
		{
			name: "postgres without host",
			mutate: func(cfg *Config) {
				cfg.Database.Driver = "postgres"
				cfg.Database.Postgres.Database = "kpi"
			},
			errSubstr: "postgres.host is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errSubstr == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestSourceConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		source    SourceConfig
		errSubstr string
	}{
		{
			name:      "no source configured",
			source:    SourceConfig{},
			errSubstr: "no backend enabled",
		},
		{
			name: "local source",
			source: SourceConfig{
				Local: &LocalSourceConfig{Enabled: true, Root: "/data"},
			},
		},
		{
			name: "local source without root",
			source: SourceConfig{
				Local: &LocalSourceConfig{Enabled: true},
			},
			errSubstr: "root is required",
		},
		{
			name: "s3 source without bucket",
			source: SourceConfig{
				S3: &S3SourceConfig{Enabled: true},
			},
			errSubstr: "bucket is required",
		},
		{
			name: "both enabled",
			source: SourceConfig{
				Local: &LocalSourceConfig{Enabled: true, Root: "/data"},
				S3:    &S3SourceConfig{Enabled: true, Bucket: "b"},
			},
			errSubstr: "only one of local or s3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.source.Validate()
			if tt.errSubstr == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestConfig_ValidateAPI(t *testing.T) {
	cfg := &Config{}
	require.Error(t, cfg.ValidateAPI())

	cfg.API = &APIConfig{
		Auth: APIAuthConfig{Tokens: []APIToken{{Name: "ci"}}},
	}
	err := cfg.ValidateAPI()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash is required")

	cfg.API.Auth.Tokens[0].Hash = "$2a$10$abc"
	require.NoError(t, cfg.ValidateAPI())
}
