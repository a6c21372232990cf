package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/outbound/logger"
)

func TestServiceConfigApplyDefaults(t *testing.T) {
	t.Run("empty environment is development with debug logging", func(t *testing.T) {
		cfg := ServiceConfig{Name: "outbound"}
		cfg.ApplyDefaults()
		if cfg.Environment != EnvDevelopment {
			t.Errorf("expected development, got %q", cfg.Environment)
		}
		if !cfg.Debug {
			t.Error("expected debug=true for development")
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected debug level, got %q", cfg.Logging.Level)
		}
	})

	t.Run("production keeps debug off", func(t *testing.T) {
		cfg := ServiceConfig{Name: "outbound", Environment: EnvProduction}
		cfg.ApplyDefaults()
		if cfg.Debug {
			t.Error("expected debug=false for production")
		}
		if cfg.Logging.Level != "info" {
			t.Errorf("expected info level, got %q", cfg.Logging.Level)
		}
		if !cfg.IsProduction() {
			t.Error("expected IsProduction")
		}
	})

	t.Run("configured level survives development", func(t *testing.T) {
		cfg := ServiceConfig{Name: "outbound", Logging: logger.Config{Level: "warn"}}
		cfg.ApplyDefaults()
		if cfg.Logging.Level != "warn" {
			t.Errorf("expected warn, got %q", cfg.Logging.Level)
		}
	})
}

func TestServiceConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServiceConfig
		wantErr string
	}{
		{"valid development", ServiceConfig{Name: "svc", Environment: EnvDevelopment}, ""},
		{"valid staging", ServiceConfig{Name: "svc", Environment: EnvStaging}, ""},
		{"valid production", ServiceConfig{Name: "svc", Environment: EnvProduction}, ""},
		{"missing name", ServiceConfig{Environment: EnvProduction}, "name"},
		{"invalid environment", ServiceConfig{Name: "svc", Environment: "qa"}, "environment"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.Logging.ApplyDefaults()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error mentioning %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}

func TestServiceConfigValidate_Logging(t *testing.T) {
	cfg := ServiceConfig{Name: "svc", Environment: EnvStaging}
	cfg.Logging.ApplyDefaults()
	cfg.Logging.Level = "loud"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "logging.level") {
		t.Fatalf("expected logging error, got %v", err)
	}
}

type testCache struct {
	MemoryTTL  time.Duration `mapstructure:"memory_ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

type testConfig struct {
	ServiceConfig `mapstructure:",squash"`
	Cache         testCache `mapstructure:"cache"`
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfig_YAMLOverDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yml", `
name: outbound-test
environment: staging
cache:
  memory_ttl: 2m
`)

	cfg := testConfig{Cache: testCache{MemoryTTL: time.Minute, MaxEntries: 500}}
	if err := LoadConfig("outbound-test", &cfg, WithConfigFile(path)); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Name != "outbound-test" || cfg.Environment != EnvStaging {
		t.Errorf("unexpected service config: %+v", cfg.ServiceConfig)
	}
	if cfg.Cache.MemoryTTL != 2*time.Minute {
		t.Errorf("expected memory_ttl 2m, got %v", cfg.Cache.MemoryTTL)
	}
	if cfg.Cache.MaxEntries != 500 {
		t.Errorf("expected default max_entries to survive, got %d", cfg.Cache.MaxEntries)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yml", `
name: outbound-test
cache:
  memory_ttl: 2m
  max_entries: 10
`)
	t.Setenv("OUTBOUND_TEST_CACHE_MEMORY_TTL", "30s")
	t.Setenv("OUTBOUND_TEST_LOGGING_LEVEL", "warn")
	t.Setenv("CACHE_MAX_ENTRIES", "99")

	var cfg testConfig
	if err := LoadConfig("outbound-test", &cfg, WithConfigFile(path)); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Cache.MemoryTTL != 30*time.Second {
		t.Errorf("expected env memory_ttl 30s, got %v", cfg.Cache.MemoryTTL)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected env logging level warn, got %q", cfg.Logging.Level)
	}
	if cfg.Cache.MaxEntries != 10 {
		t.Errorf("unprefixed variable must be ignored, got %d", cfg.Cache.MaxEntries)
	}
}

func TestLoadConfig_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, ".env", "OUTBOUND_TEST_NAME=from-dotenv\n")
	t.Setenv("OUTBOUND_TEST_NAME", "")
	os.Unsetenv("OUTBOUND_TEST_NAME")

	var cfg testConfig
	err := LoadConfig("outbound-test", &cfg,
		WithConfigFile(filepath.Join(dir, "missing.yml")),
		WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Name != "from-dotenv" {
		t.Errorf("expected name from .env, got %q", cfg.Name)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	var cfg testConfig
	err := LoadConfig("nonexistent-service", &cfg, WithConfigFile("/nonexistent/path.yml"))
	if err != nil {
		t.Fatalf("expected success with missing file, got %v", err)
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yml", "name: [unterminated\n")
	var cfg testConfig
	if err := LoadConfig("outbound-test", &cfg, WithConfigFile(path)); err == nil {
		t.Fatal("expected read error for malformed yaml")
	}
}

type mockFS struct {
	files  map[string]bool
	loaded []string
}

func (m *mockFS) Exists(path string) bool { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error {
	m.loaded = append(m.loaded, path)
	return nil
}

func TestResolver_SearchOrder(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"./cmd/outbound/config.yml": true,
		"./config.yml":              true,
		"./.env":                    true,
		"./cmd/outbound/.env":       true,
	}}
	r := &Resolver{FileSystem: fs}

	files := r.ResolveFiles("outbound", LoaderConfig{})
	if files.ConfigFile != "./cmd/outbound/config.yml" {
		t.Errorf("expected cmd config first, got %q", files.ConfigFile)
	}
	if files.EnvFile != "./cmd/outbound/.env" {
		t.Errorf("expected cmd .env first, got %q", files.EnvFile)
	}

	files = r.ResolveFiles("outbound", LoaderConfig{ConfigFile: "/etc/outbound.yml"})
	if files.ConfigFile != "/etc/outbound.yml" {
		t.Errorf("explicit path must win, got %q", files.ConfigFile)
	}
}

func TestResolver_NothingFound(t *testing.T) {
	r := &Resolver{FileSystem: &mockFS{}}
	files := r.ResolveFiles("outbound", LoaderConfig{})
	if files != (ResolvedFiles{}) {
		t.Errorf("expected no files, got %+v", files)
	}
}

func TestLoadConfig_UsesFileSystem(t *testing.T) {
	fs := &mockFS{files: map[string]bool{"./.env.outbound": true}}
	var cfg testConfig
	if err := LoadConfig("outbound", &cfg, WithFileSystem(fs)); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !slices.Equal(fs.loaded, []string{"./.env.outbound"}) {
		t.Errorf("expected .env.outbound loaded, got %v", fs.loaded)
	}
}

func TestDefaultEnvPrefix(t *testing.T) {
	cases := map[string]string{
		"outbound":     "OUTBOUND_",
		"outbound-dev": "OUTBOUND_DEV_",
		"":             "",
	}
	for in, want := range cases {
		if got := DefaultEnvPrefix(in); got != want {
			t.Errorf("DefaultEnvPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnvKeyVariants(t *testing.T) {
	got := envKeyVariants("CACHE_MEMORY_TTL")
	want := []string{"cache_memory_ttl", "cache.memory.ttl", "cache.memory_ttl"}
	if !slices.Equal(got, want) {
		t.Errorf("variants = %v, want %v", got, want)
	}
	if got := envKeyVariants("DEBUG"); !slices.Equal(got, []string{"debug"}) {
		t.Errorf("single part = %v", got)
	}
}

func TestLoaderOptions(t *testing.T) {
	var lc LoaderConfig
	fs := &mockFS{}
	for _, opt := range []LoaderOption{
		WithFileSystem(fs),
		WithConfigFile("/path/to/config.yml"),
		WithEnvFile("/path/to/.env"),
		WithEnvPrefix("APP_"),
	} {
		opt(&lc)
	}
	if lc.FileSystem != fs || lc.ConfigFile != "/path/to/config.yml" ||
		lc.EnvFile != "/path/to/.env" || lc.EnvPrefix != "APP_" {
		t.Errorf("options not applied: %+v", lc)
	}
}
