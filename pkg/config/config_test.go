package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, cfg Config) (configPath string) {
	t.Helper()

	configPath = filepath.Join(t.TempDir(), "config.json")

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal test config: %v", err)
	}

	err = os.WriteFile(configPath, data, 0600)
	if err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	return configPath
}

func TestLoad(t *testing.T) {
	testConfig := Config{
		Name:           "test-user",
		MasterLocation: "https://example.com/master.json",
		TemplatesDir:   "/srv/templates",
		Pandoc: PandocConfig{
			TemplatePath: "test-template.latex",
		},
		Defaults: DefaultConfig{
			OutputDir: "./test-output",
		},
	}

	cfg, err := Load(writeConfig(t, testConfig))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Name != testConfig.Name {
		t.Errorf("Expected name %s, got %s", testConfig.Name, cfg.Name)
	}
	if cfg.MasterLocation != testConfig.MasterLocation {
		t.Errorf("Expected master location %s, got %s", testConfig.MasterLocation, cfg.MasterLocation)
	}
	if cfg.Pandoc.TemplatePath != "test-template.latex" {
		t.Errorf("Expected pandoc template, got %s", cfg.Pandoc.TemplatePath)
	}

	// Keys absent from the file fall back to defaults.
	if cfg.Defaults.Profile != defaultProfile {
		t.Errorf("Expected default profile %s, got %s", defaultProfile, cfg.Defaults.Profile)
	}
	if cfg.ProfilesDir != "profiles" {
		t.Errorf("Expected default profiles dir, got %s", cfg.ProfilesDir)
	}
	if cfg.Render.Concurrency != defaultConcurrency {
		t.Errorf("Expected concurrency %d, got %d", defaultConcurrency, cfg.Render.Concurrency)
	}
}

func TestLoadYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(configPath, []byte("name: yaml-user\nlog:\n  level: debug\nrender:\n  concurrency: 8\n"), 0600)
	if err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Name != "yaml-user" || cfg.Log.Level != "debug" || cfg.Render.Concurrency != 8 {
		t.Errorf("Unexpected config: %+v", cfg)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	configPath := writeConfig(t, Config{Name: "file-user", Defaults: DefaultConfig{Profile: "balanced"}})

	t.Setenv("CVGEN_DEFAULTS_PROFILE", "minimal")
	t.Setenv("CVGEN_TEMPLATES_DIR", "/env/templates")
	t.Setenv("CVGEN_RENDER_CONCURRENCY", "2")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Defaults.Profile != "minimal" {
		t.Errorf("Expected env profile minimal, got %s", cfg.Defaults.Profile)
	}
	if cfg.TemplatesDir != "/env/templates" {
		t.Errorf("Expected env templates dir, got %s", cfg.TemplatesDir)
	}
	if cfg.Render.Concurrency != 2 {
		t.Errorf("Expected env concurrency 2, got %d", cfg.Render.Concurrency)
	}
	if cfg.Name != "file-user" {
		t.Errorf("Expected file name to survive, got %s", cfg.Name)
	}
}

func TestLoadDotEnv(t *testing.T) {
	configPath := writeConfig(t, Config{Name: "file-user"})

	dir := t.TempDir()
	t.Chdir(dir)
	t.Cleanup(func() { _ = os.Unsetenv("CVGEN_LOG_FORMAT") })

	err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CVGEN_LOG_FORMAT=json\n"), 0600)
	if err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Expected log format from .env, got %s", cfg.Log.Format)
	}
}

func TestLoadNonexistent(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Error("Expected error loading nonexistent config, got nil")
	}
}

func TestLoadMalformed(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(configPath, []byte("{not json"), 0600)
	if err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err = Load(configPath)
	if err == nil {
		t.Error("Expected error loading malformed config, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		wantError bool
	}{
		{
			name:   "empty config gets defaults",
			config: Config{},
		},
		{
			name:      "nonexistent schema file",
			config:    Config{SchemaLocation: "/nonexistent/schema.json"},
			wantError: true,
		},
		{
			name:      "negative concurrency",
			config:    Config{Render: RenderConfig{Concurrency: -1}},
			wantError: true,
		},
		{
			name:      "unknown log level",
			config:    Config{Log: LogConfig{Level: "chatty"}},
			wantError: true,
		},
		{
			name:      "unknown log format",
			config:    Config{Log: LogConfig{Format: "xml"}},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantError && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.wantError && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			if !tt.wantError && (tt.config.Defaults.OutputDir == "" || tt.config.Defaults.Profile == "") {
				t.Errorf("Expected defaults to be filled, got %+v", tt.config.Defaults)
			}
		})
	}
}

func TestInitConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	err := InitConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to init config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load generated config: %v", err)
	}

	if cfg.Defaults.OutputDir == "" {
		t.Error("Default output dir was not set")
	}
	if cfg.Name == "" {
		t.Error("Default name was not set")
	}
	if cfg.TemplatesDir != filepath.Join(tmpDir, "templates") {
		t.Errorf("Expected templates dir next to the config, got %s", cfg.TemplatesDir)
	}
}

func TestInitConfigAlreadyExists(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	// Create file first.
	err := os.WriteFile(configPath, []byte("{}"), 0600)
	if err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	// Try to init - should fail.
	err = InitConfig(configPath)
	if err == nil {
		t.Error("Expected error when config already exists, got nil")
	}
}
