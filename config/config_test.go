package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Test App defaults
	if cfg.App.Name != "fusemem" {
		t.Errorf("expected app name 'fusemem', got %s", cfg.App.Name)
	}
	if cfg.App.Environment != "development" {
		t.Errorf("expected environment 'development', got %s", cfg.App.Environment)
	}

	// Test Server defaults
	if cfg.Server.Port != 8080 {
		t.Errorf("expected server port 8080, got %d", cfg.Server.Port)
	}

	// Test Log defaults
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected log format 'json', got %s", cfg.Log.Format)
	}

	// Test Retrieval defaults
	if cfg.Retrieval.DefaultLimit != 10 {
		t.Errorf("expected retrieval.default_limit 10, got %d", cfg.Retrieval.DefaultLimit)
	}
	if cfg.Retrieval.Fusion.K != 60.0 {
		t.Errorf("expected fusion.k 60, got %v", cfg.Retrieval.Fusion.K)
	}
	if cfg.Retrieval.Fusion.SynergyBoost != 1.2 {
		t.Errorf("expected fusion.synergy_boost 1.2, got %v", cfg.Retrieval.Fusion.SynergyBoost)
	}
	if cfg.Retrieval.Guard.MinResults != 5 {
		t.Errorf("expected guard.min_results 5, got %d", cfg.Retrieval.Guard.MinResults)
	}
	if cfg.Retrieval.Classifier.IdentifierBelow != 0.35 {
		t.Errorf("expected classifier.identifier_below 0.35, got %v", cfg.Retrieval.Classifier.IdentifierBelow)
	}
	if cfg.Retrieval.Recorder.RelevanceFloor != 0.1 {
		t.Errorf("expected recorder.relevance_floor 0.1, got %v", cfg.Retrieval.Recorder.RelevanceFloor)
	}

	// Test Sources defaults
	if cfg.Sources.Vector.Dimension != 256 {
		t.Errorf("expected vector.dimension 256, got %d", cfg.Sources.Vector.Dimension)
	}
	if cfg.Sources.Lexical.K1 != 1.5 {
		t.Errorf("expected lexical.k1 1.5, got %v", cfg.Sources.Lexical.K1)
	}
	if cfg.Sources.Graph.DefaultDepth != 2 {
		t.Errorf("expected graph.default_depth 2, got %d", cfg.Sources.Graph.DefaultDepth)
	}

	// Cache is opt-in
	if cfg.Cache.Enabled {
		t.Error("expected cache.enabled to be false")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing app name",
			mutate:  func(c *Config) { c.App.Name = "" },
			wantErr: true,
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = 99999 },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: true,
		},
		{
			name:    "invalid environment",
			mutate:  func(c *Config) { c.App.Environment = "invalid" },
			wantErr: true,
		},
		{
			name:    "synergy boost below one",
			mutate:  func(c *Config) { c.Retrieval.Fusion.SynergyBoost = 0.8 },
			wantErr: true,
		},
		{
			name:    "tuner decay above one",
			mutate:  func(c *Config) { c.Retrieval.Tuner.Decay = 1.5 },
			wantErr: true,
		},
		{
			name:    "relevance floor above one",
			mutate:  func(c *Config) { c.Retrieval.Recorder.RelevanceFloor = 1.2 },
			wantErr: true,
		},
		{
			name: "classifier thresholds inverted",
			mutate: func(c *Config) {
				c.Retrieval.Classifier.IdentifierBelow = 0.9
				c.Retrieval.Classifier.AbstractAbove = 0.2
			},
			wantErr: true,
		},
		{
			name: "max limit below default limit",
			mutate: func(c *Config) {
				c.Retrieval.DefaultLimit = 50
				c.Retrieval.MaxLimit = 10
			},
			wantErr: true,
		},
		{
			name:    "invalid tracing exporter",
			mutate:  func(c *Config) { c.Tracing.Exporter = "zipkin" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Normalize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tracing.Exporter = ""
	cfg.Tracing.Sampler = " Always_On "
	cfg.Log.Level = "INFO"

	cfg.Normalize()

	if cfg.Tracing.Exporter != "otlpgrpc" {
		t.Errorf("expected exporter to normalize to otlpgrpc, got %q", cfg.Tracing.Exporter)
	}
	if cfg.Tracing.Sampler != "always_on" {
		t.Errorf("expected sampler always_on, got %q", cfg.Tracing.Sampler)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level info, got %q", cfg.Log.Level)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "server.port", Message: "must be between 1 and 65535", Value: 99999},
		{Field: "log.level", Message: "must be one of [debug info warn error]", Value: "trace"},
	}

	errMsg := errs.Error()
	if errMsg == "" {
		t.Error("expected error message")
	}
	if errMsg == "no validation errors" {
		t.Error("expected error details")
	}
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		App: AppConfig{
			Name:        "test",
			Environment: "development",
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}

	s := cfg.String()
	if s == "" {
		t.Error("expected non-empty string representation")
	}
}

func TestDurationParsing(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.HTTP.ReadTimeout != 30*time.Second {
		t.Errorf("expected read timeout 30s, got %v", cfg.Server.HTTP.ReadTimeout)
	}
	if cfg.Retrieval.SourceTimeout != 2*time.Second {
		t.Errorf("expected source timeout 2s, got %v", cfg.Retrieval.SourceTimeout)
	}
	if cfg.Retrieval.Tuner.Interval != 30*time.Second {
		t.Errorf("expected tuner interval 30s, got %v", cfg.Retrieval.Tuner.Interval)
	}
}

func TestLoader_Get(t *testing.T) {
	loader := NewLoader()
	_, _ = loader.Load("", nil) // Load defaults

	val := loader.Get("app.name")
	if val == nil {
		t.Error("expected non-nil value for app.name")
	}

	str := loader.GetString("app.name")
	if str != "fusemem" {
		t.Errorf("expected 'fusemem', got '%s'", str)
	}

	port := loader.GetInt("server.port")
	if port != 8080 {
		t.Errorf("expected 8080, got %d", port)
	}

	enabled := loader.GetBool("metrics.enabled")
	if !enabled {
		t.Error("expected metrics.enabled to be true")
	}
}

func TestLoader_Set(t *testing.T) {
	loader := NewLoader()
	_, _ = loader.Load("", nil)

	err := loader.Set("app.name", "custom-app")
	if err != nil {
		t.Errorf("unexpected error setting value: %v", err)
	}

	if loader.GetString("app.name") != "custom-app" {
		t.Errorf("expected 'custom-app', got '%s'", loader.GetString("app.name"))
	}
}

func TestLoader_Print(t *testing.T) {
	loader := NewLoader()
	_, _ = loader.Load("", nil)

	output := loader.Print()
	if output == "" {
		t.Error("expected non-empty print output")
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Error("expected non-nil config")
	}
}

func TestLoadOrDie(t *testing.T) {
	cfg := LoadOrDie("", nil)
	if cfg == nil {
		t.Error("expected non-nil config")
	}
}

func TestLoadOrDie_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for invalid config file")
		}
	}()

	LoadOrDie("/nonexistent/path/config.yaml", nil)
}

func TestLoader_LoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
app:
  name: yaml-test
  environment: production
server:
  port: 9999
log:
  level: debug
  format: text
retrieval:
  default_limit: 20
  fusion:
    synergy_boost: 1.5
  guard:
    min_results: 3
  recorder:
    relevance_floor: 0.05
sources:
  vector:
    dimension: 128
  graph:
    default_depth: 3
cache:
  enabled: true
  redis:
    address: redis-0:6379
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader()
	cfg, err := loader.Load(configPath, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.App.Name != "yaml-test" {
		t.Errorf("expected 'yaml-test', got '%s'", cfg.App.Name)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("expected 9999, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected 'debug', got '%s'", cfg.Log.Level)
	}
	if cfg.Retrieval.DefaultLimit != 20 {
		t.Errorf("expected default_limit 20, got %d", cfg.Retrieval.DefaultLimit)
	}
	if cfg.Retrieval.Fusion.SynergyBoost != 1.5 {
		t.Errorf("expected synergy_boost 1.5, got %v", cfg.Retrieval.Fusion.SynergyBoost)
	}
	if cfg.Retrieval.Guard.MinResults != 3 {
		t.Errorf("expected min_results 3, got %d", cfg.Retrieval.Guard.MinResults)
	}
	if cfg.Retrieval.Recorder.RelevanceFloor != 0.05 {
		t.Errorf("expected relevance_floor 0.05, got %v", cfg.Retrieval.Recorder.RelevanceFloor)
	}
	if cfg.Sources.Vector.Dimension != 128 {
		t.Errorf("expected vector dimension 128, got %d", cfg.Sources.Vector.Dimension)
	}
	if cfg.Sources.Graph.DefaultDepth != 3 {
		t.Errorf("expected graph depth 3, got %d", cfg.Sources.Graph.DefaultDepth)
	}
	if !cfg.Cache.Enabled {
		t.Error("expected cache.enabled true")
	}
	if cfg.Cache.Redis.Address != "redis-0:6379" {
		t.Errorf("expected redis-0:6379, got %s", cfg.Cache.Redis.Address)
	}

	// Values absent from the file keep their defaults
	if cfg.Retrieval.Fusion.K != 60.0 {
		t.Errorf("expected fusion.k default 60, got %v", cfg.Retrieval.Fusion.K)
	}
	if cfg.Sources.Lexical.K1 != 1.5 {
		t.Errorf("expected lexical.k1 default 1.5, got %v", cfg.Sources.Lexical.K1)
	}
}

func TestLoader_LoadJSONFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	jsonContent := `{
		"app": {
			"name": "json-test",
			"environment": "staging"
		},
		"server": {
			"port": 8888
		},
		"log": {
			"level": "warn",
			"format": "json"
		}
	}`
	if err := os.WriteFile(configPath, []byte(jsonContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader()
	cfg, err := loader.Load(configPath, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.App.Name != "json-test" {
		t.Errorf("expected 'json-test', got '%s'", cfg.App.Name)
	}
	if cfg.Server.Port != 8888 {
		t.Errorf("expected 8888, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected 'warn', got '%s'", cfg.Log.Level)
	}
}

func TestLoader_LoadInvalidFile(t *testing.T) {
	loader := NewLoader()

	_, err := loader.Load("/nonexistent/config.yaml", nil)
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestLoader_LoadUnsupportedFormat(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	if err := os.WriteFile(configPath, []byte("app = 'test'"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader()
	_, err := loader.Load(configPath, nil)
	if err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestLoader_Overrides(t *testing.T) {
	loader := NewLoader()
	cfg, err := loader.Load("", map[string]interface{}{
		"server.port":             7070,
		"log.level":               "debug",
		"retrieval.default_limit": 25,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("expected override port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected override level debug, got %s", cfg.Log.Level)
	}
	if cfg.Retrieval.DefaultLimit != 25 {
		t.Errorf("expected override default_limit 25, got %d", cfg.Retrieval.DefaultLimit)
	}
}

func TestLoader_EnvVars(t *testing.T) {
	t.Setenv("FUSEMEM_APP__NAME", "env-test")
	t.Setenv("FUSEMEM_SERVER__PORT", "7777")
	t.Setenv("FUSEMEM_LOG__LEVEL", "error")

	loader := NewLoader()
	cfg, err := loader.Load("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.App.Name != "env-test" {
		t.Errorf("expected 'env-test', got '%s'", cfg.App.Name)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("expected 7777, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("expected 'error', got '%s'", cfg.Log.Level)
	}
}
