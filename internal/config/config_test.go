package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func resetGlobalConfig() {
	globalConfig = &Config{
		DataDir:         ".daoengine",
		BindAddr:        "0.0.0.0",
		MetricsPort:     9090,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

func TestLoad_CompareFullStruct(t *testing.T) {
	resetGlobalConfig()
	yamlContent := `
dataDir: "/var/lib/daoengine"
bindAddr: "127.0.0.1"
metricsPort: 8088
quarterStart: "2025-01-06T00:00:00Z"
shutdownTimeout: "10s"
founderAddr: "0xffff000000000000000000000000000000000003"
rootAddr: "0x8888000000000000000000000000000000000005"
prlAddr: "0x9999000000000000000000000000000000000004"
chunkSize: 250
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-daoengine.yaml")

	err := os.WriteFile(tmpFile, []byte(yamlContent), 0644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	defer os.Remove(tmpFile)

	expected := &Config{
		DataDir:         "/var/lib/daoengine",
		BindAddr:        "127.0.0.1",
		MetricsPort:     8088,
		QuarterStart:    "2025-01-06T00:00:00Z",
		ShutdownTimeout: "10s",
		FounderAddr:     "0xffff000000000000000000000000000000000003",
		RootAddr:        "0x8888000000000000000000000000000000000005",
		PrlAddr:         "0x9999000000000000000000000000000000000004",
		ChunkSize:       250,
		DevMode:         false,
	}

	actual, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if !reflect.DeepEqual(actual, expected) {
		t.Errorf(
			"Loaded config does not match expected.\nActual: %+v\nExpected: %+v",
			actual,
			expected,
		)
	}
}

func TestLoad_WithoutConfigFile_UsesDefaults(t *testing.T) {
	resetGlobalConfig()

	// Without Config file
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// Expected is the original default values from globalConfig
	expected := &Config{
		DataDir:         ".daoengine",
		BindAddr:        "0.0.0.0",
		MetricsPort:     9090,
		ShutdownTimeout: DefaultShutdownTimeout,
	}

	if !reflect.DeepEqual(cfg, expected) {
		t.Errorf(
			"config mismatch without file:\nExpected: %+v\nGot:      %+v",
			expected,
			cfg,
		)
	}
}

func TestLoad_WithDevModeConfig(t *testing.T) {
	resetGlobalConfig()

	yamlContent := `
devMode: true
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-dev-mode.yaml")

	err := os.WriteFile(tmpFile, []byte(yamlContent), 0644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if !cfg.DevMode {
		t.Errorf("expected DevMode to be true, got: %v", cfg.DevMode)
	}
	// Dev mode runs on the shortened parameter set and defaults the
	// quarter start to now
	if cfg.Params().QuarterDuration >= 24*time.Hour {
		t.Errorf("expected dev params, got: %+v", cfg.Params())
	}
	start, err := cfg.ParsedQuarterStart()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if start.IsZero() {
		t.Error("expected a non-zero dev quarter start")
	}
}

func TestLoad_InvalidQuarterStart(t *testing.T) {
	resetGlobalConfig()

	yamlContent := `
quarterStart: "next tuesday"
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-bad-start.yaml")

	err := os.WriteFile(tmpFile, []byte(yamlContent), 0644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := LoadConfig(tmpFile); err == nil {
		t.Error("expected an error for an unparseable quarterStart")
	}
}

func TestParsedQuarterStartRequired(t *testing.T) {
	cfg := &Config{}
	if _, err := cfg.ParsedQuarterStart(); err == nil {
		t.Error("expected an error when quarterStart is missing outside dev mode")
	}
}
