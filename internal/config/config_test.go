package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cadence-reader/cadence/internal/inference"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Inference.BaseURL == "" {
		t.Error("expected default inference base URL")
	}
	if cfg.Inference.APIKey != "${CADENCE_INFERENCE_API_KEY}" {
		t.Error("expected API key placeholder")
	}
	if cfg.Pipeline.ChunkWords != 2500 {
		t.Errorf("expected default chunk budget of 2500, got %d", cfg.Pipeline.ChunkWords)
	}
	if !cfg.Pipeline.RemoveJunk {
		t.Error("expected junk removal enabled by default")
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		os.Setenv("TEST_API_KEY", "secret123")
		defer os.Unsetenv("TEST_API_KEY")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestConfig_ClientConfig(t *testing.T) {
	os.Setenv("TEST_INFERENCE_KEY", "key-123")
	defer os.Unsetenv("TEST_INFERENCE_KEY")

	cfg := &Config{
		Inference: InferenceCfg{
			BaseURL:        "http://example.test/v1",
			APIKey:         "${TEST_INFERENCE_KEY}",
			TimeoutSeconds: 30,
		},
	}

	cc := cfg.ClientConfig()
	if cc.APIKey != "key-123" {
		t.Errorf("expected resolved API key, got %s", cc.APIKey)
	}
	if cc.Timeout.Seconds() != 30 {
		t.Errorf("expected 30s timeout, got %s", cc.Timeout)
	}
}

func TestConfig_Models(t *testing.T) {
	cfg := &Config{
		Inference: InferenceCfg{
			DensityModel: "small-model",
			SummaryModel: "big-model",
		},
	}

	models := cfg.Models()
	if models[inference.TierDensity] != "small-model" {
		t.Errorf("density model = %s", models[inference.TierDensity])
	}
	if models[inference.TierSummary] != "big-model" {
		t.Errorf("summary model = %s", models[inference.TierSummary])
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, "config.yaml")

		configContent := `
inference:
  density_model: "from-file-model"
pipeline:
  chunk_words: 1000
`
		if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Inference.DensityModel != "from-file-model" {
			t.Errorf("density model = %s", cfg.Inference.DensityModel)
		}
		if cfg.Pipeline.ChunkWords != 1000 {
			t.Errorf("chunk words = %d", cfg.Pipeline.ChunkWords)
		}
		// Keys absent from the file keep their defaults.
		if cfg.Inference.BaseURL != DefaultConfig().Inference.BaseURL {
			t.Errorf("base URL = %s", cfg.Inference.BaseURL)
		}
	})

	t.Run("works without a config file", func(t *testing.T) {
		mgr, err := NewManager("")
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if mgr.Get().Inference.RequestsPerMinute <= 0 {
			t.Error("expected a positive default request rate")
		}
	})
}

func TestWriteDefault(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(data), "inference:") {
		t.Error("written config missing inference section")
	}
	if !strings.Contains(string(data), "density_model:") {
		t.Error("written config missing density_model key")
	}
}
