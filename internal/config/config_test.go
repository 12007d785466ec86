package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ImageTimeout != 60*time.Second {
		t.Fatalf("image timeout = %v", cfg.ImageTimeout)
	}
	if cfg.HordeEnabled() {
		t.Fatalf("horde should be disabled by default")
	}
	if cfg.GeminiModel != "gemini-1.5-flash-latest" || cfg.GroqModel != "llama3-8b-instant" {
		t.Fatalf("unexpected model defaults: %+v", cfg)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("WEB_LLM_PROVIDER", "groq")
	t.Setenv("DISABLE_LOCAL_LLM", "true")
	t.Setenv("IMAGE_PROVIDER", "horde")
	t.Setenv("STABLE_HORDE_MODELS", "AlbedoBase XL,Deliberate")
	t.Setenv("IMAGE_TIMEOUT", "15s")
	t.Setenv("CORS_ORIGINS", "http://localhost:3000,https://example.com")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPPort != "9090" || cfg.WebLLMProvider != "groq" || !cfg.DisableLocalLLM {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if !cfg.HordeEnabled() || cfg.ImageTimeout != 15*time.Second {
		t.Fatalf("unexpected image config: %+v", cfg)
	}
	if len(cfg.StableHordeModels) != 2 || cfg.StableHordeModels[1] != "Deliberate" {
		t.Fatalf("models = %v", cfg.StableHordeModels)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("cors origins = %v", cfg.CORSOrigins)
	}
}
