package config

import (
	"os"
	"testing"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", "")
	os.Setenv("PIPELINE_URL", "")
	os.Setenv("DEEPGRAM_TTS_MODEL", "")
	cfg := Load()
	if cfg.HTTPAddress != ":8080" {
		t.Fatalf("expected default http address, got %q", cfg.HTTPAddress)
	}
	if cfg.PipelineURL != "http://localhost:8000" {
		t.Fatalf("expected default pipeline url, got %q", cfg.PipelineURL)
	}
	if cfg.DeepgramModel != "aura-2-thalia-en" {
		t.Fatalf("expected default tts model, got %q", cfg.DeepgramModel)
	}
}

func TestLoad_Overrides(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", ":9999")
	os.Setenv("PIPELINE_URL", "http://backend:8000/")
	defer os.Unsetenv("HTTP_ADDRESS")
	defer os.Unsetenv("PIPELINE_URL")
	cfg := Load()
	if cfg.HTTPAddress != ":9999" {
		t.Fatalf("override ignored, got %q", cfg.HTTPAddress)
	}
	if cfg.PipelineURL != "http://backend:8000/" {
		t.Fatalf("override ignored, got %q", cfg.PipelineURL)
	}
}
