package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected defaults to load, got %v", err)
	}

	if cfg.Server.URL == "" {
		t.Fatalf("expected a default server url")
	}
	if cfg.Input.Source != "miniaudio" {
		t.Fatalf("expected miniaudio as the default source, got %q", cfg.Input.Source)
	}
	if cfg.Session.FinalizeTimeout() != 1500*time.Millisecond {
		t.Fatalf("expected a 1.5s default finalize timeout, got %s", cfg.Session.FinalizeTimeout())
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	content := `
server:
  url: wss://example.com/api/asr-streaming
  auth_token: sesame
  token_placement: query
input:
  source: wav
  wav_path: ./sample.wav
session:
  finalize_timeout_ms: 800
  max_retries: 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}

	if cfg.Server.URL != "wss://example.com/api/asr-streaming" {
		t.Fatalf("expected the file url, got %q", cfg.Server.URL)
	}
	if cfg.Server.TokenPlacement != "query" {
		t.Fatalf("expected query token placement, got %q", cfg.Server.TokenPlacement)
	}
	if cfg.Input.WavPath != "./sample.wav" {
		t.Fatalf("expected the wav path, got %q", cfg.Input.WavPath)
	}
	if cfg.Session.FinalizeTimeout() != 800*time.Millisecond {
		t.Fatalf("expected a 0.8s finalize timeout, got %s", cfg.Session.FinalizeTimeout())
	}
	// Unset fields keep their defaults.
	if cfg.Session.HandshakeTimeout() != 5*time.Second {
		t.Fatalf("expected the default handshake timeout, got %s", cfg.Session.HandshakeTimeout())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SCRIBE_SERVER_URL", "ws://override:9000/api/asr-streaming")
	t.Setenv("SCRIBE_SESSION_MAX_RETRIES", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}

	if cfg.Server.URL != "ws://override:9000/api/asr-streaming" {
		t.Fatalf("expected the env url, got %q", cfg.Server.URL)
	}
	if cfg.Session.MaxRetries != 7 {
		t.Fatalf("expected 7 max retries, got %d", cfg.Session.MaxRetries)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad placement", "server:\n  token_placement: basic\n"},
		{"bad source", "input:\n  source: tape\n"},
		{"wav without path", "input:\n  source: wav\n"},
		{"negative retries", "session:\n  max_retries: -1\n"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "scribe.yaml")
			if err := os.WriteFile(path, []byte(test.content), 0o644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected validation to fail")
			}
		})
	}
}
