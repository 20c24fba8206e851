// Package config loads the CLI configuration from an optional YAML file,
// with environment variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	URL            string `yaml:"url"`
	StatusURL      string `yaml:"status_url"`
	AuthToken      string `yaml:"auth_token"`
	TokenPlacement string `yaml:"token_placement"`
}

type InputConfig struct {
	// Source selects the audio input: miniaudio, portaudio or wav.
	Source     string `yaml:"source"`
	WavPath    string `yaml:"wav_path"`
	BufferSize int    `yaml:"buffer_size"`
}

type SessionConfig struct {
	FinalizeTimeoutMS   int `yaml:"finalize_timeout_ms"`
	HandshakeTimeoutMS  int `yaml:"handshake_timeout_ms"`
	WatchdogThresholdMS int `yaml:"watchdog_threshold_ms"`
	SilenceWindowMS     int `yaml:"silence_window_ms"`
	MaxRetries          int `yaml:"max_retries"`
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Input   InputConfig   `yaml:"input"`
	Session SessionConfig `yaml:"session"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			URL:            "ws://localhost:8080/api/asr-streaming",
			StatusURL:      "http://localhost:8080",
			TokenPlacement: "header",
		},
		Input: InputConfig{
			Source:     "miniaudio",
			BufferSize: 480,
		},
		Session: SessionConfig{
			FinalizeTimeoutMS:   1500,
			HandshakeTimeoutMS:  5000,
			WatchdogThresholdMS: 10000,
			SilenceWindowMS:     5000,
			MaxRetries:          0,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c SessionConfig) FinalizeTimeout() time.Duration {
	return time.Duration(c.FinalizeTimeoutMS) * time.Millisecond
}

func (c SessionConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutMS) * time.Millisecond
}

func (c SessionConfig) WatchdogThreshold() time.Duration {
	return time.Duration(c.WatchdogThresholdMS) * time.Millisecond
}

func (c SessionConfig) SilenceWindow() time.Duration {
	return time.Duration(c.SilenceWindowMS) * time.Millisecond
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Server.URL, "SCRIBE_SERVER_URL")
	overrideString(&cfg.Server.StatusURL, "SCRIBE_STATUS_URL")
	overrideString(&cfg.Server.AuthToken, "SCRIBE_AUTH_TOKEN")
	overrideString(&cfg.Server.TokenPlacement, "SCRIBE_TOKEN_PLACEMENT")
	overrideString(&cfg.Input.Source, "SCRIBE_INPUT_SOURCE")
	overrideString(&cfg.Input.WavPath, "SCRIBE_INPUT_WAV_PATH")
	overrideInt(&cfg.Input.BufferSize, "SCRIBE_INPUT_BUFFER_SIZE")
	overrideInt(&cfg.Session.FinalizeTimeoutMS, "SCRIBE_SESSION_FINALIZE_TIMEOUT_MS")
	overrideInt(&cfg.Session.HandshakeTimeoutMS, "SCRIBE_SESSION_HANDSHAKE_TIMEOUT_MS")
	overrideInt(&cfg.Session.WatchdogThresholdMS, "SCRIBE_SESSION_WATCHDOG_THRESHOLD_MS")
	overrideInt(&cfg.Session.SilenceWindowMS, "SCRIBE_SESSION_SILENCE_WINDOW_MS")
	overrideInt(&cfg.Session.MaxRetries, "SCRIBE_SESSION_MAX_RETRIES")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && value != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.Server.URL == "" {
		return fmt.Errorf("server.url must be set")
	}

	switch cfg.Server.TokenPlacement {
	case "header", "cookie", "query":
	default:
		return fmt.Errorf("server.token_placement must be header, cookie or query, got %q", cfg.Server.TokenPlacement)
	}

	switch cfg.Input.Source {
	case "miniaudio", "portaudio":
	case "wav":
		if cfg.Input.WavPath == "" {
			return fmt.Errorf("input.wav_path must be set for the wav source")
		}
	default:
		return fmt.Errorf("input.source must be miniaudio, portaudio or wav, got %q", cfg.Input.Source)
	}

	if cfg.Input.BufferSize <= 0 {
		return fmt.Errorf("input.buffer_size must be positive, got %d", cfg.Input.BufferSize)
	}
	if cfg.Session.FinalizeTimeoutMS <= 0 {
		return fmt.Errorf("session.finalize_timeout_ms must be positive, got %d", cfg.Session.FinalizeTimeoutMS)
	}
	if cfg.Session.HandshakeTimeoutMS <= 0 {
		return fmt.Errorf("session.handshake_timeout_ms must be positive, got %d", cfg.Session.HandshakeTimeoutMS)
	}
	if cfg.Session.MaxRetries < 0 {
		return fmt.Errorf("session.max_retries must not be negative, got %d", cfg.Session.MaxRetries)
	}

	return nil
}
