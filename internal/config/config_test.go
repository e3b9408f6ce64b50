// ABOUTME: Tests for configuration loading and validation
// ABOUTME: Covers defaults, YAML overlay, flag precedence and languages
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "evatrad.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaultNeedsDestination(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "destination") {
		t.Fatalf("expected destination error, got %v", err)
	}

	cfg.Call.To = "+33123456789"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.Audio.OriginalGain != 0.3 {
		t.Errorf("expected original gain 0.3, got %v", cfg.Audio.OriginalGain)
	}
	if cfg.Prompts.SafetyTimeout != 60*time.Second {
		t.Errorf("expected safety timeout 60s, got %v", cfg.Prompts.SafetyTimeout)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  url: https://bridge.example.com/api
call:
  to: "+33123456789"
  caller_language: en
  receiver_language: ja
audio:
  original_gain: 0.5
sync:
  gap: 350ms
prompts:
  loop_delay: 5s
logging:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.URL != "https://bridge.example.com/api" {
		t.Errorf("expected server url from file, got %s", cfg.Server.URL)
	}
	if cfg.Call.CallerLanguage != "en-US" || cfg.Call.ReceiverLanguage != "ja-JP" {
		t.Errorf("expected normalized languages, got %s/%s", cfg.Call.CallerLanguage, cfg.Call.ReceiverLanguage)
	}
	if cfg.Audio.OriginalGain != 0.5 {
		t.Errorf("expected original gain 0.5, got %v", cfg.Audio.OriginalGain)
	}
	if cfg.Audio.TranslatedGain != 1.0 {
		t.Errorf("expected default translated gain, got %v", cfg.Audio.TranslatedGain)
	}
	if cfg.Sync.Gap != 350*time.Millisecond {
		t.Errorf("expected gap 350ms, got %v", cfg.Sync.Gap)
	}
	if cfg.Prompts.LoopDelay != 5*time.Second {
		t.Errorf("expected loop delay 5s, got %v", cfg.Prompts.LoopDelay)
	}
	if cfg.Logging.LogLevel() != log.DebugLevel {
		t.Errorf("expected debug level, got %v", cfg.Logging.LogLevel())
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeConfig(t, "server: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestParseFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
call:
  to: "+100"
  receiver_language: de
audio:
  translated_gain: 0.4
`)

	cfg, err := Parse("evatrad", []string{"-config", path, "-to", "+200", "-no-tui"})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Call.To != "+200" {
		t.Errorf("expected flag destination +200, got %s", cfg.Call.To)
	}
	if cfg.Call.ReceiverLanguage != "de-DE" {
		t.Errorf("expected file receiver language de-DE, got %s", cfg.Call.ReceiverLanguage)
	}
	if cfg.Audio.TranslatedGain != 0.4 {
		t.Errorf("expected file translated gain 0.4, got %v", cfg.Audio.TranslatedGain)
	}
	if !cfg.UI.Disabled {
		t.Error("expected -no-tui to disable the UI")
	}
}

func TestParseWithoutFile(t *testing.T) {
	cfg, err := Parse("evatrad", []string{"-to", "+1", "-caller-lang", "FR", "-sync-lead", "0s"})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Call.CallerLanguage != "fr-FR" {
		t.Errorf("expected fr-FR, got %s", cfg.Call.CallerLanguage)
	}
	if cfg.Sync.Lead != 0 {
		t.Errorf("expected zero lead, got %v", cfg.Sync.Lead)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad scheme", func(c *Config) { c.Server.URL = "ftp://bridge" }, "scheme"},
		{"no host", func(c *Config) { c.Server.URL = "http://" }, "no host"},
		{"discover skips url", func(c *Config) { c.Server.URL = ""; c.Server.Discover = true }, ""},
		{"unknown language", func(c *Config) { c.Call.ReceiverLanguage = "xx" }, "receiver_language"},
		{"gain too high", func(c *Config) { c.Audio.TranslatedGain = 1.5 }, "translated_gain"},
		{"negative gain", func(c *Config) { c.Audio.OriginalGain = -0.1 }, "original_gain"},
		{"sample rate", func(c *Config) { c.Audio.SampleRate = 100 }, "sample_rate"},
		{"cache size", func(c *Config) { c.Audio.CacheSize = 0 }, "cache_size"},
		{"missing send file", func(c *Config) { c.Audio.SendFile = "/nonexistent/voice.wav" }, "send_file"},
		{"negative gap", func(c *Config) { c.Sync.Gap = -time.Millisecond }, "gap"},
		{"zero loop delay", func(c *Config) { c.Prompts.LoopDelay = 0 }, "loop_delay"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "level"},
		{"partial tts", func(c *Config) { c.Call.PartialTTSInterval = -1 }, "partial_tts_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Call.To = "+1"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"en", "en-US", false},
		{"EN", "en-US", false},
		{"en-US", "en-US", false},
		{"en_us", "en-US", false},
		{" pt ", "pt-BR", false},
		{"zh-cn", "zh-CN", false},
		{"en-GB", "", true},
		{"klingon", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := NormalizeLanguage(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error, got %s", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestSupportedLanguages(t *testing.T) {
	codes := SupportedLanguages()
	if len(codes) != 10 {
		t.Fatalf("expected 10 languages, got %d", len(codes))
	}
	for i := 1; i < len(codes); i++ {
		if codes[i-1] > codes[i] {
			t.Errorf("expected sorted codes, got %v", codes)
			break
		}
	}
	if LanguageName("de-DE") != "Deutsch" {
		t.Errorf("expected Deutsch, got %s", LanguageName("de-DE"))
	}
	if LanguageName("xx") != "xx" {
		t.Errorf("expected passthrough for unknown code, got %s", LanguageName("xx"))
	}
}
