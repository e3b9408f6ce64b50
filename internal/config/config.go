// ABOUTME: Console configuration from a YAML file and command-line flags
// ABOUTME: Flags set explicitly override file values; Validate checks everything
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

// Config represents the complete console configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Call    CallConfig    `yaml:"call"`
	Audio   AudioConfig   `yaml:"audio"`
	Sync    SyncConfig    `yaml:"sync"`
	Prompts PromptConfig  `yaml:"prompts"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	UI      UIConfig      `yaml:"ui"`
}

// ServerConfig locates the translation bridge
type ServerConfig struct {
	URL      string        `yaml:"url"`
	Discover bool          `yaml:"discover"`
	Timeout  time.Duration `yaml:"timeout"`
}

// CallConfig describes the call to place
type CallConfig struct {
	To                 string        `yaml:"to"`
	CallerLanguage     string        `yaml:"caller_language"`
	ReceiverLanguage   string        `yaml:"receiver_language"`
	PartialTTSInterval int           `yaml:"partial_tts_interval"`
	StatusInterval     time.Duration `yaml:"status_interval"`
}

// AudioConfig tunes the playback engine
type AudioConfig struct {
	Disabled       bool          `yaml:"disabled"`
	SampleRate     int           `yaml:"sample_rate"`
	OriginalGain   float64       `yaml:"original_gain"`
	TranslatedGain float64       `yaml:"translated_gain"`
	PromptGain     float64       `yaml:"prompt_gain"`
	FadeOut        time.Duration `yaml:"fade_out"`
	CacheSize      int           `yaml:"cache_size"`
	DecodeWorkers  int           `yaml:"decode_workers"`
	WrapRaw        bool          `yaml:"wrap_raw"`
	SendFile       string        `yaml:"send_file"`
}

// SyncConfig tunes original/translation timing
type SyncConfig struct {
	Gap         time.Duration `yaml:"gap"`
	Lead        time.Duration `yaml:"lead"`
	MaxOriginal time.Duration `yaml:"max_original"`
	TimeSync    time.Duration `yaml:"time_sync"`
}

// PromptConfig tunes welcome and waiting prompts
type PromptConfig struct {
	LoopDelay     time.Duration `yaml:"loop_delay"`
	SafetyTimeout time.Duration `yaml:"safety_timeout"`
}

// LoggingConfig selects log level and destination
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// MetricsConfig enables the Prometheus endpoint
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// UIConfig controls the terminal console
type UIConfig struct {
	Disabled bool `yaml:"disabled"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:     "http://localhost:3000",
			Timeout: 10 * time.Second,
		},
		Call: CallConfig{
			CallerLanguage:     "en-US",
			ReceiverLanguage:   "fr-FR",
			PartialTTSInterval: 0,
			StatusInterval:     2 * time.Second,
		},
		Audio: AudioConfig{
			SampleRate:     48000,
			OriginalGain:   0.3,
			TranslatedGain: 1.0,
			PromptGain:     1.0,
			FadeOut:        100 * time.Millisecond,
			CacheSize:      50,
			DecodeWorkers:  2,
		},
		Sync: SyncConfig{
			Gap:         200 * time.Millisecond,
			Lead:        200 * time.Millisecond,
			MaxOriginal: 30 * time.Second,
		},
		Prompts: PromptConfig{
			LoopDelay:     3 * time.Second,
			SafetyTimeout: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "evatrad.log",
		},
	}
}

// Load reads a YAML file over the defaults
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Parse builds the configuration from command-line args: defaults, then
// the -config file, then any flag given explicitly
func Parse(name string, args []string) (*Config, error) {
	cfg := Default()
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	cfg.BindFlags(fs)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		explicit := map[string]string{}
		fs.Visit(func(f *flag.Flag) {
			explicit[f.Name] = f.Value.String()
		})
		if err := cfg.loadFile(*configPath); err != nil {
			return nil, err
		}
		for name, value := range explicit {
			if err := fs.Set(name, value); err != nil {
				return nil, fmt.Errorf("flag -%s: %w", name, err)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// BindFlags registers a flag for every setting, defaulting to the current
// values
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Server.URL, "server", c.Server.URL, "Bridge API base URL")
	fs.BoolVar(&c.Server.Discover, "discover", c.Server.Discover, "Find the bridge with mDNS instead of -server")
	fs.DurationVar(&c.Server.Timeout, "timeout", c.Server.Timeout, "HTTP and connect timeout")

	fs.StringVar(&c.Call.To, "to", c.Call.To, "Destination phone number")
	fs.StringVar(&c.Call.CallerLanguage, "caller-lang", c.Call.CallerLanguage, "Caller language (en, fr-FR, ...)")
	fs.StringVar(&c.Call.ReceiverLanguage, "receiver-lang", c.Call.ReceiverLanguage, "Receiver language")
	fs.IntVar(&c.Call.PartialTTSInterval, "partial-tts-interval", c.Call.PartialTTSInterval, "Partial TTS interval forwarded to the bridge (0 = server default)")
	fs.DurationVar(&c.Call.StatusInterval, "status-interval", c.Call.StatusInterval, "Call status polling period")

	fs.BoolVar(&c.Audio.Disabled, "no-audio", c.Audio.Disabled, "Play nothing, captions only")
	fs.IntVar(&c.Audio.SampleRate, "sample-rate", c.Audio.SampleRate, "Output device sample rate")
	fs.Float64Var(&c.Audio.OriginalGain, "original-gain", c.Audio.OriginalGain, "Original voice gain (0-1)")
	fs.Float64Var(&c.Audio.TranslatedGain, "translated-gain", c.Audio.TranslatedGain, "Translated voice gain (0-1)")
	fs.Float64Var(&c.Audio.PromptGain, "prompt-gain", c.Audio.PromptGain, "Welcome and waiting prompt gain (0-1)")
	fs.IntVar(&c.Audio.CacheSize, "cache-size", c.Audio.CacheSize, "Decoded audio cache entries")
	fs.StringVar(&c.Audio.SendFile, "send-file", c.Audio.SendFile, "Audio file to send as caller voice once connected")

	fs.DurationVar(&c.Sync.Gap, "sync-gap", c.Sync.Gap, "Delay of a translation behind its original")
	fs.DurationVar(&c.Sync.Lead, "sync-lead", c.Sync.Lead, "Lead of the original over its translation")
	fs.DurationVar(&c.Sync.TimeSync, "time-sync", c.Sync.TimeSync, "Clock sync period (0 disables)")

	fs.DurationVar(&c.Prompts.LoopDelay, "loop-delay", c.Prompts.LoopDelay, "Pause between waiting prompts")
	fs.DurationVar(&c.Prompts.SafetyTimeout, "safety-timeout", c.Prompts.SafetyTimeout, "Hang up if unanswered after this long")

	fs.StringVar(&c.Logging.Level, "log-level", c.Logging.Level, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.Logging.File, "log-file", c.Logging.File, "Log file path")
	fs.StringVar(&c.Metrics.Address, "metrics", c.Metrics.Address, "Serve Prometheus metrics on this address (e.g. :9090)")
	fs.BoolVar(&c.UI.Disabled, "no-tui", c.UI.Disabled, "Disable TUI, stream logs instead")
}

// Validate performs validation of the whole configuration. Language codes
// are normalized in place.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Call.Validate(); err != nil {
		return fmt.Errorf("call config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync config: %w", err)
	}
	if err := c.Prompts.Validate(); err != nil {
		return fmt.Errorf("prompts config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Discover {
		return nil
	}
	if s.URL == "" {
		return errors.New("url cannot be empty unless discover is set")
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", s.URL)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %v", s.Timeout)
	}
	return nil
}

// Validate validates and normalizes call configuration
func (c *CallConfig) Validate() error {
	if c.To == "" {
		return errors.New("destination number (to) is required")
	}
	caller, err := NormalizeLanguage(c.CallerLanguage)
	if err != nil {
		return fmt.Errorf("caller_language: %w", err)
	}
	receiver, err := NormalizeLanguage(c.ReceiverLanguage)
	if err != nil {
		return fmt.Errorf("receiver_language: %w", err)
	}
	c.CallerLanguage, c.ReceiverLanguage = caller, receiver

	if c.PartialTTSInterval < 0 {
		return fmt.Errorf("partial_tts_interval must not be negative, got %d", c.PartialTTSInterval)
	}
	if c.StatusInterval <= 0 {
		return fmt.Errorf("status_interval must be positive, got %v", c.StatusInterval)
	}
	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000, got %d", a.SampleRate)
	}
	gains := []struct {
		name  string
		value float64
	}{
		{"original_gain", a.OriginalGain},
		{"translated_gain", a.TranslatedGain},
		{"prompt_gain", a.PromptGain},
	}
	for _, g := range gains {
		if g.value < 0 || g.value > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %v", g.name, g.value)
		}
	}
	if a.CacheSize < 1 {
		return fmt.Errorf("cache_size must be at least 1, got %d", a.CacheSize)
	}
	if a.FadeOut < 0 {
		return fmt.Errorf("fade_out must not be negative, got %v", a.FadeOut)
	}
	if a.SendFile != "" {
		if _, err := os.Stat(a.SendFile); err != nil {
			return fmt.Errorf("send_file: %w", err)
		}
	}
	return nil
}

// Validate validates sync configuration
func (s *SyncConfig) Validate() error {
	if s.Gap < 0 || s.Lead < 0 {
		return fmt.Errorf("gap and lead must not be negative, got %v/%v", s.Gap, s.Lead)
	}
	if s.MaxOriginal <= 0 {
		return fmt.Errorf("max_original must be positive, got %v", s.MaxOriginal)
	}
	if s.TimeSync < 0 {
		return fmt.Errorf("time_sync must not be negative, got %v", s.TimeSync)
	}
	return nil
}

// Validate validates prompt configuration
func (p *PromptConfig) Validate() error {
	if p.LoopDelay <= 0 {
		return fmt.Errorf("loop_delay must be positive, got %v", p.LoopDelay)
	}
	if p.SafetyTimeout <= 0 {
		return fmt.Errorf("safety_timeout must be positive, got %v", p.SafetyTimeout)
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	if _, err := log.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("level: %w", err)
	}
	if l.File == "" {
		return errors.New("file cannot be empty")
	}
	return nil
}

// LogLevel returns the parsed log level
func (l *LoggingConfig) LogLevel() log.Level {
	level, err := log.ParseLevel(l.Level)
	if err != nil {
		return log.InfoLevel
	}
	return level
}
