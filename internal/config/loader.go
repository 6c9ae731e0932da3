package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram", "whisper", "mock"},
}

// ValidFormats lists the capture wire formats understood by the server.
var ValidFormats = []string{FormatF32LE, FormatS16LE}

// minSecretLen is the shortest HS256 secret the backend itself accepts.
const minSecretLen = 32

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultIssuer          = "supabase"
	DefaultWindowSize      = 4096
	DefaultSampleRate      = 16000
	DefaultLanguage        = "en"
	DefaultMaxMessageBytes = 1 << 20
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults, and validates
// the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields in place. Explicit values are kept.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = DefaultIssuer
	}

	c := &cfg.Capture
	if c.WindowSize == 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if len(c.SampleRates) == 0 {
		c.SampleRates = []int{16000, 44100, 48000}
	}
	if !slices.Contains(c.SampleRates, c.SampleRate) {
		c.SampleRates = append(c.SampleRates, c.SampleRate)
	}
	if len(c.Formats) == 0 {
		c.Formats = slices.Clone(ValidFormats)
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.MaxMessageBytes == 0 {
		c.MaxMessageBytes = DefaultMaxMessageBytes
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %v must not be negative", cfg.Server.ShutdownTimeout))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "") != (tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Auth
	switch n := len(cfg.Auth.JWTSecret); {
	case n == 0:
		errs = append(errs, errors.New("auth.jwt_secret is required (or set JWT_SECRET)"))
	case n < minSecretLen:
		slog.Warn("auth.jwt_secret is shorter than the backend accepts", "length", n, "min", minSecretLen)
	}

	// Providers
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("stt", cfg.Providers.STTFallback.Name)
	if fb := cfg.Providers.STTFallback; fb.Name != "" && fb.Name == cfg.Providers.STT.Name &&
		fb.BaseURL == cfg.Providers.STT.BaseURL {
		slog.Warn("providers.stt_fallback duplicates providers.stt; failover will hit the same backend", "name", fb.Name)
	}
	if cb := cfg.Providers.CircuitBreaker; cb.MaxFailures < 0 || cb.ResetTimeout < 0 {
		errs = append(errs, errors.New("providers.circuit_breaker values must not be negative"))
	}

	// Capture
	c := cfg.Capture
	if c.WindowSize <= 0 {
		errs = append(errs, fmt.Errorf("capture.window_size %d must be positive", c.WindowSize))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must be positive", c.SampleRate))
	}
	for i, r := range c.SampleRates {
		if r <= 0 {
			errs = append(errs, fmt.Errorf("capture.sample_rates[%d] %d must be positive", i, r))
		}
	}
	for i, f := range c.Formats {
		if !slices.Contains(ValidFormats, f) {
			errs = append(errs, fmt.Errorf("capture.formats[%d] %q is invalid; valid values: f32le, s16le", i, f))
		}
	}
	if c.WindowSize > 0 && c.MaxMessageBytes < int64(c.WindowSize)*4 {
		errs = append(errs, fmt.Errorf("capture.max_message_bytes %d is smaller than one f32le window (%d bytes)",
			c.MaxMessageBytes, c.WindowSize*4))
	}
	for i, kw := range c.Keywords {
		if kw.Keyword == "" {
			errs = append(errs, fmt.Errorf("capture.keywords[%d].keyword is required", i))
		}
	}

	// Storage
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; transcripts are kept in memory and lost on restart")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
