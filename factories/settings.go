package factories

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"alturbridge/core"
	"alturbridge/serializers/altur"
	"alturbridge/transports/websocket"
	"alturbridge/utils/audio"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

// SettingsConfig is the top-level config loaded from settings.json or
// settings.yaml. It bundles the transport provider config with the
// serializer parameters and the per-call pipeline options.
type SettingsConfig struct {
	// Transport configures the peer-facing WebSocket server.
	Transport websocket.Config `json:"transport" yaml:"transport"`
	// Serializer configures the rates on both sides of the transcoder.
	Serializer altur.Params `json:"serializer" yaml:"serializer"`
	// SessionTimeoutSeconds ends a call after this long. Zero disables it.
	SessionTimeoutSeconds int `json:"session_timeout_seconds" yaml:"session_timeout_seconds"`
	// Loopback echoes inbound audio back to the peer.
	Loopback bool `json:"loopback" yaml:"loopback"`
	// AudioPacingFactor sends outbound audio at this multiple of real time.
	// Zero disables pacing.
	AudioPacingFactor float64 `json:"audio_pacing_factor" yaml:"audio_pacing_factor"`
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level"`
	// LogFormat is "console" or "json".
	LogFormat string `json:"log_format" yaml:"log_format"`
	// SessionLogDir, when set, receives one <call_id>.jsonl file per call.
	SessionLogDir string `json:"session_log_dir,omitempty" yaml:"session_log_dir,omitempty"`
}

// DefaultSettingsConfig returns a SettingsConfig pre-filled with defaults.
func DefaultSettingsConfig() SettingsConfig {
	return SettingsConfig{
		Transport:             *websocket.DefaultConfig(),
		Serializer:            altur.DefaultParams(),
		SessionTimeoutSeconds: 3000,
		Loopback:              true,
		AudioPacingFactor:     2,
		LogLevel:              "info",
		LogFormat:             "console",
	}
}

var strictJSON = sonic.Config{DisallowUnknownFields: true}.Froze()

// SettingsConfigFromJSON parses a JSON blob over the defaults. Unknown keys
// are rejected so typos do not silently fall back to defaults.
func SettingsConfigFromJSON(data []byte) (SettingsConfig, error) {
	cfg := DefaultSettingsConfig()
	if err := strictJSON.Unmarshal(data, &cfg); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	return cfg, nil
}

// SettingsConfigFromYAML parses a YAML document over the defaults. Unknown
// keys are rejected.
func SettingsConfigFromYAML(data []byte) (SettingsConfig, error) {
	cfg := DefaultSettingsConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	return cfg, nil
}

// SettingsConfigFromFile reads settings from path. Files ending in .yaml or
// .yml are parsed as YAML, anything else as JSON.
func SettingsConfigFromFile(path string) (SettingsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettingsConfig(), fmt.Errorf("settings: read %q: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return SettingsConfigFromYAML(data)
	default:
		return SettingsConfigFromJSON(data)
	}
}

// ApplyEnv overrides settings from environment variables. lookup is usually
// os.LookupEnv. Only variables that are set are applied.
func (c *SettingsConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	ratio := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	num("ALTUR_PORT", &c.Transport.Port)
	str("ALTUR_PATH", &c.Transport.Path)
	num("ALTUR_PEER_SAMPLE_RATE", &c.Serializer.PeerSampleRate)
	num("ALTUR_SAMPLE_RATE", &c.Serializer.SampleRate)
	if v, ok := lookup("ALTUR_RESAMPLER"); ok {
		c.Serializer.Resampler = audio.ResamplerKind(v)
	}
	num("SESSION_TIMEOUT_SECONDS", &c.SessionTimeoutSeconds)
	flag("ALTUR_LOOPBACK", &c.Loopback)
	ratio("ALTUR_PACING_FACTOR", &c.AudioPacingFactor)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("SESSION_LOG_DIR", &c.SessionLogDir)

	return errors.Join(errs...)
}

// Validate reports every invalid setting.
func (c SettingsConfig) Validate() error {
	var errs []error
	if err := c.Transport.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("transport: %w", err))
	}
	if err := c.Serializer.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("serializer: %w", err))
	}
	if c.AudioPacingFactor < 0 {
		errs = append(errs, fmt.Errorf("audio_pacing_factor must not be negative, got %g", c.AudioPacingFactor))
	}
	if c.SessionTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("session_timeout_seconds must not be negative, got %d", c.SessionTimeoutSeconds))
	}
	if _, err := core.ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be console or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// SessionTimeout returns the per-call timeout. Zero means no timeout.
func (c SettingsConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

// BuildLogger returns the process logger described by the settings.
func (c SettingsConfig) BuildLogger(w io.Writer) (*core.Logger, error) {
	level, err := core.ParseLogLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	if c.LogFormat == "json" {
		return core.NewJSONLogger(w, level), nil
	}
	return core.NewLogger(core.ConsoleHandler(w), level), nil
}
