package websocket

import (
	"errors"
	"fmt"
)

// Config holds the configuration for the peer-facing WebSocket server
type Config struct {
	// HTTP server port
	Port int `yaml:"port" json:"port" default:"8080"`

	// WebSocket endpoint path
	Path string `yaml:"path" json:"path" default:"/media"`

	// Query parameter carrying the call id
	CallIDParam string `yaml:"call_id_param" json:"call_id_param" default:"call_id"`

	// Header carrying the call id when the query parameter is absent
	CallIDHeader string `yaml:"call_id_header" json:"call_id_header" default:"X-Call-Id"`

	// Read buffer size for WebSocket connections (bytes)
	ReadBufferSize int `yaml:"read_buffer_size" json:"read_buffer_size" default:"4096"`

	// Write buffer size for WebSocket connections (bytes)
	WriteBufferSize int `yaml:"write_buffer_size" json:"write_buffer_size" default:"4096"`

	// Maximum message size (bytes)
	MaxMessageSize int64 `yaml:"max_message_size" json:"max_message_size" default:"65536"`

	// Write timeout per message (seconds)
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds" json:"write_timeout_seconds" default:"10"`

	// Serve Prometheus metrics on /metrics
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics" default:"true"`

	// Enable TLS/SSL
	EnableTLS bool `yaml:"enable_tls" json:"enable_tls" default:"false"`

	// TLS certificate file path
	TLSCertFile string `yaml:"tls_cert_file" json:"tls_cert_file"`

	// TLS key file path
	TLSKeyFile string `yaml:"tls_key_file" json:"tls_key_file"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Port:                8080,
		Path:                "/media",
		CallIDParam:         "call_id",
		CallIDHeader:        "X-Call-Id",
		ReadBufferSize:      4096,
		WriteBufferSize:     4096,
		MaxMessageSize:      65536,
		WriteTimeoutSeconds: 10,
		EnableMetrics:       true,
		EnableTLS:           false,
	}
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if c.Path == "" || c.Path[0] != '/' {
		errs = append(errs, fmt.Errorf("path must start with '/': %q", c.Path))
	}
	if c.CallIDParam == "" && c.CallIDHeader == "" {
		errs = append(errs, errors.New("one of call_id_param and call_id_header is required"))
	}
	if c.MaxMessageSize <= 0 {
		errs = append(errs, fmt.Errorf("max_message_size must be positive, got %d", c.MaxMessageSize))
	}
	if c.EnableTLS && (c.TLSCertFile == "" || c.TLSKeyFile == "") {
		errs = append(errs, errors.New("tls_cert_file and tls_key_file are required when enable_tls is set"))
	}
	return errors.Join(errs...)
}
