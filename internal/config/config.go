package config

import (
	"fmt"
	"runtime"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Requests  []Request `yaml:"requests"`
	Dispatch  Dispatch  `yaml:"dispatch"`
	Transport Transport `yaml:"transport"`
	Metrics   Metrics   `yaml:"metrics"`
	Log       Log       `yaml:"log"`
}

// Request describes one probe: where to send, how, and what.
type Request struct {
	Name     string   `yaml:"name"`
	Address  string   `yaml:"address"`
	Protocol Protocol `yaml:"protocol"`
	Message  string   `yaml:"message,omitempty"`
	File     string   `yaml:"file,omitempty"`
	Save     string   `yaml:"save,omitempty"`
	Count    uint     `yaml:"count"`
}

// Protocol represents the supported protocols.
type Protocol string

const (
	ProtocolTCP   Protocol = "tcp"
	ProtocolUDP   Protocol = "udp"
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
	// ProtocolFile is TCP with a file's contents as the payload. It is
	// derived from a tcp request with a file, never selected directly.
	ProtocolFile Protocol = "file"
)

// Protocols lists every protocol kind.
var Protocols = []Protocol{ProtocolTCP, ProtocolUDP, ProtocolHTTP, ProtocolHTTPS, ProtocolFile}

// ParseMode converts a user supplied mode. Matching is exact and
// case-sensitive; file transfer is chosen with a file, not a mode.
func ParseMode(s string) (Protocol, error) {
	switch p := Protocol(s); p {
	case ProtocolTCP, ProtocolUDP, ProtocolHTTP, ProtocolHTTPS:
		return p, nil
	default:
		return "", fmt.Errorf("invalid mode %q, use one of tcp, udp, http, https", s)
	}
}

// Dispatch configures the worker pool.
type Dispatch struct {
	Parallelism int     `yaml:"parallelism"`
	QueueSize   int     `yaml:"queue_size"`
	Rate        float64 `yaml:"rate"` // Jobs started per second, 0 = unlimited
}

// Transport configures the protocol clients.
type Transport struct {
	Timeout     time.Duration `yaml:"timeout"` // Per exchange, 0 = none
	DialTimeout time.Duration `yaml:"dial_timeout"`
	TLSInsecure bool          `yaml:"tls_insecure"`
	HalfClose   bool          `yaml:"half_close"`
}

// Metrics configures Prometheus metrics.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// Log configures logging.
type Log struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
}

// DefaultParallelism is twice the number of logical CPUs.
func DefaultParallelism() int {
	return 2 * runtime.NumCPU()
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Dispatch: Dispatch{
			Parallelism: DefaultParallelism(),
			QueueSize:   1024,
		},
		Transport: Transport{
			HalfClose: true,
		},
		Metrics: Metrics{
			Enabled: false,
			Address: ":9090",
			Path:    "/metrics",
		},
		Log: Log{
			Level:  "info",
			Colors: true,
		},
	}
}

// DefaultRequest returns a request with the defaults applied to fields the
// user may leave out.
func DefaultRequest() Request {
	return Request{
		Protocol: ProtocolTCP,
		Count:    1,
	}
}
