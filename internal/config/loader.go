package config

import (
	"fmt"
	"os"

	"github.com/netprobe/internal/logger"
	"github.com/netprobe/pkg/address"
	"gopkg.in/yaml.v3"
)

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration on top of the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	for i := range cfg.Requests {
		if cfg.Requests[i].Protocol == "" {
			cfg.Requests[i].Protocol = ProtocolTCP
		}
		if cfg.Requests[i].Count == 0 {
			cfg.Requests[i].Count = 1
		}
		if cfg.Requests[i].Name == "" {
			cfg.Requests[i].Name = fmt.Sprintf("request-%d", i+1)
		}
	}

	if len(cfg.Requests) == 0 {
		return nil, fmt.Errorf("invalid configuration: at least one request is required")
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func Validate(cfg *Config) error {
	for i, r := range cfg.Requests {
		if err := ValidateRequest(r); err != nil {
			return fmt.Errorf("requests[%d]: %w", i, err)
		}
	}

	if cfg.Dispatch.Parallelism <= 0 {
		return fmt.Errorf("dispatch.parallelism must be positive")
	}
	if cfg.Dispatch.QueueSize < 0 {
		return fmt.Errorf("dispatch.queue_size must not be negative")
	}
	if cfg.Dispatch.Rate < 0 {
		return fmt.Errorf("dispatch.rate must not be negative")
	}

	if cfg.Transport.Timeout < 0 || cfg.Transport.DialTimeout < 0 {
		return fmt.Errorf("transport timeouts must not be negative")
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Address == "" {
			return fmt.Errorf("metrics.address is required when metrics are enabled")
		}
		if cfg.Metrics.Path == "" || cfg.Metrics.Path[0] != '/' {
			return fmt.Errorf("metrics.path must start with /")
		}
	}

	if !logger.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level %q is not one of trace, debug, info, warn, error", cfg.Log.Level)
	}

	return nil
}

// ValidateRequest checks a single request. Combinations that cannot be
// dispatched are rejected here so they fail before any job runs.
func ValidateRequest(r Request) error {
	if r.Address == "" {
		return fmt.Errorf("address is required")
	}
	if _, err := address.Resolve(r.Address); err != nil {
		return err
	}

	switch r.Protocol {
	case ProtocolTCP:
	case ProtocolUDP:
		if r.File != "" {
			return fmt.Errorf("udp mode does not support file transmission")
		}
	case ProtocolHTTP, ProtocolHTTPS:
		if r.File != "" {
			return fmt.Errorf("%s mode does not support file transmission", r.Protocol)
		}
	case ProtocolFile:
		return fmt.Errorf("protocol file is not a mode, use tcp with a file")
	default:
		return fmt.Errorf("unknown protocol %q", r.Protocol)
	}

	return nil
}
