package netcore

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// Config holds process-wide settings: socket option defaults and the
// refill cadence for the rate-limit tree. Loaded from a .toml or .yaml
// file picked by extension, same as the rest of the pack does it. Nothing
// in this package applies a Config automatically; callers read it and pass
// the values on (as netopts options, or as a Manager's tick rate).
type Config struct {
	Socket    SocketConfig    `yaml:"socket" toml:"socket"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
}

type SocketConfig struct {
	NoDelay          bool          `yaml:"no_delay" toml:"no_delay"`
	NoSigpipe        bool          `yaml:"no_sigpipe" toml:"no_sigpipe"`
	KeepaliveSeconds int           `yaml:"keepalive_seconds" toml:"keepalive_seconds"`
	RecvBufferBytes  int           `yaml:"recv_buffer_bytes" toml:"recv_buffer_bytes"`
	SendBufferBytes  int           `yaml:"send_buffer_bytes" toml:"send_buffer_bytes"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" toml:"connect_timeout"`
}

type RateLimitConfig struct {
	// TickMillis is the refill period; the default is 200ms (5 ticks/second).
	TickMillis int `yaml:"tick_millis" toml:"tick_millis"`
}

// DefaultConfig matches the rate-limit tree's 200ms/5-ticks-per-second
// refill cadence and the usual connect-time socket defaults.
func DefaultConfig() *Config {
	return &Config{
		Socket: SocketConfig{
			NoDelay:   true,
			NoSigpipe: true,
		},
		RateLimit: RateLimitConfig{
			TickMillis: 200,
		},
	}
}

// LoadConfig reads filePath (picking a TOML or YAML decoder by extension)
// and overlays it onto DefaultConfig.
func LoadConfig(filePath string) (*Config, error) {
	file, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	switch {
	case strings.HasSuffix(filePath, ".toml"):
		err = toml.Unmarshal(file, cfg)
	case strings.HasSuffix(filePath, ".yaml"), strings.HasSuffix(filePath, ".yml"):
		err = yaml.Unmarshal(file, cfg)
	default:
		return nil, fmt.Errorf("netcore: unrecognized config extension for %q", filePath)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RateLimit.TickMillis <= 0 {
		return nil, fmt.Errorf("netcore: rate_limit.tick_millis must be positive")
	}

	return cfg, nil
}

// Tick is the refill period this config implies.
func (c *RateLimitConfig) Tick() time.Duration {
	return time.Duration(c.TickMillis) * time.Millisecond
}
