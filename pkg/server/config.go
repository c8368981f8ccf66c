package server

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config contains the bridge server configuration.
type Config struct {
	// Network address to listen on (e.g. ":7045")
	ListenAddress string `yaml:"listen_address"`

	// Address the Prometheus metrics endpoint listens on. Empty disables
	// metrics serving.
	MetricsAddress string `yaml:"metrics_address"`

	// Maximum concurrent requests
	MaxConcurrent int `yaml:"max_concurrent"`

	// Maximum read size in bytes
	MaxReadSize int `yaml:"max_read_size"`

	// Maximum write size in bytes
	MaxWriteSize int `yaml:"max_write_size"`

	// Mount every volume read-only regardless of media
	ForceReadOnly bool `yaml:"force_read_only"`

	// Volumes served by this instance
	Exports []ExportConfig `yaml:"exports"`
}

// ExportConfig describes one served volume.
type ExportConfig struct {
	// Device path clients open the volume under
	Device string `yaml:"device"`

	// Backing image file or block device
	Image string `yaml:"image"`

	// Open the backing store read-only
	ReadOnly bool `yaml:"read_only"`

	// Media block size; zero selects the default
	BlockSize int `yaml:"block_size"`

	// Format the image before serving when it carries no filesystem
	Format bool `yaml:"format"`

	// Serial and label used when formatting
	Serial uint64 `yaml:"serial"`
	Label  string `yaml:"label"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddress:  ":7045",
		MetricsAddress: ":9090",
		MaxConcurrent:  100,
		MaxReadSize:    1024 * 1024, // 1MB
		MaxWriteSize:   1024 * 1024, // 1MB
	}
}

// LoadConfig reads a YAML configuration file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
