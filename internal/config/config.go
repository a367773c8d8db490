package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete ledmatrixd configuration
type Config struct {
	InstanceID       string        `yaml:"instance_id"`
	ShutdownTimeoutS int           `yaml:"shutdown_timeout_s"` // graceful shutdown timeout in seconds (default: 5)
	Matrix           MatrixConfig  `yaml:"matrix"`
	Display          DisplayConfig `yaml:"display"`
	Storage          StorageConfig `yaml:"storage"`
	Limits           LimitsConfig  `yaml:"limits"`
	HTTP             HTTPConfig    `yaml:"http"`
	MQTT             MQTTConfig    `yaml:"mqtt"`
}

// MatrixConfig describes the logical panel geometry
type MatrixConfig struct {
	Cols       int `yaml:"cols"`       // panel width in pixels
	Rows       int `yaml:"rows"`       // panel height in pixels
	Brightness int `yaml:"brightness"` // startup brightness 1..100
}

// DisplayConfig selects and configures the physical sink
type DisplayConfig struct {
	Driver     string `yaml:"driver"`      // "", "none", "opc", "apa102"
	OPCAddress string `yaml:"opc_address"` // host:port of an OPC server (fadecandy)
	OPCChannel int    `yaml:"opc_channel"` // OPC channel, 0 = broadcast
	SPIPort    string `yaml:"spi_port"`    // e.g. "SPI0.0"
	Serpentine bool   `yaml:"serpentine"`  // zig-zag row wiring on LED chains
}

// StorageConfig locates the durable slots
type StorageConfig struct {
	RuntimeDir  string `yaml:"runtime_dir"`  // holds current + debug slots
	DefaultPath string `yaml:"default_path"` // seed animation outside the runtime dir
	BootSplash  bool   `yaml:"boot_splash"`  // generate a splash when both slots are empty
}

// LimitsConfig bounds what uploads are accepted
type LimitsConfig struct {
	MaxUploadBytes int `yaml:"max_upload_bytes"` // 0 = unlimited
	MaxFrames      int `yaml:"max_frames"`       // 0 = unlimited
}

// HTTPConfig contains the HTTP control plane settings
type HTTPConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Addr      string   `yaml:"addr"`       // listen address, e.g. ":9090"
	AllowNets []string `yaml:"allow_nets"` // optional CIDR allowlist
}

// MQTTConfig contains the MQTT control plane settings
type MQTTConfig struct {
	Enabled  bool            `yaml:"enabled"`
	Broker   string          `yaml:"broker"`
	Username string          `yaml:"username"`
	Password string          `yaml:"password"`
	Topics   MQTTTopics      `yaml:"topics"`
	QoS      map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic names
type MQTTTopics struct {
	Animation string `yaml:"animation"`
	Command   string `yaml:"command"`
	Status    string `yaml:"status"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
