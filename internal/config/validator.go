package config

import (
	"fmt"
	"net"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks if the configuration is valid and fills in defaults
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		cfg.InstanceID = "ledmatrix"
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	// Panel geometry
	if cfg.Matrix.Cols == 0 {
		cfg.Matrix.Cols = 64
	}
	if cfg.Matrix.Rows == 0 {
		cfg.Matrix.Rows = 64
	}
	if cfg.Matrix.Cols < 1 || cfg.Matrix.Rows < 1 {
		return fmt.Errorf("matrix.cols and matrix.rows must be >= 1")
	}
	if cfg.Matrix.Brightness == 0 {
		cfg.Matrix.Brightness = 70
	}
	if cfg.Matrix.Brightness < 1 || cfg.Matrix.Brightness > 100 {
		return fmt.Errorf("matrix.brightness must be in 1..100, got %d", cfg.Matrix.Brightness)
	}

	// Display driver
	switch cfg.Display.Driver {
	case "", "none", "opc", "apa102":
	default:
		return fmt.Errorf("display.driver must be one of none/opc/apa102, got %q", cfg.Display.Driver)
	}
	if cfg.Display.Driver == "opc" && cfg.Display.OPCAddress == "" {
		return fmt.Errorf("display.opc_address is required for the opc driver")
	}
	if cfg.Display.Driver == "apa102" && cfg.Display.SPIPort == "" {
		cfg.Display.SPIPort = "SPI0.0"
	}

	// Storage
	if cfg.Storage.RuntimeDir == "" {
		cfg.Storage.RuntimeDir = "/run/ledmatrix"
	}

	// Limits
	if cfg.Limits.MaxUploadBytes < 0 {
		return fmt.Errorf("limits.max_upload_bytes must be >= 0")
	}
	if cfg.Limits.MaxFrames < 0 {
		return fmt.Errorf("limits.max_frames must be >= 0")
	}

	// Control planes
	if !cfg.HTTP.Enabled && !cfg.MQTT.Enabled {
		return fmt.Errorf("at least one control plane (http, mqtt) must be enabled")
	}

	if cfg.HTTP.Enabled {
		if cfg.HTTP.Addr == "" {
			cfg.HTTP.Addr = ":9090"
		}
		for _, raw := range cfg.HTTP.AllowNets {
			if _, _, err := net.ParseCIDR(raw); err != nil {
				return fmt.Errorf("http.allow_nets entry %q is not a valid CIDR: %w", raw, err)
			}
		}
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if cfg.MQTT.Topics.Animation == "" {
			cfg.MQTT.Topics.Animation = fmt.Sprintf("home/%s/animation", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Command == "" {
			cfg.MQTT.Topics.Command = fmt.Sprintf("home/%s/cmd", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Status == "" {
			cfg.MQTT.Topics.Status = fmt.Sprintf("home/%s/status", cfg.InstanceID)
		}
		if cfg.MQTT.QoS == nil {
			cfg.MQTT.QoS = map[string]byte{
				"animation": 0,
				"command":   0,
				"status":    1,
			}
		}
	}

	return nil
}
