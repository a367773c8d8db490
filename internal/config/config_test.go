package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledmatrixd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
http:
  enabled: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.InstanceID != "ledmatrix" {
		t.Errorf("instance_id default: got %q", cfg.InstanceID)
	}
	if cfg.Matrix.Cols != 64 || cfg.Matrix.Rows != 64 {
		t.Errorf("panel default: got %dx%d", cfg.Matrix.Cols, cfg.Matrix.Rows)
	}
	if cfg.Matrix.Brightness != 70 {
		t.Errorf("brightness default: got %d", cfg.Matrix.Brightness)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("http addr default: got %q", cfg.HTTP.Addr)
	}
	if cfg.Storage.RuntimeDir != "/run/ledmatrix" {
		t.Errorf("runtime_dir default: got %q", cfg.Storage.RuntimeDir)
	}
}

func TestLoadMQTTTopicDefaults(t *testing.T) {
	path := writeConfig(t, `
instance_id: kitchen-panel
mqtt:
  enabled: true
  broker: 192.168.1.10:1883
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.MQTT.Topics.Animation != "home/kitchen-panel/animation" {
		t.Errorf("animation topic: got %q", cfg.MQTT.Topics.Animation)
	}
	if cfg.MQTT.Topics.Command != "home/kitchen-panel/cmd" {
		t.Errorf("command topic: got %q", cfg.MQTT.Topics.Command)
	}
	if cfg.MQTT.Topics.Status != "home/kitchen-panel/status" {
		t.Errorf("status topic: got %q", cfg.MQTT.Topics.Status)
	}
	if cfg.MQTT.QoS["status"] != 1 {
		t.Errorf("status qos default: got %d", cfg.MQTT.QoS["status"])
	}
}

func TestLoadExplicitValuesSurviveValidation(t *testing.T) {
	path := writeConfig(t, `
instance_id: hallway
matrix:
  cols: 32
  rows: 16
  brightness: 40
display:
  driver: opc
  opc_address: 127.0.0.1:7890
  serpentine: true
storage:
  runtime_dir: /var/lib/ledmatrix
  default_path: /var/lib/ledmatrix/default.gif
  boot_splash: true
limits:
  max_upload_bytes: 2097152
  max_frames: 120
http:
  enabled: true
  addr: ":8080"
  allow_nets: ["192.168.0.0/16", "10.0.0.0/8"]
mqtt:
  enabled: true
  broker: broker.local:1883
  topics:
    animation: display/anim
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Matrix.Cols != 32 || cfg.Matrix.Rows != 16 || cfg.Matrix.Brightness != 40 {
		t.Errorf("matrix values overridden: %+v", cfg.Matrix)
	}
	if cfg.Display.Driver != "opc" || !cfg.Display.Serpentine {
		t.Errorf("display values overridden: %+v", cfg.Display)
	}
	if cfg.Limits.MaxFrames != 120 {
		t.Errorf("limits overridden: %+v", cfg.Limits)
	}
	if cfg.MQTT.Topics.Animation != "display/anim" {
		t.Errorf("explicit topic overridden: %q", cfg.MQTT.Topics.Animation)
	}
	if cfg.MQTT.Topics.Command != "home/hallway/cmd" {
		t.Errorf("unset topic not defaulted: %q", cfg.MQTT.Topics.Command)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no control plane",
			yaml: `instance_id: a`,
			want: "control plane",
		},
		{
			name: "bad instance id",
			yaml: "instance_id: \"Bad ID!\"\nhttp:\n  enabled: true",
			want: "instance_id",
		},
		{
			name: "bad brightness",
			yaml: "matrix:\n  brightness: 150\nhttp:\n  enabled: true",
			want: "brightness",
		},
		{
			name: "unknown driver",
			yaml: "display:\n  driver: ws2812\nhttp:\n  enabled: true",
			want: "display.driver",
		},
		{
			name: "opc without address",
			yaml: "display:\n  driver: opc\nhttp:\n  enabled: true",
			want: "opc_address",
		},
		{
			name: "bad cidr",
			yaml: "http:\n  enabled: true\n  allow_nets: [\"192.168.1.5\"]",
			want: "CIDR",
		},
		{
			name: "mqtt without broker",
			yaml: "mqtt:\n  enabled: true",
			want: "broker",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			_, err := Load(path)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestApa102DefaultsSPIPort(t *testing.T) {
	path := writeConfig(t, `
display:
  driver: apa102
http:
  enabled: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Display.SPIPort != "SPI0.0" {
		t.Errorf("spi_port default: got %q", cfg.Display.SPIPort)
	}
}
