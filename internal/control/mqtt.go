package control

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/Lukeskaiwalker/led-matrix-gif-player/internal/config"
	"github.com/Lukeskaiwalker/led-matrix-gif-player/internal/core"
)

// MQTT is the MQTT control plane: raw animation bytes on one topic, text
// commands on another, human-readable status strings published after each
// action.
type MQTT struct {
	cfg    config.MQTTConfig
	svc    *core.Service
	client mqtt.Client
}

// NewMQTT creates the MQTT control plane for a service.
func NewMQTT(cfg config.MQTTConfig, svc *core.Service) *MQTT {
	return &MQTT{cfg: cfg, svc: svc}
}

// Start connects to the broker and subscribes to the animation and command
// topics. Subscriptions are re-established on every (re)connect.
func (m *MQTT) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", m.cfg.Broker))
	opts.SetClientID(fmt.Sprintf("ledmatrixd-%s", uuid.NewString()[:8]))
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		slog.Info("mqtt connection established", "broker", m.cfg.Broker)
		m.subscribe(c)
		m.publishStatus("connected")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", m.cfg.Broker,
		)
	}

	m.client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", m.cfg.Broker)

	token := m.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

// Stop unsubscribes and disconnects with a short grace period.
func (m *MQTT) Stop() error {
	if m.client != nil && m.client.IsConnected() {
		token := m.client.Unsubscribe(m.cfg.Topics.Animation, m.cfg.Topics.Command)
		token.WaitTimeout(2 * time.Second)
		m.client.Disconnect(250)
		slog.Info("mqtt control plane stopped")
	}
	return nil
}

func (m *MQTT) subscribe(c mqtt.Client) {
	subs := map[string]mqtt.MessageHandler{
		m.cfg.Topics.Animation: m.onAnimation,
		m.cfg.Topics.Command:   m.onCommand,
	}
	for topic, handler := range subs {
		token := c.Subscribe(topic, m.qos(topic), handler)
		if !token.WaitTimeout(5 * time.Second) {
			slog.Error("mqtt subscription timeout", "topic", topic)
			continue
		}
		if err := token.Error(); err != nil {
			slog.Error("mqtt subscription failed", "topic", topic, "error", err)
			continue
		}
		slog.Info("subscribed to control topic", "topic", topic)
	}
}

func (m *MQTT) qos(topic string) byte {
	switch topic {
	case m.cfg.Topics.Animation:
		return m.cfg.QoS["animation"]
	case m.cfg.Topics.Command:
		return m.cfg.QoS["command"]
	default:
		return 0
	}
}

// onAnimation treats the whole payload as a new current animation. Paho
// handlers must not block on slow work, so the upload runs on its own
// goroutine.
func (m *MQTT) onAnimation(_ mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	m.publishStatus(fmt.Sprintf("received:%d", len(payload)))

	go func() {
		res, err := m.svc.Upload(payload, false)
		if err != nil {
			hdr := payload
			if len(hdr) > 16 {
				hdr = hdr[:16]
			}
			slog.Error("mqtt upload rejected", "bytes", len(payload), "error", err)
			m.publishStatus(fmt.Sprintf("error:upload:%v;hdr=%x", err, hdr))
			return
		}
		m.publishStatus(fmt.Sprintf("frames:%d", res.Frames))
		m.publishStatus("playing")
	}()
}

func (m *MQTT) onCommand(_ mqtt.Client, msg mqtt.Message) {
	dispatchCommand(string(msg.Payload()), m.svc, m.publishStatus)
}

// commandTarget is the slice of the service the command topic drives.
type commandTarget interface {
	SetBrightness(v int) error
	Clear() error
	StopPlayback()
}

// dispatchCommand executes one text command and reports the outcome through
// publish. Commands: brightness:<1-100>, clear, stop, ping.
func dispatchCommand(raw string, target commandTarget, publish func(string)) {
	txt := strings.ToLower(strings.TrimSpace(raw))

	switch {
	case strings.HasPrefix(txt, "brightness:"):
		val, err := strconv.Atoi(strings.TrimPrefix(txt, "brightness:"))
		if err != nil {
			publish(fmt.Sprintf("error:brightness:%v", err))
			return
		}
		if err := target.SetBrightness(val); err != nil {
			publish(fmt.Sprintf("error:brightness:%v", err))
			return
		}
		publish(fmt.Sprintf("brightness:%d", val))

	case txt == "clear":
		if err := target.Clear(); err != nil {
			publish(fmt.Sprintf("error:clear:%v", err))
			return
		}
		publish("cleared")

	case txt == "stop":
		target.StopPlayback()
		publish("stopped")

	case txt == "ping":
		publish("pong")

	default:
		publish(fmt.Sprintf("unknown_cmd:%s", txt))
	}
}

// publishStatus sends a human-readable status string to the status topic.
func (m *MQTT) publishStatus(status string) {
	if m.client == nil || !m.client.IsConnected() {
		return
	}
	token := m.client.Publish(m.cfg.Topics.Status, m.cfg.QoS["status"], false, status)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Error("status publish timeout", "status", status)
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("failed to publish status", "status", status, "error", err)
	}
}
