// Package sink abstracts the physical pixel matrix. Every implementation is
// safe to drive headless: when no hardware is attached the Null sink keeps
// the playback engine's timing and transitions identical.
package sink

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/Lukeskaiwalker/led-matrix-gif-player/internal/config"
)

// Sink is the display capability consumed by the playback engine and the
// control planes.
type Sink interface {
	// SetFrame pushes one full frame. The image is already sized to the
	// panel.
	SetFrame(img *image.RGBA) error
	// SetBrightness sets panel brightness in percent. Callers validate the
	// 1..100 range before the value reaches the sink.
	SetBrightness(percent int) error
	// Clear blanks the panel.
	Clear() error
	// Close releases hardware resources.
	Close() error
}

// New builds the sink selected by the display configuration. An unknown or
// empty driver degrades to the Null sink so the service keeps running
// headless.
func New(cfg config.DisplayConfig, cols, rows int) (Sink, error) {
	switch cfg.Driver {
	case "opc":
		return NewOPC(cfg.OPCAddress, byte(cfg.OPCChannel), cols, rows, cfg.Serpentine)
	case "apa102":
		return NewAPA102(cfg.SPIPort, cols, rows, cfg.Serpentine)
	case "", "none":
		slog.Info("no display driver configured, rendering to null sink")
		return NewNull(), nil
	default:
		return nil, fmt.Errorf("unknown display driver %q", cfg.Driver)
	}
}

// Null is a no-op sink for headless operation and tests.
type Null struct{}

// NewNull returns a sink that accepts everything and does nothing.
func NewNull() *Null {
	return &Null{}
}

func (*Null) SetFrame(*image.RGBA) error { return nil }

func (*Null) SetBrightness(int) error { return nil }

func (*Null) Clear() error { return nil }

func (*Null) Close() error { return nil }
