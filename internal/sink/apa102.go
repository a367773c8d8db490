package sink

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/apa102"
	"periph.io/x/host/v3"
)

// APA102 drives an APA102 LED chain folded into a matrix over SPI.
// Brightness is applied in software so the chain's global PWM stays at full
// depth.
type APA102 struct {
	port       spi.PortCloser
	dev        *apa102.Dev
	cols, rows int
	serpentine bool

	mu         sync.Mutex
	brightness int
	buf        []byte
}

// NewAPA102 initializes the host, opens the SPI port and configures the
// chain for a cols x rows panel.
func NewAPA102(portName string, cols, rows int, serpentine bool) (*APA102, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init failed: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open spi port %s: %w", portName, err)
	}

	opts := apa102.DefaultOpts
	opts.NumPixels = cols * rows
	dev, err := apa102.New(port, &opts)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("apa102 init failed: %w", err)
	}

	slog.Info("apa102 sink ready",
		"spi_port", portName,
		"pixels", cols*rows,
		"serpentine", serpentine,
	)

	return &APA102{
		port:       port,
		dev:        dev,
		cols:       cols,
		rows:       rows,
		serpentine: serpentine,
		brightness: 100,
		buf:        make([]byte, cols*rows*3),
	}, nil
}

func (a *APA102) SetFrame(img *image.RGBA) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	packRGB(a.buf, img, a.cols, a.rows, a.serpentine, a.brightness)
	if _, err := a.dev.Write(a.buf); err != nil {
		return fmt.Errorf("apa102 write failed: %w", err)
	}
	return nil
}

func (a *APA102) SetBrightness(percent int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.brightness = percent
	return nil
}

func (a *APA102) Clear() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.buf {
		a.buf[i] = 0
	}
	if _, err := a.dev.Write(a.buf); err != nil {
		return fmt.Errorf("apa102 clear failed: %w", err)
	}
	return nil
}

func (a *APA102) Close() error {
	if err := a.dev.Halt(); err != nil {
		a.port.Close()
		return fmt.Errorf("apa102 halt failed: %w", err)
	}
	return a.port.Close()
}
