package sink

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	opc "github.com/kellydunn/go-opc"
)

// OPC drives a matrix behind an Open Pixel Control server (fadecandy).
// Brightness is applied in software because the OPC wire protocol carries
// only raw pixel values.
type OPC struct {
	client     *opc.Client
	channel    byte
	cols, rows int
	serpentine bool

	mu         sync.Mutex
	brightness int
	buf        []byte
}

// NewOPC connects to an OPC server and returns a sink for a cols x rows
// panel on the given channel.
func NewOPC(address string, channel byte, cols, rows int, serpentine bool) (*OPC, error) {
	client := opc.NewClient()
	if err := client.Connect("tcp", address); err != nil {
		return nil, fmt.Errorf("opc connect to %s failed: %w", address, err)
	}

	slog.Info("opc sink connected",
		"address", address,
		"channel", channel,
		"pixels", cols*rows,
	)

	return &OPC{
		client:     client,
		channel:    channel,
		cols:       cols,
		rows:       rows,
		serpentine: serpentine,
		brightness: 100,
		buf:        make([]byte, cols*rows*3),
	}, nil
}

func (o *OPC) SetFrame(img *image.RGBA) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	packRGB(o.buf, img, o.cols, o.rows, o.serpentine, o.brightness)
	return o.send()
}

func (o *OPC) SetBrightness(percent int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.brightness = percent
	return nil
}

func (o *OPC) Clear() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := range o.buf {
		o.buf[i] = 0
	}
	return o.send()
}

func (o *OPC) Close() error {
	// go-opc keeps the TCP connection internal; clearing on the way out
	// leaves the panel dark.
	return o.Clear()
}

// send flushes the packed buffer as one OPC message.
func (o *OPC) send() error {
	n := o.cols * o.rows
	m := opc.NewMessage(o.channel)
	m.SetLength(uint16(n * 3))
	for i := 0; i < n; i++ {
		m.SetPixelColor(i, o.buf[i*3], o.buf[i*3+1], o.buf[i*3+2])
	}
	if err := o.client.Send(m); err != nil {
		return fmt.Errorf("opc send failed: %w", err)
	}
	return nil
}
