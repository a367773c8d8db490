package anim

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"time"
)

const (
	headerGIF87a = "GIF87a"
	headerGIF89a = "GIF89a"

	// fallbackDelay is used when a frame carries no usable delay.
	fallbackDelay = 100 * time.Millisecond
)

func hasGIFHeader(data []byte) bool {
	return bytes.HasPrefix(data, []byte(headerGIF87a)) || bytes.HasPrefix(data, []byte(headerGIF89a))
}

// Decode turns a GIF payload into an Animation. It is a pure function of its
// input: decoding the same bytes twice yields structurally identical output.
func Decode(data []byte, opts Options) (*Animation, error) {
	if !hasGIFHeader(data) {
		return nil, ErrNotGIF
	}

	// Structural pass first so corrupt trailing data fails before any frame
	// is materialized.
	if _, err := gif.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("gif header: %w", err)
	}

	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gif decode: %w", err)
	}

	if len(g.Image) == 0 {
		return nil, ErrNoFrames
	}
	if opts.MaxFrames > 0 && len(g.Image) > opts.MaxFrames {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyFrames, len(g.Image), opts.MaxFrames)
	}

	// Canvas dimensions come from the logical screen descriptor; some
	// encoders leave it zero, fall back to the first frame.
	w, h := g.Config.Width, g.Config.Height
	if w == 0 || h == 0 {
		b := g.Image[0].Bounds()
		w, h = b.Max.X, b.Max.Y
	}

	// GIF frames are deltas against a persistent canvas. Composite each one
	// honoring its disposal method and copy the result out so output frames
	// never alias the working canvas.
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	var prev *image.RGBA

	frames := make([]Frame, 0, len(g.Image))
	for i, src := range g.Image {
		if g.Disposal[i] == gif.DisposalPrevious {
			prev = cloneRGBA(canvas)
		}

		draw.Draw(canvas, src.Bounds(), src, src.Bounds().Min, draw.Over)

		out := cloneRGBA(canvas)
		frames = append(frames, Frame{
			Img:      out,
			Duration: frameDelay(g.Delay[i]),
		})

		switch g.Disposal[i] {
		case gif.DisposalBackground:
			draw.Draw(canvas, src.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			if prev != nil {
				canvas = prev
				prev = nil
			}
		}
	}

	return &Animation{Frames: frames}, nil
}

// frameDelay converts a GIF delay (hundredths of a second) to a hold
// duration, coercing unusable values to the fallback and flooring at 1ms.
func frameDelay(delay int) time.Duration {
	d := time.Duration(delay) * 10 * time.Millisecond
	if d <= 0 {
		d = fallbackDelay
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

// DecodeAny tries an ordered chain of decode strategies: the payload as-is,
// a base64-unwrapped copy, and a salvaged copy trimmed to the GIF header and
// trailer. The error from the last strategy attempted is surfaced when all
// of them fail.
func DecodeAny(data []byte, opts Options) (*Animation, error) {
	a, lastErr := Decode(data, opts)
	if lastErr == nil {
		return a, nil
	}

	if unwrapped, ok := maybeBase64(data); ok {
		a, err := Decode(unwrapped, opts)
		if err == nil {
			return a, nil
		}
		lastErr = err
	}

	if salvaged, ok := salvage(data); ok {
		a, err := Decode(salvaged, opts)
		if err == nil {
			return a, nil
		}
		lastErr = err
	}

	return nil, lastErr
}

// maybeBase64 unwraps payloads that were published as base64 text instead of
// raw bytes. Only attempted when the raw payload has no GIF header.
func maybeBase64(data []byte) ([]byte, bool) {
	if hasGIFHeader(data) {
		return nil, false
	}
	trimmed := bytes.TrimSpace(data)
	decoded, err := base64.StdEncoding.DecodeString(string(trimmed))
	if err != nil {
		return nil, false
	}
	return decoded, hasGIFHeader(decoded)
}

// salvage trims garbage around an embedded GIF: everything before the first
// header and after the last trailer byte (0x3B) is dropped.
func salvage(data []byte) ([]byte, bool) {
	start := bytes.Index(data, []byte(headerGIF87a))
	if alt := bytes.Index(data, []byte(headerGIF89a)); alt != -1 && (start == -1 || alt < start) {
		start = alt
	}
	if start == -1 {
		return nil, false
	}
	end := bytes.LastIndexByte(data, 0x3B)
	if end != -1 && end >= start {
		return data[start : end+1], true
	}
	return data[start:], true
}
