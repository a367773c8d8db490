// Package anim decodes animated GIF payloads into fixed-size RGB frame
// sequences and resizes them to the physical panel geometry.
package anim

import (
	"errors"
	"image"
	"time"
)

// Decode errors. All of them are client-attributable: a bad payload never
// crashes the process, the caller reports the reason and keeps going.
var (
	ErrNotGIF        = errors.New("payload does not start with a GIF header")
	ErrTooManyFrames = errors.New("animation exceeds the configured frame limit")
	ErrNoFrames      = errors.New("animation contains no frames")
)

// Frame is one composited RGB frame and how long it is held on the panel.
type Frame struct {
	Img      *image.RGBA
	Duration time.Duration
}

// Animation is an immutable, non-empty sequence of uniformly sized frames.
type Animation struct {
	Frames []Frame
}

// Options bounds what Decode accepts.
type Options struct {
	// MaxFrames aborts decoding once the container reports more frames.
	// Zero means unlimited.
	MaxFrames int
}

// Bounds returns the dimensions of the animation's frames.
func (a *Animation) Bounds() (w, h int) {
	if len(a.Frames) == 0 {
		return 0, 0
	}
	b := a.Frames[0].Img.Bounds()
	return b.Dx(), b.Dy()
}

// Len returns the frame count.
func (a *Animation) Len() int {
	return len(a.Frames)
}
