package anim

import (
	"image"
	"time"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	splashFrames = 24
	splashDelay  = 80 * time.Millisecond
)

// Splash generates a hue sweep sized to the panel. It seeds the display at
// startup when neither the current nor the default slot holds an animation,
// so an attached panel shows life before the first upload.
func Splash(w, h int) *Animation {
	frames := make([]Frame, 0, splashFrames)
	for i := 0; i < splashFrames; i++ {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		base := float64(i) / splashFrames * 360
		for y := 0; y < h; y++ {
			hue := base + float64(y)/float64(h)*120
			for hue >= 360 {
				hue -= 360
			}
			c := colorful.Hsv(hue, 1, 0.6)
			r, g, b := c.RGB255()
			for x := 0; x < w; x++ {
				off := img.PixOffset(x, y)
				img.Pix[off+0] = r
				img.Pix[off+1] = g
				img.Pix[off+2] = b
				img.Pix[off+3] = 0xFF
			}
		}
		frames = append(frames, Frame{Img: img, Duration: splashDelay})
	}
	return &Animation{Frames: frames}
}
