package anim

import (
	"bytes"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"time"
)

// EncodeGIF renders an Animation back into GIF bytes. Used to persist
// generated animations (the boot splash) into a slot; uploads are stored
// verbatim and never pass through here.
func EncodeGIF(a *Animation) ([]byte, error) {
	if a.Len() == 0 {
		return nil, ErrNoFrames
	}

	out := &gif.GIF{
		Image: make([]*image.Paletted, 0, a.Len()),
		Delay: make([]int, 0, a.Len()),
	}
	for _, fr := range a.Frames {
		p := image.NewPaletted(fr.Img.Bounds(), palette.Plan9)
		draw.FloydSteinberg.Draw(p, fr.Img.Bounds(), fr.Img, image.Point{})
		out.Image = append(out.Image, p)
		out.Delay = append(out.Delay, int(fr.Duration/(10*time.Millisecond)))
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, out); err != nil {
		return nil, fmt.Errorf("gif encode: %w", err)
	}
	return buf.Bytes(), nil
}
