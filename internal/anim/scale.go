package anim

import (
	"image"

	"golang.org/x/image/draw"
)

// Scale resizes every frame to w by h using nearest-neighbor sampling, which
// preserves hard pixel edges on an LED grid. Frames already at the target
// size are passed through unchanged. The input animation is not mutated.
func Scale(a *Animation, w, h int) *Animation {
	target := image.Rect(0, 0, w, h)

	frames := make([]Frame, len(a.Frames))
	for i, fr := range a.Frames {
		if fr.Img.Bounds() == target {
			frames[i] = fr
			continue
		}
		dst := image.NewRGBA(target)
		draw.NearestNeighbor.Scale(dst, target, fr.Img, fr.Img.Bounds(), draw.Src, nil)
		frames[i] = Frame{Img: dst, Duration: fr.Duration}
	}

	return &Animation{Frames: frames}
}
