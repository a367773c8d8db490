package anim

import (
	"bytes"
	"image"
	"testing"
	"time"
)

func solidFrame(w, h int, r, g, b uint8, d time.Duration) Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = r
		img.Pix[i+1] = g
		img.Pix[i+2] = b
		img.Pix[i+3] = 0xFF
	}
	return Frame{Img: img, Duration: d}
}

func TestScalePassThroughAtTargetSize(t *testing.T) {
	a := &Animation{Frames: []Frame{solidFrame(16, 16, 255, 0, 0, 50 * time.Millisecond)}}

	scaled := Scale(a, 16, 16)

	if scaled.Frames[0].Img != a.Frames[0].Img {
		t.Error("frame already at target size should be reused, not copied")
	}
	if !bytes.Equal(scaled.Frames[0].Img.Pix, a.Frames[0].Img.Pix) {
		t.Error("pass-through frame must be byte-identical")
	}
}

func TestScaleNearestNeighbor(t *testing.T) {
	// 2x2 checkerboard: red top-left, blue bottom-right quadrants after 2x.
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	set := func(x, y int, r, g, b uint8) {
		off := img.PixOffset(x, y)
		img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = r, g, b, 0xFF
	}
	set(0, 0, 255, 0, 0)
	set(1, 0, 0, 255, 0)
	set(0, 1, 0, 0, 255)
	set(1, 1, 255, 255, 255)

	a := &Animation{Frames: []Frame{{Img: img, Duration: 80 * time.Millisecond}}}
	scaled := Scale(a, 4, 4)

	w, h := scaled.Bounds()
	if w != 4 || h != 4 {
		t.Fatalf("expected 4x4, got %dx%d", w, h)
	}

	out := scaled.Frames[0].Img
	checks := []struct {
		x, y    int
		r, g, b uint8
	}{
		{0, 0, 255, 0, 0},
		{1, 1, 255, 0, 0},
		{3, 0, 0, 255, 0},
		{0, 3, 0, 0, 255},
		{3, 3, 255, 255, 255},
	}
	for _, c := range checks {
		off := out.PixOffset(c.x, c.y)
		if out.Pix[off] != c.r || out.Pix[off+1] != c.g || out.Pix[off+2] != c.b {
			t.Errorf("pixel (%d,%d): expected (%d,%d,%d), got (%d,%d,%d)",
				c.x, c.y, c.r, c.g, c.b, out.Pix[off], out.Pix[off+1], out.Pix[off+2])
		}
	}

	if scaled.Frames[0].Duration != 80*time.Millisecond {
		t.Error("scaling must preserve frame durations")
	}
}

func TestScaleDoesNotMutateInput(t *testing.T) {
	orig := solidFrame(2, 2, 10, 20, 30, time.Millisecond)
	before := append([]byte(nil), orig.Img.Pix...)

	a := &Animation{Frames: []Frame{orig}}
	Scale(a, 8, 8)

	if !bytes.Equal(orig.Img.Pix, before) {
		t.Error("input animation was mutated by Scale")
	}
}

func TestSplashMatchesPanel(t *testing.T) {
	a := Splash(32, 16)

	if a.Len() == 0 {
		t.Fatal("splash must not be empty")
	}
	w, h := a.Bounds()
	if w != 32 || h != 16 {
		t.Errorf("expected 32x16 splash, got %dx%d", w, h)
	}
	for i, fr := range a.Frames {
		if fr.Duration < time.Millisecond {
			t.Errorf("frame %d below duration floor", i)
		}
	}
}

func TestSplashSurvivesEncodeDecode(t *testing.T) {
	a := Splash(16, 16)

	data, err := EncodeGIF(a)
	if err != nil {
		t.Fatalf("EncodeGIF failed: %v", err)
	}
	decoded, err := DecodeAny(data, Options{})
	if err != nil {
		t.Fatalf("splash bytes did not decode: %v", err)
	}
	if decoded.Len() != a.Len() {
		t.Errorf("expected %d frames, got %d", a.Len(), decoded.Len())
	}
}
