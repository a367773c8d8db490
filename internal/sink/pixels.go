package sink

import "image"

// packRGB flattens a frame into a w*h*3 byte buffer in chain order, applying
// software brightness. Serpentine wiring reverses every odd row, matching
// LED chains folded back and forth across the panel.
func packRGB(dst []byte, img *image.RGBA, cols, rows int, serpentine bool, brightness int) {
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			sx := x
			if serpentine && y%2 == 1 {
				sx = cols - 1 - x
			}
			src := img.PixOffset(sx, y)
			out := (y*cols + x) * 3
			dst[out+0] = scale(img.Pix[src+0], brightness)
			dst[out+1] = scale(img.Pix[src+1], brightness)
			dst[out+2] = scale(img.Pix[src+2], brightness)
		}
	}
}

func scale(v uint8, brightness int) uint8 {
	return uint8(int(v) * brightness / 100)
}
