package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 60

// Encode downsamples img to at most maxWidth pixels wide, keeping the aspect
// ratio, and encodes it as JPEG. maxWidth <= 0 keeps the original size.
func Encode(img image.Image, maxWidth, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	src := img.Bounds()
	if src.Empty() {
		return nil, fmt.Errorf("encode frame: empty image")
	}

	out := img
	if maxWidth > 0 && src.Dx() > maxWidth {
		h := src.Dy() * maxWidth / src.Dx()
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
