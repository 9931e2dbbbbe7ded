package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// binarize performs a simple global threshold on a grayscale image.
func binarize(img image.Image, threshold uint8) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bb, _ := img.At(x, y).RGBA()
			gray := uint8((r + g + bb) / 3 >> 8)
			var v uint8 = 255
			if gray <= threshold {
				v = 0
			}
			out.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return out
}

// labelPrep lists the optional clean-up steps applied to an axis label
// before recognition. The zero value leaves the label untouched.
type labelPrep struct {
	Upscale   int
	Sharpen   float64
	Contrast  float64
	Threshold uint8
}

func (p labelPrep) enabled() bool {
	return p.Upscale > 1 || p.Sharpen > 0 || p.Contrast != 0 || p.Threshold > 0
}

// prepareLabel applies p to an encoded crop and re-encodes it as PNG. With no
// steps enabled the input is returned as is.
func prepareLabel(data []byte, p labelPrep) ([]byte, error) {
	if !p.enabled() {
		return data, nil
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode label: %w", err)
	}
	if p.Upscale > 1 {
		b := img.Bounds()
		img = imaging.Resize(img, b.Dx()*p.Upscale, b.Dy()*p.Upscale, imaging.Lanczos)
	}
	if p.Sharpen > 0 {
		img = imaging.Sharpen(img, p.Sharpen)
	}
	if p.Contrast != 0 {
		img = imaging.AdjustContrast(img, p.Contrast)
	}
	if p.Threshold > 0 {
		img = binarize(imaging.Grayscale(img), p.Threshold)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode label: %w", err)
	}
	return buf.Bytes(), nil
}
