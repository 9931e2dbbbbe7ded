package chart

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	// Chart exports occasionally arrive as WebP; BMP, TIFF, PNG, JPEG and GIF
	// are registered through imaging.
	_ "golang.org/x/image/webp"
)

// RGB is one decoded pixel.
type RGB struct {
	R, G, B uint8
}

// PixelMatrix is a full-resolution row-major grid of the chart's pixels.
type PixelMatrix struct {
	Width  int
	Height int
	pix    []RGB
}

// LoadPixelMatrix decodes the image at path into a PixelMatrix. The image is
// neither resized nor re-oriented.
func LoadPixelMatrix(path string) (*PixelMatrix, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chart image: %w", err)
	}
	return NewPixelMatrix(img), nil
}

// NewPixelMatrix copies every pixel of img as non-premultiplied 8-bit RGB.
func NewPixelMatrix(img image.Image) *PixelMatrix {
	b := img.Bounds()
	m := &PixelMatrix{
		Width:  b.Dx(),
		Height: b.Dy(),
		pix:    make([]RGB, b.Dx()*b.Dy()),
	}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			m.pix[i] = RGB{R: c.R, G: c.G, B: c.B}
			i++
		}
	}
	return m
}

// At returns the pixel at row, col. Callers must stay in bounds.
func (m *PixelMatrix) At(row, col int) RGB {
	return m.pix[row*m.Width+col]
}
