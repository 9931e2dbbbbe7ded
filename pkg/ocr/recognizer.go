package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Recognizer turns a small encoded raster image into best-effort text.
type Recognizer interface {
	Recognize(ctx context.Context, img []byte) (string, error)
}

// RecognizerFunc adapts a plain function to the Recognizer interface.
type RecognizerFunc func(ctx context.Context, img []byte) (string, error)

// Recognize calls f.
func (f RecognizerFunc) Recognize(ctx context.Context, img []byte) (string, error) {
	return f(ctx, img)
}

// DigitChars is the whitelist used for axis labels.
const DigitChars = "0123456789"

// Tesseract recognizes axis labels with a fresh gosseract client per call, so
// one value can be shared by concurrent workers.
type Tesseract struct {
	Language    string
	Whitelist   string
	PageSegMode gosseract.PageSegMode
	// Upscale enlarges the label by this factor before recognition (0/1 = off).
	Upscale int
	// Sharpen is the imaging.Sharpen sigma (0 = off).
	Sharpen float64
	// Contrast is the imaging.AdjustContrast percentage (0 = off).
	Contrast float64
	// BinarizeThreshold converts the label to black/white last (0 = off).
	BinarizeThreshold uint8
}

// Enhanced returns a copy tuned for faint or small labels, used when
// re-reading labels that defaulted on the first pass.
func (t Tesseract) Enhanced() *Tesseract {
	if t.Upscale < 3 {
		t.Upscale = 3
	}
	t.Sharpen = 2.0
	t.Contrast = 30
	return &t
}

// NewTesseract returns a recognizer for single-line numeric labels
// (PSM 7, digits only).
func NewTesseract() *Tesseract {
	return &Tesseract{
		Language:    "eng",
		Whitelist:   DigitChars,
		PageSegMode: gosseract.PSM_SINGLE_LINE,
	}
}

// Recognize runs Tesseract over img.
func (t *Tesseract) Recognize(ctx context.Context, img []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := prepareLabel(img, labelPrep{
		Upscale:   t.Upscale,
		Sharpen:   t.Sharpen,
		Contrast:  t.Contrast,
		Threshold: t.BinarizeThreshold,
	})
	if err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(t.Language); err != nil {
		return "", fmt.Errorf("failed to set OCR language: %w", err)
	}
	if t.Whitelist != "" {
		if err := client.SetWhitelist(t.Whitelist); err != nil {
			return "", fmt.Errorf("failed to set whitelist: %w", err)
		}
	}
	if err := client.SetPageSegMode(t.PageSegMode); err != nil {
		return "", fmt.Errorf("failed to set PSM: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return normalizeOCRText(text), nil
}
