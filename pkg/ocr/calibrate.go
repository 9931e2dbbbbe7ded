package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/disintegration/imaging"
)

// Calibration is the outcome of reading a chart's axis-maximum label.
type Calibration struct {
	// Text is the normalized recognizer output.
	Text    string
	AxisMax int
	// Defaulted is set when the label could not be read and AxisMax fell
	// back to 0.
	Defaulted bool
}

// CalibrateAxis opens the chart at path and calibrates it with CalibrateImage.
// Only a chart that cannot be opened or a failed crop cleanup return an error.
func CalibrateAxis(ctx context.Context, path string, crop image.Point, rec Recognizer, timeout time.Duration) (Calibration, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return Calibration{}, fmt.Errorf("open chart image: %w", err)
	}
	return CalibrateImage(ctx, path, img, crop, rec, timeout)
}

// CalibrateImage crops the crop-sized window at the bottom-right corner of
// img, writes it to a temporary PNG, hands the encoded crop to rec and parses
// the result as the axis maximum. name is only used in log lines.
//
// Recognition problems never fail the call: they yield AxisMax 0 with
// Defaulted set. The temporary crop is removed on every return path; if that
// removal fails the returned error wraps ErrTempCleanup.
func CalibrateImage(ctx context.Context, name string, img image.Image, crop image.Point, rec Recognizer, timeout time.Duration) (cal Calibration, err error) {
	label := imaging.Crop(img, bottomRight(img.Bounds(), crop))

	tmpFile, err := os.CreateTemp("", "axis-*.png")
	if err != nil {
		return Calibration{}, fmt.Errorf("create axis crop: %w", err)
	}
	tmp := tmpFile.Name()
	_ = tmpFile.Close()
	defer func() {
		if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			err = errors.Join(err, fmt.Errorf("%w %s: %v", ErrTempCleanup, tmp, rmErr))
		}
	}()

	defaulted := Calibration{Defaulted: true}
	if err := imaging.Save(label, tmp); err != nil {
		log.Printf("OCR axis %s: save crop failed: %v", name, err)
		return defaulted, nil
	}
	data, err := os.ReadFile(tmp)
	if err != nil {
		log.Printf("OCR axis %s: read crop failed: %v", name, err)
		return defaulted, nil
	}

	text, err := recognizeWithTimeout(ctx, rec, data, timeout)
	if err != nil {
		log.Printf("OCR axis %s: recognition failed: %v", name, err)
		return defaulted, nil
	}
	text = normalizeOCRText(text)
	n, ok := ParseAxisMax(text)
	if !ok {
		log.Printf("OCR axis %s: unreadable label %q, axis max defaults to 0", name, snippet(text, 40))
		return Calibration{Text: text, Defaulted: true}, nil
	}
	return Calibration{Text: text, AxisMax: n}, nil
}

// bottomRight returns the size-sized rectangle anchored at the bottom-right
// corner of b, clipped to b.
func bottomRight(b image.Rectangle, size image.Point) image.Rectangle {
	r := image.Rect(b.Max.X-size.X, b.Max.Y-size.Y, b.Max.X, b.Max.Y)
	return r.Intersect(b)
}

// recognizeWithTimeout bounds a recognizer call. A recognizer that ignores
// its context is abandoned once the deadline passes.
func recognizeWithTimeout(ctx context.Context, rec Recognizer, img []byte, timeout time.Duration) (string, error) {
	if rec == nil {
		return "", errors.New("no recognizer configured")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("recognizer panic: %v", r)}
			}
		}()
		text, err := rec.Recognize(ctx, img)
		ch <- result{text: text, err: err}
	}()
	select {
	case r := <-ch:
		return r.text, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrRecognitionTimeout
		}
		return "", ctx.Err()
	}
}
