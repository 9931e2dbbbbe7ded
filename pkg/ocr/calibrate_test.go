package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var axisCrop = image.Pt(44, 42)

// writeChart saves a white 700x320 chart whose bottom-right pixel is red.
func writeChart(t *testing.T) string {
	t.Helper()
	img := imaging.New(700, 320, color.NRGBA{255, 255, 255, 255})
	img.Set(699, 319, color.NRGBA{255, 0, 0, 255})
	path := filepath.Join(t.TempDir(), "chart.png")
	require.NoError(t, imaging.Save(img, path))
	return path
}

// isolateTemp points os.CreateTemp at a fresh directory and returns it.
func isolateTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)
	return dir
}

func assertNoCrops(t *testing.T, dir string) {
	t.Helper()
	left, err := filepath.Glob(filepath.Join(dir, "axis-*.png"))
	require.NoError(t, err)
	assert.Empty(t, left, "temporary crops leaked")
}

func fixed(text string, err error) Recognizer {
	return RecognizerFunc(func(context.Context, []byte) (string, error) { return text, err })
}

func TestCalibrateAxisReadsLabel(t *testing.T) {
	tmp := isolateTemp(t)
	chart := writeChart(t)

	var seen image.Image
	rec := RecognizerFunc(func(_ context.Context, data []byte) (string, error) {
		img, err := imaging.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		seen = img
		return "150\n", nil
	})
	cal, err := CalibrateAxis(context.Background(), chart, axisCrop, rec, time.Second)
	require.NoError(t, err)
	assert.Equal(t, Calibration{Text: "150", AxisMax: 150}, cal)

	require.NotNil(t, seen)
	assert.Equal(t, 44, seen.Bounds().Dx())
	assert.Equal(t, 42, seen.Bounds().Dy())
	r, g, b, _ := seen.At(43, 41).RGBA()
	assert.Equal(t, []uint32{0xffff, 0, 0}, []uint32{r, g, b}, "crop must be anchored bottom-right")
	assertNoCrops(t, tmp)
}

func TestCalibrateAxisDefaultsToZero(t *testing.T) {
	cases := map[string]Recognizer{
		"garbled": fixed("abc", nil),
		"empty":   fixed("", nil),
		"error":   fixed("", errors.New("tesseract exploded")),
		"panic": RecognizerFunc(func(context.Context, []byte) (string, error) {
			panic("boom")
		}),
		"nil": nil,
	}
	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			tmp := isolateTemp(t)
			cal, err := CalibrateAxis(context.Background(), writeChart(t), axisCrop, rec, time.Second)
			require.NoError(t, err)
			assert.Equal(t, 0, cal.AxisMax)
			assert.True(t, cal.Defaulted)
			assertNoCrops(t, tmp)
		})
	}
}

func TestCalibrateAxisTimeout(t *testing.T) {
	tmp := isolateTemp(t)
	release := make(chan struct{})
	defer close(release)
	hang := RecognizerFunc(func(context.Context, []byte) (string, error) {
		<-release
		return "999", nil
	})
	start := time.Now()
	cal, err := CalibrateAxis(context.Background(), writeChart(t), axisCrop, hang, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 0, cal.AxisMax)
	assert.True(t, cal.Defaulted)
	assertNoCrops(t, tmp)
}

func TestCalibrateAxisCleanupFailureIsFatal(t *testing.T) {
	tmp := isolateTemp(t)
	// Swap the crop for a non-empty directory so it cannot be removed.
	rec := RecognizerFunc(func(context.Context, []byte) (string, error) {
		crops, err := filepath.Glob(filepath.Join(tmp, "axis-*.png"))
		require.NoError(t, err)
		require.Len(t, crops, 1)
		require.NoError(t, os.Remove(crops[0]))
		require.NoError(t, os.MkdirAll(filepath.Join(crops[0], "pinned"), 0o755))
		return "150", nil
	})
	_, err := CalibrateAxis(context.Background(), writeChart(t), axisCrop, rec, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTempCleanup)
}

func TestCalibrateAxisMissingImage(t *testing.T) {
	tmp := isolateTemp(t)
	_, err := CalibrateAxis(context.Background(), filepath.Join(t.TempDir(), "nope.png"), axisCrop, fixed("1", nil), time.Second)
	assert.Error(t, err)
	assertNoCrops(t, tmp)
}

func TestBottomRightClipsSmallImages(t *testing.T) {
	r := bottomRight(image.Rect(0, 0, 30, 20), axisCrop)
	assert.Equal(t, image.Rect(0, 0, 30, 20), r)
	r = bottomRight(image.Rect(0, 0, 700, 320), axisCrop)
	assert.Equal(t, image.Rect(656, 278, 700, 320), r)
}

func TestPrepareLabel(t *testing.T) {
	img := imaging.New(4, 4, color.NRGBA{200, 200, 200, 255})
	img.Set(3, 3, color.NRGBA{40, 40, 40, 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))

	same, err := prepareLabel(buf.Bytes(), labelPrep{})
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), same)

	out, err := prepareLabel(buf.Bytes(), labelPrep{Upscale: 3, Threshold: 128})
	require.NoError(t, err)
	dec, err := imaging.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 12, dec.Bounds().Dx())
	r, _, _, _ := dec.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}

func TestEnhancedKeepsSettings(t *testing.T) {
	base := NewTesseract()
	base.Upscale = 4
	e := base.Enhanced()
	assert.Equal(t, 4, e.Upscale)
	assert.Equal(t, 2.0, e.Sharpen)
	assert.Equal(t, base.Whitelist, e.Whitelist)
	assert.Zero(t, base.Sharpen, "receiver must not change")

	e = NewTesseract().Enhanced()
	assert.Equal(t, 3, e.Upscale)
	assert.True(t, labelPrep{Contrast: -5}.enabled())
}

func TestNewTesseractReadsOneLineOfDigits(t *testing.T) {
	tess := NewTesseract()
	assert.Equal(t, gosseract.PSM_SINGLE_LINE, tess.PageSegMode)
	assert.Equal(t, DigitChars, tess.Whitelist)
	assert.Equal(t, gosseract.PSM_SINGLE_LINE, tess.Enhanced().PageSegMode)
}
