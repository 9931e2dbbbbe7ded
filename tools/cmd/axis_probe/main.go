package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/disintegration/imaging"

	"shepherd/pkg/chart"
	"shepherd/pkg/ocr"
)

// axis_probe digitizes a single chart image and prints what was read, for
// checking a template against a new chart layout.
func main() {
	modeFlag := flag.String("mode", "overpressure", "overpressure | impulse | thermal")
	tmplPath := flag.String("template", "", "chart template YAML")
	upscale := flag.Int("ocr-upscale", 0, "enlarge the axis label before OCR")
	timeout := flag.Duration("ocr-timeout", 10*time.Second, "OCR timeout")
	flag.Parse()

	p := "tmp/chart.png"
	if flag.NArg() > 0 {
		p = flag.Arg(0)
	}
	mode, err := chart.ParseMode(*modeFlag)
	if err != nil || !mode.IsExceedance() {
		log.Fatalf("mode must be an exceedance mode, got %q", *modeFlag)
	}
	tmpl, err := chart.LoadTemplate(*tmplPath)
	if err != nil {
		log.Fatalf("load template: %v", err)
	}

	img, err := imaging.Open(p)
	if err != nil {
		log.Fatalf("open %s: %v", p, err)
	}
	fmt.Printf("image %s %dx%d\n", p, img.Bounds().Dx(), img.Bounds().Dy())

	rec := ocr.NewTesseract()
	rec.Upscale = *upscale
	cal, err := ocr.CalibrateImage(context.Background(), p, img, tmpl.AxisCrop, rec, *timeout)
	if err != nil {
		log.Fatalf("calibrate: %v", err)
	}
	fmt.Printf("axis text=%q max=%d defaulted=%v\n", cal.Text, cal.AxisMax, cal.Defaulted)

	m := chart.NewPixelMatrix(img)
	levels := tmpl.ProbabilityLevels(mode)
	raw := chart.Digitize(m, levels, float64(cal.AxisMax), tmpl.DarkThreshold)
	corrected := chart.EnforceMonotonic(raw)
	for i, l := range levels {
		col := chart.LocateCurve(m, l.Row, l.XMin, l.XMax, tmpl.DarkThreshold)
		fmt.Printf("%-5s row=%3d col=%3d raw=%.4g value=%.4g\n", l.Label, l.Row, col, raw[i], corrected[i])
	}
	if cal.Defaulted {
		os.Exit(1)
	}
}
