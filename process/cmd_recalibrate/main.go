package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"shepherd/pkg/chart"
	"shepherd/pkg/ocr"
	"shepherd/process/analyser"
	"shepherd/process/recalibrate"
	"shepherd/process/store"
)

func main() {
	runID := flag.String("run", "", "stored run id to retry")
	xmlPath := flag.String("xml", "", "report XML (default: path stored with the run)")
	tmplPath := flag.String("template", "", "chart template YAML")
	upscale := flag.Int("ocr-upscale", 4, "enlarge axis labels by this factor")
	threshold := flag.Uint("binarize", 0, "binarize labels at this gray level (0 = off)")
	timeout := flag.Duration("ocr-timeout", analyser.DefaultOCRTimeout, "OCR timeout")
	dry := flag.Bool("dry-run", true, "dry-run: don't write to DB")
	flag.Parse()

	_ = godotenv.Load()
	if *runID == "" {
		fmt.Fprintln(os.Stderr, "-run is required")
		os.Exit(2)
	}
	if os.Getenv("DB_DSN") == "" {
		fmt.Fprintln(os.Stderr, "DB_DSN not set; export and retry")
		os.Exit(2)
	}
	gdb, err := store.Open(os.Getenv("DB_DSN"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	tmpl, err := chart.LoadTemplate(*tmplPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load template: %v\n", err)
		os.Exit(2)
	}

	base := ocr.NewTesseract()
	base.Upscale = *upscale
	base.BinarizeThreshold = uint8(*threshold)
	a := analyser.New(tmpl, base.Enhanced())
	a.OCRTimeout = *timeout

	res, err := recalibrate.Run(context.Background(), store.New(gdb), *runID, *xmlPath, a, *dry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("retried=%d recovered=%d dry_run=%v\n", res.Retried, res.Recovered, *dry)
}
