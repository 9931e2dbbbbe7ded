package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"shepherd/pkg/chart"
	"shepherd/pkg/ocr"
	"shepherd/process/analyser"
	"shepherd/process/exceedance"
	"shepherd/process/store"
)

func main() {
	xmlPath := flag.String("xml", "", "report XML to analyse")
	modeFlag := flag.String("mode", "overpressure", "risk | overpressure | impulse | thermal")
	out := flag.String("out", "", "output path, .xlsx for a workbook (default <xml>_<mode>.csv beside the report)")
	workers := flag.Int("workers", 0, "Worker pool size (default NumCPU)")
	tmplPath := flag.String("template", "", "chart template YAML (default built-in layout)")
	ocrTimeout := flag.Duration("ocr-timeout", analyser.DefaultOCRTimeout, "timeout for one axis label recognition")
	upscale := flag.Int("ocr-upscale", 0, "enlarge axis labels by this factor before OCR")
	watch := flag.Bool("watch", false, "re-run whenever the report directory changes")
	persist := flag.Bool("persist", false, "store runs in the database at DB_DSN")
	calCol := flag.Bool("calibration-column", false, "append axis calibration status and axis max columns")
	verbose := flag.Bool("verbose", false, "log progress for every building")
	flag.Parse()

	_ = godotenv.Load()

	if *xmlPath == "" {
		fmt.Fprintln(os.Stderr, "-xml is required")
		flag.Usage()
		os.Exit(2)
	}
	mode, err := chart.ParseMode(*modeFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	tmpl, err := chart.LoadTemplate(*tmplPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load template: %v\n", err)
		os.Exit(2)
	}

	rec := ocr.NewTesseract()
	rec.Upscale = *upscale
	opts := exceedance.Options{
		DocumentPath:      *xmlPath,
		Mode:              mode,
		Output:            *out,
		Template:          tmpl,
		Recognizer:        rec,
		Workers:           *workers,
		OCRTimeout:        *ocrTimeout,
		CalibrationColumn: *calCol,
		Verbose:           *verbose,
		Metrics:           analyser.NewMetrics(),
	}
	if *persist {
		gdb, err := store.Open(os.Getenv("DB_DSN"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
		if err := store.Migrate(gdb); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		}
		opts.Store = store.New(gdb)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *watch {
		err = exceedance.Watch(ctx, opts, 300*time.Millisecond)
	} else {
		_, err = exceedance.Run(ctx, opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}
}
