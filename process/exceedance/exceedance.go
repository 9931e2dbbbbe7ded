// Package exceedance drives one analysis of a report document from the
// command line: load, digitize, export and optionally persist, and in watch
// mode repeat whenever the document changes.
package exceedance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"shepherd/pkg/chart"
	"shepherd/pkg/document"
	"shepherd/pkg/ocr"
	"shepherd/process/analyser"
	"shepherd/process/export"
	"shepherd/process/store"
)

// Options configure a run.
type Options struct {
	DocumentPath string
	Mode         chart.Mode
	// Output is the CSV path; empty derives it from the document name.
	Output            string
	Template          chart.Template
	Recognizer        ocr.Recognizer
	Workers           int
	OCRTimeout        time.Duration
	CalibrationColumn bool
	Verbose           bool
	// Store, when set, records every run.
	Store   *store.Store
	Metrics *analyser.Metrics
	Clock   clockwork.Clock
}

// OutputPath is where a run writes its export. A .xlsx path gives a workbook.
func (o Options) OutputPath() string {
	if o.Output != "" {
		return o.Output
	}
	base := strings.TrimSuffix(filepath.Base(o.DocumentPath), filepath.Ext(o.DocumentPath))
	return filepath.Join(filepath.Dir(o.DocumentPath), fmt.Sprintf("%s_%s.csv", base, o.Mode.Key()))
}

func (o Options) analyser() *analyser.Analyser {
	a := analyser.New(o.Template, o.Recognizer)
	if o.Workers > 0 {
		a.Workers = o.Workers
	}
	if o.OCRTimeout > 0 {
		a.OCRTimeout = o.OCRTimeout
	}
	a.Metrics = o.Metrics
	if !o.Verbose {
		a.Progress = quietProgress()
	}
	return a
}

// quietProgress logs every tenth of the run instead of every building.
func quietProgress() analyser.ProgressSink {
	last := -1
	return analyser.ProgressFunc(func(p analyser.Progress) {
		step := int(p.Percent()) / 10
		if step != last || p.Processed == p.Total {
			last = step
			analyser.LogProgress(p)
		}
	})
}

// Run analyses the document once and writes the CSV.
func Run(ctx context.Context, opts Options) (analyser.ResultTable, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if !opts.Mode.Valid() {
		return analyser.ResultTable{}, fmt.Errorf("%w: %d", chart.ErrUnknownMode, int(opts.Mode))
	}
	doc, err := document.Load(opts.DocumentPath)
	if err != nil {
		return analyser.ResultTable{}, err
	}
	sess, err := analyser.NewSession(opts.Mode, opts.Template, opts.Clock)
	if err != nil {
		return analyser.ResultTable{}, err
	}
	log.Printf("Analysing %s (%s, %d buildings, run %s)", opts.DocumentPath, opts.Mode, len(doc.Buildings), sess.ID)

	if opts.Store != nil {
		if err := opts.Store.StartRun(ctx, sess, opts.DocumentPath, nil, opts.Clock.Now()); err != nil {
			log.Printf("persist warning: start run %s: %v", sess.ID, err)
		}
	}

	table, runErr := opts.analyser().Run(ctx, doc, sess)
	if runErr != nil {
		if opts.Store != nil {
			if err := opts.Store.FailRun(ctx, sess.ID, runErr, opts.Clock.Now()); err != nil {
				log.Printf("persist warning: fail run %s: %v", sess.ID, err)
			}
		}
		return analyser.ResultTable{}, runErr
	}

	out := opts.OutputPath()
	if err := export.Save(out, table, export.Options{Calibration: opts.CalibrationColumn}); err != nil {
		return analyser.ResultTable{}, err
	}
	log.Printf("Wrote %d rows to %s", len(table.Records), out)

	if opts.Store != nil {
		if _, err := opts.Store.SaveRun(ctx, table, opts.DocumentPath, nil); err != nil {
			return table, err
		}
		log.Printf("Stored run %s", table.RunID)
	}
	return table, nil
}

// Watch runs once and then again every time the document or one of the
// images beside it settles after a change, until ctx is cancelled. Failed
// re-runs are logged and watching continues; only the first run's error
// is returned.
func Watch(ctx context.Context, opts Options, debounce time.Duration) error {
	if err := ensureFile(opts.DocumentPath); err != nil {
		return err
	}
	if _, err := Run(ctx, opts); err != nil && !errors.Is(err, analyser.ErrNoBuildings) {
		return err
	}
	out, _ := filepath.Abs(opts.OutputPath())
	changes, err := watchDir(ctx, filepath.Dir(opts.DocumentPath), debounce, func(name string) bool {
		abs, _ := filepath.Abs(name)
		return abs != out && isWatched(name)
	})
	if err != nil {
		return err
	}
	log.Printf("Watching %s for changes", filepath.Dir(opts.DocumentPath))
	for range changes {
		if _, err := Run(ctx, opts); err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Printf("re-run failed: %v", err)
		}
	}
	return nil
}

func isWatched(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".xml", ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return true
	}
	return false
}

// ensureFile reports a clear error for a missing document before watching.
func ensureFile(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
