// Package analyser runs the chart digitizer over every building of a report
// and collects one record per building into a Session.
package analyser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"shepherd/pkg/chart"
	"shepherd/pkg/document"
	"shepherd/pkg/ocr"
)

// ErrNoBuildings aborts a run over a document without buildings.
var ErrNoBuildings = errors.New("no buildings found in document")

// DefaultOCRTimeout bounds one axis-label recognition.
const DefaultOCRTimeout = 10 * time.Second

// Analyser digitizes the charts of a document. The zero value is not usable;
// build one with New.
type Analyser struct {
	Template   chart.Template
	Recognizer ocr.Recognizer
	Progress   ProgressSink
	Metrics    *Metrics
	Workers    int
	OCRTimeout time.Duration
}

// New returns an analyser for tmpl using rec for axis labels. Progress goes
// to the standard logger and metrics are not collected until set.
func New(tmpl chart.Template, rec ocr.Recognizer) *Analyser {
	return &Analyser{
		Template:   tmpl,
		Recognizer: rec,
		Progress:   LogProgress,
		Workers:    runtime.NumCPU(),
		OCRTimeout: DefaultOCRTimeout,
	}
}

func (a *Analyser) workers(n int) int {
	w := a.Workers
	if w <= 0 {
		w = runtime.NumCPU()
	}
	if w > n {
		w = n
	}
	if w < 1 {
		w = 1
	}
	return w
}

// AnalyseBuilding produces the record for the idx-th building of doc.
//
// A building without a chart, or whose chart cannot be decoded, yields an
// all-zero record. Only a failed temp-file cleanup or malformed risk data
// return an error.
func (a *Analyser) AnalyseBuilding(ctx context.Context, doc *document.Document, idx int, mode chart.Mode, columns []string) (BuildingRecord, error) {
	if idx < 0 || idx >= len(doc.Buildings) {
		return BuildingRecord{}, fmt.Errorf("building index %d out of range", idx)
	}
	b := doc.Buildings[idx]

	if mode == chart.ModeRisk {
		sums, err := document.RiskSums(b)
		if err != nil {
			return BuildingRecord{}, err
		}
		return newRecord(b.Name, idx, columns, sums, StatusNotApplicable), nil
	}

	path, ok := doc.ChartPath(b, mode)
	if !ok {
		return zeroRecord(b.Name, idx, columns, StatusNoChart), nil
	}
	img, err := imaging.Open(path)
	if err != nil {
		log.Printf("Chart for %s unreadable (%s): %v", b.Name, path, err)
		return zeroRecord(b.Name, idx, columns, StatusUnreadable), nil
	}

	cal, err := ocr.CalibrateImage(ctx, b.Name, img, a.Template.AxisCrop, a.Recognizer, a.OCRTimeout)
	if err != nil {
		return BuildingRecord{}, fmt.Errorf("building %q: %w", b.Name, err)
	}

	m := chart.NewPixelMatrix(img)
	raw := chart.Digitize(m, a.Template.ProbabilityLevels(mode), float64(cal.AxisMax), a.Template.DarkThreshold)

	status := StatusCalibrated
	if cal.Defaulted {
		status = StatusDefaulted
	}
	rec := newRecord(b.Name, idx, columns, chart.EnforceMonotonic(raw), status)
	rec.axisText = cal.Text
	rec.axisMax = cal.AxisMax
	return rec, nil
}

// Run analyses every building of doc into sess and returns the finished
// table in document order. Buildings are spread over a worker pool; the sink
// sees one call per building with a strictly increasing processed count.
// The first error cancels the remaining work and no table is returned.
func (a *Analyser) Run(ctx context.Context, doc *document.Document, sess *Session) (ResultTable, error) {
	if doc == nil {
		return ResultTable{}, document.ErrNoDocument
	}
	mode := sess.Mode.Key()
	total := len(doc.Buildings)
	if total == 0 {
		a.countRun(mode, "no_buildings")
		return ResultTable{}, ErrNoBuildings
	}
	if a.Metrics != nil {
		a.Metrics.RunsInFlight.Inc()
		defer a.Metrics.RunsInFlight.Dec()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess.begin(total)
	start := time.Now()

	idxCh := make(chan int, total)
	for i := range doc.Buildings {
		idxCh <- i
	}
	close(idxCh)

	var (
		wg       sync.WaitGroup
		reportMu sync.Mutex
		errOnce  sync.Once
		runErr   error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			runErr = err
			cancel()
		})
	}

	for i := 0; i < a.workers(total); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range idxCh {
				if ctx.Err() != nil {
					return
				}
				t0 := time.Now()
				rec, err := a.AnalyseBuilding(ctx, doc, idx, sess.Mode, sess.Columns)
				if err != nil {
					fail(err)
					return
				}
				if a.Metrics != nil {
					a.Metrics.BuildingDuration.Observe(time.Since(t0).Seconds())
					a.Metrics.BuildingsProcessed.WithLabelValues(mode, string(rec.calibration)).Inc()
				}
				reportMu.Lock()
				p := sess.add(rec)
				if a.Progress != nil {
					a.Progress.Progress(p)
				}
				reportMu.Unlock()
			}
		}()
	}
	wg.Wait()

	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}
	if runErr != nil {
		a.countRun(mode, "failed")
		return ResultTable{}, runErr
	}

	sess.finish()
	if a.Metrics != nil {
		a.Metrics.RunDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}
	a.countRun(mode, "complete")
	log.Printf("Analysis complete. Processed %d buildings.", total)
	return sess.Table(), nil
}

func (a *Analyser) countRun(mode, outcome string) {
	if a.Metrics != nil {
		a.Metrics.RunsTotal.WithLabelValues(mode, outcome).Inc()
	}
}
