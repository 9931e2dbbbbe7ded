package analyser

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shepherd/pkg/chart"
	"shepherd/pkg/document"
	"shepherd/pkg/ocr"
)

// fixture builds a report directory with one chart per building.
type fixture struct {
	t   *testing.T
	dir string
	xml strings.Builder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv("TMPDIR", t.TempDir())
	f := &fixture{t: t, dir: t.TempDir()}
	f.xml.WriteString("<STUDY><OBJECTS>\n")
	return f
}

// chart writes a white 700x320 chart with one black pixel per level at the
// given columns and returns its filename.
func (f *fixture) chart(name string, cols []int) string {
	f.t.Helper()
	tmpl := chart.DefaultTemplate()
	require.Len(f.t, cols, len(tmpl.Levels))
	img := imaging.New(700, 320, color.NRGBA{255, 255, 255, 255})
	for i, l := range tmpl.Levels {
		img.Set(cols[i], l.Row, color.NRGBA{0, 0, 0, 255})
	}
	file := name + ".png"
	require.NoError(f.t, imaging.Save(img, filepath.Join(f.dir, file)))
	return file
}

func (f *fixture) building(name, graph string) {
	fmt.Fprintf(&f.xml, "<OBJECT HEADING=%q><GRAPH>%s</GRAPH></OBJECT>\n", name, graph)
}

func (f *fixture) load() *document.Document {
	f.t.Helper()
	f.xml.WriteString("</OBJECTS></STUDY>")
	path := filepath.Join(f.dir, "study.xml")
	require.NoError(f.t, os.WriteFile(path, []byte(f.xml.String()), 0o644))
	doc, err := document.Load(path)
	require.NoError(f.t, err)
	return doc
}

func label(text string) ocr.Recognizer {
	return ocr.RecognizerFunc(func(context.Context, []byte) (string, error) { return text, nil })
}

func newTestAnalyser(rec ocr.Recognizer) *Analyser {
	a := New(chart.DefaultTemplate(), rec)
	a.Progress = nil
	a.Metrics = NewMetricsForTesting()
	a.OCRTimeout = time.Second
	return a
}

func newTestSession(t *testing.T, mode chart.Mode) *Session {
	t.Helper()
	s, err := NewSession(mode, chart.DefaultTemplate(), clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	require.NoError(t, err)
	return s
}

func TestRunCurveAtXMinIsZero(t *testing.T) {
	f := newFixture(t)
	cols := make([]int, 8)
	for i := range cols {
		cols[i] = 70
	}
	f.building("Flat", f.chart("flat", cols))
	doc := f.load()

	for _, axis := range []string{"150", "9999"} {
		table, err := newTestAnalyser(label(axis)).Run(context.Background(), doc, newTestSession(t, chart.ModeOverpressure))
		require.NoError(t, err)
		require.Len(t, table.Records, 1)
		assert.Equal(t, make([]float64, 8), table.Records[0].Values())
		assert.Equal(t, StatusCalibrated, table.Records[0].Calibration())
	}
}

func TestRunEnforcesMonotonicValues(t *testing.T) {
	f := newFixture(t)
	// axis 566 over the 70..636 window makes each value col-70.
	f.building("Plant", f.chart("plant", []int{80, 78, 100, 95, 110, 110, 105, 120}))
	doc := f.load()

	table, err := newTestAnalyser(label("566")).Run(context.Background(), doc, newTestSession(t, chart.ModeOverpressure))
	require.NoError(t, err)
	require.Len(t, table.Records, 1)
	rec := table.Records[0]
	assert.InDeltaSlice(t, []float64{10, 10, 30, 30, 40, 40, 40, 50}, rec.Values(), 1e-9)
	assert.Equal(t, "566", rec.AxisText())
	assert.Equal(t, 566, rec.AxisMax())

	v, ok := rec.Value("Overpressure Exceedance at 1E-9 (psi)")
	require.True(t, ok)
	assert.InDelta(t, 50, v, 1e-9)
}

func TestRunMissingChartYieldsZeroRecord(t *testing.T) {
	f := newFixture(t)
	f.building("With", f.chart("with", []int{100, 100, 100, 100, 100, 100, 100, 100}))
	f.building("Without", "")
	f.building("Broken", "missing.png")
	doc := f.load()

	sess := newTestSession(t, chart.ModeOverpressure)
	table, err := newTestAnalyser(label("566")).Run(context.Background(), doc, sess)
	require.NoError(t, err)
	require.Len(t, table.Records, 3)

	assert.Equal(t, "Without", table.Records[1].Name())
	assert.Equal(t, make([]float64, 8), table.Records[1].Values())
	assert.Equal(t, StatusNoChart, table.Records[1].Calibration())
	assert.Equal(t, StatusUnreadable, table.Records[2].Calibration())
	assert.Equal(t, make([]float64, 8), table.Records[2].Values())
	assert.Equal(t, sess.Columns, table.Columns)
}

func TestRunUnreadableLabelDefaults(t *testing.T) {
	f := newFixture(t)
	f.building("Plant", f.chart("plant", []int{200, 200, 200, 200, 200, 200, 200, 200}))
	doc := f.load()

	table, err := newTestAnalyser(label("n/a")).Run(context.Background(), doc, newTestSession(t, chart.ModeImpulse))
	require.NoError(t, err)
	rec := table.Records[0]
	assert.Equal(t, StatusDefaulted, rec.Calibration())
	assert.Equal(t, 0, rec.AxisMax())
	assert.Equal(t, make([]float64, 8), rec.Values())
}

func TestRunNoBuildings(t *testing.T) {
	doc := newFixture(t).load()
	a := newTestAnalyser(label("1"))
	table, err := a.Run(context.Background(), doc, newTestSession(t, chart.ModeThermal))
	assert.ErrorIs(t, err, ErrNoBuildings)
	assert.Empty(t, table.Records)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.RunsTotal.WithLabelValues("thermal", "no_buildings")))
}

func TestRunKeepsDocumentOrderAcrossWorkers(t *testing.T) {
	f := newFixture(t)
	names := make([]string, 12)
	for i := range names {
		names[i] = fmt.Sprintf("B%02d", i)
		c := 71 + i
		f.building(names[i], f.chart(names[i], []int{c, c, c, c, c, c, c, c}))
	}
	doc := f.load()

	a := newTestAnalyser(label("566"))
	a.Workers = 4
	var (
		mu   sync.Mutex
		seen []Progress
	)
	a.Progress = ProgressFunc(func(p Progress) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	})

	table, err := a.Run(context.Background(), doc, newTestSession(t, chart.ModeOverpressure))
	require.NoError(t, err)
	require.Len(t, table.Records, len(names))
	for i, r := range table.Records {
		assert.Equal(t, names[i], r.Name())
		assert.Equal(t, i, r.Position())
		assert.InDelta(t, float64(1+i), r.Values()[0], 1e-9)
	}

	require.Len(t, seen, len(names))
	for i, p := range seen {
		assert.Equal(t, i+1, p.Processed)
		assert.Equal(t, len(names), p.Total)
	}
	assert.Equal(t, 100.0, seen[len(seen)-1].Percent())
	assert.Equal(t, float64(len(names)), testutil.ToFloat64(a.Metrics.BuildingsProcessed.WithLabelValues("overpressure", "calibrated")))
}

func TestRunValuesAreMonotonic(t *testing.T) {
	f := newFixture(t)
	patterns := [][]int{
		{300, 200, 100, 90, 80, 70, 75, 71},
		{600, 100, 500, 200, 400, 300, 635, 70},
		{71, 72, 73, 74, 75, 76, 77, 78},
	}
	for i, p := range patterns {
		name := fmt.Sprintf("P%d", i)
		f.building(name, f.chart(name, p))
	}
	doc := f.load()

	table, err := newTestAnalyser(label("1000")).Run(context.Background(), doc, newTestSession(t, chart.ModeOverpressure))
	require.NoError(t, err)
	for _, r := range table.Records {
		v := r.Values()
		for i := 1; i < len(v); i++ {
			assert.GreaterOrEqual(t, v[i], v[i-1], "%s level %d", r.Name(), i)
		}
	}
}

func TestRunCleanupFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.building("Plant", f.chart("plant", []int{100, 100, 100, 100, 100, 100, 100, 100}))
	doc := f.load()
	tmp := os.Getenv("TMPDIR")

	rec := ocr.RecognizerFunc(func(context.Context, []byte) (string, error) {
		crops, err := filepath.Glob(filepath.Join(tmp, "axis-*.png"))
		if err != nil || len(crops) != 1 {
			return "", errors.New("crop not found")
		}
		_ = os.Remove(crops[0])
		_ = os.MkdirAll(filepath.Join(crops[0], "pinned"), 0o755)
		return "100", nil
	})
	a := newTestAnalyser(rec)
	_, err := a.Run(context.Background(), doc, newTestSession(t, chart.ModeOverpressure))
	require.Error(t, err)
	assert.ErrorIs(t, err, ocr.ErrTempCleanup)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.RunsTotal.WithLabelValues("overpressure", "failed")))
}

func TestRunThermalUsesWiderOffset(t *testing.T) {
	f := newFixture(t)
	// Pixels at col 80 sit left of the thermal window and are ignored.
	cols := []int{80, 80, 80, 80, 80, 80, 80, 80}
	file := f.chart("th", cols)
	fmt.Fprintf(&f.xml, "<OBJECT HEADING=\"Th\"><RESULTS><THERMAL_EXCEEDANCE>%s</THERMAL_EXCEEDANCE></RESULTS></OBJECT>\n", file)
	doc := f.load()

	table, err := newTestAnalyser(label("548")).Run(context.Background(), doc, newTestSession(t, chart.ModeThermal))
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 8), table.Records[0].Values())
	assert.Equal(t, "Thermal Exceedance at 1E-2 (kW/m2)", table.Columns[0])
}

func TestRunRiskMode(t *testing.T) {
	f := newFixture(t)
	f.xml.WriteString(`<OBJECT HEADING="R"><RESULTS><GAS_HITS>
<LEAK_ROW><LEAK_ITEM>a</LEAK_ITEM><LEAK_ITEM>b</LEAK_ITEM><LEAK_ITEM>0.5</LEAK_ITEM></LEAK_ROW>
<LEAK_ROW><LEAK_ITEM>a</LEAK_ITEM><LEAK_ITEM>b</LEAK_ITEM><LEAK_ITEM>0.25</LEAK_ITEM></LEAK_ROW>
</GAS_HITS></RESULTS></OBJECT>`)
	doc := f.load()

	var calls atomic.Int32
	rec := ocr.RecognizerFunc(func(context.Context, []byte) (string, error) {
		calls.Add(1)
		return "1", nil
	})
	table, err := newTestAnalyser(rec).Run(context.Background(), doc, newTestSession(t, chart.ModeRisk))
	require.NoError(t, err)
	require.Len(t, table.Records, 1)
	assert.Equal(t, StatusNotApplicable, table.Records[0].Calibration())
	v, ok := table.Records[0].Value("GAS_HITS")
	require.True(t, ok)
	assert.InDelta(t, 0.75, v, 1e-12)
	assert.Zero(t, calls.Load())
}

func TestRunCancelledContext(t *testing.T) {
	f := newFixture(t)
	f.building("A", "")
	doc := f.load()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestAnalyser(label("1")).Run(ctx, doc, newTestSession(t, chart.ModeImpulse))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSessionTableUsesClock(t *testing.T) {
	f := newFixture(t)
	f.building("A", "")
	doc := f.load()
	sess := newTestSession(t, chart.ModeImpulse)
	table, err := newTestAnalyser(label("1")).Run(context.Background(), doc, sess)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, table.RunID)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), table.StartedAt)
	assert.Equal(t, table.StartedAt, table.FinishedAt)
	assert.Len(t, sess.Records(), 1)
}
