package analyser

import "log"

// Progress is reported after each building.
type Progress struct {
	Building  string
	Processed int
	Total     int
}

// Percent is the share of processed buildings, 0-100.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Processed) / float64(p.Total) * 100
}

// ProgressSink observes a run. Calls are serialized by the analyser.
type ProgressSink interface {
	Progress(p Progress)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(p Progress)

func (f ProgressFunc) Progress(p Progress) { f(p) }

// LogProgress writes one status line per building through the standard logger.
var LogProgress = ProgressFunc(func(p Progress) {
	log.Printf("Processing %s. Processed %d out of %d buildings (%.0f%%).", p.Building, p.Processed, p.Total, p.Percent())
})
