package document

import (
	"path/filepath"

	"shepherd/pkg/chart"
)

// chartExpr selects the element holding a building's chart filename for mode.
func chartExpr(mode chart.Mode) (string, bool) {
	switch mode {
	case chart.ModeOverpressure:
		return ".//GRAPH", true
	case chart.ModeImpulse:
		return ".//IMPULSE", true
	case chart.ModeThermal:
		return ".//RESULTS/THERMAL_EXCEEDANCE", true
	case chart.ModeRisk:
		return "", false
	}
	return "", false
}

// ChartPath resolves the chart image of b for mode against the document
// directory. It reports false when the building has no chart for that mode,
// which is a normal outcome rather than an error.
func (d *Document) ChartPath(b Building, mode chart.Mode) (string, bool) {
	expr, ok := chartExpr(mode)
	if !ok || b.Node == nil {
		return "", false
	}
	name, ok := text(b.Node, expr)
	if !ok || name == "" {
		return "", false
	}
	return filepath.Join(d.Dir, name), true
}
