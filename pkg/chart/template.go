package chart

import (
	"fmt"
	"image"
)

// Level is one probability decade of the chart template and the pixel row it
// is printed on.
type Level struct {
	Label string `mapstructure:"label"`
	Row   int    `mapstructure:"row"`
}

// ProbabilityLevel is a Level bound to the x scan window of a given mode.
type ProbabilityLevel struct {
	Label string
	Row   int
	XMin  int
	XMax  int
}

// Template describes one fixed chart layout. Every pixel constant the
// digitizer depends on lives here so another layout can be supported by
// loading a different template.
type Template struct {
	// AxisCrop is the size of the bottom-right window holding the printed
	// axis maximum.
	AxisCrop image.Point
	// DarkThreshold: a pixel belongs to the curve when both its green and
	// blue channels are below this value.
	DarkThreshold uint8
	Levels        []Level
	XMin          int
	XMinThermal   int
	XMax          int
}

// DefaultTemplate returns the layout of the standard exceedance chart.
func DefaultTemplate() Template {
	return Template{
		AxisCrop:      image.Pt(44, 42),
		DarkThreshold: 100,
		Levels: []Level{
			{Label: "1E-2", Row: 33},
			{Label: "1E-3", Row: 70},
			{Label: "1E-4", Row: 108},
			{Label: "1E-5", Row: 145},
			{Label: "1E-6", Row: 182},
			{Label: "1E-7", Row: 219},
			{Label: "1E-8", Row: 257},
			{Label: "1E-9", Row: 293},
		},
		XMin:        70,
		XMinThermal: 88,
		XMax:        636,
	}
}

// Window returns the [xMin, xMax) scan window for mode.
func (t Template) Window(mode Mode) (int, int) {
	if mode == ModeThermal {
		return t.XMinThermal, t.XMax
	}
	return t.XMin, t.XMax
}

// ProbabilityLevels binds every template level to the scan window of mode, in
// increasing-rarity order.
func (t Template) ProbabilityLevels(mode Mode) []ProbabilityLevel {
	xMin, xMax := t.Window(mode)
	out := make([]ProbabilityLevel, len(t.Levels))
	for i, l := range t.Levels {
		out[i] = ProbabilityLevel{Label: l.Label, Row: l.Row, XMin: xMin, XMax: xMax}
	}
	return out
}

// Validate checks the template is usable for scanning.
func (t Template) Validate() error {
	if t.AxisCrop.X <= 0 || t.AxisCrop.Y <= 0 {
		return fmt.Errorf("axis crop must be positive, got %dx%d", t.AxisCrop.X, t.AxisCrop.Y)
	}
	if len(t.Levels) == 0 {
		return fmt.Errorf("template has no probability levels")
	}
	for i, l := range t.Levels {
		if l.Label == "" {
			return fmt.Errorf("level %d has no label", i)
		}
		if l.Row < 0 {
			return fmt.Errorf("level %s has negative row %d", l.Label, l.Row)
		}
		if i > 0 && l.Row <= t.Levels[i-1].Row {
			return fmt.Errorf("level %s row %d must be below level %s row %d", l.Label, l.Row, t.Levels[i-1].Label, t.Levels[i-1].Row)
		}
	}
	if t.XMin <= 0 || t.XMinThermal <= 0 {
		return fmt.Errorf("x_min must be positive")
	}
	if t.XMax <= t.XMin || t.XMax <= t.XMinThermal {
		return fmt.Errorf("x_max %d must exceed x_min %d and thermal x_min %d", t.XMax, t.XMin, t.XMinThermal)
	}
	return nil
}

// ColumnLabels returns the result-table column labels for mode, one per
// level: "<mode> at <level> (<unit>)". Risk mode uses the hit-type names.
func (t Template) ColumnLabels(mode Mode) ([]string, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(mode))
	}
	if mode == ModeRisk {
		out := make([]string, len(RiskColumns))
		for i, c := range RiskColumns {
			out[i] = c.Name
		}
		return out, nil
	}
	unit, err := mode.Unit()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(t.Levels))
	for i, l := range t.Levels {
		out[i] = fmt.Sprintf("%s at %s (%s)", mode, l.Label, unit)
	}
	return out, nil
}

// RiskColumn names a hit type summed in risk mode and the 1-based index of
// the LEAK_ITEM holding its value inside each LEAK_ROW.
type RiskColumn struct {
	Name      string
	ItemIndex int
}

// RiskColumns is the fixed risk-mode schema.
var RiskColumns = []RiskColumn{
	{Name: "GAS_HITS", ItemIndex: 3},
	{Name: "FLAME_HITS", ItemIndex: 3},
	{Name: "THERMAL_HITS", ItemIndex: 4},
	{Name: "CLOUD_FIRE_HITS", ItemIndex: 3},
	{Name: "BLEVE_HITS", ItemIndex: 2},
	{Name: "TOXIC_HITS", ItemIndex: 4},
}
