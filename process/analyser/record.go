package analyser

import (
	"time"

	"shepherd/pkg/chart"
)

// CalibrationStatus tells consumers how a record's values were obtained, so a
// genuine zero can be told apart from an unreadable chart.
type CalibrationStatus string

const (
	// StatusCalibrated: the axis label was read.
	StatusCalibrated CalibrationStatus = "calibrated"
	// StatusDefaulted: the label was unreadable and the axis maximum fell back
	// to 0, zeroing every value.
	StatusDefaulted CalibrationStatus = "defaulted"
	// StatusNoChart: the building has no chart for the run's mode.
	StatusNoChart CalibrationStatus = "no_chart"
	// StatusUnreadable: the chart file exists in the document but could not be
	// opened or decoded.
	StatusUnreadable CalibrationStatus = "unreadable"
	// StatusNotApplicable: risk-mode records, which involve no chart.
	StatusNotApplicable CalibrationStatus = "not_applicable"
)

// BuildingRecord is the immutable result for one building.
type BuildingRecord struct {
	name        string
	position    int
	columns     []string
	values      []float64
	calibration CalibrationStatus
	axisText    string
	axisMax     int
}

func newRecord(name string, position int, columns []string, values []float64, status CalibrationStatus) BuildingRecord {
	v := make([]float64, len(columns))
	copy(v, values)
	return BuildingRecord{
		name:        name,
		position:    position,
		columns:     columns,
		values:      v,
		calibration: status,
	}
}

func zeroRecord(name string, position int, columns []string, status CalibrationStatus) BuildingRecord {
	return newRecord(name, position, columns, nil, status)
}

// Name is the building heading.
func (r BuildingRecord) Name() string { return r.name }

// Position is the building's index in document order.
func (r BuildingRecord) Position() int { return r.position }

// Values returns a copy of the values in column order.
func (r BuildingRecord) Values() []float64 {
	out := make([]float64, len(r.values))
	copy(out, r.values)
	return out
}

// Value looks a value up by column label.
func (r BuildingRecord) Value(column string) (float64, bool) {
	for i, c := range r.columns {
		if c == column {
			return r.values[i], true
		}
	}
	return 0, false
}

func (r BuildingRecord) Calibration() CalibrationStatus { return r.calibration }

// AxisText is the raw recognized axis label ("" when none was read).
func (r BuildingRecord) AxisText() string { return r.axisText }

func (r BuildingRecord) AxisMax() int { return r.axisMax }

// ResultTable is the ordered outcome of one run. All records share Columns.
type ResultTable struct {
	RunID      string
	Mode       chart.Mode
	Columns    []string
	Records    []BuildingRecord
	StartedAt  time.Time
	FinishedAt time.Time
}

// RestoreRecord rebuilds a record from stored fields.
func RestoreRecord(name string, position int, columns []string, values []float64, status CalibrationStatus, axisText string, axisMax int) BuildingRecord {
	r := newRecord(name, position, columns, values, status)
	r.axisText = axisText
	r.axisMax = axisMax
	return r
}
