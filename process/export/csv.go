// Package export writes result tables as spreadsheets.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"shepherd/process/analyser"
)

// Options controls the written columns.
type Options struct {
	// Calibration appends the axis-calibration status and the recognized
	// axis maximum after the value columns.
	Calibration bool
}

// NameColumn heads the first column of every export.
const NameColumn = "Building Name"

// Header returns the header row: NameColumn followed by the table columns.
func Header(table analyser.ResultTable, opts Options) []string {
	h := append([]string{NameColumn}, table.Columns...)
	if opts.Calibration {
		h = append(h, "Axis Calibration", "Axis Max")
	}
	return h
}

// WriteCSV writes one row per record in table order.
func WriteCSV(w io.Writer, table analyser.ResultTable, opts Options) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(table, opts)); err != nil {
		return err
	}
	for _, r := range table.Records {
		vals, err := checkedValues(table, r)
		if err != nil {
			return err
		}
		row := make([]string, 0, len(vals)+3)
		row = append(row, r.Name())
		for _, v := range vals {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if opts.Calibration {
			row = append(row, string(r.Calibration()), strconv.Itoa(r.AxisMax()))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
