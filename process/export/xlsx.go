package export

import (
	"io"

	"github.com/xuri/excelize/v2"

	"shepherd/process/analyser"
)

// SheetName is the worksheet the results are written to.
const SheetName = "Sheet1"

// WriteXLSX writes table as a single-sheet workbook, one row per record in
// table order. Values are stored as numbers.
func WriteXLSX(w io.Writer, table analyser.ResultTable, opts Options) error {
	f := excelize.NewFile()
	defer f.Close()

	header := Header(table, opts)
	cells := make([]interface{}, len(header))
	for i, h := range header {
		cells[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &cells); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
		return err
	}

	for i, r := range table.Records {
		vals, err := checkedValues(table, r)
		if err != nil {
			return err
		}
		row := make([]interface{}, 0, len(vals)+3)
		row = append(row, r.Name())
		for _, v := range vals {
			row = append(row, v)
		}
		if opts.Calibration {
			row = append(row, string(r.Calibration()), r.AxisMax())
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return err
		}
	}
	return f.Write(w)
}
