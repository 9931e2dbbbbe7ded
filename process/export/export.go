package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"shepherd/process/analyser"
)

// Save writes table to path in the format named by its extension: .xlsx
// gives a workbook, anything else CSV. Parent directories are created and
// the file is written to a sibling temp file and renamed into place.
func Save(path string, table analyser.ResultTable, opts Options) error {
	write := WriteCSV
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		write = WriteXLSX
	}
	return writeAtomic(path, func(w io.Writer) error { return write(w, table, opts) })
}

func writeAtomic(path string, write func(io.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".export-*"+filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	if err = write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

func checkedValues(table analyser.ResultTable, r analyser.BuildingRecord) ([]float64, error) {
	vals := r.Values()
	if len(vals) != len(table.Columns) {
		return nil, fmt.Errorf("record %q has %d values for %d columns", r.Name(), len(vals), len(table.Columns))
	}
	return vals, nil
}
