package report

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"shepherd/models"
	"shepherd/process/analyser"
	"shepherd/process/export"
	"shepherd/process/store"
)

func mustStoreFromEnv() *store.Store {
	gdb, err := store.Open(os.Getenv("DB_DSN"))
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	return store.New(gdb)
}

// RunReport prints the stored run with id, or the latest runs when id is
// empty. With list set every building row of the run is printed too.
func RunReport(id string, limit int, list bool) {
	s := mustStoreFromEnv()
	ctx := context.Background()
	if id == "" {
		runs, err := s.ListRuns(ctx, nil, limit)
		if err != nil {
			log.Fatalf("query failed: %v", err)
		}
		PrintRuns(os.Stdout, runs)
		return
	}
	run, table, err := s.LoadRun(ctx, id)
	if err != nil {
		log.Fatalf("load run: %v", err)
	}
	PrintRun(os.Stdout, run, table, list)
}

// PrintRuns writes one summary line per run.
func PrintRuns(w io.Writer, runs []models.AnalysisRun) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODE\tSTATUS\tBUILDINGS\tDEFAULTED\tSTARTED\tDOCUMENT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n", r.ID, r.Mode, r.Status, r.BuildingCount, r.DefaultedCount, r.StartedAt.Format(time.RFC3339), r.DocumentPath)
	}
	_ = tw.Flush()
}

// PrintRun writes the header of one run and, with list set, its rows.
func PrintRun(w io.Writer, run *models.AnalysisRun, table analyser.ResultTable, list bool) {
	fmt.Fprintf(w, "Run %s mode=%s status=%s document=%s\n", run.ID, run.Mode, run.Status, run.DocumentPath)
	fmt.Fprintf(w, "  buildings=%d defaulted=%d", run.BuildingCount, run.DefaultedCount)
	if run.FinishedAt != nil {
		fmt.Fprintf(w, " duration=%s", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintln(w)
	if run.Error != "" {
		fmt.Fprintf(w, "  error=%s\n", run.Error)
	}
	if !list {
		return
	}
	fmt.Fprintf(w, "%s|%s|Calibration\n", export.NameColumn, strings.Join(table.Columns, "|"))
	for _, r := range table.Records {
		vals := r.Values()
		cells := make([]string, len(vals))
		for i, v := range vals {
			cells[i] = fmt.Sprintf("%.4g", v)
		}
		fmt.Fprintf(w, "%s|%s|%s\n", r.Name(), strings.Join(cells, "|"), r.Calibration())
	}
}
