// Package recalibrate re-reads the axis labels of buildings that defaulted in
// a stored run, typically with a more aggressive recognizer.
package recalibrate

import (
	"context"
	"fmt"
	"log"

	"shepherd/models"
	"shepherd/pkg/document"
	"shepherd/process/analyser"
)

// RunStore is the part of store.Store used here.
type RunStore interface {
	LoadRun(ctx context.Context, id string) (*models.AnalysisRun, analyser.ResultTable, error)
	ReplaceResult(ctx context.Context, id string, columns []string, rec analyser.BuildingRecord) error
}

// Result counts what a pass did.
type Result struct {
	Retried   int
	Recovered int
}

// Run re-analyses every defaulted building of run id with a. docPath
// overrides the stored document path when set. Recovered records replace the
// stored ones unless dryRun is set.
func Run(ctx context.Context, s RunStore, id, docPath string, a *analyser.Analyser, dryRun bool) (Result, error) {
	var out Result
	run, table, err := s.LoadRun(ctx, id)
	if err != nil {
		return out, err
	}
	if run.Status != models.RunComplete {
		return out, fmt.Errorf("run %s is %s", id, run.Status)
	}
	if docPath == "" {
		docPath = run.DocumentPath
	}
	doc, err := document.Load(docPath)
	if err != nil {
		return out, err
	}

	for _, rec := range table.Records {
		if rec.Calibration() != analyser.StatusDefaulted {
			continue
		}
		pos := rec.Position()
		if pos >= len(doc.Buildings) || doc.Buildings[pos].Name != rec.Name() {
			return out, fmt.Errorf("document %s no longer matches run %s at building %d (%q)", docPath, id, pos, rec.Name())
		}
		out.Retried++
		next, err := a.AnalyseBuilding(ctx, doc, pos, table.Mode, table.Columns)
		if err != nil {
			return out, err
		}
		if next.Calibration() != analyser.StatusCalibrated {
			log.Printf("building %s still unreadable", rec.Name())
			continue
		}
		out.Recovered++
		log.Printf("building %s recovered: axis max %d", rec.Name(), next.AxisMax())
		if dryRun {
			continue
		}
		if err := s.ReplaceResult(ctx, id, table.Columns, next); err != nil {
			return out, err
		}
	}
	return out, nil
}
