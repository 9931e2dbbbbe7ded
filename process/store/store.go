// Package store persists analysis runs in Postgres through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"shepherd/models"
	"shepherd/pkg/chart"
	"shepherd/process/analyser"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Open connects to the Postgres database at dsn.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("DB_DSN is not set")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return gdb, nil
}

// Migrate creates the run tables. Each model is migrated separately so one
// failure is logged without blocking the others.
func Migrate(gdb *gorm.DB) error {
	var errs []error
	for _, m := range []any{&models.AnalysisRun{}, &models.BuildingResult{}, &models.ExceedanceValue{}} {
		if err := gdb.AutoMigrate(m); err != nil {
			log.Printf("migration warning (%T): %v", m, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Store reads and writes runs.
type Store struct {
	db *gorm.DB
}

// New wraps gdb.
func New(gdb *gorm.DB) *Store {
	return &Store{db: gdb}
}

// StartRun records a run as running before any building is processed.
func (s *Store) StartRun(ctx context.Context, sess *analyser.Session, documentPath string, userID *uint, started time.Time) error {
	run := models.AnalysisRun{
		ID:           sess.ID,
		UserID:       userID,
		Mode:         sess.Mode.Key(),
		DocumentPath: documentPath,
		Status:       models.RunRunning,
		StartedAt:    started,
	}
	return s.db.WithContext(ctx).Create(&run).Error
}

// FailRun marks a run as failed with cause.
func (s *Store) FailRun(ctx context.Context, id string, cause error, finished time.Time) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
		if len(msg) > 1024 {
			msg = msg[:1024]
		}
	}
	res := s.db.WithContext(ctx).Model(&models.AnalysisRun{}).Where("id = ?", id).Updates(map[string]any{
		"status":      models.RunFailed,
		"error":       msg,
		"finished_at": finished,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// SaveRun stores a finished table and its records in one transaction. A run
// row created by StartRun is completed in place.
func (s *Store) SaveRun(ctx context.Context, table analyser.ResultTable, documentPath string, userID *uint) (*models.AnalysisRun, error) {
	run := RunFromTable(table, documentPath, userID)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.AnalysisRun{}).Where("id = ?", run.ID).Count(&existing).Error; err != nil {
			return err
		}
		results := run.Results
		run.Results = nil
		if existing == 0 {
			if err := tx.Create(run).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Model(&models.AnalysisRun{}).Where("id = ?", run.ID).Updates(map[string]any{
				"status":          run.Status,
				"error":           "",
				"building_count":  run.BuildingCount,
				"defaulted_count": run.DefaultedCount,
				"finished_at":     run.FinishedAt,
			}).Error; err != nil {
				return err
			}
			if err := tx.Where("run_id = ?", run.ID).Delete(&models.BuildingResult{}).Error; err != nil {
				return err
			}
		}
		if len(results) > 0 {
			// values are created through the association
			if err := tx.Create(&results).Error; err != nil {
				return err
			}
		}
		run.Results = results
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save run %s: %w", table.RunID, err)
	}
	return run, nil
}

// LoadRun reads a run and rebuilds its result table.
func (s *Store) LoadRun(ctx context.Context, id string) (*models.AnalysisRun, analyser.ResultTable, error) {
	var run models.AnalysisRun
	err := s.db.WithContext(ctx).
		Preload("Results", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Results.Values", func(db *gorm.DB) *gorm.DB { return db.Order("column_index") }).
		Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, analyser.ResultTable{}, ErrRunNotFound
	}
	if err != nil {
		return nil, analyser.ResultTable{}, err
	}
	table, err := TableFromRun(run)
	if err != nil {
		return nil, analyser.ResultTable{}, err
	}
	return &run, table, nil
}

// ListRuns returns the newest runs first. A nil userID lists every user's runs.
func (s *Store) ListRuns(ctx context.Context, userID *uint, limit int) ([]models.AnalysisRun, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Order("started_at desc").Limit(limit)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	var runs []models.AnalysisRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// RunFromTable converts a finished table into its database rows.
func RunFromTable(table analyser.ResultTable, documentPath string, userID *uint) *models.AnalysisRun {
	finished := table.FinishedAt
	run := &models.AnalysisRun{
		ID:            table.RunID,
		UserID:        userID,
		Mode:          table.Mode.Key(),
		DocumentPath:  documentPath,
		Status:        models.RunComplete,
		BuildingCount: len(table.Records),
		StartedAt:     table.StartedAt,
		FinishedAt:    &finished,
	}
	for _, r := range table.Records {
		if r.Calibration() == analyser.StatusDefaulted {
			run.DefaultedCount++
		}
		res := models.BuildingResult{
			RunID:       table.RunID,
			Position:    r.Position(),
			Name:        r.Name(),
			Calibration: string(r.Calibration()),
			AxisText:    r.AxisText(),
			AxisMax:     r.AxisMax(),
		}
		for i, v := range r.Values() {
			res.Values = append(res.Values, models.ExceedanceValue{ColumnIndex: i, Column: table.Columns[i], Value: v})
		}
		run.Results = append(run.Results, res)
	}
	return run
}

// TableFromRun rebuilds the result table of a stored run. The column schema
// is taken from the stored values, so a table written under another
// template reads back unchanged.
func TableFromRun(run models.AnalysisRun) (analyser.ResultTable, error) {
	mode, err := chart.ParseMode(run.Mode)
	if err != nil {
		return analyser.ResultTable{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	table := analyser.ResultTable{RunID: run.ID, Mode: mode, StartedAt: run.StartedAt}
	if run.FinishedAt != nil {
		table.FinishedAt = *run.FinishedAt
	}

	results := append([]models.BuildingResult(nil), run.Results...)
	sort.SliceStable(results, func(i, j int) bool { return results[i].Position < results[j].Position })
	for _, res := range results {
		vals := append([]models.ExceedanceValue(nil), res.Values...)
		sort.SliceStable(vals, func(i, j int) bool { return vals[i].ColumnIndex < vals[j].ColumnIndex })
		if table.Columns == nil {
			for _, v := range vals {
				table.Columns = append(table.Columns, v.Column)
			}
		}
		if len(vals) != len(table.Columns) {
			return analyser.ResultTable{}, fmt.Errorf("run %s: building %q has %d values for %d columns", run.ID, res.Name, len(vals), len(table.Columns))
		}
		values := make([]float64, len(vals))
		for i, v := range vals {
			values[i] = v.Value
		}
		table.Records = append(table.Records, analyser.RestoreRecord(res.Name, res.Position, table.Columns, values, analyser.CalibrationStatus(res.Calibration), res.AxisText, res.AxisMax))
	}
	return table, nil
}

// ReplaceResult overwrites the stored record at rec.Position() of run id and
// refreshes the run's defaulted count.
func (s *Store) ReplaceResult(ctx context.Context, id string, columns []string, rec analyser.BuildingRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var res models.BuildingResult
		err := tx.Where("run_id = ? AND position = ?", id, rec.Position()).First(&res).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s position %d", ErrRunNotFound, id, rec.Position())
		}
		if err != nil {
			return err
		}
		if err := tx.Model(&res).Updates(map[string]any{
			"calibration": string(rec.Calibration()),
			"axis_text":   rec.AxisText(),
			"axis_max":    rec.AxisMax(),
		}).Error; err != nil {
			return err
		}
		if err := tx.Where("building_result_id = ?", res.ID).Delete(&models.ExceedanceValue{}).Error; err != nil {
			return err
		}
		vals := rec.Values()
		rows := make([]models.ExceedanceValue, len(vals))
		for i, v := range vals {
			rows[i] = models.ExceedanceValue{BuildingResultID: res.ID, ColumnIndex: i, Column: columns[i], Value: v}
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		var defaulted int64
		if err := tx.Model(&models.BuildingResult{}).Where("run_id = ? AND calibration = ?", id, string(analyser.StatusDefaulted)).Count(&defaulted).Error; err != nil {
			return err
		}
		return tx.Model(&models.AnalysisRun{}).Where("id = ?", id).Update("defaulted_count", defaulted).Error
	})
}
