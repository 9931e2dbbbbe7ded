package models

import "time"

// Run statuses.
const (
	RunRunning  = "running"
	RunComplete = "complete"
	RunFailed   = "failed"
)

// AnalysisRun is one digitization run over a report document.
type AnalysisRun struct {
	ID        string `gorm:"primaryKey;size:36"` // session uuid
	CreatedAt time.Time
	UpdatedAt time.Time
	UserID    *uint  `gorm:"index"`
	Mode      string `gorm:"size:32;index;not null"`
	// DocumentPath is the report path as given by the caller.
	DocumentPath  string `gorm:"size:1024;not null"`
	Status        string `gorm:"size:16;index;not null;default:running"`
	Error         string `gorm:"size:1024"`
	BuildingCount int    `gorm:"not null;default:0"`
	// DefaultedCount counts buildings whose axis label could not be read.
	DefaultedCount int `gorm:"not null;default:0"`
	StartedAt      time.Time
	FinishedAt     *time.Time
	Results        []BuildingResult `gorm:"foreignKey:RunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// BuildingResult is the stored record of one building within a run.
type BuildingResult struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	RunID       string            `gorm:"size:36;not null;uniqueIndex:idx_run_position"`
	Position    int               `gorm:"not null;uniqueIndex:idx_run_position"`
	Name        string            `gorm:"size:255;not null"`
	Calibration string            `gorm:"size:32;not null"`
	AxisText    string            `gorm:"size:64"`
	AxisMax     int               `gorm:"not null;default:0"`
	Values      []ExceedanceValue `gorm:"foreignKey:BuildingResultID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// ExceedanceValue is one cell of a building's row.
type ExceedanceValue struct {
	ID               uint   `gorm:"primaryKey"`
	BuildingResultID uint   `gorm:"not null;uniqueIndex:idx_result_column"`
	ColumnIndex      int    `gorm:"not null;uniqueIndex:idx_result_column"`
	Column           string `gorm:"column:column_label;size:128;not null"`
	Value            float64
}
