package models

import (
	"time"

	"gorm.io/datatypes"
)

// Run is one export of a model and its tests.
type Run struct {
	ID          string `gorm:"primaryKey;size:36"`
	Title       string `gorm:"size:128;not null;index"`
	ModelType   string `gorm:"size:16"`
	Kind        string `gorm:"size:16"`
	Width       float64
	Depth       float64
	Geometry    datatypes.JSON `gorm:"type:json"`
	Materials   datatypes.JSON `gorm:"type:json"`
	Adjustments datatypes.JSON `gorm:"type:json"`
	CreatedAt   time.Time

	Tests   []TestOutcome `gorm:"foreignKey:RunID"`
	Results []ResultRow   `gorm:"foreignKey:RunID"`
}

// TestOutcome is how one test of a run ended.
type TestOutcome struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	RunID        string `gorm:"size:36;uniqueIndex:idx_run_test"`
	Test         string `gorm:"size:64;uniqueIndex:idx_run_test"`
	Kind         string `gorm:"size:16;index"`
	Status       string `gorm:"size:16"`
	Capacity     float64
	SafetyFactor float64
	Reason       string         `gorm:"type:text"`
	Phases       datatypes.JSON `gorm:"type:json"`
	Options      datatypes.JSON `gorm:"type:json"`
}
