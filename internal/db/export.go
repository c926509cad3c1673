package db

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/zulandar/padtest/internal/engine"
	"github.com/zulandar/padtest/internal/models"
	"github.com/zulandar/padtest/internal/results"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("db: run not found")

const rowBatchSize = 500

// SaveRun exports the model, its tests and its results table as a new run.
func SaveRun(db *gorm.DB, m *engine.Model) (*models.Run, error) {
	g := m.Geometry()
	p := m.Project()
	run := &models.Run{
		ID:        uuid.NewString(),
		Title:     p.Title,
		ModelType: p.ModelType,
		Kind:      string(g.Kind),
		Width:     g.Width,
		Depth:     g.Depth,
	}
	var err error
	if run.Geometry, err = toJSON(g); err != nil {
		return nil, err
	}
	if run.Materials, err = toJSON(m.Materials()); err != nil {
		return nil, err
	}
	if run.Adjustments, err = toJSON(g.Adjustments); err != nil {
		return nil, err
	}

	var outcomes []models.TestOutcome
	for _, e := range m.TestLog() {
		o, err := outcomeRow(run.ID, e)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	var rows []models.ResultRow
	for _, r := range m.Snapshot().Table(results.Filter{}) {
		rows = append(rows, resultRow(run.ID, r))
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("create run: %w", err)
		}
		if len(outcomes) > 0 {
			if err := tx.Create(&outcomes).Error; err != nil {
				return fmt.Errorf("create outcomes: %w", err)
			}
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(&rows, rowBatchSize).Error; err != nil {
				return fmt.Errorf("create results: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("db: save run %s: %w", run.Title, err)
	}
	run.Tests = outcomes
	return run, nil
}

func toJSON(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("db: encode: %w", err)
	}
	return datatypes.JSON(b), nil
}

func outcomeRow(runID string, e engine.TestEntry) (models.TestOutcome, error) {
	phases, err := toJSON(e.Phases)
	if err != nil {
		return models.TestOutcome{}, err
	}
	opts, err := toJSON(struct {
		Load    *engine.LoadTestOptions    `json:"load,omitempty"`
		Failure *engine.FailureTestOptions `json:"failure,omitempty"`
		Safety  *engine.SafetyOptions      `json:"safety,omitempty"`
		Dynamic *engine.DynamicOptions     `json:"dynamic,omitempty"`
	}{e.Load, e.Failure, e.Safety, e.Dynamic})
	if err != nil {
		return models.TestOutcome{}, err
	}
	return models.TestOutcome{
		RunID:        runID,
		Test:         e.ID,
		Kind:         string(e.Kind),
		Status:       string(e.Outcome.Status),
		Capacity:     e.Outcome.Capacity,
		SafetyFactor: e.Outcome.SafetyFactor,
		Reason:       e.Outcome.Reason,
		Phases:       phases,
		Options:      opts,
	}, nil
}

func resultRow(runID string, r results.Record) models.ResultRow {
	return models.ResultRow{
		RunID:        runID,
		Test:         r.Test,
		Phase:        r.Phase,
		Previous:     r.Previous,
		Kind:         string(r.Kind),
		Seq:          r.Seq,
		Step:         r.Step,
		Location:     r.Location,
		Load:         r.Load,
		Force:        r.Force,
		Stress:       r.Stress,
		Displacement: r.Displacement,
		Uy:           r.Uy,
		SumMstage:    r.SumMstage,
		SafetyFactor: r.SafetyFactor,
		Time:         r.Time,
		Acceleration: r.Acceleration,
		Ratchetting:  r.Ratchetting,
	}
}

// ListRuns returns every run, newest first, without their results.
func ListRuns(db *gorm.DB) ([]models.Run, error) {
	var runs []models.Run
	if err := db.Order("created_at DESC").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("db: list runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a run with its test outcomes.
func GetRun(db *gorm.DB, id string) (*models.Run, error) {
	var run models.Run
	err := db.Preload("Tests", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("id")
	}).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("db: get run %s: %w", id, err)
	}
	return &run, nil
}

// RowFilter selects result rows. Empty fields match everything; AfterID
// skips rows already seen.
type RowFilter struct {
	Test     string
	Phase    string
	Location string
	Kind     string
	AfterID  uint
	Limit    int
}

// LoadRows returns the result rows of a run in phase and step order.
func LoadRows(db *gorm.DB, runID string, f RowFilter) ([]models.ResultRow, error) {
	q := db.Where("run_id = ?", runID)
	if f.Test != "" {
		q = q.Where("test = ?", f.Test)
	}
	if f.Phase != "" {
		q = q.Where("phase = ?", f.Phase)
	}
	if f.Location != "" {
		q = q.Where("location = ?", f.Location)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.AfterID > 0 {
		q = q.Where("id > ?", f.AfterID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var rows []models.ResultRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("db: load rows of %s: %w", runID, err)
	}
	return rows, nil
}

// DeleteRun removes a run with its outcomes and rows.
func DeleteRun(db *gorm.DB, id string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&models.ResultRow{}).Error; err != nil {
			return fmt.Errorf("db: delete rows of %s: %w", id, err)
		}
		if err := tx.Where("run_id = ?", id).Delete(&models.TestOutcome{}).Error; err != nil {
			return fmt.Errorf("db: delete outcomes of %s: %w", id, err)
		}
		res := tx.Where("id = ?", id).Delete(&models.Run{})
		if res.Error != nil {
			return fmt.Errorf("db: delete run %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil
	})
}
