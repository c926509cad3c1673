package models

// ResultRow is one record of the results table.
type ResultRow struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	RunID    string `gorm:"size:36;index:idx_run_test_phase"`
	Test     string `gorm:"size:64;index:idx_run_test_phase"`
	Phase    string `gorm:"size:96;index:idx_run_test_phase"`
	Previous string `gorm:"size:96"`
	Kind     string `gorm:"size:16"`
	Seq      int
	Step     int
	Location string `gorm:"size:16"`

	Load         float64
	Force        float64
	Stress       float64
	Displacement float64
	Uy           float64
	SumMstage    float64
	SafetyFactor float64
	Time         float64
	Acceleration float64
	Ratchetting  bool `gorm:"default:false"`
}
