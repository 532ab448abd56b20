package models

import "time"

const (
	RunStarted   = "started"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// ModelRun is one pipeline execution. The pipeline writes it through pgx and
// the API reads it through gorm, so column names are spelled out.
type ModelRun struct {
	RunID          string     `gorm:"column:run_id;primaryKey" json:"run_id"`
	Status         string     `gorm:"column:status;not null" json:"status"`
	Source         string     `gorm:"column:source" json:"source"`
	StartedAt      time.Time  `gorm:"column:started_at;index" json:"started_at"`
	FinishedAt     *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
	RowsRead       int        `gorm:"column:rows_read" json:"rows_read"`
	RecordsKept    int        `gorm:"column:records_kept" json:"records_kept"`
	RecordsDropped int        `gorm:"column:records_dropped" json:"records_dropped"`
	TrainSize      int        `gorm:"column:train_size" json:"train_size"`
	TestSize       int        `gorm:"column:test_size" json:"test_size"`
	Accuracy       *float64   `gorm:"column:accuracy;type:double precision" json:"accuracy,omitempty"`
	PrecisionScore *float64   `gorm:"column:precision_score;type:double precision" json:"precision,omitempty"`
	Recall         *float64   `gorm:"column:recall;type:double precision" json:"recall,omitempty"`
	F1Score        *float64   `gorm:"column:f1_score;type:double precision" json:"f1_score,omitempty"`
	CompletionRate *float64   `gorm:"column:completion_rate;type:double precision" json:"completion_rate,omitempty"`
	ArtifactKey    string     `gorm:"column:artifact_key" json:"artifact_key,omitempty"`
	Error          string     `gorm:"column:error" json:"error,omitempty"`
}

func (ModelRun) TableName() string { return "model_runs" }
