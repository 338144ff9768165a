package database

import (
	"time"

	"github.com/jackc/pgtype"
)

// Event type values recorded by the sensor firmware.
const (
	EventTypeDoor    = "DOOR_EVENT"
	EventTypePassage = "PASSAGE_EVENT"
)

// OccupancyEvent is one raw sensor observation. Rows are written by the
// ingestion service and never mutated here.
type OccupancyEvent struct {
	ID          int64     `gorm:"primaryKey;autoIncrement;column:id"`
	Timestamp   time.Time `gorm:"column:timestamp;index;not null"`
	PersonCount int       `gorm:"column:person_count;not null"`
	IsDoorOpen  bool      `gorm:"column:is_door_open;not null"`
	EventType   string    `gorm:"column:event_type"`
}

// TableName specifies the table name for OccupancyEvent
func (OccupancyEvent) TableName() string {
	return "occupancy_events"
}

// Training run results.
const (
	RunResultTrained = "trained"
	RunResultSkipped = "skipped"
	RunResultFailed  = "failed"
)

// TrainingRun records the outcome of one training cycle, scheduled or
// manually triggered.
type TrainingRun struct {
	RunID      string       `gorm:"primaryKey;column:run_id"`
	StartedAt  time.Time    `gorm:"column:started_at;not null;index"`
	FinishedAt time.Time    `gorm:"column:finished_at"`
	Result     string       `gorm:"column:result;not null"`
	RowsLoaded int          `gorm:"column:rows_loaded"`
	RowsUsed   int          `gorm:"column:rows_used"`
	Error      string       `gorm:"column:error;type:text"`
	Metrics    pgtype.JSONB `gorm:"column:metrics;type:jsonb;default:'{}';not null"`
}

// TableName specifies the table name for TrainingRun
func (TrainingRun) TableName() string {
	return "training_runs"
}
