package postgres

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JSONB is raw JSON stored in a jsonb column (TEXT under SQLite).
type JSONB json.RawMessage

// AffinitySnapshotModel maps to the "affinity_snapshots" table. One row per
// task description per flush; rows of one flush share a BatchID.
type AffinitySnapshotModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	BatchID     uuid.UUID `gorm:"type:uuid;not null;index"`
	Description string    `gorm:"not null"`
	Magnitude   float64   `gorm:"not null"`
	Phase       float64   `gorm:"not null"`
	LinkCount   int       `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"index"`
}

func (AffinitySnapshotModel) TableName() string { return "affinity_snapshots" }

// ConversationDumpModel maps to the "conversation_dumps" table.
// Append-only: one row per shutdown flush.
type ConversationDumpModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Content   string    `gorm:"type:text;not null"`
	Bytes     int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"index"`
}

func (ConversationDumpModel) TableName() string { return "conversation_dumps" }

// TaskResultModel maps to the "task_results" table.
type TaskResultModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Description string    `gorm:"not null"`
	Workflow    string    `gorm:"not null;index"`
	Status      string    `gorm:"not null;index"`
	Error       string
	Results     JSONB     `gorm:"type:jsonb;not null;default:'[]'"`
	Magnitude   float64   `gorm:"not null"`
	Phase       float64   `gorm:"not null"`
	LinkCount   int       `gorm:"not null;default:0"`
	DurationMS  int64     `gorm:"not null;default:0"`
	StartedAt   time.Time `gorm:"index"`
	CreatedAt   time.Time
}

func (TaskResultModel) TableName() string { return "task_results" }

// Models lists every model in migration order.
func Models() []any {
	return []any{
		&AffinitySnapshotModel{},
		&ConversationDumpModel{},
		&TaskResultModel{},
	}
}
