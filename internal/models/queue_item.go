package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type QueueStatus string

const (
	QueueStatusPending   QueueStatus = "pending"
	QueueStatusRunning   QueueStatus = "running"
	QueueStatusCompleted QueueStatus = "completed"
	QueueStatusFailed    QueueStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions
// (short of an explicit manual reset).
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusFailed
}

// Activity is one entry in a queue item's ordered activity trail.
type Activity struct {
	Label   string         `json:"label"`
	Outcome bool           `json:"outcome"`
	Payload datatypes.JSON `json:"payload,omitempty"`
}

// QueueItem is one unit of per-agent retrieval work belonging to a job.
type QueueItem struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Provider   Provider  `gorm:"index"`
	Identifier string    `gorm:"index"`
	JobID      uuid.UUID `gorm:"index"`
	TenantID   uuid.UUID `gorm:"index"`
	Status     QueueStatus `gorm:"index;default:'pending'"`
	Activities datatypes.JSONSlice[Activity]
	StartedAt  *time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time `gorm:"index"`
}

func (q *QueueItem) AppendActivity(label string, outcome bool) {
	q.Activities = append(q.Activities, Activity{Label: label, Outcome: outcome})
}
