package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusProcessed JobStatus = "processed"
	JobStatusFailed    JobStatus = "failed"
)

// ConciliationJob is one reconciliation run for one tenant, provider and period.
// CountFiles is fixed at creation time and equals the number of queue items
// created for the job.
type ConciliationJob struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	Provider      Provider  `gorm:"index"`
	Month         int
	Year          int
	TenantID      uuid.UUID `gorm:"index"`
	UserID        uuid.UUID `gorm:"index"`
	Agents        datatypes.JSONSlice[string]
	CountFiles    int
	Status        JobStatus `gorm:"index;default:'pending'"`
	Tries         int
	SourceBatchID uuid.UUID
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}
