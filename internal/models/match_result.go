package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"commission-conciliation-backend/internal/services/matching"
)

// MatchResult is the classified output of one reconciliation pass. A job may
// accumulate several results; the latest by creation time is authoritative.
type MatchResult struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	JobID     uuid.UUID `gorm:"index"`
	TenantID  uuid.UUID `gorm:"index"`
	Entries   datatypes.JSONSlice[matching.Entry]
	Filename  string
	CreatedAt time.Time `gorm:"index"`
}
