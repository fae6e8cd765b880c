package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"commission-conciliation-backend/internal/services/matching"
)

// SourceBatch is the immutable snapshot of ledger rows uploaded at job
// submission. Exactly one job references a batch; it is never mutated.
type SourceBatch struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `gorm:"index"`
	UserID    uuid.UUID
	Rows      datatypes.JSONSlice[matching.SourceRow]
	CreatedAt time.Time
}
