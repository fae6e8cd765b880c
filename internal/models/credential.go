package models

import (
	"time"

	"github.com/google/uuid"
)

// Credential is one agent's login for a provider portal. Identifier is the
// agent key that queue items and ledger rows carry.
type Credential struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Provider   Provider  `gorm:"index"`
	Identifier string    `gorm:"index"`
	Username   string
	Password   string
	Expire     *time.Time `gorm:"index"`
	Sort       int        `gorm:"default:99"`
	TenantID   uuid.UUID  `gorm:"index"`
}
