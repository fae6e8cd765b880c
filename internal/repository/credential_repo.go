package repository

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"commission-conciliation-backend/internal/models"
)

type CredentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// FindByIdentifier looks up the credential a queue item should run with.
// Returns nil when no credential matches; the scheduler turns that into a
// failed activity rather than an error.
func (r *CredentialRepository) FindByIdentifier(provider models.Provider, identifier string) (*models.Credential, error) {
	var cred models.Credential
	err := r.db.First(&cred, "provider = ? AND identifier = ?", provider, identifier).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find credential")
	}
	return &cred, nil
}

// FindByIdentifiers returns a tenant's credentials for the given agent keys,
// in configured sort order.
func (r *CredentialRepository) FindByIdentifiers(tenantID uuid.UUID, provider models.Provider, identifiers []string) ([]models.Credential, error) {
	if len(identifiers) == 0 {
		return nil, nil
	}
	var creds []models.Credential
	err := r.db.
		Where("tenant_id = ? AND provider = ? AND identifier IN ?", tenantID, provider, identifiers).
		Order("sort ASC").
		Find(&creds).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find credentials")
	}
	return creds, nil
}

// FindExpiring returns credentials of every provider whose expiry falls in
// [from, to], used by the expiry notification cron.
func (r *CredentialRepository) FindExpiring(from, to time.Time) ([]models.Credential, error) {
	var creds []models.Credential
	err := r.db.
		Where("expire IS NOT NULL AND expire >= ? AND expire <= ?", from, to).
		Find(&creds).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find expiring credentials")
	}
	return creds, nil
}
