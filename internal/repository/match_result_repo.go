package repository

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"commission-conciliation-backend/internal/models"
)

type MatchResultRepository struct {
	db *gorm.DB
}

func NewMatchResultRepository(db *gorm.DB) *MatchResultRepository {
	return &MatchResultRepository{db: db}
}

func (r *MatchResultRepository) Create(result *models.MatchResult) error {
	if err := r.db.Create(result).Error; err != nil {
		return errors.Wrap(err, "failed to create match result")
	}
	return nil
}

// LatestByJob returns the authoritative (newest) result for a job, or nil
// when the job has not been reconciled yet.
func (r *MatchResultRepository) LatestByJob(jobID, tenantID uuid.UUID) (*models.MatchResult, error) {
	var result models.MatchResult
	err := r.db.
		Where("job_id = ? AND tenant_id = ?", jobID, tenantID).
		Order("created_at DESC").
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest match result")
	}
	return &result, nil
}

func (r *MatchResultRepository) DeleteByJob(jobID, tenantID uuid.UUID) error {
	err := r.db.
		Where("job_id = ? AND tenant_id = ?", jobID, tenantID).
		Delete(&models.MatchResult{}).Error
	if err != nil {
		return errors.Wrap(err, "failed to delete match results for job")
	}
	return nil
}
