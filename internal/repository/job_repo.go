package repository

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"commission-conciliation-backend/internal/models"
)

// ErrJobNotFound is returned when a job does not exist or is not visible to
// the caller's tenant.
var ErrJobNotFound = errors.New("conciliation job not found")

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(job *models.ConciliationJob) error {
	if err := r.db.Create(job).Error; err != nil {
		return errors.Wrap(err, "failed to create conciliation job")
	}
	return nil
}

func (r *JobRepository) FindByID(id uuid.UUID) (*models.ConciliationJob, error) {
	var job models.ConciliationJob
	err := r.db.First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get conciliation job")
	}
	return &job, nil
}

func (r *JobRepository) FindByIDForTenant(id, tenantID uuid.UUID) (*models.ConciliationJob, error) {
	var job models.ConciliationJob
	err := r.db.First(&job, "id = ? AND tenant_id = ?", id, tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get conciliation job")
	}
	return &job, nil
}

// FindPending returns pending jobs oldest first, capped at limit.
func (r *JobRepository) FindPending(limit int) ([]models.ConciliationJob, error) {
	var jobs []models.ConciliationJob
	err := r.db.
		Where("status = ?", models.JobStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pending jobs")
	}
	return jobs, nil
}

// MarkZeroCountProcessed flips pending jobs that never had retrieval work
// straight to processed.
func (r *JobRepository) MarkZeroCountProcessed(now time.Time) (int, error) {
	res := r.db.Model(&models.ConciliationJob{}).
		Where("status = ? AND count_files = 0", models.JobStatusPending).
		Updates(map[string]interface{}{
			"status":       models.JobStatusProcessed,
			"processed_at": now,
		})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "failed to settle zero-count jobs")
	}
	return int(res.RowsAffected), nil
}

func (r *JobRepository) MarkProcessed(id uuid.UUID, now time.Time) error {
	err := r.db.Model(&models.ConciliationJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.JobStatusProcessed,
			"processed_at": now,
		}).Error
	if err != nil {
		return errors.Wrap(err, "failed to mark job processed")
	}
	return nil
}

func (r *JobRepository) MarkFailed(id uuid.UUID) error {
	err := r.db.Model(&models.ConciliationJob{}).
		Where("id = ?", id).
		Update("status", models.JobStatusFailed).Error
	if err != nil {
		return errors.Wrap(err, "failed to mark job failed")
	}
	return nil
}

// ResetToPending is the manual reset: back to pending with a fresh creation
// time so the settling logic treats the job as new work.
func (r *JobRepository) ResetToPending(id, tenantID uuid.UUID, now time.Time) error {
	err := r.db.Model(&models.ConciliationJob{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Updates(map[string]interface{}{
			"status":       models.JobStatusPending,
			"created_at":   now,
			"processed_at": nil,
		}).Error
	if err != nil {
		return errors.Wrap(err, "failed to reset job")
	}
	return nil
}

func (r *JobRepository) Delete(id, tenantID uuid.UUID) error {
	err := r.db.
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Delete(&models.ConciliationJob{}).Error
	if err != nil {
		return errors.Wrap(err, "failed to delete job")
	}
	return nil
}

// ListForTenant returns a tenant's jobs newest first. When userID is
// non-nil the list is restricted to that user's own jobs.
func (r *JobRepository) ListForTenant(tenantID uuid.UUID, userID *uuid.UUID) ([]models.ConciliationJob, error) {
	query := r.db.Where("tenant_id = ?", tenantID)
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}
	var jobs []models.ConciliationJob
	if err := query.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	return jobs, nil
}
