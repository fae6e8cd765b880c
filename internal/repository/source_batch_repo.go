package repository

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"commission-conciliation-backend/internal/models"
)

type SourceBatchRepository struct {
	db *gorm.DB
}

func NewSourceBatchRepository(db *gorm.DB) *SourceBatchRepository {
	return &SourceBatchRepository{db: db}
}

func (r *SourceBatchRepository) Create(batch *models.SourceBatch) error {
	if err := r.db.Create(batch).Error; err != nil {
		return errors.Wrap(err, "failed to create source batch")
	}
	return nil
}

func (r *SourceBatchRepository) FindByID(id uuid.UUID) (*models.SourceBatch, error) {
	var batch models.SourceBatch
	err := r.db.First(&batch, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Newf("source batch not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get source batch")
	}
	return &batch, nil
}
