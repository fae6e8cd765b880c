package repository

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"commission-conciliation-backend/internal/models"
)

// TimeoutLabel is the synthetic activity appended to items reclaimed after
// running past the stale threshold. The label is what operators have always
// seen for timed-out retrievals.
const TimeoutLabel = "Credentials not found"

type QueueItemRepository struct {
	db *gorm.DB
}

func NewQueueItemRepository(db *gorm.DB) *QueueItemRepository {
	return &QueueItemRepository{db: db}
}

// InsertMany creates all queue items for a job in one statement.
func (r *QueueItemRepository) InsertMany(items []models.QueueItem) error {
	if len(items) == 0 {
		return nil
	}
	if err := r.db.Create(&items).Error; err != nil {
		return errors.Wrap(err, "failed to insert queue items")
	}
	return nil
}

// Claim atomically moves the oldest pending item of a provider to running
// and returns it, refusing when maxRunning items already run for the
// provider. Returns nil when nothing is pending or the ceiling is reached.
// The per-provider advisory lock serializes overlapping claims so the
// running count and the update act as one step; the conditional UPDATE
// still guards the item's own status.
func (r *QueueItemRepository) Claim(provider models.Provider, maxRunning int, now time.Time) (*models.QueueItem, error) {
	var claimed []models.QueueItem
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", string(provider)).Error; err != nil {
			return err
		}

		var running int64
		err := tx.Model(&models.QueueItem{}).
			Where("provider = ? AND status = ?", provider, models.QueueStatusRunning).
			Count(&running).Error
		if err != nil {
			return err
		}
		if int(running) >= maxRunning {
			return nil
		}

		sub := tx.Model(&models.QueueItem{}).
			Select("id").
			Where("provider = ? AND status = ?", provider, models.QueueStatusPending).
			Order("created_at ASC").
			Limit(1)

		return tx.Model(&claimed).
			Clauses(clause.Returning{}).
			Where("id = (?)", sub).
			Where("status = ?", models.QueueStatusPending).
			Updates(map[string]interface{}{
				"status":     models.QueueStatusRunning,
				"started_at": now,
			}).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to claim queue item")
	}
	if len(claimed) == 0 {
		return nil, nil
	}
	return &claimed[0], nil
}

// ReclaimStale fails every running item of a provider whose started_at is
// older than the threshold, appending the timeout activity. Each update is
// conditional on the item still being in running state.
func (r *QueueItemRepository) ReclaimStale(provider models.Provider, threshold time.Duration, now time.Time) (int, error) {
	cutoff := now.Add(-threshold)

	var stale []models.QueueItem
	err := r.db.
		Where("provider = ? AND status = ? AND started_at <= ?", provider, models.QueueStatusRunning, cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to find stale queue items")
	}

	reclaimed := 0
	for i := range stale {
		item := &stale[i]
		item.AppendActivity(TimeoutLabel, false)
		res := r.db.Model(&models.QueueItem{}).
			Where("id = ? AND status = ?", item.ID, models.QueueStatusRunning).
			Updates(map[string]interface{}{
				"status":      models.QueueStatusFailed,
				"activities":  item.Activities,
				"finished_at": now,
			})
		if res.Error != nil {
			return reclaimed, errors.Wrap(res.Error, "failed to reclaim stale queue item")
		}
		if res.RowsAffected > 0 {
			reclaimed++
		}
	}
	return reclaimed, nil
}

// Update persists the item's current state.
func (r *QueueItemRepository) Update(item *models.QueueItem) error {
	if err := r.db.Save(item).Error; err != nil {
		return errors.Wrap(err, "failed to update queue item")
	}
	return nil
}

func (r *QueueItemRepository) CountByStatus(provider models.Provider, status models.QueueStatus) (int, error) {
	var count int64
	err := r.db.Model(&models.QueueItem{}).
		Where("provider = ? AND status = ?", provider, status).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to count queue items")
	}
	return int(count), nil
}

// FindByJob returns every item of a job in creation order.
func (r *QueueItemRepository) FindByJob(jobID uuid.UUID) ([]models.QueueItem, error) {
	var items []models.QueueItem
	err := r.db.
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list queue items for job")
	}
	return items, nil
}

// ResetToPending is the manual reset: back to pending with a cleared trail.
func (r *QueueItemRepository) ResetToPending(itemID, jobID, tenantID uuid.UUID, now time.Time) error {
	err := r.db.Model(&models.QueueItem{}).
		Where("id = ? AND job_id = ? AND tenant_id = ?", itemID, jobID, tenantID).
		Updates(map[string]interface{}{
			"status":      models.QueueStatusPending,
			"activities":  datatypes.JSONSlice[models.Activity]{},
			"started_at":  nil,
			"finished_at": nil,
			"created_at":  now,
		}).Error
	if err != nil {
		return errors.Wrap(err, "failed to reset queue item")
	}
	return nil
}

func (r *QueueItemRepository) DeleteByJob(jobID, tenantID uuid.UUID) error {
	err := r.db.
		Where("job_id = ? AND tenant_id = ?", jobID, tenantID).
		Delete(&models.QueueItem{}).Error
	if err != nil {
		return errors.Wrap(err, "failed to delete queue items for job")
	}
	return nil
}
