package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/joshu-sajeev/queuectl/internal/config"
	"github.com/joshu-sajeev/queuectl/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MoveToDLQ records the job in the dead-letter table and removes it from the
// jobs table in one transaction. The stored row is re-read inside the
// transaction so the reason reflects the latest persisted last_error.
func (r *JobRepository) MoveToDLQ(ctx context.Context, job *models.Job) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.moveToDLQ(tx, job.ID)
	})
	if err != nil {
		return fmt.Errorf("move %s to dlq: %w", job.ID, err)
	}
	return nil
}

// DeadLetter records the final attempt count, marks the job DEAD and moves it
// to the dead-letter table as a single transaction, so a job is never left
// in the jobs table with its retries exhausted. Lock contention is retried
// like a claim.
func (r *JobRepository) DeadLetter(ctx context.Context, id string, attempts int) error {
	err := r.withContentionRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.Job{}).
				Where("id = ?", id).
				Updates(map[string]any{
					"attempts":   attempts,
					"state":      config.JobStateDead,
					"updated_at": r.now(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrNotFound
			}
			return r.moveToDLQ(tx, id)
		})
	})
	if err != nil {
		return fmt.Errorf("dead-letter %s: %w", id, err)
	}
	return nil
}

func (r *JobRepository) moveToDLQ(tx *gorm.DB, id string) error {
	var current models.Job
	if err := tx.Take(&current, "id = ?", id).Error; err != nil {
		return translate(err)
	}

	reason := config.DefaultDLQReason
	if current.LastError != nil && *current.LastError != "" {
		reason = *current.LastError
	}

	snapshot, err := json.Marshal(models.DeadLetterSnapshot{
		Attempts:   current.Attempts,
		MaxRetries: current.MaxRetries,
		Output:     current.Output,
		CreatedAt:  current.CreatedAt,
	})
	if err != nil {
		return err
	}

	entry := models.DeadLetter{
		ID:       current.ID,
		Command:  current.Command,
		Reason:   reason,
		FailedAt: r.now(),
		Snapshot: datatypes.JSON(snapshot),
	}
	if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&entry).Error; err != nil {
		return err
	}

	return tx.Delete(&models.Job{}, "id = ?", current.ID).Error
}

// ListDLQ returns dead-lettered jobs, most recently failed last.
func (r *JobRepository) ListDLQ(ctx context.Context) ([]models.DeadLetter, error) {
	var entries []models.DeadLetter
	if err := r.db.WithContext(ctx).
		Order("failed_at ASC").Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list dlq: %w", err)
	}
	return entries, nil
}

func (r *JobRepository) CountDLQ(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.DeadLetter{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count dlq: %w", err)
	}
	return n, nil
}

func (r *JobRepository) FindInDLQ(ctx context.Context, id string) (*models.DeadLetter, error) {
	var entry models.DeadLetter
	if err := r.db.WithContext(ctx).Take(&entry, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("find dlq %s: %w", id, translate(err))
	}
	return &entry, nil
}

func (r *JobRepository) DeleteFromDLQ(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.DeadLetter{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete dlq %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete dlq %s: %w", id, ErrNotFound)
	}
	return nil
}

// RestoreFromDLQ deletes the dead-letter record and inserts a fresh PENDING
// job with the same id and command in one transaction. Retry history is
// not carried over; max_retries comes from the snapshot when present,
// otherwise defaultMaxRetries.
func (r *JobRepository) RestoreFromDLQ(ctx context.Context, id string, defaultMaxRetries int) (*models.Job, error) {
	var restored *models.Job

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.DeadLetter
		if err := tx.Take(&entry, "id = ?", id).Error; err != nil {
			return translate(err)
		}

		maxRetries := defaultMaxRetries
		if len(entry.Snapshot) > 0 {
			var snap models.DeadLetterSnapshot
			if err := json.Unmarshal(entry.Snapshot, &snap); err == nil {
				maxRetries = snap.MaxRetries
			}
		}

		if err := tx.Delete(&models.DeadLetter{}, "id = ?", entry.ID).Error; err != nil {
			return err
		}

		now := r.now()
		job := &models.Job{
			ID:         entry.ID,
			Command:    entry.Command,
			State:      config.JobStatePending,
			Attempts:   0,
			MaxRetries: maxRetries,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Create(job).Error; err != nil {
			return translate(err)
		}
		restored = job
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("restore %s from dlq: %w", id, err)
	}
	return restored, nil
}

// RecoverStranded finishes failure handling that a worker started but
// could not complete. DEAD rows, and FAILED rows whose attempts already
// exceed max_retries, are moved to the DLQ. Other FAILED rows untouched for
// olderThan go back to PENDING. Rows in any other state are never touched,
// so a live job that reuses a dead-lettered id survives. It reports how many
// jobs were repaired.
func (r *JobRepository) RecoverStranded(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := r.now()

	var stranded []models.Job
	if err := r.db.WithContext(ctx).
		Select("id", "state", "attempts", "max_retries").
		Where("state = ? OR (state = ? AND (attempts > max_retries OR updated_at < ?))",
			config.JobStateDead, config.JobStateFailed, now.Add(-olderThan)).
		Find(&stranded).Error; err != nil {
		return 0, fmt.Errorf("find stranded jobs: %w", err)
	}

	var repaired int64
	for _, job := range stranded {
		if job.State == config.JobStateDead || job.Attempts > job.MaxRetries {
			if err := r.DeadLetter(ctx, job.ID, job.Attempts); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return repaired, err
			}
			repaired++
			continue
		}

		res := r.db.WithContext(ctx).Model(&models.Job{}).
			Where("id = ? AND state = ?", job.ID, config.JobStateFailed).
			Updates(map[string]any{
				"state":      config.JobStatePending,
				"updated_at": r.now(),
			})
		if res.Error != nil {
			return repaired, fmt.Errorf("requeue stranded %s: %w", job.ID, res.Error)
		}
		repaired += res.RowsAffected
	}
	return repaired, nil
}
