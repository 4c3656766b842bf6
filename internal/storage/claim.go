package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshu-sajeev/queuectl/internal/config"
	"github.com/joshu-sajeev/queuectl/internal/models"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClaimNextPending atomically moves the oldest eligible PENDING job to
// PROCESSING and returns it. A nil job with a nil error means there was
// nothing to claim, another claimer won the race, or the store stayed
// contended for every attempt.
//
// The conditional update on state = PENDING is the only thing preventing
// two workers from claiming the same job.
func (r *JobRepository) ClaimNextPending(ctx context.Context) (*models.Job, error) {
	var claimed *models.Job

	err := r.withContentionRetry(ctx, func(ctx context.Context) error {
		job, err := r.claimOnce(ctx)
		if err != nil {
			return err
		}
		claimed = job
		return nil
	})
	if err != nil {
		if isContention(err) {
			r.log.WithError(err).Debug("claim contended, giving up for this cycle")
			return nil, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("claim next pending: %w", err)
	}
	return claimed, nil
}

// withContentionRetry runs fn again, with jittered exponential backoff, while
// it fails on lock contention, at most claimRetries times in total. The last
// contention error is returned once retries run out.
func (r *JobRepository) withContentionRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(
		uint64(r.claimRetries-1),
		retry.WithJitterPercent(25, retry.NewExponential(r.claimBackoff)),
	)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if isContention(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}

func (r *JobRepository) claimOnce(ctx context.Context) (*models.Job, error) {
	var claimed *models.Job

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now()

		q := tx.Where("state = ?", config.JobStatePending).
			Where("next_run_at IS NULL OR next_run_at <= ?", now).
			Order("created_at ASC").
			Order("id ASC").
			Limit(1)
		if r.isPostgres() {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var job models.Job
		res := q.Find(&job)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		upd := tx.Model(&models.Job{}).
			Where("id = ? AND state = ?", job.ID, config.JobStatePending).
			Updates(map[string]any{
				"state":      config.JobStateProcessing,
				"updated_at": now,
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return nil
		}

		job.State = config.JobStateProcessing
		job.UpdatedAt = now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}
