package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/joshu-sajeev/queuectl/internal/config"
	"github.com/joshu-sajeev/queuectl/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type JobRepository struct {
	db           *gorm.DB
	log          logrus.FieldLogger
	now          func() time.Time
	claimRetries int
	claimBackoff time.Duration
}

type Option func(*JobRepository)

// WithClaimRetries bounds how many times a contended claim transaction is
// attempted before ClaimNextPending gives up and reports no job.
func WithClaimRetries(n int) Option {
	return func(r *JobRepository) {
		if n > 0 {
			r.claimRetries = n
		}
	}
}

func WithClaimBackoff(d time.Duration) Option {
	return func(r *JobRepository) { r.claimBackoff = d }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(r *JobRepository) { r.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(r *JobRepository) { r.now = now }
}

func NewJobRepository(db *gorm.DB, opts ...Option) *JobRepository {
	r := &JobRepository{
		db:           db,
		log:          logrus.StandardLogger(),
		now:          func() time.Time { return time.Now().UTC() },
		claimRetries: 5,
		claimBackoff: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *JobRepository) isPostgres() bool {
	return r.db.Dialector.Name() == DriverPostgres
}

// Save inserts a new job. It fails with ErrDuplicateID if the id is taken,
// and with ErrDeadLettered if the id is still in the dead-letter table.
func (r *JobRepository) Save(ctx context.Context, job *models.Job) error {
	now := r.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.DeadLetter{}).Where("id = ?", job.ID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrDeadLettered
		}
		return translate(tx.Create(job).Error)
	})
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// FindByID returns the job with the given id or ErrNotFound.
func (r *JobRepository) FindByID(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).Take(&job, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("find job %s: %w", id, translate(err))
	}
	return &job, nil
}

// ListByState returns jobs in the given state, oldest first.
func (r *JobRepository) ListByState(ctx context.Context, state config.JobState) ([]models.Job, error) {
	var jobs []models.Job
	if err := r.db.WithContext(ctx).
		Where("state = ?", state).
		Order("created_at ASC").Order("id ASC").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// CountByState returns the number of jobs per state. States with no jobs
// are present with a zero count.
func (r *JobRepository) CountByState(ctx context.Context) (map[config.JobState]int64, error) {
	var rows []struct {
		State config.JobState
		Count int64
	}
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Select("state, COUNT(*) AS count").
		Group("state").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	counts := make(map[config.JobState]int64, len(config.AllJobStates))
	for _, s := range config.AllJobStates {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.State] = row.Count
	}
	return counts, nil
}

// GetState returns the stored state of a job or ErrNotFound.
func (r *JobRepository) GetState(ctx context.Context, id string) (config.JobState, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).Select("state").Take(&job, "id = ?", id).Error; err != nil {
		return "", fmt.Errorf("get state %s: %w", id, translate(err))
	}
	return job.State, nil
}

func (r *JobRepository) UpdateState(ctx context.Context, id string, state config.JobState) error {
	return r.updateColumn(ctx, "update state", id, "state", state)
}

func (r *JobRepository) UpdateOutput(ctx context.Context, id string, output string) error {
	return r.updateColumn(ctx, "update output", id, "output", output)
}

func (r *JobRepository) UpdateAttempts(ctx context.Context, id string, attempts int) error {
	return r.updateColumn(ctx, "update attempts", id, "attempts", attempts)
}

func (r *JobRepository) UpdateLastError(ctx context.Context, id string, msg string) error {
	return r.updateColumn(ctx, "update last error", id, "last_error", msg)
}

// UpdateNextRunAt sets or clears the time before which the job is not
// eligible for claiming.
func (r *JobRepository) UpdateNextRunAt(ctx context.Context, id string, at *time.Time) error {
	return r.updateColumn(ctx, "update next run", id, "next_run_at", at)
}

// updateColumn writes one column and refreshes updated_at in a single
// statement. A missing row is reported as ErrNotFound.
func (r *JobRepository) updateColumn(ctx context.Context, op, id, column string, value any) error {
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			column:       value,
			"updated_at": r.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("%s: %w", op, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return nil
}

// ReleaseStale returns PROCESSING jobs not touched since olderThan back to
// PENDING and reports how many were released.
func (r *JobRepository) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := r.now()
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("state = ? AND updated_at < ?", config.JobStateProcessing, now.Add(-olderThan)).
		Updates(map[string]any{
			"state":      config.JobStatePending,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("release stale jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
