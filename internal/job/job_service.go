package job

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/joshu-sajeev/queuectl/common"
	"github.com/joshu-sajeev/queuectl/internal/config"
	"github.com/joshu-sajeev/queuectl/internal/dto"
	"github.com/joshu-sajeev/queuectl/internal/models"
	"github.com/joshu-sajeev/queuectl/internal/storage"
	"github.com/sirupsen/logrus"
)

type JobService struct {
	repo  JobRepoInterface
	cfg   *config.Config
	newID func() string
	log   logrus.FieldLogger
}

func NewJobService(repo JobRepoInterface, cfg *config.Config, log logrus.FieldLogger) *JobService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &JobService{repo: repo, cfg: cfg, newID: uuid.NewString, log: log}
}

var _ JobServiceInterface = (*JobService)(nil)

// mapError turns a store error into an APIError. Unexpected errors are
// logged and reported with the generic msg only.
func (s *JobService) mapError(err error, msg string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return common.Errf(http.StatusRequestTimeout, "request timed out")
	case errors.Is(err, storage.ErrDuplicateID):
		return common.Conflict("job id already exists")
	case errors.Is(err, storage.ErrNotFound):
		return common.NotFound("job not found")
	}
	s.log.WithError(err).Error(msg)
	return common.Internal("%s", msg)
}

// Enqueue validates the request, fills in the id and max_retries defaults
// and stores a new PENDING job.
func (s *JobService) Enqueue(ctx context.Context, req *dto.EnqueueDTO) (*dto.JobResponseDTO, error) {
	if strings.TrimSpace(req.Command) == "" {
		return nil, common.BadRequest("command is required")
	}

	maxRetries := s.cfg.GetInt(config.KeyMaxRetries, 3)
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 {
			return nil, common.BadRequest("max_retries must be non-negative")
		}
		maxRetries = *req.MaxRetries
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = s.newID()
	}

	job := &models.Job{
		ID:         id,
		Command:    req.Command,
		State:      config.JobStatePending,
		MaxRetries: maxRetries,
	}
	if err := s.repo.Save(ctx, job); err != nil {
		switch {
		case errors.Is(err, storage.ErrDeadLettered):
			return nil, common.Conflict("job %s is in the dead letter queue, use dlq-retry", id)
		case errors.Is(err, storage.ErrDuplicateID):
			return nil, common.Conflict("job %s already exists", id)
		}
		return nil, s.mapError(err, "failed to enqueue job")
	}

	resp := dto.NewJobResponse(job)
	return &resp, nil
}

func (s *JobService) GetJob(ctx context.Context, id string) (*dto.JobResponseDTO, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err, "failed to get job")
	}
	resp := dto.NewJobResponse(job)
	return &resp, nil
}

// ListByState accepts the state name in any case.
func (s *JobService) ListByState(ctx context.Context, state string) ([]dto.JobResponseDTO, error) {
	st, err := config.ParseJobState(state)
	if err != nil {
		return nil, common.NewAPIError(http.StatusBadRequest, err.Error(), map[string]any{
			"provided": state,
			"allowed":  config.AllJobStates,
		})
	}

	jobs, err := s.repo.ListByState(ctx, st)
	if err != nil {
		return nil, s.mapError(err, "failed to list jobs")
	}

	out := make([]dto.JobResponseDTO, 0, len(jobs))
	for i := range jobs {
		out = append(out, dto.NewJobResponse(&jobs[i]))
	}
	return out, nil
}

func (s *JobService) Status(ctx context.Context) (*dto.StatusDTO, error) {
	counts, err := s.repo.CountByState(ctx)
	if err != nil {
		return nil, s.mapError(err, "failed to count jobs")
	}
	dead, err := s.repo.CountDLQ(ctx)
	if err != nil {
		return nil, s.mapError(err, "failed to count dead letter queue")
	}
	return &dto.StatusDTO{Jobs: counts, DeadLettered: dead}, nil
}

func (s *JobService) ListDLQ(ctx context.Context) ([]dto.DeadLetterDTO, error) {
	entries, err := s.repo.ListDLQ(ctx)
	if err != nil {
		return nil, s.mapError(err, "failed to list dead letter queue")
	}

	out := make([]dto.DeadLetterDTO, 0, len(entries))
	for i := range entries {
		out = append(out, dto.NewDeadLetter(&entries[i]))
	}
	return out, nil
}

// RetryDLQ puts a dead-lettered job back in the queue as a fresh PENDING
// job with no retry history.
func (s *JobService) RetryDLQ(ctx context.Context, id string) (*dto.JobResponseDTO, error) {
	job, err := s.repo.RestoreFromDLQ(ctx, id, s.cfg.GetInt(config.KeyMaxRetries, 3))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, common.NotFound("job %s not found in dead letter queue", id)
		case errors.Is(err, storage.ErrDuplicateID):
			return nil, common.Conflict("job %s already exists in the queue", id)
		}
		return nil, s.mapError(err, "failed to retry job")
	}
	resp := dto.NewJobResponse(job)
	return &resp, nil
}

// SetConfig validates and applies the value, then persists it so later
// processes start with it. The in-memory value is rolled back if the write
// fails.
func (s *JobService) SetConfig(ctx context.Context, key, value string) error {
	prev, ok := s.cfg.Get(key)
	if !ok {
		return common.NewAPIError(http.StatusBadRequest, "unknown config key", map[string]any{
			"provided": key,
			"allowed":  s.cfg.Keys(),
		})
	}

	if err := s.cfg.Set(key, value); err != nil {
		return common.BadRequest("%s", err.Error())
	}

	normalized, _ := s.cfg.Get(key)
	if err := s.repo.SaveSetting(ctx, key, normalized); err != nil {
		_ = s.cfg.Set(key, prev)
		return s.mapError(err, "failed to save config")
	}
	return nil
}

func (s *JobService) ShowConfig(ctx context.Context) map[string]string {
	return s.cfg.Values()
}
