package mocks

import (
	"context"
	"time"

	"github.com/joshu-sajeev/queuectl/internal/config"
	"github.com/joshu-sajeev/queuectl/internal/models"
	"github.com/stretchr/testify/mock"
)

type JobRepoMock struct {
	mock.Mock
}

func (m *JobRepoMock) Save(ctx context.Context, job *models.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *JobRepoMock) FindByID(ctx context.Context, id string) (*models.Job, error) {
	args := m.Called(ctx, id)

	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) ListByState(ctx context.Context, state config.JobState) ([]models.Job, error) {
	args := m.Called(ctx, state)

	jobs, _ := args.Get(0).([]models.Job)
	return jobs, args.Error(1)
}

func (m *JobRepoMock) CountByState(ctx context.Context) (map[config.JobState]int64, error) {
	args := m.Called(ctx)

	counts, _ := args.Get(0).(map[config.JobState]int64)
	return counts, args.Error(1)
}

func (m *JobRepoMock) GetState(ctx context.Context, id string) (config.JobState, error) {
	args := m.Called(ctx, id)

	state, _ := args.Get(0).(config.JobState)
	return state, args.Error(1)
}

func (m *JobRepoMock) UpdateState(ctx context.Context, id string, state config.JobState) error {
	args := m.Called(ctx, id, state)
	return args.Error(0)
}

func (m *JobRepoMock) UpdateAttempts(ctx context.Context, id string, attempts int) error {
	args := m.Called(ctx, id, attempts)
	return args.Error(0)
}

func (m *JobRepoMock) UpdateNextRunAt(ctx context.Context, id string, at *time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *JobRepoMock) ClaimNextPending(ctx context.Context) (*models.Job, error) {
	args := m.Called(ctx)

	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) DeadLetter(ctx context.Context, id string, attempts int) error {
	args := m.Called(ctx, id, attempts)
	return args.Error(0)
}

func (m *JobRepoMock) ListDLQ(ctx context.Context) ([]models.DeadLetter, error) {
	args := m.Called(ctx)

	entries, _ := args.Get(0).([]models.DeadLetter)
	return entries, args.Error(1)
}

func (m *JobRepoMock) CountDLQ(ctx context.Context) (int64, error) {
	args := m.Called(ctx)

	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

func (m *JobRepoMock) RestoreFromDLQ(ctx context.Context, id string, defaultMaxRetries int) (*models.Job, error) {
	args := m.Called(ctx, id, defaultMaxRetries)

	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) SaveSetting(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *JobRepoMock) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)

	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

func (m *JobRepoMock) RecoverStranded(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)

	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}
