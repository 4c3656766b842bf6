package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/joshu-sajeev/queuectl/internal/config"
	"github.com/joshu-sajeev/queuectl/internal/mocks"
	"github.com/joshu-sajeev/queuectl/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu      sync.Mutex
	results []config.JobState
	err     error
	panics  bool
	calls   int
}

func (f *fakeRunner) Execute(ctx context.Context, job *models.Job) (config.JobState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panics {
		panic("runner exploded")
	}
	if f.err != nil {
		return config.JobStateFailed, f.err
	}
	if len(f.results) == 0 {
		return config.JobStateCompleted, nil
	}
	s := f.results[0]
	f.results = f.results[1:]
	return s, nil
}

type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
	after func(n int)
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	n := len(s.calls)
	s.mu.Unlock()

	if s.after != nil {
		s.after(n)
	}
	return ctx.Err()
}

func (s *sleepRecorder) durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.calls...)
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestWorker(store Store, runner Runner, s Settings, sleeper *sleepRecorder, metrics *Metrics) *Worker {
	return New("worker-1", store, runner, s,
		WithLogger(quietLogger()),
		WithSleep(sleeper.sleep),
		WithMetrics(metrics),
		WithClock(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }),
	)
}

func TestIterate_NoJobSleepsPollInterval(t *testing.T) {
	store := new(mocks.JobRepoMock)
	store.On("ClaimNextPending", mock.Anything).Return(nil, nil)

	sleeper := &sleepRecorder{}
	w := newTestWorker(store, &fakeRunner{}, Settings{BaseBackoff: 2, PollInterval: 250 * time.Millisecond}, sleeper, NewMetrics(nil))

	require.NoError(t, w.iterate(context.Background()))
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, sleeper.durations())
	store.AssertExpectations(t)
}

func TestIterate_Completed(t *testing.T) {
	job := &models.Job{ID: "job-1", Command: "true", MaxRetries: 3}

	store := new(mocks.JobRepoMock)
	store.On("ClaimNextPending", mock.Anything).Return(job, nil)
	store.On("UpdateState", mock.Anything, "job-1", config.JobStateProcessing).Return(nil)
	store.On("GetState", mock.Anything, "job-1").Return(config.JobStateCompleted, nil)

	metrics := NewMetrics(prometheus.NewRegistry())
	sleeper := &sleepRecorder{}
	w := newTestWorker(store, &fakeRunner{}, Settings{BaseBackoff: 2}, sleeper, metrics)

	require.NoError(t, w.iterate(context.Background()))

	assert.Empty(t, sleeper.durations(), "completed jobs loop again immediately")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Claimed))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Completed))
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "UpdateAttempts", mock.Anything, mock.Anything, mock.Anything)
}

func TestIterate_FailureRetriesWithBackoff(t *testing.T) {
	tests := []struct {
		name         string
		attempts     int
		base         int
		wantAttempts int
		wantSleep    time.Duration
	}{
		{name: "first failure", attempts: 0, base: 2, wantAttempts: 1, wantSleep: 2 * time.Second},
		{name: "second failure", attempts: 1, base: 2, wantAttempts: 2, wantSleep: 4 * time.Second},
		{name: "base three", attempts: 2, base: 3, wantAttempts: 3, wantSleep: 27 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &models.Job{ID: "job-1", Command: "false", Attempts: tt.attempts, MaxRetries: 5}

			store := new(mocks.JobRepoMock)
			store.On("ClaimNextPending", mock.Anything).Return(job, nil)
			store.On("UpdateState", mock.Anything, "job-1", config.JobStateProcessing).Return(nil)
			store.On("GetState", mock.Anything, "job-1").Return(config.JobStateFailed, nil)
			store.On("UpdateAttempts", mock.Anything, "job-1", tt.wantAttempts).Return(nil)
			store.On("UpdateState", mock.Anything, "job-1", config.JobStatePending).Return(nil)

			metrics := NewMetrics(nil)
			sleeper := &sleepRecorder{}
			w := newTestWorker(store, &fakeRunner{}, Settings{BaseBackoff: tt.base}, sleeper, metrics)

			require.NoError(t, w.iterate(context.Background()))

			assert.Equal(t, []time.Duration{tt.wantSleep}, sleeper.durations())
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Retried))
			store.AssertExpectations(t)
			store.AssertNotCalled(t, "DeadLetter", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestIterate_FailureScheduleMode(t *testing.T) {
	job := &models.Job{ID: "job-1", Command: "false", Attempts: 1, MaxRetries: 3}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	wantAt := now.Add(4 * time.Second)

	store := new(mocks.JobRepoMock)
	store.On("ClaimNextPending", mock.Anything).Return(job, nil)
	store.On("UpdateState", mock.Anything, "job-1", config.JobStateProcessing).Return(nil)
	store.On("GetState", mock.Anything, "job-1").Return(config.JobStateFailed, nil)
	store.On("UpdateAttempts", mock.Anything, "job-1", 2).Return(nil)
	store.On("UpdateNextRunAt", mock.Anything, "job-1", mock.MatchedBy(func(at *time.Time) bool {
		return at != nil && at.Equal(wantAt)
	})).Return(nil)
	store.On("UpdateState", mock.Anything, "job-1", config.JobStatePending).Return(nil)

	sleeper := &sleepRecorder{}
	w := newTestWorker(store, &fakeRunner{}, Settings{BaseBackoff: 2, BackoffMode: config.BackoffModeSchedule}, sleeper, NewMetrics(nil))

	require.NoError(t, w.iterate(context.Background()))

	assert.Empty(t, sleeper.durations(), "schedule mode does not block the worker")
	store.AssertExpectations(t)
}

func TestIterate_ExhaustedRetriesDeadLetters(t *testing.T) {
	job := &models.Job{ID: "job-1", Command: "false", Attempts: 2, MaxRetries: 2}

	store := new(mocks.JobRepoMock)
	store.On("ClaimNextPending", mock.Anything).Return(job, nil)
	store.On("UpdateState", mock.Anything, "job-1", config.JobStateProcessing).Return(nil)
	store.On("GetState", mock.Anything, "job-1").Return(config.JobStateFailed, nil)
	store.On("DeadLetter", mock.Anything, "job-1", 3).Return(nil)

	metrics := NewMetrics(nil)
	sleeper := &sleepRecorder{}
	w := newTestWorker(store, &fakeRunner{}, Settings{BaseBackoff: 2}, sleeper, metrics)

	require.NoError(t, w.iterate(context.Background()))

	assert.Empty(t, sleeper.durations())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DeadLettered))
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "UpdateState", mock.Anything, "job-1", config.JobStatePending)
	store.AssertNotCalled(t, "UpdateState", mock.Anything, "job-1", config.JobStateDead)
	store.AssertNotCalled(t, "UpdateAttempts", mock.Anything, mock.Anything, mock.Anything)
}

func TestIterate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*mocks.JobRepoMock)
		runner *fakeRunner
		errMsg string
	}{
		{
			name: "claim error",
			setup: func(m *mocks.JobRepoMock) {
				m.On("ClaimNextPending", mock.Anything).Return(nil, errors.New("disk I/O error"))
			},
			runner: &fakeRunner{},
			errMsg: "claim: disk I/O error",
		},
		{
			name: "executor cannot persist",
			setup: func(m *mocks.JobRepoMock) {
				m.On("ClaimNextPending", mock.Anything).Return(&models.Job{ID: "job-1"}, nil)
				m.On("UpdateState", mock.Anything, "job-1", config.JobStateProcessing).Return(nil)
				m.On("UpdateState", mock.Anything, "job-1", config.JobStatePending).Return(errors.New("store down"))
			},
			runner: &fakeRunner{err: errors.New("record output: store down")},
			errMsg: "execute job-1",
		},
		{
			name: "panic is recovered",
			setup: func(m *mocks.JobRepoMock) {
				m.On("ClaimNextPending", mock.Anything).Return(&models.Job{ID: "job-1"}, nil)
				m.On("UpdateState", mock.Anything, "job-1", config.JobStateProcessing).Return(nil)
			},
			runner: &fakeRunner{panics: true},
			errMsg: "panic: runner exploded",
		},
		{
			name: "dead letter move fails",
			setup: func(m *mocks.JobRepoMock) {
				m.On("ClaimNextPending", mock.Anything).Return(&models.Job{ID: "job-1", MaxRetries: 0}, nil)
				m.On("UpdateState", mock.Anything, "job-1", mock.Anything).Return(nil)
				m.On("GetState", mock.Anything, "job-1").Return(config.JobStateFailed, nil)
				m.On("DeadLetter", mock.Anything, "job-1", 1).Return(errors.New("dead-letter job-1: database is locked"))
			},
			runner: &fakeRunner{},
			errMsg: "dead-letter job-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(mocks.JobRepoMock)
			tt.setup(store)

			w := newTestWorker(store, tt.runner, Settings{BaseBackoff: 2}, &sleepRecorder{}, NewMetrics(nil))

			err := w.iterate(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestIterate_UnrecordedResultIsRequeued(t *testing.T) {
	store := new(mocks.JobRepoMock)
	store.On("ClaimNextPending", mock.Anything).Return(&models.Job{ID: "job-1", MaxRetries: 3}, nil)
	store.On("UpdateState", mock.Anything, "job-1", config.JobStateProcessing).Return(nil)
	store.On("UpdateState", mock.Anything, "job-1", config.JobStatePending).Return(nil)

	runner := &fakeRunner{err: errors.New("update state: database is locked")}
	w := newTestWorker(store, runner, Settings{BaseBackoff: 2}, &sleepRecorder{}, NewMetrics(nil))

	err := w.iterate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute job-1")

	store.AssertExpectations(t)
	store.AssertNotCalled(t, "GetState", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "DeadLetter", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_ErrorsDoNotStopTheLoop(t *testing.T) {
	store := new(mocks.JobRepoMock)
	store.On("ClaimNextPending", mock.Anything).Return(nil, errors.New("database is locked")).Times(3)
	store.On("ClaimNextPending", mock.Anything).Return(nil, nil)

	var w *Worker
	sleeper := &sleepRecorder{}
	sleeper.after = func(n int) {
		if n == 4 {
			w.Stop()
		}
	}
	w = newTestWorker(store, &fakeRunner{}, Settings{BaseBackoff: 2, PollInterval: time.Second}, sleeper, NewMetrics(nil))

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	assert.False(t, w.Running())
	assert.Len(t, sleeper.durations(), 4)
	store.AssertNumberOfCalls(t, "ClaimNextPending", 4)
}

func TestRun_ContextCancelStops(t *testing.T) {
	store := new(mocks.JobRepoMock)
	store.On("ClaimNextPending", mock.Anything).Return(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	sleeper := &sleepRecorder{after: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	w := newTestWorker(store, &fakeRunner{}, Settings{BaseBackoff: 2}, sleeper, NewMetrics(nil))

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit on cancel")
	}
	assert.Len(t, sleeper.durations(), 2)
}

func TestStopBeforeRun(t *testing.T) {
	store := new(mocks.JobRepoMock)
	w := newTestWorker(store, &fakeRunner{}, Settings{}, &sleepRecorder{}, NewMetrics(nil))

	w.Stop()
	w.Run(context.Background())

	store.AssertNotCalled(t, "ClaimNextPending", mock.Anything)
}

func TestSleepCtx(t *testing.T) {
	require.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}
