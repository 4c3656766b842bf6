package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joshu-sajeev/queuectl/internal/config"
	"github.com/joshu-sajeev/queuectl/internal/models"
	"github.com/sirupsen/logrus"
)

// Store is the subset of the job store a worker drives.
type Store interface {
	ClaimNextPending(ctx context.Context) (*models.Job, error)
	GetState(ctx context.Context, id string) (config.JobState, error)
	UpdateState(ctx context.Context, id string, state config.JobState) error
	UpdateAttempts(ctx context.Context, id string, attempts int) error
	UpdateNextRunAt(ctx context.Context, id string, at *time.Time) error
	DeadLetter(ctx context.Context, id string, attempts int) error
}

// Runner executes a claimed job and persists its terminal state.
type Runner interface {
	Execute(ctx context.Context, job *models.Job) (config.JobState, error)
}

// Settings are captured when the worker is built and never re-read.
type Settings struct {
	BaseBackoff  int
	BackoffMode  string
	PollInterval time.Duration
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Worker struct {
	ID string

	store    Store
	runner   Runner
	settings Settings
	log      logrus.FieldLogger
	metrics  *Metrics
	sleep    SleepFunc
	now      func() time.Time

	running  atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
}

type Option func(*Worker)

func WithLogger(l logrus.FieldLogger) Option {
	return func(w *Worker) { w.log = l }
}

func WithMetrics(m *Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func WithSleep(fn SleepFunc) Option {
	return func(w *Worker) { w.sleep = fn }
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

func New(id string, store Store, runner Runner, s Settings, opts ...Option) *Worker {
	if s.PollInterval <= 0 {
		s.PollInterval = time.Second
	}
	if s.BackoffMode == "" {
		s.BackoffMode = config.BackoffModeSleep
	}

	w := &Worker{
		ID:       id,
		store:    store,
		runner:   runner,
		settings: s,
		log:      logrus.StandardLogger(),
		sleep:    sleepCtx,
		now:      func() time.Time { return time.Now().UTC() },
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.metrics == nil {
		w.metrics = NewMetrics(nil)
	}
	w.log = w.log.WithField("worker_id", id)
	w.running.Store(true)
	return w
}

// Run loops until Stop is called or ctx is canceled. The running flag is
// only checked between iterations, so a job in flight when Stop is called
// runs to completion; canceling ctx interrupts it.
func (w *Worker) Run(ctx context.Context) {
	defer w.doneOnce.Do(func() { close(w.done) })

	w.log.Info("worker started")
	defer w.log.Info("worker stopped")

	for w.running.Load() && ctx.Err() == nil {
		if err := w.iterate(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.WithError(err).Error("worker iteration failed")
			// A broken store would otherwise spin the loop.
			if w.sleep(ctx, w.settings.PollInterval) != nil {
				return
			}
		}
	}
}

// Stop asks the loop to exit after the current iteration.
func (w *Worker) Stop() { w.running.Store(false) }

func (w *Worker) Running() bool { return w.running.Load() }

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) iterate(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.WithField("stack", string(debug.Stack())).Debug("recovered panic")
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	job, err := w.store.ClaimNextPending(ctx)
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	if job == nil {
		return w.sleep(ctx, w.settings.PollInterval)
	}

	w.metrics.Claimed.Inc()
	log := w.log.WithField("job_id", job.ID)
	log.Info("processing job")

	// Bookkeeping after execution has to survive a hard stop, otherwise an
	// interrupted job would be stranded in FAILED.
	bg := context.WithoutCancel(ctx)

	if err := w.store.UpdateState(bg, job.ID, config.JobStateProcessing); err != nil {
		return fmt.Errorf("mark %s processing: %w", job.ID, err)
	}

	start := w.now()
	if _, err := w.runner.Execute(ctx, job); err != nil {
		// The result was not recorded, so nothing else will move the job
		// out of PROCESSING. Run it again rather than strand it.
		if rerr := w.store.UpdateState(bg, job.ID, config.JobStatePending); rerr != nil {
			log.WithError(rerr).Error("could not requeue job after failing to record its result")
		}
		return fmt.Errorf("execute %s: %w", job.ID, err)
	}
	w.metrics.Duration.Observe(w.now().Sub(start).Seconds())

	state, err := w.store.GetState(bg, job.ID)
	if err != nil {
		return fmt.Errorf("read state of %s: %w", job.ID, err)
	}

	switch state {
	case config.JobStateCompleted:
		w.metrics.Completed.Inc()
		log.Info("job completed")
		return nil
	case config.JobStateFailed:
		w.metrics.Failed.Inc()
		return w.handleFailure(ctx, bg, job)
	}
	return nil
}

// handleFailure applies the retry policy to a job whose run just failed.
func (w *Worker) handleFailure(ctx, bg context.Context, job *models.Job) error {
	attempts := job.Attempts + 1
	job.Attempts = attempts

	log := w.log.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"attempts": attempts,
	})

	d := Decide(attempts, job.MaxRetries, w.settings.BaseBackoff)
	if d.DeadLetter {
		if err := w.store.DeadLetter(bg, job.ID, attempts); err != nil {
			return err
		}
		w.metrics.DeadLettered.Inc()
		log.Warn("job moved to dead letter queue")
		return nil
	}

	if err := w.store.UpdateAttempts(bg, job.ID, attempts); err != nil {
		return fmt.Errorf("update attempts of %s: %w", job.ID, err)
	}

	log = log.WithField("delay", d.Delay)

	if w.settings.BackoffMode == config.BackoffModeSchedule {
		at := w.now().Add(d.Delay)
		if err := w.store.UpdateNextRunAt(bg, job.ID, &at); err != nil {
			return fmt.Errorf("schedule %s: %w", job.ID, err)
		}
		if err := w.store.UpdateState(bg, job.ID, config.JobStatePending); err != nil {
			return fmt.Errorf("requeue %s: %w", job.ID, err)
		}
		w.metrics.Retried.Inc()
		log.Info("job scheduled for retry")
		return nil
	}

	if err := w.store.UpdateState(bg, job.ID, config.JobStatePending); err != nil {
		return fmt.Errorf("requeue %s: %w", job.ID, err)
	}
	w.metrics.Retried.Inc()
	log.Info("retrying job after backoff")
	return w.sleep(ctx, d.Delay)
}
