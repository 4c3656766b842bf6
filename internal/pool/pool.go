package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joshu-sajeev/queuectl/internal/config"
	"github.com/joshu-sajeev/queuectl/internal/worker"
	"github.com/sirupsen/logrus"
)

// Store is what the pool's workers and janitor need from the job store.
type Store interface {
	worker.Store
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)
	RecoverStranded(ctx context.Context, olderThan time.Duration) (int64, error)
}

type WorkerPool struct {
	workers       []*worker.Worker
	store         Store
	staleAfter    time.Duration
	janitorPeriod time.Duration
	log           logrus.FieldLogger

	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
}

type options struct {
	log           logrus.FieldLogger
	metrics       *worker.Metrics
	sleep         worker.SleepFunc
	janitorPeriod time.Duration
}

type Option func(*options)

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

func WithMetrics(m *worker.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithSleep(fn worker.SleepFunc) Option {
	return func(o *options) { o.sleep = fn }
}

func WithJanitorPeriod(d time.Duration) Option {
	return func(o *options) { o.janitorPeriod = d }
}

// NewWorkerPool builds count workers sharing store and runner. Settings are
// read from cfg once, here; later config changes do not reach the pool.
func NewWorkerPool(count int, store Store, runner worker.Runner, cfg *config.Config, opts ...Option) *WorkerPool {
	o := options{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = worker.NewMetrics(nil)
	}

	snap := cfg.Snapshot()
	settings := worker.Settings{
		BaseBackoff:  snap.BaseBackoff,
		PollInterval: snap.PollInterval,
		BackoffMode:  snap.BackoffMode,
	}
	staleAfter := snap.StaleAfter

	if o.janitorPeriod <= 0 {
		o.janitorPeriod = min(staleAfter, 30*time.Second)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		store:         store,
		staleAfter:    staleAfter,
		janitorPeriod: o.janitorPeriod,
		log:           o.log,
		ctx:           ctx,
		cancel:        cancel,
	}

	prefix := uuid.NewString()[:8]
	for i := 1; i <= count; i++ {
		wopts := []worker.Option{worker.WithLogger(o.log), worker.WithMetrics(o.metrics)}
		if o.sleep != nil {
			wopts = append(wopts, worker.WithSleep(o.sleep))
		}
		id := fmt.Sprintf("worker-%d-%s", i, prefix)
		p.workers = append(p.workers, worker.New(id, store, runner, settings, wopts...))
	}
	return p
}

// Start launches every worker and, when stale_after is set, the janitor.
// It returns immediately. Calling it twice has no effect.
func (p *WorkerPool) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}

	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *worker.Worker) {
			defer p.wg.Done()
			w.Run(p.ctx)
		}(w)
	}

	if p.staleAfter > 0 {
		p.wg.Add(1)
		go p.janitor()
	}

	p.log.WithField("workers", len(p.workers)).Info("worker pool started")
}

// janitor puts PROCESSING jobs that have not been touched for staleAfter
// back to PENDING and finishes failure handling for FAILED and DEAD jobs a
// worker left behind.
func (p *WorkerPool) janitor() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.janitorPeriod)
	defer ticker.Stop()

	for {
		p.sweep()
		select {
		case <-ticker.C:
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *WorkerPool) sweep() {
	released, err := p.store.ReleaseStale(p.ctx, p.staleAfter)
	if err != nil && p.ctx.Err() == nil {
		p.log.WithError(err).Warn("janitor: release stale jobs")
	}
	if released > 0 {
		p.log.WithField("jobs", released).Warn("janitor: recovered stale jobs")
	}

	repaired, err := p.store.RecoverStranded(p.ctx, p.staleAfter)
	if err != nil && p.ctx.Err() == nil {
		p.log.WithError(err).Warn("janitor: recover stranded jobs")
	}
	if repaired > 0 {
		p.log.WithField("jobs", repaired).Warn("janitor: finished failure handling of stranded jobs")
	}
}

// Stop signals every worker and cancels the shared context at once, so
// running commands are killed. It blocks until all goroutines have exited.
func (p *WorkerPool) Stop() {
	for _, w := range p.workers {
		w.Stop()
	}
	p.cancel()
	p.wg.Wait()
	p.log.Info("worker pool stopped")
}

// Shutdown lets in-flight jobs finish and waits for workers to exit. If ctx
// ends first the remaining work is canceled as in Stop and ctx's error is
// returned.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	for _, w := range p.workers {
		w.Stop()
	}
	if !p.started.Load() {
		p.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.waitWorkers()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.wg.Wait()
		p.log.Info("worker pool drained")
		return nil
	case <-ctx.Done():
		p.log.Warn("shutdown timeout reached, canceling running jobs")
		p.cancel()
		p.wg.Wait()
		return ctx.Err()
	}
}

// waitWorkers returns once no worker reports running work. The janitor is
// left alone; it only exits on cancel.
func (p *WorkerPool) waitWorkers() {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			<-w.Done()
		}(w)
	}
	wg.Wait()
}

// Wait blocks until every worker and the janitor have exited.
func (p *WorkerPool) Wait() { p.wg.Wait() }

// ActiveWorkerCount reports the configured pool size, not how many workers
// are busy.
func (p *WorkerPool) ActiveWorkerCount() int { return len(p.workers) }
