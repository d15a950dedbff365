// Package jobs runs fire-and-forget background work with bounded retries.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

type Job struct {
	Name     string
	EntityID string
	// Run is called once per attempt with a context bounded by the queue timeout.
	Run func(ctx context.Context) error
	// OnFailure is called once after the last attempt failed. It is not called
	// when the queue is closed while the job is still retrying.
	OnFailure func(ctx context.Context, err error)
}

type Options struct {
	Workers         int
	MaxRetries      int
	Timeout         time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type Queue struct {
	pool   *ants.Pool
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

func NewQueue(opts Options, log *zap.Logger) (*Queue, error) {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 30 * time.Second
	}

	pool, err := ants.NewPool(opts.Workers,
		ants.WithMaxBlockingTasks(opts.Workers*64),
		ants.WithPanicHandler(func(p any) {
			log.Error("job panicked", zap.Any("panic", p))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create job pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{pool: pool, opts: opts, ctx: ctx, cancel: cancel, log: log}, nil
}

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Dispatch schedules the job without waiting for it to run.
func (q *Queue) Dispatch(job Job) error {
	if err := q.pool.Submit(func() { q.run(job) }); err != nil {
		if errors.Is(err, ants.ErrPoolClosed) {
			return fmt.Errorf("job queue closed: %w", err)
		}
		return fmt.Errorf("dispatch %s: %w", job.Name, err)
	}
	return nil
}

func (q *Queue) run(job Job) {
	log := q.log.With(zap.String("job", job.Name), zap.String("entity_id", job.EntityID))

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = q.opts.InitialInterval
	exp.MaxInterval = q.opts.MaxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(q.opts.MaxRetries)), q.ctx)

	attempt := 0
	op := func() error {
		attempt++
		ctx, cancel := context.WithTimeout(q.ctx, q.opts.Timeout)
		defer cancel()
		return job.Run(ctx)
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("job attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	start := time.Now()
	err := backoff.RetryNotify(op, policy, notify)
	if err == nil {
		log.Debug("job done", zap.Int("attempts", attempt), zap.Duration("took", time.Since(start)))
		return
	}

	if q.ctx.Err() != nil {
		// Shutdown interrupted the job; leave the entity for the next run to pick up.
		log.Warn("job interrupted by shutdown", zap.Int("attempts", attempt), zap.Error(err))
		return
	}

	log.Error("job failed", zap.Int("attempts", attempt), zap.Error(err))
	if job.OnFailure != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(q.ctx), q.opts.Timeout)
		defer cancel()
		job.OnFailure(ctx, err)
	}
}

func (q *Queue) Running() int {
	return q.pool.Running()
}

// Close waits up to timeout for in-flight jobs, then stops pending retries.
func (q *Queue) Close(timeout time.Duration) error {
	err := q.pool.ReleaseTimeout(timeout)
	q.cancel()
	return err
}
