package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/maheshrc27/tweetflow/internal/transfer"
)

const reconcileLockKey = "reconcile:tick"

type Reconciler interface {
	Run(ctx context.Context, manual bool) (*transfer.ReconcileResult, error)
}

// ReconcileJob runs the reconciler on the cron schedule. When a locker is set,
// only the instance holding the tick lease runs a given tick. The lease is
// kept alive while the tick runs, so a long backlog is not cut short.
type ReconcileJob struct {
	r      Reconciler
	locker *redislock.Client
	lease  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
	stopped bool
	wg      sync.WaitGroup
}

func NewReconcileJob(r Reconciler, locker *redislock.Client, lease time.Duration) *ReconcileJob {
	if lease <= 0 {
		lease = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ReconcileJob{r: r, locker: locker, lease: lease, ctx: ctx, cancel: cancel}
}

// Tick is the cron entry point. A tick that fires while the previous one is
// still running does nothing.
func (j *ReconcileJob) Tick() {
	if !j.begin() {
		return
	}
	defer j.end()

	if _, err := j.RunOnce(j.ctx); err != nil {
		slog.Info(err.Error())
	}
}

func (j *ReconcileJob) begin() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.stopped {
		return false
	}
	if j.running {
		slog.Info("reconcile tick skipped, previous tick still running")
		return false
	}
	j.running = true
	j.wg.Add(1)
	return true
}

func (j *ReconcileJob) end() {
	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
	j.wg.Done()
}

// Stop keeps new ticks from starting, tells a running tick to stop claiming
// posts and waits for it to finish its writes, or for ctx to expire.
func (j *ReconcileJob) Stop(ctx context.Context) error {
	j.mu.Lock()
	j.stopped = true
	j.mu.Unlock()
	j.cancel()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce returns a nil result without error when another instance holds the lease.
func (j *ReconcileJob) RunOnce(ctx context.Context) (*transfer.ReconcileResult, error) {
	if j.locker != nil {
		lock, err := j.locker.Obtain(ctx, reconcileLockKey, j.lease, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			slog.Info("reconcile tick skipped, lease held elsewhere")
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		stopRefresh := j.keepLease(lock)
		defer func() {
			stopRefresh()
			if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				slog.Warn("failed to release reconcile lease", "error", err)
			}
		}()
	}

	return j.r.Run(ctx, false)
}

func (j *ReconcileJob) keepLease(lock *redislock.Lock) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(j.lease / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := lock.Refresh(context.Background(), j.lease, nil); err != nil {
					slog.Warn("failed to extend reconcile lease", "error", err)
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}
