package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/sociallink/internal/repository"
)

// Pruner removes stale rows and reports how many.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// Janitor periodically deletes expired revocations, reset tickets and
// sign-in counters.
type Janitor struct {
	tokens repository.AuthTokenRepository
	lim    Pruner
	log    *zap.Logger
	now    func() time.Time
}

// NewJanitor constructs a Janitor.
func NewJanitor(tokens repository.AuthTokenRepository, lim Pruner, log *zap.Logger) *Janitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Janitor{tokens: tokens, lim: lim, log: log, now: time.Now}
}

// RunOnce performs a single sweep.
func (j *Janitor) RunOnce(ctx context.Context) error {
	n, err := j.tokens.PruneExpired(ctx, j.now())
	if err != nil {
		return err
	}
	m, err := j.lim.Prune(ctx)
	if err != nil {
		return err
	}
	j.log.Info("janitor sweep", zap.Int64("tokens", n), zap.Int64("signin_attempts", m))
	return nil
}

// Run sweeps every interval until ctx is done. Failed sweeps are logged and retried on the next tick.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
			j.log.Error("janitor sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
