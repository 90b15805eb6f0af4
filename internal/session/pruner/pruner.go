// Package pruner deletes sessions that are past both their expiry and the replay-detection retention window.
package pruner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const runTimeout = 5 * time.Minute

// Store is the slice of the session repository the pruner needs.
type Store interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pruner removes stale session rows. Rows newer than retention are kept so replayed secrets can still be
// classified as reuse rather than unknown.
type Pruner struct {
	store     Store
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// New returns a Pruner.
func New(store Store, retention time.Duration, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		store:     store,
		retention: retention,
		logger:    logger.With(slog.String("component", "session-pruner")),
		now:       time.Now,
	}
}

// Run deletes once and returns the number of rows removed.
func (p *Pruner) Run(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC().Add(-p.retention)
	n, err := p.store.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruner: %w", err)
	}
	p.logger.InfoContext(ctx, "pruned sessions", slog.Int64("deleted", n), slog.Time("cutoff", cutoff))
	return n, nil
}

// Schedule runs the pruner on a cron spec (standard five-field or a descriptor such as @hourly) until ctx is done.
// Overlapping runs are skipped. It returns after the in-flight run, if any, has finished.
func (p *Pruner) Schedule(ctx context.Context, spec string) error {
	cl := cronLogger{p.logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), runTimeout)
		defer cancel()
		if _, err := p.Run(runCtx); err != nil {
			p.logger.ErrorContext(runCtx, "prune failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("pruner: schedule %q: %w", spec, err)
	}
	c.Start()
	p.logger.InfoContext(ctx, "pruner scheduled", slog.String("schedule", spec), slog.Duration("retention", p.retention))
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{slog.Any("error", err)}, keysAndValues...)...)
}
