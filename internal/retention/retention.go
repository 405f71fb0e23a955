// Package retention prunes aged, already-read action records on a cron
// schedule. Unread records are never touched.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/focusapp/focus/internal/otel"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Store is the pruning surface of the persistence layer.
type Store interface {
	PruneReadActions(ctx context.Context, olderThan time.Time) (int64, error)
}

// Config holds the dependencies for the pruner.
type Config struct {
	Store    Store
	Logger   *slog.Logger
	Metrics  *otel.Metrics
	Schedule string // 5-field cron expression; empty disables pruning
	MaxAge   time.Duration
}

// Pruner deletes read action records older than MaxAge whenever the cron
// schedule fires.
type Pruner struct {
	store    Store
	logger   *slog.Logger
	metrics  *otel.Metrics
	schedule cronlib.Schedule
	maxAge   time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New parses the schedule and builds the pruner. A nil pruner with nil
// error means pruning is disabled.
func New(cfg Config) (*Pruner, error) {
	if cfg.Schedule == "" {
		return nil, nil
	}
	sched, err := cronParser.Parse(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 90 * 24 * time.Hour
	}
	return &Pruner{
		store:    cfg.Store,
		logger:   logger,
		metrics:  cfg.Metrics,
		schedule: sched,
		maxAge:   maxAge,
	}, nil
}

// Start begins the pruning loop in a background goroutine.
func (p *Pruner) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.loop(ctx)
	p.logger.Info("retention pruner started", "max_age", p.maxAge)
}

// Stop cancels the loop and waits for it to exit.
func (p *Pruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("retention pruner stopped")
}

func (p *Pruner) loop(ctx context.Context) {
	defer p.wg.Done()
	for {
		next := p.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			p.Prune(ctx)
		}
	}
}

// Prune runs one pruning pass. Failures are logged; the loop continues.
func (p *Pruner) Prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.maxAge)
	n, err := p.store.PruneReadActions(ctx, cutoff)
	if err != nil {
		p.logger.Error("retention prune failed", "error", err)
		return
	}
	if p.metrics != nil && n > 0 {
		p.metrics.ActionsPruned.Add(ctx, n)
	}
	if n > 0 {
		p.logger.Info("pruned read actions", "count", n, "older_than", cutoff)
	}
}

// NextRunTime parses the cron expression and returns the next run time
// after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
