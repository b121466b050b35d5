// Package tracking refreshes the state of tracked applications.
//
// A Poller lists the registry, asks a StateFetcher for the cluster-side
// state of every tracked application and writes back a new record for
// each change. Failures are turned into a RESTART or ALERT decision from
// the application's restart budget. Records read from the registry are
// never mutated in place; changes are applied to snapshots.
package tracking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/streamctl/pkg/application"
	"github.com/3leaps/streamctl/pkg/appstore"
	"github.com/3leaps/streamctl/pkg/enums"
	"github.com/3leaps/streamctl/pkg/jobregistry"
	"github.com/3leaps/streamctl/pkg/match"
	"github.com/3leaps/streamctl/pkg/output"
)

// Config configures a Poller.
type Config struct {
	// Concurrency is the number of applications fetched in parallel.
	// Default: 4
	Concurrency int

	// RateLimit is the maximum fetches per second. Zero means unlimited.
	RateLimit float64

	// FetchTimeout bounds a single fetch. Zero means no per-fetch timeout.
	FetchTimeout time.Duration
}

// DefaultConfig returns the default poller configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:  4,
		FetchTimeout: 10 * time.Second,
	}
}

// TransitionRecorder keeps a history of observed changes.
// appstore.Store satisfies it.
type TransitionRecorder interface {
	RecordTransition(ctx context.Context, tr appstore.Transition) error
}

// Summary holds aggregate counts from one poll run.
type Summary struct {
	RunID    string
	Apps     int64
	Polled   int64
	Changed  int64
	Restarts int64
	Alerts   int64
	Errors   int64
	Skipped  []string
	Duration time.Duration
}

// Poller runs poll passes over a registry. A Poller may run repeatedly but
// not concurrently with itself.
type Poller struct {
	registry jobregistry.Registry
	fetcher  StateFetcher
	writer   output.Writer
	config   Config

	filter   *match.Filter
	recorder TransitionRecorder
	lease    *Lease
	logger   *zap.Logger
	now      func() time.Time

	limiter *rate.Limiter

	polled   atomic.Int64
	changed  atomic.Int64
	restarts atomic.Int64
	alerts   atomic.Int64
	errCount atomic.Int64
}

// New creates a poller. writer may be nil.
func New(reg jobregistry.Registry, f StateFetcher, w output.Writer, cfg Config) *Poller {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	p := &Poller{
		registry: reg,
		fetcher:  f,
		writer:   w,
		config:   cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	if cfg.RateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return p
}

// WithFilter restricts polling to applications the filter selects.
func (p *Poller) WithFilter(f *match.Filter) *Poller {
	p.filter = f
	return p
}

// WithRecorder records every change in a transition history.
func (p *Poller) WithRecorder(r TransitionRecorder) *Poller {
	p.recorder = r
	return p
}

// WithLease makes each run hold the lease for its duration.
func (p *Poller) WithLease(l *Lease) *Poller {
	p.lease = l
	return p
}

// WithLogger sets the logger.
func (p *Poller) WithLogger(l *zap.Logger) *Poller {
	if l != nil {
		p.logger = l
	}
	return p
}

// Run performs one poll pass. Per-application failures are written as
// error records and counted; they do not stop the pass. On cancellation a
// partial summary is returned with the context error.
func (p *Poller) Run(ctx context.Context) (*Summary, error) {
	start := p.now()
	runID := uuid.NewString()
	p.reset()

	if p.lease != nil {
		if err := p.lease.Acquire(ctx); err != nil {
			return nil, err
		}
		defer func() {
			// Release even if ctx is already cancelled.
			if err := p.lease.Release(context.WithoutCancel(ctx)); err != nil {
				p.logger.Warn("lease release failed", zap.Error(err))
			}
		}()
		stop := p.lease.keepAlive(ctx, func(err error) {
			p.logger.Warn("lease refresh failed", zap.Error(err))
		})
		defer stop()
	}

	apps, skipped, err := p.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range skipped {
		p.logger.Warn("skipping unreadable record", zap.String("app_id", id))
	}

	var targets []*application.Application
	for _, app := range apps {
		if !app.Tracking() {
			continue
		}
		if p.filter != nil && !p.filter.Match(app) {
			continue
		}
		targets = append(targets, app)
	}

	p.logger.Debug("poll pass starting",
		zap.String("run_id", runID),
		zap.Int("apps", len(apps)),
		zap.Int("tracked", len(targets)))

	runErr := p.pollAll(ctx, runID, targets)

	sum := &Summary{
		RunID:    runID,
		Apps:     int64(len(targets)),
		Polled:   p.polled.Load(),
		Changed:  p.changed.Load(),
		Restarts: p.restarts.Load(),
		Alerts:   p.alerts.Load(),
		Errors:   p.errCount.Load(),
		Skipped:  skipped,
		Duration: p.now().Sub(start),
	}
	if p.writer != nil && runErr == nil {
		if err := p.writer.WriteSummary(ctx, &output.SummaryRecord{
			Apps:          sum.Apps,
			Polled:        sum.Polled,
			Changed:       sum.Changed,
			Errors:        sum.Errors,
			Duration:      sum.Duration,
			DurationHuman: sum.Duration.String(),
		}); err != nil {
			return sum, err
		}
	}
	return sum, runErr
}

func (p *Poller) reset() {
	p.polled.Store(0)
	p.changed.Store(0)
	p.restarts.Store(0)
	p.alerts.Store(0)
	p.errCount.Store(0)
}

// pollAll fans out over apps with bounded concurrency.
func (p *Poller) pollAll(ctx context.Context, runID string, apps []*application.Application) error {
	sem := make(chan struct{}, p.config.Concurrency)

	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for _, app := range apps {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(app *application.Application) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := p.pollOne(ctx, runID, app); err != nil {
				errOnce.Do(func() { firstErr = err })
			}
		}(app)
	}

	wg.Wait()
	if firstErr == nil {
		firstErr = ctx.Err()
	}
	return firstErr
}

// pollOne returns an error only for failures that should end the pass.
func (p *Poller) pollOne(ctx context.Context, runID string, app *application.Application) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	fetchCtx := ctx
	if p.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.config.FetchTimeout)
		defer cancel()
	}

	observed, err := p.fetcher.FetchState(fetchCtx, app)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.reportError(ctx, app.ID, err)
		return nil
	}
	p.polled.Add(1)

	from := app.State()
	if observed == from {
		return nil
	}

	snap := app.Snapshot()
	if err := snap.SetState(observed); err != nil {
		p.reportError(ctx, app.ID, err)
		return nil
	}
	snap.ModifyTime = p.now()

	var action string
	if IsFailure(observed) {
		d := Decide(snap)
		action = d.Action.String()
		if d.Action == enums.CheckpointFailureRestart {
			p.restarts.Add(1)
		} else {
			p.alerts.Add(1)
		}
		p.logger.Info("failure decision",
			zap.String("app_id", app.ID),
			zap.String("state", observed.String()),
			zap.String("action", action),
			zap.Bool("checkpoint_trigger", d.CheckpointTrigger))
	}

	if err := p.registry.Write(ctx, snap); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		p.reportError(ctx, app.ID, err)
		return nil
	}
	p.changed.Add(1)

	if p.recorder != nil {
		if err := p.recorder.RecordTransition(ctx, appstore.Transition{
			AppID:      app.ID,
			RunID:      runID,
			From:       from,
			To:         observed,
			Action:     action,
			OccurredAt: snap.ModifyTime,
		}); err != nil {
			p.logger.Warn("record transition failed", zap.String("app_id", app.ID), zap.Error(err))
		}
	}

	if p.writer != nil {
		return p.writer.WriteState(ctx, &output.StateRecord{
			AppID:        app.ID,
			JobName:      app.JobName,
			From:         from.String(),
			To:           observed.String(),
			Tracking:     snap.Tracking(),
			Action:       action,
			RestartCount: snap.RestartCount,
		})
	}
	return nil
}

func (p *Poller) reportError(ctx context.Context, appID string, err error) {
	p.errCount.Add(1)
	p.logger.Warn("poll failed", zap.String("app_id", appID), zap.Error(err))
	if p.writer == nil {
		return
	}
	_ = p.writer.WriteError(ctx, &output.ErrorRecord{
		Code:    output.ErrorCode(err),
		Message: err.Error(),
		AppID:   appID,
	})
}
