package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/streamctl/internal/config"
	"github.com/3leaps/streamctl/internal/observability"
	"github.com/3leaps/streamctl/pkg/match"
	"github.com/3leaps/streamctl/pkg/output"
	"github.com/3leaps/streamctl/pkg/tracking"
)

type appPollOptions struct {
	Output   string
	Names    []string
	Modes    []string
	Interval time.Duration
	NoLease  bool
}

var pollOpts appPollOptions

var appPollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll tracked applications for state changes",
	Long: `Fetch the current state of every tracked application from its JobManager,
record changes, and decide RESTART or ALERT for failures. State changes
are written as streamctl.state.v1 records.

When redis.addr is configured, each pass holds a lease so only one poller
runs at a time.

Examples:
  streamctl app poll
  streamctl app poll --interval 30s --name 'orders-*'`,
	Args: cobra.NoArgs,
	RunE: runAppPoll,
}

func init() {
	appCmd.AddCommand(appPollCmd)
	f := appPollCmd.Flags()
	f.StringVarP(&pollOpts.Output, "output", "o", "", "Output destination (default stdout)")
	f.StringSliceVar(&pollOpts.Names, "name", nil, "Only job names matching glob (repeatable)")
	f.StringSliceVar(&pollOpts.Modes, "mode", nil, "Only these execution modes")
	f.DurationVar(&pollOpts.Interval, "interval", 0, "Repeat every interval until interrupted (0 runs once)")
	f.BoolVar(&pollOpts.NoLease, "no-lease", false, "Do not take the redis lease")
}

func runAppPoll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	reg, err := openRegistry(ctx, cfg.Registry)
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close() }()

	filter, err := match.NewFilter(match.FilterConfig{Names: pollOpts.Names, Modes: pollOpts.Modes})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid filter", err)
	}

	w, cleanup, err := createWriter(cmd.OutOrStdout(), pollOpts.Output, uuid.NewString(), "tracking")
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
	}
	defer cleanup()

	redisCfg := cfg.Redis
	if pollOpts.NoLease {
		redisCfg.Addr = ""
	}
	p, closePoller := newPoller(reg, w, cfg.Tracking, redisCfg, observability.CLILogger)
	defer closePoller()
	p.WithFilter(filter)

	if pollOpts.Interval <= 0 {
		_, err := pollOnce(ctx, p, observability.CLILogger)
		return err
	}

	ticker := time.NewTicker(pollOpts.Interval)
	defer ticker.Stop()
	for {
		// Failed passes are logged by pollOnce; the next tick retries.
		if _, err := pollOnce(ctx, p, observability.CLILogger); err != nil && ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// newPoller wires the JobManager fetcher, the transition history (sqlite
// registry) and the redis lease (when redisCfg.Addr is set).
func newPoller(reg *registryHandle, w output.Writer, tcfg config.TrackingConfig, redisCfg config.RedisConfig, logger *zap.Logger) (*tracking.Poller, func()) {
	p := tracking.New(reg, tracking.NewJobManagerFetcher(tcfg.FetchTimeout), w, tracking.Config{
		Concurrency:  tcfg.Concurrency,
		RateLimit:    tcfg.RateLimit,
		FetchTimeout: tcfg.FetchTimeout,
	}).WithLogger(logger)

	if store, ok := reg.History(); ok {
		p.WithRecorder(store)
	}

	closeFn := func() {}
	if redisCfg.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		p.WithLease(tracking.NewLease(client, redisCfg.LeaseKey, tcfg.LeaseTTL))
		closeFn = func() { _ = client.Close() }
	}
	return p, closeFn
}

// pollOnce runs one pass and records its metrics.
func pollOnce(ctx context.Context, p *tracking.Poller, logger *zap.Logger) (*tracking.Summary, error) {
	sum, err := p.Run(ctx)
	observability.ObservePoll(sum)
	switch {
	case err == nil:
		logger.Info("Poll completed",
			zap.String("run_id", sum.RunID),
			zap.Int64("apps", sum.Apps),
			zap.Int64("changed", sum.Changed),
			zap.Int64("restarts", sum.Restarts),
			zap.Int64("alerts", sum.Alerts),
			zap.Int64("errors", sum.Errors),
			zap.Duration("duration", sum.Duration))
		return sum, nil
	case errors.Is(err, tracking.ErrLeaseHeld):
		logger.Info("Another poller holds the lease; skipping pass", zap.Error(err))
		return sum, exitError(foundry.ExitExternalServiceUnavailable, "Lease held", err)
	case ctx.Err() != nil:
		logger.Warn("Poll cancelled", zap.Error(err))
		return sum, exitError(foundry.ExitSignalInt, "Poll cancelled", err)
	default:
		logger.Error("Poll failed", zap.Error(err))
		return sum, exitError(foundry.ExitExternalServiceUnavailable, "Poll failed", err)
	}
}
