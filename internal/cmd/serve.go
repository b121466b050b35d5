package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/streamctl/internal/config"
	"github.com/3leaps/streamctl/internal/observability"
	"github.com/3leaps/streamctl/internal/server"
	"github.com/3leaps/streamctl/internal/server/handlers"
	"github.com/3leaps/streamctl/pkg/jobregistry"
	"github.com/3leaps/streamctl/pkg/tracking"
)

var (
	serveHost  string
	servePort  int
	serveTrack bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the read-only HTTP API",
	Long: `Serve health, version, metrics and read-only application endpoints.
With tracking.enabled (or --track) the state poller runs in the background
every tracking.interval.

Examples:
  streamctl serve
  streamctl serve --port 9000 --track`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Override server.host")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Override server.port")
	serveCmd.Flags().BoolVar(&serveTrack, "track", false, "Run the state poller in the background")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	logger, err := observability.NewServerLogger(config.AppName, cfg.Logging.Level)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	defer func() { _ = logger.Sync() }()
	observability.CLILogger = logger

	ws, err := newWorkspace(cfg.Workspace)
	if err != nil {
		return err
	}
	reg, err := openRegistry(ctx, cfg.Registry)
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close() }()

	health := handlers.InitHealthManager(versionInfo.Version)
	if cfg.Health.Enabled {
		health.RegisterChecker("registry", registryHealthChecker{reg: reg, path: cfg.Registry.Path})
	}

	apps := &handlers.AppsHandler{Registry: reg, Workspace: ws}
	if store, ok := reg.History(); ok {
		apps.Transitions = store
	}

	opts := []server.Option{
		server.WithApps(apps),
		server.WithLogger(logger),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, server.WithMetrics(cfg.Metrics.Path))
	}
	srv := server.New(cfg.Server.Host, cfg.Server.Port, opts...)

	if cfg.Tracking.Enabled || serveTrack {
		p, closePoller := newPoller(reg, nil, cfg.Tracking, cfg.Redis, logger)
		defer closePoller()
		if cfg.Health.Enabled && cfg.Redis.Addr != "" {
			client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
			defer func() { _ = client.Close() }()
			health.RegisterChecker("redis", redisHealthChecker{client: client})
		}
		go trackLoop(ctx, p, cfg.Tracking.Interval, logger)
	}

	logger.Info("Starting server",
		zap.String("addr", srv.Addr()),
		zap.String("registry", cfg.Registry.Backend),
		zap.Bool("metrics", cfg.Metrics.Enabled),
		zap.Bool("tracking", cfg.Tracking.Enabled || serveTrack))

	if err := srv.Start(ctx, cfg.Server.ShutdownTimeout); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}
	return nil
}

// trackLoop runs a poll pass every interval until ctx is done.
func trackLoop(ctx context.Context, p *tracking.Poller, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		_, _ = pollOnce(ctx, p, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// registryHealthChecker pings the database, or checks the file registry
// root is usable. A root that does not exist yet is healthy; it is created
// on first write.
type registryHealthChecker struct {
	reg  *registryHandle
	path string
}

func (c registryHealthChecker) CheckHealth(ctx context.Context) error {
	if store, ok := c.reg.History(); ok {
		return store.Ping(ctx)
	}
	info, err := os.Stat(c.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("registry root: %w", err)
	case !info.IsDir():
		return fmt.Errorf("registry root %s is not a directory", c.path)
	}
	return nil
}

type redisHealthChecker struct {
	client redis.UniversalClient
}

func (c redisHealthChecker) CheckHealth(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

var (
	_ handlers.HealthChecker = registryHealthChecker{}
	_ handlers.HealthChecker = redisHealthChecker{}
	_ jobregistry.Registry   = (*registryHandle)(nil)
)
