package cmd

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/streamctl/internal/config"
	errwrap "github.com/3leaps/streamctl/internal/errors"
	"github.com/3leaps/streamctl/internal/observability"
)

var (
	doctorProvider string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the environment, configuration, workspace and
registry, and suggest fixes for common issues.

Examples:
  streamctl doctor                 # Full environment check
  streamctl doctor --provider s3   # Also check AWS credentials`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorProvider, "provider", "", "Run provider-specific checks (s3)")
}

// doctorCheck is one diagnostic. run returns the detail shown after the
// check mark.
type doctorCheck struct {
	name string
	run  func(ctx context.Context) (string, error)
}

func runDoctor(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	logger := observability.CLILogger
	banner := config.AppName + " doctor"
	logger.Info("=== " + banner + " ===")
	logger.Info("")

	version := crucible.GetVersion()
	if version.Crucible == "" {
		logger.Error("Checking Crucible access... ❌ Cannot access Crucible")
		ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Cannot access Crucible",
			errwrap.NewExternalServiceError("Crucible service unavailable"))
		return
	}
	logger.Info("Running diagnostic checks...", zap.String("crucible_version", version.Crucible))
	logger.Info("")

	var cfg *config.Config
	checks := []doctorCheck{
		{name: "Go version", run: checkGoVersion},
		{name: "Gofulmen access", run: func(context.Context) (string, error) {
			if version.Gofulmen == "" {
				return "", errors.New("cannot access Gofulmen")
			}
			return "v" + version.Gofulmen, nil
		}},
		{name: "configuration", run: func(ctx context.Context) (string, error) {
			c, err := loadConfig(ctx)
			if err != nil {
				return "", err
			}
			cfg = c
			return fmt.Sprintf("registry=%s tracking=%t", c.Registry.Backend, c.Tracking.Enabled), nil
		}},
		{name: "workspace", run: func(context.Context) (string, error) {
			if cfg == nil {
				return "", errors.New("configuration not loaded")
			}
			ws, err := newWorkspace(cfg.Workspace)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("local=%s remote=%s", ws.LocalRoot, ws.RemoteRoot), nil
		}},
		{name: "registry", run: func(ctx context.Context) (string, error) {
			if cfg == nil {
				return "", errors.New("configuration not loaded")
			}
			return checkRegistry(ctx, cfg.Registry)
		}},
		{name: "environment", run: func(context.Context) (string, error) {
			return runtime.GOOS + "/" + runtime.GOARCH, nil
		}},
	}
	if doctorProvider == "s3" {
		checks = append(checks, doctorCheck{name: "AWS credentials", run: checkAWSCredentials})
	}
	checks = append(checks, doctorCheck{name: "redis lease store", run: func(ctx context.Context) (string, error) {
		if cfg == nil {
			return "", errors.New("configuration not loaded")
		}
		return checkRedis(ctx, cfg.Redis)
	}})

	allChecks := true
	for i, c := range checks {
		detail, err := c.run(ctx)
		prefix := fmt.Sprintf("[%d/%d] Checking %s...", i+1, len(checks), c.name)
		if err != nil {
			logger.Error(prefix+" ❌ "+err.Error(), zap.String("check", c.name))
			if c.name == "AWS credentials" {
				printAWSCredentialsHelp()
			}
			allChecks = false
			continue
		}
		logger.Info(prefix+" ✅ "+detail, zap.String("check", c.name))
	}

	logger.Info("")
	if allChecks {
		logger.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", config.AppName))
	} else {
		logger.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	logger.Info("")
	logger.Info("=== End Diagnostics ===")
}

func checkGoVersion(context.Context) (string, error) {
	v := runtime.Version()
	if v < "go1.23" {
		return "", fmt.Errorf("%s (recommended: go1.23+)", v)
	}
	return v, nil
}

// checkRegistry opens the configured registry and lists it once.
func checkRegistry(ctx context.Context, cfg config.RegistryConfig) (string, error) {
	reg, err := openRegistry(ctx, cfg)
	if err != nil {
		return "", err
	}
	defer func() { _ = reg.Close() }()

	apps, skipped, err := reg.List(ctx)
	if err != nil {
		return "", err
	}
	detail := fmt.Sprintf("%s, %d applications", cfg.Backend, len(apps))
	if len(skipped) > 0 {
		detail += fmt.Sprintf(" (%d unreadable)", len(skipped))
	}
	if store, ok := reg.History(); ok {
		if err := store.Ping(ctx); err != nil {
			return "", err
		}
		tracked, err := store.CountTracked(ctx)
		if err != nil {
			return "", err
		}
		detail += fmt.Sprintf(", %d tracked", tracked)
	}
	return detail, nil
}

// checkRedis pings the lease store. Without redis.addr the poller runs
// unleased, which is not a failure.
func checkRedis(ctx context.Context, cfg config.RedisConfig) (string, error) {
	if cfg.Addr == "" {
		return "not configured (poller runs without a lease)", nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	defer func() { _ = client.Close() }()
	if err := client.Ping(ctx).Err(); err != nil {
		return "", err
	}
	return cfg.Addr, nil
}

func checkAWSCredentials(ctx context.Context) (string, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("cannot load AWS config: %w", err)
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("cannot retrieve credentials: %w", err)
	}
	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	return fmt.Sprintf("%s (source: %s)", maskAccessKey(creds.AccessKeyID), source), nil
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// printAWSCredentialsHelp prints help for configuring AWS credentials.
func printAWSCredentialsHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To configure AWS credentials:")
	observability.CLILogger.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	observability.CLILogger.Info("  2. Run 'aws configure' to set up a profile, or")
	observability.CLILogger.Info("  3. Use IAM role when running on AWS infrastructure")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("For S3-compatible storage (MinIO, Wasabi, etc.), also set storage.s3.endpoint")
	observability.CLILogger.Info("")
}
