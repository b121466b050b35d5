// Package cmd implements the streamctl command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/streamctl/internal/config"
	"github.com/3leaps/streamctl/internal/observability"
	"github.com/3leaps/streamctl/internal/server/handlers"
)

type buildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

var versionInfo = buildInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"}

var (
	cfgFile         string
	verbose         bool
	registryBackend string
	registryPath    string
)

var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Manage stream-processing job records and their deployment layout",
	Long: `streamctl keeps a registry of stream-processing job records, resolves where
each job's artifacts live for its execution mode, and tracks job lifecycle
state against the cluster.

Examples:
  streamctl app import orders.yaml
  streamctl app list --tracked
  streamctl app resolve 100
  streamctl serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		observability.InitCLILogger(config.AppName, verbose)
		config.SetConfigFile(cfgFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: search user config dir, ~/.streamctl, .)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&registryBackend, "registry-backend", "", "Override registry backend (file|sqlite)")
	rootCmd.PersistentFlags().StringVar(&registryPath, "registry", "", "Override registry path")
}

// SetVersionInfo records build metadata for `version` and /version.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	handlers.SetVersionInfo(version, commit, buildDate)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, "Error:", err)

	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}

// cliError carries the exit code a command failed with.
type cliError struct {
	code    int
	message string
	err     error
}

func (e *cliError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.message, e.err, e.code)
}

func (e *cliError) Unwrap() error { return e.err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	if err == nil {
		err = errors.New(message)
	}
	return &cliError{code: code, message: message, err: err}
}

// ExitWithCode logs err and terminates the process. Only for checks that
// cannot return an error to cobra.
func ExitWithCode(logger *zap.Logger, code int, message string, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Error(message, zap.Error(err), zap.Int("exit_code", code))
	_ = logger.Sync()
	os.Exit(code)
}
