package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/streamctl/internal/observability"
	"github.com/3leaps/streamctl/pkg/jobregistry"
	"github.com/3leaps/streamctl/pkg/preflight"
	"github.com/3leaps/streamctl/pkg/workspace"
)

var (
	preflightMode string
	preflightJSON bool
)

var appPreflightCmd = &cobra.Command{
	Use:   "preflight <id>",
	Short: "Probe whether an application's lib directory is usable",
	Long: `Probe the storage an application's artifacts are staged on before running
'app stage'.

Modes:
  plan-only    resolve the lib directory and backend; no provider calls
  read-safe    list the lib directory and head a random key (default)
  write-probe  also put and delete a zero-byte probe object

Examples:
  streamctl app preflight 100
  streamctl app preflight 100 --mode write-probe --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := preflight.ParseMode(preflightMode)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --mode value", err)
		}
		ctx := cmd.Context()
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		ws, err := newWorkspace(cfg.Workspace)
		if err != nil {
			return err
		}
		ops, err := newOperators(ctx, ws, cfg)
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to set up storage", err)
		}
		reg, err := openRegistry(ctx, cfg.Registry)
		if err != nil {
			return err
		}
		defer func() { _ = reg.Close() }()

		stager := workspace.Stager{Workspace: ws, Operators: ops}
		return runPreflight(ctx, cmd.OutOrStdout(), reg, stager, args[0], mode, preflightJSON)
	},
}

func init() {
	appCmd.AddCommand(appPreflightCmd)
	appPreflightCmd.Flags().StringVar(&preflightMode, "mode", string(preflight.ModeReadSafe), "Preflight mode (plan-only|read-safe|write-probe)")
	appPreflightCmd.Flags().BoolVar(&preflightJSON, "json", false, "Output as JSON")
}

// runPreflight prints the report even when a check fails, then maps the
// failure to an exit code.
func runPreflight(ctx context.Context, out io.Writer, reg jobregistry.Registry, stager workspace.Stager, id string, mode preflight.Mode, asJSON bool) error {
	app, err := getApp(ctx, reg, id)
	if err != nil {
		return err
	}

	rec, pfErr := preflight.Lib(ctx, stager, app, mode)
	if pfErr != nil && errors.Is(pfErr, workspace.ErrUnsupportedExecutionMode) {
		return exitError(foundry.ExitInvalidArgument, "Mode has no staging storage", pfErr)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return err
		}
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "Lib:\t%s (%s)\n", rec.Lib, rec.Storage)
		for _, r := range rec.Results {
			status := "ok"
			if !r.Allowed {
				status = "DENIED " + r.ErrorCode
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.Capability, r.Method, status)
		}
		_ = w.Flush()
	}

	if pfErr != nil {
		observability.CLILogger.Warn("Preflight failed", zap.String("id", app.ID), zap.Error(pfErr))
		return exitError(foundry.ExitExternalServiceUnavailable, "Preflight failed", pfErr)
	}
	return nil
}
