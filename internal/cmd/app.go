package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/streamctl/internal/observability"
	"github.com/3leaps/streamctl/internal/server/handlers"
	"github.com/3leaps/streamctl/pkg/application"
	"github.com/3leaps/streamctl/pkg/jobregistry"
	"github.com/3leaps/streamctl/pkg/lifecycle"
	"github.com/3leaps/streamctl/pkg/manifest"
	"github.com/3leaps/streamctl/pkg/match"
)

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Manage application records",
	Long: `Import, inspect and update application records in the registry.

Examples:
  streamctl app import orders.yaml
  streamctl app list --state RUNNING --mode YARN_APPLICATION
  streamctl app status 100 --json
  streamctl app delete 100`,
}

func init() {
	rootCmd.AddCommand(appCmd)
}

// withRegistry loads configuration, opens the registry and runs fn.
func withRegistry(cmd *cobra.Command, fn func(ctx context.Context, reg *registryHandle) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	reg, err := openRegistry(ctx, cfg.Registry)
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close() }()
	return fn(ctx, reg)
}

// --- import ---

type appImportOptions struct {
	Replace bool
}

var importOpts appImportOptions

var appImportCmd = &cobra.Command{
	Use:   "import <manifest>",
	Short: "Import an application definition (YAML or JSON)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(ctx context.Context, reg *registryHandle) error {
			app, err := importManifest(ctx, reg, args[0], importOpts, time.Now())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), app.ID)
			return nil
		})
	},
}

func init() {
	appCmd.AddCommand(appImportCmd)
	appImportCmd.Flags().BoolVar(&importOpts.Replace, "replace", false, "Replace an existing record with the same id")
}

// importManifest loads a manifest and writes the resulting record in state
// ADDED. Replacing a record keeps its runtime state (lifecycle state,
// release state, restart count, creation time and cluster ids); an active
// record cannot be replaced.
func importManifest(ctx context.Context, reg jobregistry.Registry, path string, opts appImportOptions, now time.Time) (*application.Application, error) {
	m, err := manifest.Load(path)
	if err != nil {
		observability.CLILogger.Error("Failed to load manifest", zap.String("path", path), zap.Error(err))
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}
	app, err := m.ToApplication(now)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}

	existing, err := reg.Get(ctx, app.ID)
	switch {
	case errors.Is(err, jobregistry.ErrNotFound):
	case err != nil:
		return nil, exitError(foundry.ExitFileReadError, "Failed to check registry", err)
	case !opts.Replace:
		return nil, exitError(foundry.ExitInvalidArgument, "Application already exists",
			fmt.Errorf("id %s is taken; use --replace", app.ID))
	case lifecycle.IsActive(existing.State()):
		return nil, exitError(foundry.ExitInvalidArgument, "Application is active",
			fmt.Errorf("id %s is %s; stop it before replacing", app.ID, existing.State()))
	default:
		if err := carryRuntimeState(existing, app); err != nil {
			return nil, exitError(foundry.ExitFileReadError, "Failed to replace application", err)
		}
		same, err := existing.SameLogicalPipeline(app)
		if err != nil {
			observability.CLILogger.Warn("Cannot compare pipelines", zap.String("id", app.ID), zap.Error(err))
		} else if same {
			observability.CLILogger.Info("Pipeline unchanged; only settings replaced", zap.String("id", app.ID))
		}
	}

	if err := writeApp(ctx, reg, app); err != nil {
		return nil, err
	}
	observability.CLILogger.Info("Imported application",
		zap.String("id", app.ID),
		zap.String("name", app.JobName),
		zap.Stringer("mode", app.ExecutionMode))
	return app, nil
}

// carryRuntimeState copies what the cluster side owns from the stored
// record onto its replacement.
func carryRuntimeState(from, to *application.Application) error {
	if err := to.SetState(from.State()); err != nil {
		return err
	}
	to.Release = from.Release
	if from.RestartCount != nil {
		n := *from.RestartCount
		to.RestartCount = &n
	}
	to.CreateTime = from.CreateTime
	to.AppID = from.AppID
	to.JobID = from.JobID
	return nil
}

// --- list ---

type appListOptions struct {
	Names    []string
	Exclude  []string
	States   []string
	Modes    []string
	JobTypes []string
	Tracked  bool
	JSON     bool
}

var listOpts appListOptions

var appListCmd = &cobra.Command{
	Use:   "list",
	Short: "List application records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(ctx context.Context, reg *registryHandle) error {
			return listApps(ctx, cmd.OutOrStdout(), reg, listOpts)
		})
	},
}

func init() {
	appCmd.AddCommand(appListCmd)
	f := appListCmd.Flags()
	f.StringSliceVar(&listOpts.Names, "name", nil, "Job name glob (repeatable)")
	f.StringSliceVar(&listOpts.Exclude, "exclude", nil, "Exclude job names matching glob (repeatable)")
	f.StringSliceVar(&listOpts.States, "state", nil, "Only these states (e.g. RUNNING,FAILED)")
	f.StringSliceVar(&listOpts.Modes, "mode", nil, "Only these execution modes")
	f.StringSliceVar(&listOpts.JobTypes, "job-type", nil, "Only these job types")
	f.BoolVar(&listOpts.Tracked, "tracked", false, "Only records the poller tracks")
	f.BoolVar(&listOpts.JSON, "json", false, "Output as JSON")
}

func listApps(ctx context.Context, out io.Writer, reg jobregistry.Registry, opts appListOptions) error {
	filter, err := match.NewFilter(match.FilterConfig{
		Names:       opts.Names,
		Exclude:     opts.Exclude,
		States:      opts.States,
		Modes:       opts.Modes,
		JobTypes:    opts.JobTypes,
		TrackedOnly: opts.Tracked,
	})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid filter", err)
	}

	apps, skipped, err := reg.List(ctx)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to list applications", err)
	}
	for _, id := range skipped {
		observability.CLILogger.Warn("Skipped unreadable record", zap.String("id", id))
	}
	apps = filter.Apply(apps)

	if opts.JSON {
		summaries := make([]handlers.AppSummary, 0, len(apps))
		for _, app := range apps {
			summaries = append(summaries, handlers.NewAppSummary(app))
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()
	_, _ = fmt.Fprintln(w, "ID\tNAME\tTYPE\tMODE\tSTATE\tTRACKED\tMODIFIED")
	for _, app := range apps {
		modified := "-"
		if !app.ModifyTime.IsZero() {
			modified = app.ModifyTime.UTC().Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			app.ID, app.JobName, app.JobType, app.ExecutionMode, app.State(), app.Tracking(), modified)
	}
	return nil
}

// --- status ---

var statusJSON bool

var appStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show one application record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(ctx context.Context, reg *registryHandle) error {
			return showStatus(ctx, cmd.OutOrStdout(), reg, args[0], statusJSON)
		})
	},
}

func init() {
	appCmd.AddCommand(appStatusCmd)
	appStatusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
}

func showStatus(ctx context.Context, out io.Writer, reg jobregistry.Registry, id string, asJSON bool) error {
	app, err := getApp(ctx, reg, id)
	if err != nil {
		return err
	}
	summary := handlers.NewAppSummary(app)
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()
	_, _ = fmt.Fprintf(w, "ID:\t%s\n", summary.ID)
	_, _ = fmt.Fprintf(w, "Name:\t%s\n", summary.JobName)
	_, _ = fmt.Fprintf(w, "Job type:\t%s\n", summary.JobType)
	_, _ = fmt.Fprintf(w, "Mode:\t%s\n", summary.ExecutionMode)
	_, _ = fmt.Fprintf(w, "State:\t%s\n", summary.State)
	_, _ = fmt.Fprintf(w, "Release:\t%s\n", summary.Release)
	_, _ = fmt.Fprintf(w, "Tracked:\t%t\n", summary.Tracking)
	_, _ = fmt.Fprintf(w, "Can start:\t%t\n", summary.CanStart)
	if app.RestartSize != nil {
		count := 0
		if app.RestartCount != nil {
			count = *app.RestartCount
		}
		_, _ = fmt.Fprintf(w, "Restarts:\t%d/%d\n", count, *app.RestartSize)
	}
	if app.ExecutionMode.IsKubernetes() {
		_, _ = fmt.Fprintf(w, "Namespace:\t%s\n", app.K8sNamespace())
	}
	return nil
}

// --- delete ---

var appDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an application record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(ctx context.Context, reg *registryHandle) error {
			return deleteApp(ctx, reg, args[0])
		})
	},
}

func init() {
	appCmd.AddCommand(appDeleteCmd)
}

func deleteApp(ctx context.Context, reg jobregistry.Registry, id string) error {
	app, err := getApp(ctx, reg, id)
	if err != nil {
		return err
	}
	if err := reg.Delete(ctx, app.ID); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to delete application", err)
	}
	observability.CLILogger.Info("Deleted application", zap.String("id", app.ID))
	return nil
}
