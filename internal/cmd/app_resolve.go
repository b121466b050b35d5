package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/streamctl/internal/observability"
	"github.com/3leaps/streamctl/pkg/appstore"
	"github.com/3leaps/streamctl/pkg/jobregistry"
	"github.com/3leaps/streamctl/pkg/output"
	"github.com/3leaps/streamctl/pkg/workspace"
)

var resolveOutput string

var appResolveCmd = &cobra.Command{
	Use:   "resolve <id>...",
	Short: "Resolve where applications' artifacts live (JSONL)",
	Long: `Resolve the home, lib and dist directories, the storage type and the YARN
queue routing of one or more applications. One streamctl.resolution.v1
record is written per application; failures are written as
streamctl.error.v1 records.

Examples:
  streamctl app resolve 100
  streamctl app resolve 100 101 --output resolution.jsonl`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		ws, err := newWorkspace(cfg.Workspace)
		if err != nil {
			return err
		}
		reg, err := openRegistry(ctx, cfg.Registry)
		if err != nil {
			return err
		}
		defer func() { _ = reg.Close() }()

		w, cleanup, err := createWriter(cmd.OutOrStdout(), resolveOutput, uuid.NewString(), "resolve")
		if err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
		}
		defer cleanup()
		return resolveApps(ctx, w, reg, ws, args)
	},
}

var (
	stageName    string
	stageJSON    bool
	historyLimit int
	historyJSON  bool
)

var appStageCmd = &cobra.Command{
	Use:   "stage <id> <file>",
	Short: "Upload an artifact into an application's lib directory",
	Long: `Upload a local file into the application's lib directory on the storage its
execution mode deploys from: the local workspace for LOCAL_FS modes, the
remote base (s3:// or a filesystem path) for REMOTE_FS modes.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
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
		return stageArtifact(ctx, cmd.OutOrStdout(), reg, stager, args[0], args[1], stageName, stageJSON)
	},
}

var appHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show recorded state transitions (sqlite registry only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(ctx context.Context, reg *registryHandle) error {
			store, ok := reg.History()
			if !ok {
				return exitError(foundry.ExitInvalidArgument, "History unavailable",
					errors.New("transition history requires registry.backend=sqlite"))
			}
			return showHistory(ctx, cmd.OutOrStdout(), reg, store, args[0], historyLimit, historyJSON)
		})
	},
}

func init() {
	appCmd.AddCommand(appResolveCmd)
	appCmd.AddCommand(appStageCmd)
	appCmd.AddCommand(appHistoryCmd)

	appResolveCmd.Flags().StringVarP(&resolveOutput, "output", "o", "", "Output destination (default stdout)")

	appStageCmd.Flags().StringVar(&stageName, "name", "", "Artifact name in lib (default: file base name)")
	appStageCmd.Flags().BoolVar(&stageJSON, "json", false, "Output as JSON")

	appHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "Newest N transitions (0 for all)")
	appHistoryCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
}

// resolveApps writes one resolution record per id. Lookup and resolution
// failures become error records; only writer failures stop the run.
func resolveApps(ctx context.Context, w output.Writer, reg jobregistry.Registry, ws workspace.Workspace, ids []string) error {
	failed := 0
	for _, id := range ids {
		rec, err := resolveOne(ctx, reg, ws, id)
		if err != nil {
			failed++
			observability.CLILogger.Warn("Resolution failed", zap.String("id", id), zap.Error(err))
			werr := w.WriteError(ctx, &output.ErrorRecord{
				Code:    output.ErrorCode(err),
				Message: err.Error(),
				AppID:   id,
			})
			if werr != nil {
				return exitError(foundry.ExitFileWriteError, "Failed to write output", werr)
			}
			continue
		}
		if err := w.WriteResolution(ctx, rec); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
	}
	if failed == len(ids) {
		return exitError(foundry.ExitInvalidArgument, "No application resolved", fmt.Errorf("%d of %d failed", failed, len(ids)))
	}
	return nil
}

func resolveOne(ctx context.Context, reg jobregistry.Registry, ws workspace.Workspace, id string) (*output.ResolutionRecord, error) {
	app, err := reg.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return output.Resolve(ws, app)
}

func stageArtifact(ctx context.Context, out io.Writer, reg jobregistry.Registry, stager workspace.Stager, id, path, name string, asJSON bool) error {
	app, err := getApp(ctx, reg, id)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return exitError(foundry.ExitFileNotFound, "Artifact not found", err)
		}
		return exitError(foundry.ExitFileReadError, "Cannot open artifact", err)
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot stat artifact", err)
	}
	if name == "" {
		name = filepath.Base(path)
	}

	staged, err := stager.StageLib(ctx, app, name, f, info.Size())
	if err != nil {
		switch {
		case errors.Is(err, workspace.ErrUnsupportedExecutionMode):
			return exitError(foundry.ExitInvalidArgument, "Mode has no staging storage", err)
		default:
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to stage artifact", err)
		}
	}

	if asJSON {
		return json.NewEncoder(out).Encode(staged)
	}
	_, _ = fmt.Fprintf(out, "%s (%s, %d bytes)\n", staged.Path, staged.Storage, staged.Size)
	return nil
}

func showHistory(ctx context.Context, out io.Writer, reg jobregistry.Registry, store *appstore.Store, id string, limit int, asJSON bool) error {
	app, err := getApp(ctx, reg, id)
	if err != nil {
		return err
	}
	history, err := store.Transitions(ctx, app.ID, limit)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to read history", err)
	}

	if asJSON {
		type entry struct {
			Seq        int64  `json:"seq"`
			RunID      string `json:"run_id,omitempty"`
			From       string `json:"from"`
			To         string `json:"to"`
			Action     string `json:"action,omitempty"`
			OccurredAt string `json:"occurred_at"`
		}
		entries := make([]entry, 0, len(history))
		for _, tr := range history {
			entries = append(entries, entry{
				Seq:        tr.Seq,
				RunID:      tr.RunID,
				From:       tr.From.String(),
				To:         tr.To.String(),
				Action:     tr.Action,
				OccurredAt: tr.OccurredAt.UTC().Format(time.RFC3339),
			})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()
	_, _ = fmt.Fprintln(w, "SEQ\tAT\tFROM\tTO\tACTION\tRUN")
	for _, tr := range history {
		action, run := tr.Action, tr.RunID
		if action == "" {
			action = "-"
		}
		if run == "" {
			run = "-"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			tr.Seq, tr.OccurredAt.UTC().Format(time.RFC3339), tr.From, tr.To, action, run)
	}
	return nil
}
