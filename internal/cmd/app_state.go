package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/streamctl/internal/observability"
	"github.com/3leaps/streamctl/pkg/appstore"
	"github.com/3leaps/streamctl/pkg/enums"
	"github.com/3leaps/streamctl/pkg/jobregistry"
	"github.com/3leaps/streamctl/pkg/tracking"
)

// manualAction marks transitions made from the command line.
const manualAction = "MANUAL"

var appSetStateCmd = &cobra.Command{
	Use:   "set-state <id> <STATE>",
	Short: "Record a lifecycle state for an application",
	Long: `Record a lifecycle state for an application. STATE is a canonical name such
as RUNNING, FAILED or CANCELED. With the sqlite registry the change is
appended to the transition history.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(ctx context.Context, reg *registryHandle) error {
			var recorder tracking.TransitionRecorder
			if store, ok := reg.History(); ok {
				recorder = store
			}
			return setState(ctx, cmd.OutOrStdout(), reg, recorder, args[0], args[1], time.Now())
		})
	},
}

var appCanStartCmd = &cobra.Command{
	Use:   "can-start <id>",
	Short: "Report whether an application may be submitted again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(ctx context.Context, reg *registryHandle) error {
			return canStart(ctx, cmd.OutOrStdout(), reg, args[0])
		})
	},
}

var appRoutingCmd = &cobra.Command{
	Use:   "routing <id>",
	Short: "Derive the YARN queue routing token from hot params and persist it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(ctx context.Context, reg *registryHandle) error {
			return deriveRouting(ctx, cmd.OutOrStdout(), reg, args[0])
		})
	},
}

func init() {
	appCmd.AddCommand(appSetStateCmd)
	appCmd.AddCommand(appCanStartCmd)
	appCmd.AddCommand(appRoutingCmd)
}

func setState(ctx context.Context, out io.Writer, reg jobregistry.Registry, recorder tracking.TransitionRecorder, id, stateName string, now time.Time) error {
	state, err := enums.ParseAppState(strings.ToUpper(strings.TrimSpace(stateName)))
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid state", err)
	}
	app, err := getApp(ctx, reg, id)
	if err != nil {
		return err
	}

	from := app.State()
	if err := app.SetState(state); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid state", err)
	}
	app.ModifyTime = now.UTC()
	if err := writeApp(ctx, reg, app); err != nil {
		return err
	}

	if recorder != nil && from != state {
		err := recorder.RecordTransition(ctx, appstore.Transition{
			AppID:      app.ID,
			From:       from,
			To:         state,
			Action:     manualAction,
			OccurredAt: now.UTC(),
		})
		if err != nil {
			observability.CLILogger.Warn("Failed to record transition", zap.String("id", app.ID), zap.Error(err))
		}
	}

	observability.CLILogger.Debug("State updated",
		zap.String("id", app.ID),
		zap.Stringer("from", from),
		zap.Stringer("to", state))
	_, _ = fmt.Fprintf(out, "%s: %s -> %s (tracked=%t)\n", app.ID, from, state, app.Tracking())
	return nil
}

func canStart(ctx context.Context, out io.Writer, reg jobregistry.Registry, id string) error {
	app, err := getApp(ctx, reg, id)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%t\n", app.CanStart())
	return nil
}

func deriveRouting(ctx context.Context, out io.Writer, reg jobregistry.Registry, id string) error {
	app, err := getApp(ctx, reg, id)
	if err != nil {
		return err
	}

	before := app.HotParams
	if err := app.DeriveQueueRouting(); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot derive queue routing", err)
	}
	if app.HotParams != before {
		if err := writeApp(ctx, reg, app); err != nil {
			return err
		}
		observability.CLILogger.Info("Normalized hot params", zap.String("id", app.ID))
	}

	if app.YarnQueue == "" {
		_, _ = fmt.Fprintf(out, "%s: no queue routing (%s)\n", app.ID, app.ExecutionMode)
		return nil
	}
	_, _ = fmt.Fprintln(out, app.YarnQueue)
	return nil
}
