package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	"github.com/3leaps/streamctl/internal/config"
	"github.com/3leaps/streamctl/internal/observability"
	"github.com/3leaps/streamctl/pkg/application"
	"github.com/3leaps/streamctl/pkg/appstore"
	"github.com/3leaps/streamctl/pkg/jobregistry"
	"github.com/3leaps/streamctl/pkg/output"
	"github.com/3leaps/streamctl/pkg/provider"
	"github.com/3leaps/streamctl/pkg/provider/file"
	"github.com/3leaps/streamctl/pkg/provider/s3"
	"github.com/3leaps/streamctl/pkg/workspace"
)

// loadConfig loads configuration with the persistent flag overrides applied.
func loadConfig(ctx context.Context) (*config.Config, error) {
	overrides := map[string]any{}
	registry := map[string]any{}
	if registryBackend != "" {
		registry["backend"] = registryBackend
	}
	if registryPath != "" {
		registry["path"] = registryPath
	}
	if len(registry) > 0 {
		overrides["registry"] = registry
	}

	cfg, err := config.Load(ctx, overrides)
	if err != nil {
		observability.CLILogger.Error("Failed to load configuration", zap.Error(err))
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	return cfg, nil
}

// registryHandle is an opened registry. store is set for the sqlite
// backend only.
type registryHandle struct {
	jobregistry.Registry
	store *appstore.Store
}

// Close releases the database, if any.
func (h *registryHandle) Close() error {
	if h.store == nil {
		return nil
	}
	return h.store.Close()
}

// History returns the transition log, or false for the file backend.
func (h *registryHandle) History() (*appstore.Store, bool) {
	return h.store, h.store != nil
}

// openRegistry opens the configured registry backend.
func openRegistry(ctx context.Context, cfg config.RegistryConfig) (*registryHandle, error) {
	switch cfg.Backend {
	case config.RegistrySQLite:
		store, err := appstore.Open(ctx, appstore.Config{Path: cfg.Path, URL: cfg.URL, AuthToken: cfg.AuthToken})
		if err != nil {
			observability.CLILogger.Error("Failed to open registry database", zap.String("path", cfg.Path), zap.Error(err))
			return nil, exitError(foundry.ExitFileReadError, "Failed to open registry", err)
		}
		return &registryHandle{Registry: store, store: store}, nil
	case config.RegistryFile, "":
		return &registryHandle{Registry: jobregistry.NewStore(cfg.Path)}, nil
	default:
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid registry backend", fmt.Errorf("unsupported backend %q", cfg.Backend))
	}
}

// getApp loads one record and maps lookup failures to exit codes.
func getApp(ctx context.Context, reg jobregistry.Registry, id string) (*application.Application, error) {
	app, err := reg.Get(ctx, id)
	switch {
	case err == nil:
		return app, nil
	case errors.Is(err, jobregistry.ErrNotFound):
		return nil, exitError(foundry.ExitFileNotFound, "Application not found", err)
	case errors.Is(err, jobregistry.ErrInvalidID):
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid application id", err)
	default:
		observability.CLILogger.Error("Failed to read application", zap.String("id", id), zap.Error(err))
		return nil, exitError(foundry.ExitFileReadError, "Failed to read application", err)
	}
}

// writeApp persists app and maps failures to exit codes.
func writeApp(ctx context.Context, reg jobregistry.Registry, app *application.Application) error {
	if err := reg.Write(ctx, app); err != nil {
		observability.CLILogger.Error("Failed to write application", zap.String("id", app.ID), zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to write application", err)
	}
	return nil
}

// newWorkspace builds the workspace layout from configuration.
func newWorkspace(cfg config.WorkspaceConfig) (workspace.Workspace, error) {
	ws := workspace.New(cfg.LocalBase, cfg.RemoteBase, workspace.WithLogger(observability.CLILogger))
	if err := ws.Validate(); err != nil {
		return ws, exitError(foundry.ExitInvalidArgument, "Invalid workspace configuration", err)
	}
	return ws, nil
}

// newOperators builds the local and remote staging backends. The remote
// backend follows the remote base scheme: s3:// uses the S3 provider,
// file:// or a bare path uses the filesystem, anything else has none.
func newOperators(ctx context.Context, ws workspace.Workspace, cfg *config.Config) (workspace.Operators, error) {
	local, err := file.New(file.Config{Root: ws.LocalRoot})
	if err != nil {
		return workspace.Operators{}, err
	}
	ops := workspace.Operators{Local: local}

	remote, err := remoteProvider(ctx, cfg.Workspace.RemoteBase, cfg.Storage.S3)
	if err != nil {
		return workspace.Operators{}, err
	}
	if remote != nil {
		ops.Remote = remote
	}
	return ops, nil
}

func remoteProvider(ctx context.Context, base string, s3cfg config.S3Config) (provider.Provider, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse remote base: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "s3", "s3a":
		bucket := s3cfg.Bucket
		if bucket == "" {
			bucket = u.Host
		}
		return s3.New(ctx, s3.Config{
			Bucket:         bucket,
			Region:         s3cfg.Region,
			Endpoint:       s3cfg.Endpoint,
			Profile:        s3cfg.Profile,
			ForcePathStyle: s3cfg.ForcePathStyle || s3cfg.Endpoint != "",
		})
	case "file", "":
		return file.New(file.Config{Root: "/"})
	default:
		observability.CLILogger.Debug("No remote staging backend for scheme", zap.String("scheme", u.Scheme))
		return nil, nil
	}
}

// createWriter opens a JSONL writer on stdout (an empty dest, "-" or
// "stdout") or a file path. Returns the writer, a cleanup function, and any
// error.
func createWriter(stdout io.Writer, dest, runID, source string) (output.Writer, func(), error) {
	if dest == "" || dest == "-" || dest == "stdout" {
		w := output.NewJSONLWriter(stdout, runID, source)
		return w, func() { _ = w.Close() }, nil
	}

	path := strings.TrimPrefix(dest, "file:")
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	w := output.NewJSONLWriter(f, runID, source)
	cleanup := func() {
		_ = w.Close()
		_ = f.Close()
	}
	return w, cleanup, nil
}
