package workspace

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/streamctl/pkg/enums"
)

// Target is what the resolver needs to know about a job.
type Target interface {
	WorkspaceID() string
	Mode() enums.ExecutionMode
	GroupingID() string
	ModuleName() string
}

// Workspace holds the three storage roots paths are resolved against.
type Workspace struct {
	// LocalRoot holds per-job homes on the control plane's filesystem.
	LocalRoot string

	// RemoteRoot holds per-job homes on distributed storage, usually a
	// scheme-qualified URI such as hdfs://nn/streamctl/workspace.
	RemoteRoot string

	// LocalDistRoot holds project build outputs.
	LocalDistRoot string

	log *zap.Logger
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger logs resolved paths at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(w *Workspace) {
		if l != nil {
			w.log = l
		}
	}
}

// New derives the standard layout from two base directories:
// <local>/workspace, <local>/dist and <remote>/workspace.
func New(localBase, remoteBase string, opts ...Option) Workspace {
	local := trimSlash(localBase)
	w := Workspace{
		LocalRoot:     local + "/workspace",
		RemoteRoot:    trimSlash(remoteBase) + "/workspace",
		LocalDistRoot: local + "/dist",
	}
	return w.With(opts...)
}

// With returns a copy of w with opts applied.
func (w Workspace) With(opts ...Option) Workspace {
	for _, opt := range opts {
		opt(&w)
	}
	return w
}

// Validate checks that all roots are set.
func (w Workspace) Validate() error {
	for name, root := range map[string]string{
		"local root":      w.LocalRoot,
		"remote root":     w.RemoteRoot,
		"local dist root": w.LocalDistRoot,
	} {
		if strings.TrimSpace(root) == "" {
			return fmt.Errorf("workspace %s is required", name)
		}
	}
	return nil
}

// LocalHome returns {LocalRoot}/{id}.
func (w Workspace) LocalHome(id string) string {
	return trimSlash(w.LocalRoot) + "/" + id
}

// RemoteHome returns {RemoteRoot}/{id}.
func (w Workspace) RemoteHome(id string) string {
	return trimSlash(w.RemoteRoot) + "/" + id
}

// HomeDirectory returns the per-job root on the storage the target's mode
// deploys from. LOCAL keeps a local home even though it has no storage type.
func (w Workspace) HomeDirectory(t Target) (string, error) {
	var home string
	switch mode := t.Mode(); mode {
	case enums.ExecutionModeKubernetesNativeApplication,
		enums.ExecutionModeKubernetesNativeSession,
		enums.ExecutionModeYarnPerJob,
		enums.ExecutionModeYarnSession,
		enums.ExecutionModeRemote,
		enums.ExecutionModeLocal:
		home = w.LocalHome(t.WorkspaceID())
	case enums.ExecutionModeYarnApplication:
		home = w.RemoteHome(t.WorkspaceID())
	default:
		return "", &UnsupportedModeError{Op: "home directory", Mode: mode}
	}
	w.logger().Debug("Resolved home directory",
		zap.String("id", t.WorkspaceID()),
		zap.Stringer("mode", t.Mode()),
		zap.String("path", home))
	return home, nil
}

// LibDirectory returns {home}/lib.
func (w Workspace) LibDirectory(t Target) (string, error) {
	home, err := w.HomeDirectory(t)
	if err != nil {
		return "", err
	}
	return home + "/lib", nil
}

// DistDirectory returns {LocalDistRoot}/{projectId}/{module}, independent of
// mode. Build output always lands locally.
func (w Workspace) DistDirectory(t Target) (string, error) {
	project := strings.TrimSpace(t.GroupingID())
	module := strings.TrimSpace(t.ModuleName())
	if project == "" || module == "" {
		return "", fmt.Errorf("dist directory for %s: %w", t.WorkspaceID(), ErrIncompleteGrouping)
	}
	dist := trimSlash(w.LocalDistRoot) + "/" + project + "/" + module
	w.logger().Debug("Resolved dist directory", zap.String("id", t.WorkspaceID()), zap.String("path", dist))
	return dist, nil
}

func (w Workspace) logger() *zap.Logger {
	if w.log == nil {
		return zap.NewNop()
	}
	return w.log
}

// trimSlash drops trailing slashes but keeps the "//" of a bare scheme.
func trimSlash(p string) string {
	trimmed := strings.TrimRight(p, "/")
	if strings.HasSuffix(trimmed, ":") {
		return p
	}
	return trimmed
}
