package workspace

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/streamctl/pkg/enums"
	"github.com/3leaps/streamctl/pkg/provider"
)

// Operators pairs the two storage backends a workspace stages onto.
//
// Local is rooted at the workspace's LocalRoot. Remote is rooted at the
// bucket (or filesystem root) named by RemoteRoot, so its keys carry the
// RemoteRoot path.
type Operators struct {
	Local  provider.Provider
	Remote provider.Provider
}

// For selects the backend for a mode by its storage type.
func (o Operators) For(mode enums.ExecutionMode) (provider.Provider, enums.StorageType, error) {
	st, err := StorageTypeOf(mode)
	if err != nil {
		return nil, "", err
	}
	p := o.Local
	if st == enums.StorageRemoteFS {
		p = o.Remote
	}
	if p == nil {
		return nil, st, fmt.Errorf("no %s backend configured", st)
	}
	return p, st, nil
}

// Staged describes an artifact written into a job's lib directory.
type Staged struct {
	Path    string            `json:"path"`
	Key     string            `json:"key"`
	Storage enums.StorageType `json:"storage"`
	Size    int64             `json:"size"`
}

// Stager writes artifacts into job lib directories.
type Stager struct {
	Workspace Workspace
	Operators Operators
}

// Location is a job's lib directory on the backend its mode deploys from.
type Location struct {
	Backend provider.Provider
	Storage enums.StorageType
	// Path is the resolved lib directory; Key is the same directory as a
	// backend key, without a trailing slash.
	Path string
	Key  string
}

// LibLocation resolves where t's lib directory lives and which backend
// serves it.
func (s Stager) LibLocation(t Target) (Location, error) {
	backend, st, err := s.Operators.For(t.Mode())
	if err != nil {
		return Location{}, err
	}
	lib, err := s.Workspace.LibDirectory(t)
	if err != nil {
		return Location{}, err
	}
	key, err := s.keyFor(st, lib)
	if err != nil {
		return Location{}, err
	}
	return Location{Backend: backend, Storage: st, Path: lib, Key: key}, nil
}

// StageLib writes body as <lib>/<name> on the backend the target's mode
// deploys from.
func (s Stager) StageLib(ctx context.Context, t Target, name string, body io.Reader, size int64) (Staged, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return Staged{}, fmt.Errorf("invalid artifact name %q", name)
	}

	loc, err := s.LibLocation(t)
	if err != nil {
		return Staged{}, err
	}
	putter, ok := loc.Backend.(provider.ObjectPutter)
	if !ok {
		return Staged{}, fmt.Errorf("%s backend: %w", loc.Backend.Type(), provider.ErrUnsupported)
	}

	path := loc.Path + "/" + name
	key := loc.Key + "/" + name
	if err := putter.PutObject(ctx, key, body, size); err != nil {
		return Staged{}, fmt.Errorf("stage %s: %w", path, err)
	}

	s.Workspace.logger().Info("Staged artifact",
		zap.String("id", t.WorkspaceID()),
		zap.String("path", path),
		zap.String("storage", loc.Storage.String()),
		zap.Int64("size", size))
	return Staged{Path: path, Key: key, Storage: loc.Storage, Size: size}, nil
}

// keyFor maps a resolved path onto a backend key.
func (s Stager) keyFor(st enums.StorageType, path string) (string, error) {
	if st == enums.StorageLocalFS {
		root := trimSlash(s.Workspace.LocalRoot) + "/"
		if !strings.HasPrefix(path, root) {
			return "", fmt.Errorf("path %s is outside local root", path)
		}
		return strings.TrimPrefix(path, root), nil
	}
	u, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse remote path: %w", err)
	}
	return strings.TrimPrefix(u.Path, "/"), nil
}
