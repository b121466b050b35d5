// Package workspace resolves where a job's artifacts live.
//
// Given a job's execution mode and identity, it derives the storage type
// (local or remote filesystem), the job's home and lib directories, and the
// build output directory of the project that produced the job. It also picks
// the storage backend for a mode and stages artifacts through it.
//
// All resolution functions are pure string computations over a Workspace
// value. Paths are joined by concatenation, never path.Join, so scheme
// prefixes like hdfs:// and s3:// survive intact.
package workspace

import (
	"errors"
	"fmt"

	"github.com/3leaps/streamctl/pkg/enums"
)

var (
	// ErrUnsupportedExecutionMode indicates a mode with no storage mapping.
	ErrUnsupportedExecutionMode = errors.New("unsupported execution mode")

	// ErrIncompleteGrouping indicates a target without project or module.
	ErrIncompleteGrouping = errors.New("project and module are required")
)

// UnsupportedModeError reports which resolution rejected which mode.
type UnsupportedModeError struct {
	Op   string
	Mode enums.ExecutionMode
}

// Error implements the error interface.
func (e *UnsupportedModeError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Mode, ErrUnsupportedExecutionMode)
}

// Unwrap returns ErrUnsupportedExecutionMode.
func (e *UnsupportedModeError) Unwrap() error {
	return ErrUnsupportedExecutionMode
}

// StorageTypeOf maps an execution mode to the filesystem its artifacts are
// staged on. Only YARN application mode reads artifacts from the cluster's
// distributed filesystem; LOCAL has no mapping.
func StorageTypeOf(mode enums.ExecutionMode) (enums.StorageType, error) {
	switch mode {
	case enums.ExecutionModeYarnApplication:
		return enums.StorageRemoteFS, nil
	case enums.ExecutionModeYarnPerJob,
		enums.ExecutionModeYarnSession,
		enums.ExecutionModeKubernetesNativeSession,
		enums.ExecutionModeKubernetesNativeApplication,
		enums.ExecutionModeRemote:
		return enums.StorageLocalFS, nil
	default:
		return "", &UnsupportedModeError{Op: "storage type", Mode: mode}
	}
}
