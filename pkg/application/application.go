// Package application defines the job record aggregate.
//
// An Application carries a job's persisted attributes and answers lifecycle
// and placement questions about them. State is written only through
// SetState; whether the job is tracked is derived from state on every read
// and never stored.
//
// The aggregate holds no locks. Concurrent readers should work on a
// Snapshot; writers replace the record rather than mutating a shared one.
package application

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/3leaps/streamctl/pkg/enums"
	"github.com/3leaps/streamctl/pkg/hotparams"
	"github.com/3leaps/streamctl/pkg/lifecycle"
	"github.com/3leaps/streamctl/pkg/workspace"
)

// DefaultK8sNamespace is used when no namespace is set.
const DefaultK8sNamespace = "default"

// Application is a stream-processing job record.
type Application struct {
	// ID is the opaque identity. Equality and hashing use only the ID.
	ID string

	TeamID    string
	ProjectID string
	Module    string
	JobName   string

	JobType       enums.JobType
	ExecutionMode enums.ExecutionMode
	AppType       enums.ApplicationType

	state   enums.AppState
	Release enums.ReleaseState

	// ResourceFrom is only meaningful for custom code and PyFlink jobs.
	ResourceFrom *enums.ResourceFrom

	RestartSize  *int
	RestartCount *int

	CpMaxFailureInterval  *int
	CpFailureRateInterval *int
	CpFailureAction       *enums.CheckpointFailureAction

	// HotParams is the encoded routing hint blob. Rewrite it only through
	// DeriveQueueRouting or UpdateHotParams.
	HotParams string

	// Options is an encoded map of engine options.
	Options string

	// Dependency is the encoded dependency descriptor.
	Dependency string

	FlinkSQL string

	// YarnQueue is the "<queue>[;<label-expr>]" routing token. It is not
	// persisted; it is derived from or folded into HotParams.
	YarnQueue string

	AppID         string
	JobID         string
	JobManagerURL string
	ClusterID     string

	k8sNamespace       string
	K8sRestExposedType *enums.RestExposedType

	Tags        string
	Description string

	StartTime  *time.Time
	EndTime    *time.Time
	CreateTime time.Time
	ModifyTime time.Time
}

// New creates a record in state ADDED.
func New(id string, jobType enums.JobType, mode enums.ExecutionMode) *Application {
	return &Application{
		ID:            id,
		JobType:       jobType,
		ExecutionMode: mode,
		AppType:       enums.ApplicationTypeStreamParkFlink,
		state:         enums.StateAdded,
		Release:       enums.ReleaseDone,
	}
}

// State returns the lifecycle state.
func (a *Application) State() enums.AppState { return a.state }

// SetState is the only way to change the lifecycle state. Undeclared states
// are rejected.
func (a *Application) SetState(s enums.AppState) error {
	if _, err := enums.AppStateOf(s.Code()); err != nil {
		return err
	}
	a.state = s
	return nil
}

// Tracking reports whether a poller should keep refreshing this job.
func (a *Application) Tracking() bool { return lifecycle.ShouldTrack(a.state) }

// CanStart reports whether the job may be submitted again.
func (a *Application) CanStart() bool { return lifecycle.CanStart(a.state) }

// IsRunning reports whether the job is RUNNING.
func (a *Application) IsRunning() bool { return lifecycle.IsRunning(a.state) }

// NeedsRollback reports whether the release asks for a rollback.
func (a *Application) NeedsRollback() bool { return lifecycle.NeedsRollback(a.Release) }

// CheckpointFailureTriggerEnabled reports whether all three checkpoint
// failure settings are present. Their values are not inspected.
func (a *Application) CheckpointFailureTriggerEnabled() bool {
	return a.CpMaxFailureInterval != nil && a.CpFailureRateInterval != nil && a.CpFailureAction != nil
}

// CanRetryAfterFailure reports whether a failed run may be restarted.
// A count equal to the size still qualifies, so a job gets RestartSize+1
// attempts in total.
func (a *Application) CanRetryAfterFailure() bool {
	if a.RestartSize == nil || a.RestartCount == nil {
		return false
	}
	return *a.RestartSize > 0 && *a.RestartCount <= *a.RestartSize
}

// StorageType returns the filesystem the job's artifacts are staged on.
func (a *Application) StorageType() (enums.StorageType, error) {
	return workspace.StorageTypeOf(a.ExecutionMode)
}

// K8sNamespace returns the namespace, "default" when unset.
func (a *Application) K8sNamespace() string {
	if a.k8sNamespace == "" {
		return DefaultK8sNamespace
	}
	return a.k8sNamespace
}

// SetK8sNamespace sets the namespace. Blank resets it to "default".
func (a *Application) SetK8sNamespace(ns string) {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		ns = DefaultK8sNamespace
	}
	a.k8sNamespace = ns
}

// Target implementation for path resolution.

func (a *Application) WorkspaceID() string       { return a.ID }
func (a *Application) Mode() enums.ExecutionMode { return a.ExecutionMode }
func (a *Application) GroupingID() string        { return a.ProjectID }
func (a *Application) ModuleName() string        { return a.Module }

var _ workspace.Target = (*Application)(nil)

// Equal reports identity equality. Content is ignored.
func (a *Application) Equal(other *Application) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.ID == other.ID
}

// HashKey returns the identity key for maps and sets.
func (a *Application) HashKey() string { return a.ID }

// SameLogicalPipeline reports whether two Flink SQL jobs run the same SQL
// (ignoring surrounding whitespace) with the same dependencies. A redeploy
// between such records changes nothing.
func (a *Application) SameLogicalPipeline(other *Application) (bool, error) {
	if other == nil || !a.IsFlinkSQLJob() || !other.IsFlinkSQLJob() {
		return false, nil
	}
	if strings.TrimSpace(a.FlinkSQL) != strings.TrimSpace(other.FlinkSQL) {
		return false, nil
	}
	mine, err := ParseDependency(a.Dependency)
	if err != nil {
		return false, fmt.Errorf("application %s: %w", a.ID, err)
	}
	theirs, err := ParseDependency(other.Dependency)
	if err != nil {
		return false, fmt.Errorf("application %s: %w", other.ID, err)
	}
	return mine.Equal(theirs), nil
}

// IsFlinkSQLJob reports a FLINK_SQL job.
func (a *Application) IsFlinkSQLJob() bool { return a.JobType == enums.JobTypeFlinkSQL }

// IsCustomCodeJob reports a CUSTOM_CODE job.
func (a *Application) IsCustomCodeJob() bool { return a.JobType == enums.JobTypeCustomCode }

func (a *Application) IsFlinkSQLOrPyFlinkJob() bool {
	return a.JobType == enums.JobTypeFlinkSQL || a.JobType == enums.JobTypePyFlink
}

func (a *Application) IsCustomCodeOrPyFlinkJob() bool {
	return a.JobType == enums.JobTypeCustomCode || a.JobType == enums.JobTypePyFlink
}

// IsUploadJob reports a code job whose artifact was uploaded.
func (a *Application) IsUploadJob() bool {
	return a.IsCustomCodeOrPyFlinkJob() && a.ResourceFrom != nil && *a.ResourceFrom == enums.ResourceFromUpload
}

// IsCICDJob reports a code job built from a project.
func (a *Application) IsCICDJob() bool {
	return a.IsCustomCodeOrPyFlinkJob() && a.ResourceFrom != nil && *a.ResourceFrom == enums.ResourceFromCICD
}

// IsStreamParkJob reports a job managed through the platform's own runtime.
func (a *Application) IsStreamParkJob() bool {
	return a.AppType == enums.ApplicationTypeStreamParkFlink
}

// OptionMap decodes Options. A malformed blob reads as empty.
func (a *Application) OptionMap() map[string]string {
	return hotparams.DecodeLenient(a.Options)
}

// HotParamsMap decodes HotParams. A malformed blob reads as empty.
func (a *Application) HotParamsMap() map[string]string {
	return hotparams.DecodeLenient(a.HotParams)
}

// Snapshot returns a deep copy safe to hand to concurrent readers.
func (a *Application) Snapshot() *Application {
	cp := *a
	cp.ResourceFrom = clonePtr(a.ResourceFrom)
	cp.RestartSize = clonePtr(a.RestartSize)
	cp.RestartCount = clonePtr(a.RestartCount)
	cp.CpMaxFailureInterval = clonePtr(a.CpMaxFailureInterval)
	cp.CpFailureRateInterval = clonePtr(a.CpFailureRateInterval)
	cp.CpFailureAction = clonePtr(a.CpFailureAction)
	cp.K8sRestExposedType = clonePtr(a.K8sRestExposedType)
	cp.StartTime = clonePtr(a.StartTime)
	cp.EndTime = clonePtr(a.EndTime)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// needsQueueLabel reports modes that submit to a YARN queue per job.
func needsQueueLabel(mode enums.ExecutionMode) bool {
	return mode == enums.ExecutionModeYarnApplication || mode == enums.ExecutionModeYarnPerJob
}

// DeriveQueueRouting reads the queue and label keys from HotParams into the
// YarnQueue token. Only YARN application and per-job modes are affected.
// A malformed blob is an error here, not an empty map.
//
// HotParams is rewritten with the canonical encoding when the decoded map is
// non-empty; an empty map leaves the previous blob in place.
func (a *Application) DeriveQueueRouting() error {
	if !needsQueueLabel(a.ExecutionMode) {
		return nil
	}
	params, err := hotparams.Decode(a.HotParams)
	if err != nil {
		return fmt.Errorf("derive queue routing for %s: %w", a.ID, err)
	}
	ql, ok, err := hotparams.QueueLabelFromParams(params)
	if err != nil {
		return fmt.Errorf("derive queue routing for %s: %w", a.ID, err)
	}
	if ok {
		a.YarnQueue = ql.String()
	}

	blob, changed, err := hotparams.Encode(params)
	if err != nil {
		return fmt.Errorf("derive queue routing for %s: %w", a.ID, err)
	}
	if changed {
		a.HotParams = blob
	}
	return nil
}

// UpdateHotParams folds from's routing token into the receiver's HotParams.
// When from is another record the receiver's blob is cleared first; when
// from is the receiver (or nil) an empty result keeps the current blob.
func (a *Application) UpdateHotParams(from *Application) error {
	if from == nil {
		from = a
	}
	if from != a {
		a.HotParams = ""
	}

	params := map[string]string{}
	if needsQueueLabel(from.ExecutionMode) {
		maps.Copy(params, hotparams.QueueLabelMap(from.YarnQueue))
	}

	blob, ok, err := hotparams.Encode(params)
	if err != nil {
		return fmt.Errorf("update hot params for %s: %w", a.ID, err)
	}
	if ok {
		a.HotParams = blob
	}
	return nil
}

// RefreshHotParams re-encodes the receiver's own routing token.
func (a *Application) RefreshHotParams() error {
	return a.UpdateHotParams(a)
}
