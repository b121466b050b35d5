// Package manifest loads application definitions.
//
// A definition is a YAML or JSON document describing one stream-processing
// job: how it is built, where it runs and how failures are handled. It is
// validated against an embedded JSON Schema before it is parsed, so unknown
// fields and unknown enum names are rejected up front.
//
// Example (YAML):
//
//	apiVersion: streamctl/v1
//	kind: Application
//	metadata:
//	  name: orders-etl
//	spec:
//	  jobType: FLINK_SQL
//	  executionMode: YARN_APPLICATION
//	  sql: SELECT * FROM orders
//	  yarn:
//	    queue: etl
//	    labelExpr: gpu
//	  restart:
//	    size: 3
package manifest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/3leaps/streamctl/pkg/application"
	"github.com/3leaps/streamctl/pkg/enums"
	"github.com/3leaps/streamctl/pkg/hotparams"
)

const (
	// APIVersion is the only accepted apiVersion.
	APIVersion = "streamctl/v1"

	// KindApplication is the only accepted kind.
	KindApplication = "Application"
)

// Manifest is a validated application definition.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	APIVersion string   `json:"apiVersion" yaml:"apiVersion"`
	Kind       string   `json:"kind" yaml:"kind"`
	Metadata   Metadata `json:"metadata" yaml:"metadata"`
	Spec       Spec     `json:"spec" yaml:"spec"`
}

// Metadata identifies the application.
type Metadata struct {
	// Name becomes the job name.
	Name string `json:"name" yaml:"name"`

	// ID pins the record id. A random id is assigned when empty.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	Team        string   `json:"team,omitempty" yaml:"team,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// Spec describes how the job is built and deployed. Enum fields hold
// canonical names (e.g. FLINK_SQL, YARN_APPLICATION).
type Spec struct {
	JobType       string `json:"jobType" yaml:"jobType"`
	ExecutionMode string `json:"executionMode" yaml:"executionMode"`
	AppType       string `json:"appType,omitempty" yaml:"appType,omitempty"`

	// Project and Module locate the build output of CI/CD jobs.
	Project string `json:"project,omitempty" yaml:"project,omitempty"`
	Module  string `json:"module,omitempty" yaml:"module,omitempty"`

	ResourceFrom string `json:"resourceFrom,omitempty" yaml:"resourceFrom,omitempty"`

	SQL        string                  `json:"sql,omitempty" yaml:"sql,omitempty"`
	Dependency *application.Dependency `json:"dependency,omitempty" yaml:"dependency,omitempty"`

	Yarn              *YarnSpec              `json:"yarn,omitempty" yaml:"yarn,omitempty"`
	Kubernetes        *KubernetesSpec        `json:"kubernetes,omitempty" yaml:"kubernetes,omitempty"`
	Restart           *RestartSpec           `json:"restart,omitempty" yaml:"restart,omitempty"`
	CheckpointFailure *CheckpointFailureSpec `json:"checkpointFailure,omitempty" yaml:"checkpointFailure,omitempty"`

	// Options are engine options, stored as an encoded map.
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// YarnSpec routes YARN application and per-job submissions.
type YarnSpec struct {
	Queue     string `json:"queue" yaml:"queue"`
	LabelExpr string `json:"labelExpr,omitempty" yaml:"labelExpr,omitempty"`
}

// KubernetesSpec configures cluster-native deployment.
type KubernetesSpec struct {
	Namespace       string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	ClusterID       string `json:"clusterId,omitempty" yaml:"clusterId,omitempty"`
	RestExposedType string `json:"restExposedType,omitempty" yaml:"restExposedType,omitempty"`
}

// RestartSpec bounds automatic restarts after failure.
type RestartSpec struct {
	Size int `json:"size" yaml:"size"`
}

// CheckpointFailureSpec configures the action taken when checkpoints keep
// failing. All three fields are required together.
type CheckpointFailureSpec struct {
	MaxFailureInterval  int    `json:"maxFailureInterval" yaml:"maxFailureInterval"`
	FailureRateInterval int    `json:"failureRateInterval" yaml:"failureRateInterval"`
	Action              string `json:"action" yaml:"action"`
}

// DefaultAppType is applied when spec.appType is omitted.
const DefaultAppType = "STREAMPARK_FLINK"

// ApplyDefaults fills in default values for optional fields.
func (m *Manifest) ApplyDefaults() {
	if m.Spec.AppType == "" {
		m.Spec.AppType = DefaultAppType
	}
	m.Metadata.Name = strings.TrimSpace(m.Metadata.Name)
}

// ToApplication builds a new record in state ADDED. now stamps the create and
// modify times.
func (m *Manifest) ToApplication(now time.Time) (*application.Application, error) {
	jobType, err := enums.ParseJobType(m.Spec.JobType)
	if err != nil {
		return nil, fmt.Errorf("spec.jobType: %w", err)
	}
	mode, err := enums.ParseExecutionMode(m.Spec.ExecutionMode)
	if err != nil {
		return nil, fmt.Errorf("spec.executionMode: %w", err)
	}

	id := strings.TrimSpace(m.Metadata.ID)
	if id == "" {
		id = uuid.NewString()
	}

	app := application.New(id, jobType, mode)
	app.JobName = m.Metadata.Name
	app.TeamID = m.Metadata.Team
	app.Tags = strings.Join(m.Metadata.Tags, ",")
	app.Description = m.Metadata.Description
	app.ProjectID = m.Spec.Project
	app.Module = m.Spec.Module
	app.FlinkSQL = m.Spec.SQL
	app.CreateTime = now.UTC()
	app.ModifyTime = now.UTC()

	if m.Spec.AppType != "" {
		if app.AppType, err = enums.ParseApplicationType(m.Spec.AppType); err != nil {
			return nil, fmt.Errorf("spec.appType: %w", err)
		}
	}
	if m.Spec.ResourceFrom != "" {
		rf, err := enums.ParseResourceFrom(m.Spec.ResourceFrom)
		if err != nil {
			return nil, fmt.Errorf("spec.resourceFrom: %w", err)
		}
		app.ResourceFrom = &rf
	}
	if m.Spec.Dependency != nil && !m.Spec.Dependency.IsEmpty() {
		b, err := json.Marshal(m.Spec.Dependency)
		if err != nil {
			return nil, fmt.Errorf("spec.dependency: %w", err)
		}
		app.Dependency = string(b)
	}
	if len(m.Spec.Options) > 0 {
		b, err := json.Marshal(m.Spec.Options)
		if err != nil {
			return nil, fmt.Errorf("spec.options: %w", err)
		}
		app.Options = string(b)
	}
	if r := m.Spec.Restart; r != nil {
		size, count := r.Size, 0
		app.RestartSize = &size
		app.RestartCount = &count
	}
	if cf := m.Spec.CheckpointFailure; cf != nil {
		action, err := enums.ParseCheckpointFailureAction(cf.Action)
		if err != nil {
			return nil, fmt.Errorf("spec.checkpointFailure.action: %w", err)
		}
		maxInterval, rateInterval := cf.MaxFailureInterval, cf.FailureRateInterval
		app.CpMaxFailureInterval = &maxInterval
		app.CpFailureRateInterval = &rateInterval
		app.CpFailureAction = &action
	}
	if k := m.Spec.Kubernetes; k != nil {
		app.SetK8sNamespace(k.Namespace)
		app.ClusterID = k.ClusterID
		if k.RestExposedType != "" {
			rt, err := enums.ParseRestExposedType(k.RestExposedType)
			if err != nil {
				return nil, fmt.Errorf("spec.kubernetes.restExposedType: %w", err)
			}
			app.K8sRestExposedType = &rt
		}
	}
	if y := m.Spec.Yarn; y != nil {
		ql, err := hotparams.NewQueueLabel(y.Queue, y.LabelExpr)
		if err != nil {
			return nil, fmt.Errorf("spec.yarn: %w", err)
		}
		app.YarnQueue = ql.String()
		if err := app.RefreshHotParams(); err != nil {
			return nil, err
		}
	}
	return app, nil
}
