package application

import (
	"errors"
	"fmt"
	"time"

	"github.com/3leaps/streamctl/pkg/enums"
)

// Fields is the flat persisted form of an Application. Enums are integer
// codes; optional values are nil pointers.
//
// Tracking is emitted for readers of the persisted record and ignored on
// load; the aggregate derives it from State.
type Fields struct {
	ID        string `json:"id"`
	TeamID    string `json:"teamId,omitempty"`
	ProjectID string `json:"projectId,omitempty"`
	Module    string `json:"module,omitempty"`
	JobName   string `json:"jobName,omitempty"`

	JobType       int  `json:"jobType"`
	ExecutionMode int  `json:"executionMode"`
	AppType       int  `json:"appType"`
	State         int  `json:"state"`
	Release       int  `json:"release"`
	Tracking      bool `json:"tracking"`

	ResourceFrom *int `json:"resourceFrom,omitempty"`
	RestartSize  *int `json:"restartSize,omitempty"`
	RestartCount *int `json:"restartCount,omitempty"`

	CpMaxFailureInterval  *int `json:"cpMaxFailureInterval,omitempty"`
	CpFailureRateInterval *int `json:"cpFailureRateInterval,omitempty"`
	CpFailureAction       *int `json:"cpFailureAction,omitempty"`

	HotParams  string `json:"hotParams,omitempty"`
	Options    string `json:"options,omitempty"`
	Dependency string `json:"dependency,omitempty"`
	FlinkSQL   string `json:"flinkSql,omitempty"`

	AppID              string `json:"appId,omitempty"`
	JobID              string `json:"jobId,omitempty"`
	JobManagerURL      string `json:"jobManagerUrl,omitempty"`
	ClusterID          string `json:"clusterId,omitempty"`
	K8sNamespace       string `json:"k8sNamespace,omitempty"`
	K8sRestExposedType *int   `json:"k8sRestExposedType,omitempty"`

	Tags        string `json:"tags,omitempty"`
	Description string `json:"description,omitempty"`

	StartTime  *time.Time `json:"startTime,omitempty"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	CreateTime time.Time  `json:"createTime"`
	ModifyTime time.Time  `json:"modifyTime"`
}

// Fields flattens the aggregate for persistence.
func (a *Application) Fields() Fields {
	return Fields{
		ID:                    a.ID,
		TeamID:                a.TeamID,
		ProjectID:             a.ProjectID,
		Module:                a.Module,
		JobName:               a.JobName,
		JobType:               a.JobType.Code(),
		ExecutionMode:         a.ExecutionMode.Code(),
		AppType:               a.AppType.Code(),
		State:                 a.state.Code(),
		Release:               a.Release.Code(),
		Tracking:              a.Tracking(),
		ResourceFrom:          codePtr(a.ResourceFrom),
		RestartSize:           clonePtr(a.RestartSize),
		RestartCount:          clonePtr(a.RestartCount),
		CpMaxFailureInterval:  clonePtr(a.CpMaxFailureInterval),
		CpFailureRateInterval: clonePtr(a.CpFailureRateInterval),
		CpFailureAction:       codePtr(a.CpFailureAction),
		HotParams:             a.HotParams,
		Options:               a.Options,
		Dependency:            a.Dependency,
		FlinkSQL:              a.FlinkSQL,
		AppID:                 a.AppID,
		JobID:                 a.JobID,
		JobManagerURL:         a.JobManagerURL,
		ClusterID:             a.ClusterID,
		K8sNamespace:          a.K8sNamespace(),
		K8sRestExposedType:    codePtr(a.K8sRestExposedType),
		Tags:                  a.Tags,
		Description:           a.Description,
		StartTime:             clonePtr(a.StartTime),
		EndTime:               clonePtr(a.EndTime),
		CreateTime:            a.CreateTime,
		ModifyTime:            a.ModifyTime,
	}
}

// ErrNegativeCount is returned for a restart counter below zero.
var ErrNegativeCount = errors.New("count must not be negative")

func nonNegative(v *int) error {
	if v != nil && *v < 0 {
		return fmt.Errorf("%d: %w", *v, ErrNegativeCount)
	}
	return nil
}

// FromFields rebuilds an aggregate from its persisted form. Every enum code
// is validated and restart counters must not be negative; all problems are
// reported together.
func FromFields(f Fields) (*Application, error) {
	var errs []error
	check := func(field string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	jobType, err := enums.JobTypeOf(f.JobType)
	check("jobType", err)
	mode, err := enums.ExecutionModeOf(f.ExecutionMode)
	check("executionMode", err)
	appType, err := enums.ApplicationTypeOf(f.AppType)
	check("appType", err)
	state, err := enums.AppStateOf(f.State)
	check("state", err)
	release, err := enums.ReleaseStateOf(f.Release)
	check("release", err)
	resourceFrom, err := optional(f.ResourceFrom, enums.ResourceFromOf)
	check("resourceFrom", err)
	cpAction, err := optional(f.CpFailureAction, enums.CheckpointFailureActionOf)
	check("cpFailureAction", err)
	exposed, err := optional(f.K8sRestExposedType, enums.RestExposedTypeOf)
	check("k8sRestExposedType", err)
	check("restartSize", nonNegative(f.RestartSize))
	check("restartCount", nonNegative(f.RestartCount))

	if len(errs) > 0 {
		return nil, fmt.Errorf("application %s: %w", f.ID, errors.Join(errs...))
	}

	a := &Application{
		ID:                    f.ID,
		TeamID:                f.TeamID,
		ProjectID:             f.ProjectID,
		Module:                f.Module,
		JobName:               f.JobName,
		JobType:               jobType,
		ExecutionMode:         mode,
		AppType:               appType,
		state:                 state,
		Release:               release,
		ResourceFrom:          resourceFrom,
		RestartSize:           clonePtr(f.RestartSize),
		RestartCount:          clonePtr(f.RestartCount),
		CpMaxFailureInterval:  clonePtr(f.CpMaxFailureInterval),
		CpFailureRateInterval: clonePtr(f.CpFailureRateInterval),
		CpFailureAction:       cpAction,
		HotParams:             f.HotParams,
		Options:               f.Options,
		Dependency:            f.Dependency,
		FlinkSQL:              f.FlinkSQL,
		AppID:                 f.AppID,
		JobID:                 f.JobID,
		JobManagerURL:         f.JobManagerURL,
		ClusterID:             f.ClusterID,
		K8sRestExposedType:    exposed,
		Tags:                  f.Tags,
		Description:           f.Description,
		StartTime:             clonePtr(f.StartTime),
		EndTime:               clonePtr(f.EndTime),
		CreateTime:            f.CreateTime,
		ModifyTime:            f.ModifyTime,
	}
	a.SetK8sNamespace(f.K8sNamespace)
	return a, nil
}

type coded interface{ Code() int }

func codePtr[T coded](v *T) *int {
	if v == nil {
		return nil
	}
	c := (*v).Code()
	return &c
}

func optional[T any](code *int, of func(int) (T, error)) (*T, error) {
	if code == nil {
		return nil, nil
	}
	v, err := of(*code)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
