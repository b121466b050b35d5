package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/streamctl/pkg/enums"
	"github.com/3leaps/streamctl/pkg/hotparams"
	"github.com/3leaps/streamctl/pkg/lifecycle"
	"github.com/3leaps/streamctl/pkg/workspace"
)

func intPtr(v int) *int { return &v }

func TestNew_StartsAdded(t *testing.T) {
	app := New("100", enums.JobTypeFlinkSQL, enums.ExecutionModeYarnApplication)
	assert.Equal(t, enums.StateAdded, app.State())
	assert.False(t, app.Tracking())
	assert.True(t, app.CanStart())
	assert.Equal(t, DefaultK8sNamespace, app.K8sNamespace())
}

func TestSetState_TrackingFollowsState(t *testing.T) {
	app := New("1", enums.JobTypeCustomCode, enums.ExecutionModeRemote)
	for _, s := range enums.AppStates() {
		require.NoError(t, app.SetState(s))
		assert.Equal(t, s, app.State())
		assert.Equal(t, lifecycle.ShouldTrack(s), app.Tracking(), s.String())
		assert.Equal(t, lifecycle.CanStart(s), app.CanStart(), s.String())
		assert.Equal(t, s == enums.StateRunning, app.IsRunning(), s.String())
	}
}

func TestSetState_RejectsUndeclared(t *testing.T) {
	app := New("1", enums.JobTypeCustomCode, enums.ExecutionModeRemote)
	require.NoError(t, app.SetState(enums.StateRunning))

	err := app.SetState(enums.AppState(77))
	assert.ErrorIs(t, err, enums.ErrUnknownEnumValue)
	assert.Equal(t, enums.StateRunning, app.State())
}

func TestNeedsRollback(t *testing.T) {
	app := New("1", enums.JobTypeCustomCode, enums.ExecutionModeRemote)
	app.Release = enums.ReleaseNeedRollback
	assert.True(t, app.NeedsRollback())
	app.Release = enums.ReleaseNeedRestart
	assert.False(t, app.NeedsRollback())
}

func TestCanRetryAfterFailure(t *testing.T) {
	tests := []struct {
		name  string
		size  *int
		count *int
		want  bool
	}{
		{"count equals size", intPtr(3), intPtr(3), true},
		{"count below size", intPtr(3), intPtr(0), true},
		{"count over size", intPtr(3), intPtr(4), false},
		{"size zero", intPtr(0), intPtr(0), false},
		{"size absent", nil, intPtr(1), false},
		{"count absent", intPtr(3), nil, false},
		{"both absent", nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := New("1", enums.JobTypeCustomCode, enums.ExecutionModeYarnPerJob)
			app.RestartSize = tt.size
			app.RestartCount = tt.count
			assert.Equal(t, tt.want, app.CanRetryAfterFailure())
		})
	}
}

func TestCheckpointFailureTriggerEnabled(t *testing.T) {
	action := enums.CheckpointFailureAlert
	app := New("1", enums.JobTypeCustomCode, enums.ExecutionModeYarnPerJob)
	assert.False(t, app.CheckpointFailureTriggerEnabled())

	app.CpMaxFailureInterval = intPtr(0)
	app.CpFailureRateInterval = intPtr(0)
	assert.False(t, app.CheckpointFailureTriggerEnabled())

	app.CpFailureAction = &action
	assert.True(t, app.CheckpointFailureTriggerEnabled())
}

func TestEqualAndHashKey_IdentityOnly(t *testing.T) {
	a := New("42", enums.JobTypeFlinkSQL, enums.ExecutionModeYarnSession)
	b := New("42", enums.JobTypeCustomCode, enums.ExecutionModeRemote)
	require.NoError(t, a.SetState(enums.StateRunning))
	require.NoError(t, b.SetState(enums.StateFailed))

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.HashKey(), b.HashKey())

	set := map[string]*Application{a.HashKey(): a}
	_, found := set[b.HashKey()]
	assert.True(t, found)

	c := New("43", enums.JobTypeFlinkSQL, enums.ExecutionModeYarnSession)
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}

func TestSameLogicalPipeline(t *testing.T) {
	dep := `{"pom":[{"groupId":"org.apache.flink","artifactId":"flink-connector-kafka","version":"3.0.1"}],"jar":["udf.jar"]}`

	a := New("1", enums.JobTypeFlinkSQL, enums.ExecutionModeYarnApplication)
	a.FlinkSQL = "SELECT 1"
	a.Dependency = dep
	b := New("2", enums.JobTypeFlinkSQL, enums.ExecutionModeYarnApplication)
	b.FlinkSQL = " SELECT 1 "
	b.Dependency = dep

	same, err := a.SameLogicalPipeline(b)
	require.NoError(t, err)
	assert.True(t, same)

	b.FlinkSQL = "SELECT 2"
	same, err = a.SameLogicalPipeline(b)
	require.NoError(t, err)
	assert.False(t, same)

	c := New("3", enums.JobTypeCustomCode, enums.ExecutionModeYarnApplication)
	c.FlinkSQL = "SELECT 1"
	c.Dependency = dep
	same, err = a.SameLogicalPipeline(c)
	require.NoError(t, err)
	assert.False(t, same)
}

func TestSameLogicalPipeline_DependencyDiffers(t *testing.T) {
	a := New("1", enums.JobTypeFlinkSQL, enums.ExecutionModeYarnApplication)
	a.FlinkSQL = "SELECT 1"
	a.Dependency = `{"jar":["a.jar","b.jar"]}`
	b := a.Snapshot()
	b.ID = "2"
	b.Dependency = `{"jar":["b.jar","a.jar"]}`

	same, err := a.SameLogicalPipeline(b)
	require.NoError(t, err)
	assert.True(t, same, "jar order does not matter")

	b.Dependency = `{"jar":["a.jar"]}`
	same, err = a.SameLogicalPipeline(b)
	require.NoError(t, err)
	assert.False(t, same)

	b.Dependency = `{"jar":`
	_, err = a.SameLogicalPipeline(b)
	assert.ErrorIs(t, err, ErrMalformedDependency)
}

func TestClassification(t *testing.T) {
	upload := enums.ResourceFromUpload
	cicd := enums.ResourceFromCICD

	code := New("1", enums.JobTypeCustomCode, enums.ExecutionModeRemote)
	code.ResourceFrom = &upload
	assert.True(t, code.IsCustomCodeJob())
	assert.True(t, code.IsCustomCodeOrPyFlinkJob())
	assert.False(t, code.IsFlinkSQLOrPyFlinkJob())
	assert.True(t, code.IsUploadJob())
	assert.False(t, code.IsCICDJob())

	py := New("2", enums.JobTypePyFlink, enums.ExecutionModeRemote)
	py.ResourceFrom = &cicd
	assert.True(t, py.IsFlinkSQLOrPyFlinkJob())
	assert.True(t, py.IsCustomCodeOrPyFlinkJob())
	assert.True(t, py.IsCICDJob())

	// ResourceFrom is ignored for SQL jobs.
	sql := New("3", enums.JobTypeFlinkSQL, enums.ExecutionModeRemote)
	sql.ResourceFrom = &upload
	assert.True(t, sql.IsFlinkSQLJob())
	assert.False(t, sql.IsUploadJob())

	assert.True(t, sql.IsStreamParkJob())
	sql.AppType = enums.ApplicationTypeApacheFlink
	assert.False(t, sql.IsStreamParkJob())
}

func TestK8sNamespace(t *testing.T) {
	app := New("1", enums.JobTypeCustomCode, enums.ExecutionModeKubernetesNativeApplication)
	app.SetK8sNamespace("streaming")
	assert.Equal(t, "streaming", app.K8sNamespace())
	app.SetK8sNamespace("  ")
	assert.Equal(t, "default", app.K8sNamespace())
}

func TestOptionMap(t *testing.T) {
	app := New("1", enums.JobTypeCustomCode, enums.ExecutionModeRemote)
	app.Options = `{"taskmanager.numberOfTaskSlots":2,"parallelism.default":null}`
	assert.Equal(t, map[string]string{"taskmanager.numberOfTaskSlots": "2"}, app.OptionMap())

	app.Options = "not json"
	assert.Empty(t, app.OptionMap())
}

func TestSnapshot_IsDeep(t *testing.T) {
	app := New("1", enums.JobTypeCustomCode, enums.ExecutionModeRemote)
	app.RestartSize = intPtr(3)
	require.NoError(t, app.SetState(enums.StateRunning))

	snap := app.Snapshot()
	*snap.RestartSize = 9
	require.NoError(t, snap.SetState(enums.StateFailed))

	assert.Equal(t, 3, *app.RestartSize)
	assert.Equal(t, enums.StateRunning, app.State())
	assert.True(t, app.Equal(snap))
}

func TestStorageTypeAndTarget(t *testing.T) {
	app := New("7", enums.JobTypeFlinkSQL, enums.ExecutionModeYarnApplication)
	app.ProjectID = "3"
	app.Module = "etl"

	st, err := app.StorageType()
	require.NoError(t, err)
	assert.Equal(t, enums.StorageRemoteFS, st)

	ws := workspace.Workspace{LocalRoot: "/w", RemoteRoot: "hdfs:///w", LocalDistRoot: "/d"}
	home, err := ws.HomeDirectory(app)
	require.NoError(t, err)
	assert.Equal(t, "hdfs:///w/7", home)

	dist, err := ws.DistDirectory(app)
	require.NoError(t, err)
	assert.Equal(t, "/d/3/etl", dist)

	app.ExecutionMode = enums.ExecutionModeLocal
	_, err = app.StorageType()
	assert.ErrorIs(t, err, workspace.ErrUnsupportedExecutionMode)
}

func TestDeriveQueueRouting(t *testing.T) {
	app := New("1", enums.JobTypeCustomCode, enums.ExecutionModeYarnApplication)
	app.HotParams = `{"yarn.queue.label-expr":"gpu","yarn.queue":"etl","other":null}`

	require.NoError(t, app.DeriveQueueRouting())
	assert.Equal(t, "etl;gpu", app.YarnQueue)
	assert.Equal(t, `{"yarn.queue":"etl","yarn.queue.label-expr":"gpu"}`, app.HotParams)
}

func TestDeriveQueueRouting_QueueOnly(t *testing.T) {
	app := New("1", enums.JobTypeCustomCode, enums.ExecutionModeYarnPerJob)
	app.HotParams = `{"yarn.queue":"etl"}`

	require.NoError(t, app.DeriveQueueRouting())
	assert.Equal(t, "etl", app.YarnQueue)
}

func TestDeriveQueueRouting_OtherModesUntouched(t *testing.T) {
	for _, mode := range []enums.ExecutionMode{
		enums.ExecutionModeYarnSession,
		enums.ExecutionModeRemote,
		enums.ExecutionModeKubernetesNativeApplication,
	} {
		app := New("1", enums.JobTypeCustomCode, mode)
		app.HotParams = "{broken"
		require.NoError(t, app.DeriveQueueRouting(), mode.String())
		assert.Empty(t, app.YarnQueue)
		assert.Equal(t, "{broken", app.HotParams)
	}
}

func TestDeriveQueueRouting_MalformedSurfaces(t *testing.T) {
	app := New("1", enums.JobTypeCustomCode, enums.ExecutionModeYarnApplication)
	app.HotParams = "{broken"
	err := app.DeriveQueueRouting()
	assert.ErrorIs(t, err, hotparams.ErrMalformedBlob)
	assert.Equal(t, "{broken", app.HotParams)
}

func TestDeriveQueueRouting_EmptyMapKeepsBlob(t *testing.T) {
	app := New("1", enums.JobTypeCustomCode, enums.ExecutionModeYarnApplication)
	app.HotParams = `{"yarn.queue":null}`
	require.NoError(t, app.DeriveQueueRouting())
	assert.Empty(t, app.YarnQueue)
	assert.Equal(t, `{"yarn.queue":null}`, app.HotParams)
}

func TestUpdateHotParams_FromOther(t *testing.T) {
	target := New("1", enums.JobTypeCustomCode, enums.ExecutionModeYarnApplication)
	target.HotParams = `{"yarn.queue":"old"}`

	from := New("1", enums.JobTypeCustomCode, enums.ExecutionModeYarnPerJob)
	from.YarnQueue = "etl;gpu"
	require.NoError(t, target.UpdateHotParams(from))
	assert.Equal(t, `{"yarn.queue":"etl","yarn.queue.label-expr":"gpu"}`, target.HotParams)

	// A non-YARN source clears the stale blob.
	from.ExecutionMode = enums.ExecutionModeKubernetesNativeSession
	require.NoError(t, target.UpdateHotParams(from))
	assert.Empty(t, target.HotParams)
}

func TestRefreshHotParams_KeepsBlobWhenEmpty(t *testing.T) {
	app := New("1", enums.JobTypeCustomCode, enums.ExecutionModeYarnApplication)
	app.HotParams = `{"yarn.queue":"old"}`

	require.NoError(t, app.RefreshHotParams())
	assert.Equal(t, `{"yarn.queue":"old"}`, app.HotParams)

	app.YarnQueue = "prod"
	require.NoError(t, app.RefreshHotParams())
	assert.Equal(t, `{"yarn.queue":"prod"}`, app.HotParams)

	require.NoError(t, app.DeriveQueueRouting())
	assert.Equal(t, "prod", app.YarnQueue)
}
