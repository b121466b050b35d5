package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/3leaps/streamctl/internal/config"
	"github.com/3leaps/streamctl/internal/server/handlers"
	"github.com/3leaps/streamctl/pkg/application"
	"github.com/3leaps/streamctl/pkg/appstore"
	"github.com/3leaps/streamctl/pkg/enums"
	"github.com/3leaps/streamctl/pkg/jobregistry"
	"github.com/3leaps/streamctl/pkg/output"
	"github.com/3leaps/streamctl/pkg/preflight"
	"github.com/3leaps/streamctl/pkg/provider/file"
	"github.com/3leaps/streamctl/pkg/tracking"
	"github.com/3leaps/streamctl/pkg/workspace"
)

var testNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T, id string) *application.Application {
	t.Helper()
	app := application.New(id, enums.JobTypeFlinkSQL, enums.ExecutionModeYarnApplication)
	app.JobName = "job-" + id
	app.ModifyTime = testNow
	return app
}

func newFileRegistry(t *testing.T, apps ...*application.Application) jobregistry.Registry {
	t.Helper()
	reg := jobregistry.NewStore(t.TempDir())
	for _, app := range apps {
		require.NoError(t, reg.Write(context.Background(), app))
	}
	return reg
}

func newSQLiteRegistry(t *testing.T, apps ...*application.Application) *appstore.Store {
	t.Helper()
	store, err := appstore.Open(context.Background(), appstore.Config{Path: filepath.Join(t.TempDir(), "apps.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	for _, app := range apps {
		require.NoError(t, store.Write(context.Background(), app))
	}
	return store
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var ce *cliError
	require.True(t, errors.As(err, &ce), "expected cliError, got %v", err)
	return ce.code
}

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const ordersManifest = `apiVersion: streamctl/v1
kind: Application
metadata:
  name: orders-etl
  id: "100"
spec:
  jobType: FLINK_SQL
  executionMode: YARN_APPLICATION
  sql: SELECT * FROM orders
`

func TestImportManifest(t *testing.T) {
	ctx := context.Background()
	reg := newFileRegistry(t)
	path := writeManifest(t, ordersManifest)

	app, err := importManifest(ctx, reg, path, appImportOptions{}, testNow)
	require.NoError(t, err)
	assert.Equal(t, "100", app.ID)
	assert.Equal(t, enums.StateAdded, app.State())

	stored, err := reg.Get(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, "orders-etl", stored.JobName)

	t.Run("existing id needs replace", func(t *testing.T) {
		_, err := importManifest(ctx, reg, path, appImportOptions{}, testNow)
		require.Error(t, err)
		assert.Equal(t, foundry.ExitInvalidArgument, exitCode(t, err))

		_, err = importManifest(ctx, reg, path, appImportOptions{Replace: true}, testNow)
		require.NoError(t, err)
	})

	t.Run("replace refuses an active record", func(t *testing.T) {
		stored, err := reg.Get(ctx, "100")
		require.NoError(t, err)
		require.NoError(t, stored.SetState(enums.StateRunning))
		require.NoError(t, reg.Write(ctx, stored))

		_, err = importManifest(ctx, reg, path, appImportOptions{Replace: true}, testNow.Add(time.Hour))
		require.Error(t, err)
		assert.Equal(t, foundry.ExitInvalidArgument, exitCode(t, err))

		after, err := reg.Get(ctx, "100")
		require.NoError(t, err)
		assert.Equal(t, enums.StateRunning, after.State())
		assert.False(t, after.CanStart())
		assert.True(t, after.Tracking())
	})

	t.Run("replace keeps runtime state of a stopped record", func(t *testing.T) {
		stored, err := reg.Get(ctx, "100")
		require.NoError(t, err)
		require.NoError(t, stored.SetState(enums.StateFailed))
		stored.Release = enums.ReleaseNeedRestart
		restarts := 2
		stored.RestartCount = &restarts
		stored.JobID = "a1b2c3"
		require.NoError(t, reg.Write(ctx, stored))

		replaced, err := importManifest(ctx, reg, path, appImportOptions{Replace: true}, testNow.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, enums.StateFailed, replaced.State())
		assert.Equal(t, enums.ReleaseNeedRestart, replaced.Release)
		require.NotNil(t, replaced.RestartCount)
		assert.Equal(t, 2, *replaced.RestartCount)
		assert.Equal(t, "a1b2c3", replaced.JobID)
		assert.Equal(t, stored.CreateTime, replaced.CreateTime)

		after, err := reg.Get(ctx, "100")
		require.NoError(t, err)
		assert.Equal(t, enums.StateFailed, after.State())
	})

	t.Run("invalid manifest", func(t *testing.T) {
		bad := writeManifest(t, "apiVersion: streamctl/v1\nkind: Application\n")
		_, err := importManifest(ctx, reg, bad, appImportOptions{}, testNow)
		require.Error(t, err)
		assert.Equal(t, foundry.ExitInvalidArgument, exitCode(t, err))
	})
}

func TestListApps(t *testing.T) {
	ctx := context.Background()
	running := newTestApp(t, "1")
	require.NoError(t, running.SetState(enums.StateRunning))
	failed := newTestApp(t, "2")
	require.NoError(t, failed.SetState(enums.StateFailed))
	reg := newFileRegistry(t, running, failed)

	t.Run("table", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, listApps(ctx, &out, reg, appListOptions{}))
		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[0], "ID"))
		assert.Contains(t, out.String(), "job-1")
		assert.Contains(t, out.String(), "RUNNING")
	})

	t.Run("json with state filter", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, listApps(ctx, &out, reg, appListOptions{States: []string{"FAILED"}, JSON: true}))
		var got []handlers.AppSummary
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "2", got[0].ID)
	})

	t.Run("tracked only", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, listApps(ctx, &out, reg, appListOptions{Tracked: true, JSON: true}))
		var got []handlers.AppSummary
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "1", got[0].ID)
	})

	t.Run("bad filter", func(t *testing.T) {
		err := listApps(ctx, &bytes.Buffer{}, reg, appListOptions{States: []string{"SLEEPING"}})
		require.Error(t, err)
		assert.Equal(t, foundry.ExitInvalidArgument, exitCode(t, err))
	})
}

func TestShowStatus(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, "7")
	size := 3
	app.RestartSize = &size
	reg := newFileRegistry(t, app)

	var out bytes.Buffer
	require.NoError(t, showStatus(ctx, &out, reg, "7", false))
	assert.Contains(t, out.String(), "job-7")
	assert.Contains(t, out.String(), "0/3")

	out.Reset()
	require.NoError(t, showStatus(ctx, &out, reg, "7", true))
	var got handlers.AppSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "7", got.ID)
	assert.True(t, got.CanStart)

	err := showStatus(ctx, &out, reg, "missing", false)
	require.Error(t, err)
	assert.Equal(t, foundry.ExitFileNotFound, exitCode(t, err))
}

func TestSetState(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteRegistry(t, newTestApp(t, "1"))

	var out bytes.Buffer
	require.NoError(t, setState(ctx, &out, store, store, "1", "running", testNow))
	assert.Equal(t, "1: ADDED -> RUNNING (tracked=true)\n", out.String())

	app, err := store.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, enums.StateRunning, app.State())
	assert.True(t, app.ModifyTime.Equal(testNow))

	history, err := store.Transitions(ctx, "1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, manualAction, history[0].Action)
	assert.Equal(t, enums.StateAdded, history[0].From)
	assert.Equal(t, enums.StateRunning, history[0].To)

	t.Run("same state records nothing", func(t *testing.T) {
		require.NoError(t, setState(ctx, &bytes.Buffer{}, store, store, "1", "RUNNING", testNow))
		history, err := store.Transitions(ctx, "1", 0)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("unknown state", func(t *testing.T) {
		err := setState(ctx, &bytes.Buffer{}, store, nil, "1", "SLEEPING", testNow)
		require.Error(t, err)
		assert.Equal(t, foundry.ExitInvalidArgument, exitCode(t, err))
	})

	t.Run("file registry without recorder", func(t *testing.T) {
		reg := newFileRegistry(t, newTestApp(t, "2"))
		require.NoError(t, setState(ctx, &bytes.Buffer{}, reg, nil, "2", "FAILED", testNow))
		app, err := reg.Get(ctx, "2")
		require.NoError(t, err)
		assert.Equal(t, enums.StateFailed, app.State())
	})
}

func TestCanStart(t *testing.T) {
	ctx := context.Background()
	stopped := newTestApp(t, "1")
	require.NoError(t, stopped.SetState(enums.StateCanceled))
	running := newTestApp(t, "2")
	require.NoError(t, running.SetState(enums.StateRunning))
	reg := newFileRegistry(t, stopped, running)

	var out bytes.Buffer
	require.NoError(t, canStart(ctx, &out, reg, "1"))
	require.NoError(t, canStart(ctx, &out, reg, "2"))
	assert.Equal(t, "true\nfalse\n", out.String())
}

func TestDeriveRouting(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, "1")
	app.HotParams = `{"yarn.queue.label-expr":"gpu","yarn.queue":"etl"}`
	session := application.New("2", enums.JobTypeFlinkSQL, enums.ExecutionModeYarnSession)
	broken := newTestApp(t, "3")
	broken.HotParams = `{not json`
	reg := newFileRegistry(t, app, session, broken)

	var out bytes.Buffer
	require.NoError(t, deriveRouting(ctx, &out, reg, "1"))
	assert.Equal(t, "etl@gpu\n", out.String())

	stored, err := reg.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, `{"yarn.queue":"etl","yarn.queue.label-expr":"gpu"}`, stored.HotParams)

	out.Reset()
	require.NoError(t, deriveRouting(ctx, &out, reg, "2"))
	assert.Contains(t, out.String(), "no queue routing")

	err = deriveRouting(ctx, &out, reg, "3")
	require.Error(t, err)
	assert.Equal(t, foundry.ExitInvalidArgument, exitCode(t, err))
}

func TestDeleteApp(t *testing.T) {
	ctx := context.Background()
	reg := newFileRegistry(t, newTestApp(t, "1"))

	require.NoError(t, deleteApp(ctx, reg, "1"))
	_, err := reg.Get(ctx, "1")
	assert.ErrorIs(t, err, jobregistry.ErrNotFound)

	err = deleteApp(ctx, reg, "1")
	require.Error(t, err)
	assert.Equal(t, foundry.ExitFileNotFound, exitCode(t, err))
}

func readRecords(t *testing.T, buf *bytes.Buffer) []output.Record {
	t.Helper()
	var recs []output.Record
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var rec output.Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		recs = append(recs, rec)
	}
	require.NoError(t, sc.Err())
	return recs
}

func TestResolveApps(t *testing.T) {
	ctx := context.Background()
	ws := workspace.New("/opt/sc", "s3://sc")
	app := newTestApp(t, "7")
	app.ProjectID = "3"
	app.Module = "core"
	reg := newFileRegistry(t, app)

	var buf bytes.Buffer
	w := output.NewJSONLWriter(&buf, "run-1", "resolve")
	require.NoError(t, resolveApps(ctx, w, reg, ws, []string{"7", "missing"}))
	require.NoError(t, w.Close())

	recs := readRecords(t, &buf)
	require.Len(t, recs, 2)
	assert.Equal(t, output.TypeResolution, recs[0].Type)
	assert.Equal(t, "resolve", recs[0].Source)

	var res output.ResolutionRecord
	require.NoError(t, json.Unmarshal(recs[0].Data, &res))
	assert.Equal(t, "s3://sc/workspace/7", res.Home)
	assert.Equal(t, "s3://sc/workspace/7/lib", res.Lib)
	assert.Equal(t, "/opt/sc/dist/3/core", res.Dist)
	assert.Equal(t, "REMOTE_FS", res.Storage)

	assert.Equal(t, output.TypeError, recs[1].Type)
	var er output.ErrorRecord
	require.NoError(t, json.Unmarshal(recs[1].Data, &er))
	assert.Equal(t, output.ErrCodeNotFound, er.Code)
	assert.Equal(t, "missing", er.AppID)

	t.Run("all failing", func(t *testing.T) {
		w := output.NewJSONLWriter(&bytes.Buffer{}, "run-2", "resolve")
		err := resolveApps(ctx, w, reg, ws, []string{"nope"})
		require.Error(t, err)
		assert.Equal(t, foundry.ExitInvalidArgument, exitCode(t, err))
	})
}

func TestStageArtifact(t *testing.T) {
	ctx := context.Background()
	localBase, remoteBase := t.TempDir(), t.TempDir()
	ws := workspace.New(localBase, remoteBase)

	local, err := file.New(file.Config{Root: ws.LocalRoot})
	require.NoError(t, err)
	remote, err := remoteProvider(ctx, remoteBase, config.S3Config{})
	require.NoError(t, err)
	stager := workspace.Stager{Workspace: ws, Operators: workspace.Operators{Local: local, Remote: remote}}

	artifact := filepath.Join(t.TempDir(), "udf.jar")
	require.NoError(t, os.WriteFile(artifact, []byte("jar-bytes"), 0o644))

	perJob := application.New("1", enums.JobTypeCustomCode, enums.ExecutionModeYarnPerJob)
	appMode := application.New("2", enums.JobTypeCustomCode, enums.ExecutionModeYarnApplication)
	localMode := application.New("3", enums.JobTypeCustomCode, enums.ExecutionModeLocal)
	reg := newFileRegistry(t, perJob, appMode, localMode)

	t.Run("local storage", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, stageArtifact(ctx, &out, reg, stager, "1", artifact, "", true))
		var staged workspace.Staged
		require.NoError(t, json.Unmarshal(out.Bytes(), &staged))
		assert.Equal(t, enums.StorageLocalFS, staged.Storage)
		assert.Equal(t, "1/lib/udf.jar", staged.Key)
		assert.EqualValues(t, 9, staged.Size)

		body, err := os.ReadFile(filepath.Join(ws.LocalRoot, "1", "lib", "udf.jar"))
		require.NoError(t, err)
		assert.Equal(t, "jar-bytes", string(body))
	})

	t.Run("remote storage", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, stageArtifact(ctx, &out, reg, stager, "2", artifact, "renamed.jar", false))
		assert.Contains(t, out.String(), "REMOTE_FS")

		_, err := os.Stat(filepath.Join(remoteBase, "workspace", "2", "lib", "renamed.jar"))
		assert.NoError(t, err)
	})

	t.Run("mode without storage", func(t *testing.T) {
		err := stageArtifact(ctx, &bytes.Buffer{}, reg, stager, "3", artifact, "", false)
		require.Error(t, err)
		assert.Equal(t, foundry.ExitInvalidArgument, exitCode(t, err))
	})

	t.Run("missing artifact", func(t *testing.T) {
		err := stageArtifact(ctx, &bytes.Buffer{}, reg, stager, "1", filepath.Join(t.TempDir(), "none.jar"), "", false)
		require.Error(t, err)
		assert.Equal(t, foundry.ExitFileNotFound, exitCode(t, err))
	})
}

func TestRemoteProvider(t *testing.T) {
	ctx := context.Background()

	p, err := remoteProvider(ctx, "hdfs://nn:8020/streamctl", config.S3Config{})
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = remoteProvider(ctx, "file:///data/streamctl", config.S3Config{})
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestShowHistory(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteRegistry(t, newTestApp(t, "1"))
	for i, to := range []enums.AppState{enums.StateRunning, enums.StateFailed} {
		require.NoError(t, store.RecordTransition(ctx, appstore.Transition{
			AppID:      "1",
			RunID:      "run-1",
			From:       enums.StateAdded,
			To:         to,
			OccurredAt: testNow.Add(time.Duration(i) * time.Minute),
		}))
	}

	var out bytes.Buffer
	require.NoError(t, showHistory(ctx, &out, store, store, "1", 0, false))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "RUNNING")
	assert.Contains(t, lines[2], "FAILED")

	out.Reset()
	require.NoError(t, showHistory(ctx, &out, store, store, "1", 1, true))
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "FAILED", entries[0]["to"])
}

func TestPollOnce(t *testing.T) {
	ctx := context.Background()
	running := newTestApp(t, "1")
	require.NoError(t, running.SetState(enums.StateRunning))

	t.Run("records changes", func(t *testing.T) {
		reg := newFileRegistry(t, running)
		p := tracking.New(reg, tracking.StaticFetcher{"1": enums.StateCanceled}, nil, tracking.Config{})
		sum, err := pollOnce(ctx, p, zap.NewNop())
		require.NoError(t, err)
		assert.EqualValues(t, 1, sum.Apps)
		assert.EqualValues(t, 1, sum.Changed)

		app, err := reg.Get(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, enums.StateCanceled, app.State())
	})

	t.Run("lease held", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		require.NoError(t, mr.Set(tracking.DefaultLeaseKey, "someone-else"))

		reg := newFileRegistry(t, running)
		p := tracking.New(reg, tracking.StaticFetcher{}, nil, tracking.Config{}).
			WithLease(tracking.NewLease(client, "", time.Minute))
		_, err := pollOnce(ctx, p, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, tracking.ErrLeaseHeld)
		assert.Equal(t, foundry.ExitExternalServiceUnavailable, exitCode(t, err))
	})

	t.Run("cancelled", func(t *testing.T) {
		reg := newFileRegistry(t, running)
		p := tracking.New(reg, tracking.StaticFetcher{"1": enums.StateRunning}, nil, tracking.Config{})
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := pollOnce(cctx, p, zap.NewNop())
		require.Error(t, err)
		assert.Equal(t, foundry.ExitSignalInt, exitCode(t, err))
	})
}

func TestNewPoller(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newSQLiteRegistry(t)
	handle := &registryHandle{Registry: store, store: store}

	p, closeFn := newPoller(handle, nil, config.TrackingConfig{Concurrency: 2}, config.RedisConfig{Addr: mr.Addr()}, zap.NewNop())
	require.NotNil(t, p)
	t.Cleanup(closeFn)

	sum, err := pollOnce(context.Background(), p, zap.NewNop())
	require.NoError(t, err)
	assert.EqualValues(t, 0, sum.Apps)
	assert.False(t, mr.Exists(tracking.DefaultLeaseKey), "lease released after the pass")
}

func TestRunPreflight(t *testing.T) {
	ctx := context.Background()
	ws := workspace.New(t.TempDir(), t.TempDir())
	local, err := file.New(file.Config{Root: ws.LocalRoot})
	require.NoError(t, err)
	stager := workspace.Stager{Workspace: ws, Operators: workspace.Operators{Local: local}}

	perJob := application.New("1", enums.JobTypeCustomCode, enums.ExecutionModeYarnPerJob)
	appMode := application.New("2", enums.JobTypeCustomCode, enums.ExecutionModeYarnApplication)
	localMode := application.New("3", enums.JobTypeCustomCode, enums.ExecutionModeLocal)
	reg := newFileRegistry(t, perJob, appMode, localMode)

	var out bytes.Buffer
	require.NoError(t, runPreflight(ctx, &out, reg, stager, "1", preflight.ModeWriteProbe, true))
	var rep preflight.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.True(t, rep.Passed())
	assert.Len(t, rep.Results, 3)

	// No remote backend configured.
	out.Reset()
	err = runPreflight(ctx, &out, reg, stager, "2", preflight.ModeReadSafe, false)
	require.Error(t, err)

	err = runPreflight(ctx, &out, reg, stager, "3", preflight.ModeReadSafe, false)
	require.Error(t, err)
	assert.Equal(t, foundry.ExitInvalidArgument, exitCode(t, err))
}
