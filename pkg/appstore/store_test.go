package appstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/streamctl/pkg/application"
	"github.com/3leaps/streamctl/pkg/enums"
	"github.com/3leaps/streamctl/pkg/jobregistry"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "nested", "apps.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBuildDSN(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{"memory", Config{Path: ":memory:"}, ":memory:", false},
		{"plain path", Config{Path: filepath.Join(dir, "a.db")}, "file:" + filepath.Join(dir, "a.db"), false},
		{"file dsn", Config{Path: "file:" + filepath.Join(dir, "b.db")}, "file:" + filepath.Join(dir, "b.db"), false},
		{"url", Config{URL: "libsql://db.example.io"}, "libsql://db.example.io", false},
		{"url with token", Config{URL: "libsql://db.example.io", AuthToken: "tok"}, "libsql://db.example.io?authToken=tok", false},
		{"url keeps token", Config{URL: "libsql://db.example.io?authToken=a", AuthToken: "b"}, "libsql://db.example.io?authToken=a", false},
		{"empty", Config{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildDSN(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStore_WriteGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	app := application.New("100", enums.JobTypeFlinkSQL, enums.ExecutionModeYarnApplication)
	app.JobName = "orders"
	app.FlinkSQL = "SELECT 1"
	app.HotParams = `{"yarn.queue":"etl"}`
	app.CreateTime = now
	app.ModifyTime = now
	size, count := 3, 1
	app.RestartSize, app.RestartCount = &size, &count
	require.NoError(t, app.SetState(enums.StateRunning))

	require.NoError(t, s.Write(ctx, app))

	got, err := s.Get(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, enums.StateRunning, got.State())
	assert.True(t, got.Tracking())
	assert.Equal(t, app.Fields(), got.Fields())

	tracked, err := s.CountTracked(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tracked)

	// Upsert replaces the row.
	require.NoError(t, app.SetState(enums.StateCanceled))
	require.NoError(t, s.Write(ctx, app))
	got, err = s.Get(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, enums.StateCanceled, got.State())

	tracked, err = s.CountTracked(ctx)
	require.NoError(t, err)
	assert.Zero(t, tracked)
}

func TestStore_GetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, jobregistry.ErrNotFound))
}

func TestStore_RejectsBadIDs(t *testing.T) {
	s := openTestStore(t)
	for _, id := range []string{"", "..", "a/b"} {
		app := application.New(id, enums.JobTypeFlinkSQL, enums.ExecutionModeRemote)
		assert.Error(t, s.Write(context.Background(), app), "id %q", id)
	}
}

func TestStore_ListSkipsUndecodableRows(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	t1 := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	a := application.New("app-1", enums.JobTypeFlinkSQL, enums.ExecutionModeRemote)
	a.ModifyTime = t1
	b := application.New("app-2", enums.JobTypeCustomCode, enums.ExecutionModeRemote)
	b.ModifyTime = t1.Add(time.Hour)
	require.NoError(t, s.Write(ctx, a))
	require.NoError(t, s.Write(ctx, b))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO applications (id, job_type, execution_mode, state, tracking, fields)
		 VALUES ('bad', 2, 99, 0, 0, '{"id":"bad","jobType":2,"executionMode":99}')`)
	require.NoError(t, err)

	apps, skipped, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "app-2", apps[0].ID)
	assert.Equal(t, []string{"bad"}, skipped)
}

func TestStore_DeleteRemovesHistory(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	app := application.New("1", enums.JobTypeFlinkSQL, enums.ExecutionModeRemote)
	require.NoError(t, s.Write(ctx, app))
	require.NoError(t, s.RecordTransition(ctx, Transition{AppID: "1", From: enums.StateAdded, To: enums.StateStarting}))

	require.NoError(t, s.Delete(ctx, "1"))
	_, err := s.Get(ctx, "1")
	assert.ErrorIs(t, err, jobregistry.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "1"), jobregistry.ErrNotFound)

	history, err := s.Transitions(ctx, "1", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStore_Transitions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	steps := []struct {
		from, to enums.AppState
		action   string
	}{
		{enums.StateAdded, enums.StateStarting, ""},
		{enums.StateStarting, enums.StateRunning, ""},
		{enums.StateRunning, enums.StateFailed, "RESTART"},
		{enums.StateFailed, enums.StateKilled, "ALERT"},
	}
	for i, st := range steps {
		require.NoError(t, s.RecordTransition(ctx, Transition{
			AppID:      "9",
			RunID:      "run-1",
			From:       st.from,
			To:         st.to,
			Action:     st.action,
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := s.Transitions(ctx, "9", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, enums.StateAdded, all[0].From)
	assert.Equal(t, enums.StateKilled, all[3].To)
	assert.Equal(t, "ALERT", all[3].Action)
	assert.Equal(t, "run-1", all[0].RunID)
	assert.Equal(t, base, all[0].OccurredAt)

	last2, err := s.Transitions(ctx, "9", 2)
	require.NoError(t, err)
	require.Len(t, last2, 2)
	assert.Equal(t, enums.StateFailed, last2[0].To)
	assert.Equal(t, enums.StateKilled, last2[1].To)

	assert.Error(t, s.RecordTransition(ctx, Transition{}))
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, Migrate(ctx, s.db))

	var version int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT schema_version FROM schema_meta WHERE id=1`).Scan(&version))
	assert.Equal(t, SchemaVersion, version)
}
