package appstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/3leaps/streamctl/pkg/application"
	"github.com/3leaps/streamctl/pkg/jobregistry"
)

// Store is a jobregistry.Registry over a SQL database.
type Store struct {
	db *sql.DB
}

var _ jobregistry.Registry = (*Store)(nil)

// Open opens the database and applies the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Write upserts the application's field set.
func (s *Store) Write(ctx context.Context, app *application.Application) error {
	if app == nil {
		return fmt.Errorf("application is nil")
	}
	id, err := jobregistry.ValidID(app.ID)
	if err != nil {
		return err
	}

	f := app.Fields()
	f.ID = id
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal application: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO applications
		 (id, job_name, job_type, execution_mode, state, tracking, fields, create_time, modify_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   job_name = excluded.job_name,
		   job_type = excluded.job_type,
		   execution_mode = excluded.execution_mode,
		   state = excluded.state,
		   tracking = excluded.tracking,
		   fields = excluded.fields,
		   create_time = excluded.create_time,
		   modify_time = excluded.modify_time`,
		id, f.JobName, f.JobType, f.ExecutionMode, f.State, boolInt(f.Tracking),
		string(body), formatTime(f.CreateTime), formatTime(f.ModifyTime))
	if err != nil {
		return fmt.Errorf("upsert application: %w", err)
	}
	return nil
}

// Get loads one application. Unknown enum codes are reported, not defaulted.
func (s *Store) Get(ctx context.Context, id string) (*application.Application, error) {
	id, err := jobregistry.ValidID(id)
	if err != nil {
		return nil, err
	}

	var body string
	err = s.db.QueryRowContext(ctx, `SELECT fields FROM applications WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, jobregistry.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	return decode(body)
}

func decode(body string) (*application.Application, error) {
	var f application.Fields
	if err := json.Unmarshal([]byte(body), &f); err != nil {
		return nil, fmt.Errorf("parse fields: %w", err)
	}
	return application.FromFields(f)
}

// Delete removes an application and its transition history.
func (s *Store) Delete(ctx context.Context, id string) error {
	id, err := jobregistry.ValidID(id)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM applications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, jobregistry.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM state_transitions WHERE app_id = ?`, id); err != nil {
		return fmt.Errorf("delete transitions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// List returns all loadable applications, most recently modified first.
// Rows that fail to decode are skipped; their ids are returned alongside.
func (s *Store) List(ctx context.Context) ([]*application.Application, []string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, fields FROM applications`)
	if err != nil {
		return nil, nil, fmt.Errorf("list applications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*application.Application
	var skipped []string
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, nil, fmt.Errorf("scan application: %w", err)
		}
		app, err := decode(body)
		if err != nil {
			skipped = append(skipped, id)
			continue
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate applications: %w", err)
	}

	jobregistry.SortNewestFirst(out)
	return out, skipped, nil
}

// CountTracked returns the number of stored applications in a tracked state.
func (s *Store) CountTracked(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM applications WHERE tracking = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tracked: %w", err)
	}
	return n, nil
}
