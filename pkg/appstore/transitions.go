package appstore

import (
	"context"
	"fmt"
	"time"

	"github.com/3leaps/streamctl/pkg/enums"
)

// Transition is one observed state change.
type Transition struct {
	Seq        int64
	AppID      string
	RunID      string
	From       enums.AppState
	To         enums.AppState
	Action     string
	OccurredAt time.Time
}

// RecordTransition appends a state change to the history.
func (s *Store) RecordTransition(ctx context.Context, tr Transition) error {
	if tr.AppID == "" {
		return fmt.Errorf("transition app id is required")
	}
	at := tr.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state_transitions (app_id, run_id, from_state, to_state, action, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tr.AppID, tr.RunID, tr.From.Code(), tr.To.Code(), tr.Action, formatTime(at))
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

// Transitions returns an application's history, oldest first. limit <= 0
// returns everything.
func (s *Store) Transitions(ctx context.Context, appID string, limit int) ([]Transition, error) {
	query := `SELECT seq, app_id, run_id, from_state, to_state, action, occurred_at
		 FROM state_transitions WHERE app_id = ? ORDER BY seq`
	args := []any{appID}
	if limit > 0 {
		// Newest N, still returned oldest first.
		query = `SELECT * FROM (
			SELECT seq, app_id, run_id, from_state, to_state, action, occurred_at
			FROM state_transitions WHERE app_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Transition
	for rows.Next() {
		var (
			tr       Transition
			runID    *string
			action   *string
			from, to int
			at       string
		)
		if err := rows.Scan(&tr.Seq, &tr.AppID, &runID, &from, &to, &action, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		if tr.From, err = enums.AppStateOf(from); err != nil {
			return nil, err
		}
		if tr.To, err = enums.AppStateOf(to); err != nil {
			return nil, err
		}
		if tr.OccurredAt, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("parse occurred_at: %w", err)
		}
		if runID != nil {
			tr.RunID = *runID
		}
		if action != nil {
			tr.Action = *action
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}
