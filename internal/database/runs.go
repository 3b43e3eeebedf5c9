package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FairForge/warmstandby/internal/ha"
)

const maxListRuns = 1000

// RunStore persists failover runs in PostgreSQL. The full run is kept as
// JSONB; step rows are kept alongside for duration queries.
type RunStore struct {
	db      *sql.DB
	history *StepHistory
}

// NewRunStore creates a run store on p
func NewRunStore(p *Postgres) *RunStore {
	return &RunStore{db: p.db, history: NewStepHistory(p.db)}
}

// History returns the step history backing this store
func (s *RunStore) History() *StepHistory {
	return s.history
}

// SaveRun upserts a run and appends any new step rows
func (s *RunStore) SaveRun(ctx context.Context, run *ha.Run) error {
	record, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var finishedAt sql.NullTime
	if !run.FinishedAt.IsZero() {
		finishedAt = sql.NullTime{Time: run.FinishedAt, Valid: true}
	}

	query := `
		INSERT INTO failover_runs (id, domain, status, state, triggered_by, started_at, finished_at, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			state = EXCLUDED.state,
			finished_at = EXCLUDED.finished_at,
			record = EXCLUDED.record,
			updated_at = NOW()
	`
	if _, err := tx.ExecContext(ctx, query,
		run.ID, run.Domain, string(run.Status), string(run.State), run.TriggeredBy,
		run.StartedAt, finishedAt, record,
	); err != nil {
		return fmt.Errorf("upsert run %s: %w", run.ID, err)
	}

	if err := s.history.recordSteps(ctx, tx, run); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads a run by ID
func (s *RunStore) GetRun(ctx context.Context, id string) (*ha.Run, error) {
	var record []byte
	err := s.db.QueryRowContext(ctx, `SELECT record FROM failover_runs WHERE id = $1`, id).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ha.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", id, err)
	}

	var run ha.Run
	if err := json.Unmarshal(record, &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns the newest runs first. An empty domain lists all domains.
func (s *RunStore) ListRuns(ctx context.Context, domain string, limit int) ([]*ha.Run, error) {
	if limit <= 0 || limit > maxListRuns {
		limit = maxListRuns
	}

	query := `
		SELECT record FROM failover_runs
		WHERE ($1 = '' OR domain = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, domain, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := make([]*ha.Run, 0)
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var run ha.Run
		if err := json.Unmarshal(record, &run); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
