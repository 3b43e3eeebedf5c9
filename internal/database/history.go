package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FairForge/warmstandby/internal/ha"
)

// StepHistory stores per-state timings of failover runs
type StepHistory struct {
	db *sql.DB
}

func NewStepHistory(db *sql.DB) *StepHistory {
	return &StepHistory{db: db}
}

// recordSteps inserts step rows the table has not seen yet.
func (h *StepHistory) recordSteps(ctx context.Context, tx *sql.Tx, run *ha.Run) error {
	query := `
        INSERT INTO failover_run_steps (run_id, seq, domain, state, started_at, finished_at, error)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (run_id, seq) DO NOTHING
    `
	for i, step := range run.Steps {
		var stepErr sql.NullString
		if step.Error != "" {
			stepErr = sql.NullString{String: step.Error, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, query,
			run.ID, i, run.Domain, string(step.State), step.StartedAt, step.FinishedAt, stepErr,
		); err != nil {
			return fmt.Errorf("insert step %d of run %s: %w", i, run.ID, err)
		}
	}
	return nil
}

// StateStats summarizes how long a state has taken across runs
type StateStats struct {
	State    ha.RunState   `json:"state"`
	Count    int64         `json:"count"`
	Failures int64         `json:"failures"`
	Average  time.Duration `json:"average"`
	Max      time.Duration `json:"max"`
}

// StateDurations aggregates step timings since the given time. An empty
// domain covers all domains.
func (h *StepHistory) StateDurations(ctx context.Context, domain string, since time.Time) ([]StateStats, error) {
	query := `
        SELECT state,
               COUNT(*),
               COUNT(error),
               COALESCE(AVG(EXTRACT(EPOCH FROM (finished_at - started_at))), 0),
               COALESCE(MAX(EXTRACT(EPOCH FROM (finished_at - started_at))), 0)
        FROM failover_run_steps
        WHERE started_at >= $1 AND ($2 = '' OR domain = $2)
        GROUP BY state
        ORDER BY state
    `
	rows, err := h.db.QueryContext(ctx, query, since, domain)
	if err != nil {
		return nil, fmt.Errorf("query step durations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []StateStats
	for rows.Next() {
		var s StateStats
		var state string
		var avgSecs, maxSecs float64
		if err := rows.Scan(&state, &s.Count, &s.Failures, &avgSecs, &maxSecs); err != nil {
			return nil, err
		}
		s.State = ha.RunState(state)
		s.Average = time.Duration(avgSecs * float64(time.Second))
		s.Max = time.Duration(maxSecs * float64(time.Second))
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
