package store

import (
	"context"
	"fmt"
)

// Run is one recorded pipeline invocation.
type Run struct {
	ID           string  `json:"run_id"`
	StartedAt    string  `json:"started_at"`
	FinishedAt   *string `json:"finished_at,omitempty"`
	Stages       string  `json:"stages"`
	UnitsDone    int     `json:"units_done"`
	UnitsSkipped int     `json:"units_skipped"`
	UnitsFailed  int     `json:"units_failed"`
}

// StartRun records the beginning of a pipeline invocation.
func (d *DB) StartRun(ctx context.Context, id, stages string) error {
	_, err := d.Exec(ctx, `INSERT INTO ingest_runs (run_id, started_at, stages) VALUES (?, ?, ?)`,
		id, Now(), stages)
	if err != nil {
		return fmt.Errorf("start run %s: %w", id, err)
	}
	return nil
}

// FinishRun stores the final unit tallies for a run.
func (d *DB) FinishRun(ctx context.Context, id string, done, skipped, failed int) error {
	_, err := d.Exec(ctx, `
		UPDATE ingest_runs SET finished_at = ?, units_done = ?, units_skipped = ?, units_failed = ?
		WHERE run_id = ?`,
		Now(), done, skipped, failed, id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	return nil
}

// RecentRuns returns the latest runs, newest first.
func (d *DB) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := d.Query(ctx, fmt.Sprintf(`
		SELECT run_id, started_at, finished_at, stages, units_done, units_skipped, units_failed
		FROM ingest_runs ORDER BY started_at DESC, run_id LIMIT %d`, limit))
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Stages,
			&r.UnitsDone, &r.UnitsSkipped, &r.UnitsFailed); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
