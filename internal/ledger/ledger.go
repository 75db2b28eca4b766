// Package ledger records which units of ingestion work have completed so an
// interrupted run resumes without redoing them.
//
// Only a "done" entry short-circuits work. An "error" entry is kept for
// diagnosis and the unit is retried on the next run.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vthunder/culturedb/internal/store"
)

// Status values stored in ingest_log.
const (
	StatusDone  = "done"
	StatusError = "error"
)

// Stage task names. Per-unit tasks append ":<id>".
const (
	MediaList      = "media_list"
	MediumDetail   = "medium_detail"
	IngredientList = "ingredient_list"
	Composition    = "composition"
	SolutionList   = "solution_list"
	SolutionDetail = "solution_detail"
	MediumStrains  = "medium_strains"
	StrainDetail   = "strain_detail"
)

// maxMessage bounds stored error text.
const maxMessage = 2000

// Entry is one ledger row.
type Entry struct {
	Task      string  `json:"task"`
	Status    string  `json:"status"`
	UpdatedAt string  `json:"updated_at"`
	Message   *string `json:"error_message,omitempty"`
}

// UnitTask names the per-entity task for a stage.
func UnitTask(stage string, id any) string {
	return fmt.Sprintf("%s:%v", stage, id)
}

// Ledger reads and writes ingest_log.
type Ledger struct {
	db *store.DB
}

// New returns a ledger backed by db.
func New(db *store.DB) *Ledger {
	return &Ledger{db: db}
}

// IsDone reports whether task has a "done" entry.
func (l *Ledger) IsDone(ctx context.Context, task string) (bool, error) {
	return IsDone(ctx, l.db, task)
}

// IsDone checks task against any querier, including an open transaction.
func IsDone(ctx context.Context, q store.Querier, task string) (bool, error) {
	var status string
	err := q.QueryRow(ctx, `SELECT status FROM ingest_log WHERE task = ?`, task).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger lookup %s: %w", task, err)
	}
	return status == StatusDone, nil
}

// MarkDone records task as done, replacing any earlier error.
func (l *Ledger) MarkDone(ctx context.Context, task string) error {
	return MarkDone(ctx, l.db, task)
}

// MarkDone writes the done entry through q. Passing the transaction that
// wrote a unit's rows makes the rows and the entry commit together.
func MarkDone(ctx context.Context, q store.Querier, task string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO ingest_log (task, status, updated_at, error_message)
		VALUES (?, ?, ?, NULL)
		ON CONFLICT (task) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at,
			error_message = NULL`,
		task, StatusDone, store.Now())
	if err != nil {
		return fmt.Errorf("ledger mark done %s: %w", task, err)
	}
	return nil
}

// MarkError records a failed attempt. An existing done entry is overwritten,
// which makes the unit eligible again.
func (l *Ledger) MarkError(ctx context.Context, task, message string) error {
	message = truncateMessage(message)
	_, err := l.db.Exec(ctx, `
		INSERT INTO ingest_log (task, status, updated_at, error_message)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (task) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at,
			error_message = excluded.error_message`,
		task, StatusError, store.Now(), message)
	if err != nil {
		return fmt.Errorf("ledger mark error %s: %w", task, err)
	}
	return nil
}

// truncateMessage cuts s to at most maxMessage bytes on a rune boundary.
func truncateMessage(s string) string {
	if len(s) <= maxMessage {
		return s
	}
	cut := maxMessage
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Get returns the entry for task, or nil.
func (l *Ledger) Get(ctx context.Context, task string) (*Entry, error) {
	var e Entry
	err := l.db.QueryRow(ctx, `SELECT task, status, updated_at, error_message FROM ingest_log WHERE task = ?`, task).
		Scan(&e.Task, &e.Status, &e.UpdatedAt, &e.Message)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Clear removes the entry for task so the unit runs again.
func (l *Ledger) Clear(ctx context.Context, task string) error {
	_, err := l.db.Exec(ctx, `DELETE FROM ingest_log WHERE task = ?`, task)
	return err
}

// ClearPrefix removes every entry whose task starts with prefix and returns
// how many were removed. "medium_detail" clears the stage's per-unit tasks.
func (l *Ledger) ClearPrefix(ctx context.Context, prefix string) (int64, error) {
	if prefix == "" {
		return 0, fmt.Errorf("empty ledger prefix")
	}
	res, err := l.db.Exec(ctx, `DELETE FROM ingest_log WHERE task = ? OR substr(task, 1, ?) = ?`,
		prefix, len(prefix)+1, prefix+":")
	if err != nil {
		return 0, fmt.Errorf("clear ledger %s: %w", prefix, err)
	}
	return res.RowsAffected()
}

// ErrorCount returns the number of tasks currently in error.
func (l *Ledger) ErrorCount(ctx context.Context) (int, error) {
	var n int
	err := l.db.QueryRow(ctx, `SELECT COUNT(*) FROM ingest_log WHERE status = ?`, StatusError).Scan(&n)
	return n, err
}

// ErrorCountsByStage groups error entries by the stage part of the task name.
func (l *Ledger) ErrorCountsByStage(ctx context.Context) (map[string]int, error) {
	entries, err := l.Errors(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make(map[string]int)
	for _, e := range entries {
		stage, _, _ := strings.Cut(e.Task, ":")
		out[stage]++
	}
	return out, nil
}

// Errors lists error entries, optionally only those under a stage prefix.
func (l *Ledger) Errors(ctx context.Context, prefix string) ([]Entry, error) {
	query := `SELECT task, status, updated_at, error_message FROM ingest_log WHERE status = ?`
	args := []any{StatusError}
	if prefix != "" {
		query += ` AND (task = ? OR substr(task, 1, ?) = ?)`
		args = append(args, prefix, len(prefix)+1, prefix+":")
	}
	query += ` ORDER BY task`

	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger errors: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Task, &e.Status, &e.UpdatedAt, &e.Message); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
