package ledger

import (
	"context"
	"errors"

	"github.com/vthunder/culturedb/internal/logging"
	"github.com/vthunder/culturedb/internal/store"
)

// Outcome of one unit of work.
const (
	UnitDone    = "done"
	UnitSkipped = "skipped"
	UnitFailed  = "failed"
)

// UnitResult reports what a unit did. Rows counts the records written.
// Err is set only for failed units; the failure is already recorded in the
// ledger by the time the result is returned.
type UnitResult struct {
	Task   string
	Status string
	Rows   int
	Err    error
}

// Done builds a successful result.
func Done(task string, rows int) UnitResult {
	return UnitResult{Task: task, Status: UnitDone, Rows: rows}
}

// Skipped builds a result for a unit already marked done.
func Skipped(task string) UnitResult {
	return UnitResult{Task: task, Status: UnitSkipped}
}

// Failed builds a failed result.
func Failed(task string, err error) UnitResult {
	return UnitResult{Task: task, Status: UnitFailed, Err: err}
}

// WriteFunc stores a fetched unit inside a transaction and returns the
// number of rows it touched.
type WriteFunc func(ctx context.Context, tx *store.Tx) (int, error)

// FetchFunc retrieves a unit's data and returns the write that stores it.
// Fetching happens outside any transaction.
type FetchFunc func(ctx context.Context) (WriteFunc, error)

// Run is the unit protocol: skip if done, fetch, then write the rows and
// the done entry in one transaction. Failures are logged under subsystem
// and recorded; a cancelled context is reported as failed but not recorded,
// so the unit simply runs again next time.
func (l *Ledger) Run(ctx context.Context, subsystem, task string, fetch FetchFunc) UnitResult {
	done, err := l.IsDone(ctx, task)
	if err != nil {
		return Failed(task, err)
	}
	if done {
		logging.Debug(subsystem, "skipping %s (already done)", task)
		return Skipped(task)
	}

	write, err := fetch(ctx)
	if err != nil {
		return l.Fail(ctx, subsystem, task, err)
	}

	var rows int
	err = l.db.InTx(ctx, func(tx *store.Tx) error {
		n, err := write(ctx, tx)
		if err != nil {
			return err
		}
		rows = n
		return MarkDone(ctx, tx, task)
	})
	if err != nil {
		return l.Fail(ctx, subsystem, task, err)
	}
	return Done(task, rows)
}

// Fail records err against task and returns the failed result. Context
// cancellation and deadlines are not recorded.
func (l *Ledger) Fail(ctx context.Context, subsystem, task string, err error) UnitResult {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Failed(task, err)
	}
	logging.Warn(subsystem, "%s failed: %v", task, err)
	if merr := l.MarkError(ctx, task, err.Error()); merr != nil {
		logging.Warn(subsystem, "could not record failure of %s: %v", task, merr)
	}
	return Failed(task, err)
}
