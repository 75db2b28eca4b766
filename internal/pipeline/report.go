package pipeline

import (
	"sort"
	"time"

	"github.com/vthunder/culturedb/internal/ledger"
	"github.com/vthunder/culturedb/internal/logging"
	"github.com/vthunder/culturedb/internal/store"
)

// StageReport tallies the units of one stage.
type StageReport struct {
	Num         int           `json:"num"`
	Name        string        `json:"name"`
	Done        int           `json:"done"`
	Skipped     int           `json:"skipped"`
	Failed      int           `json:"failed"`
	Rows        int           `json:"rows"`
	Duration    time.Duration `json:"duration"`
	Interrupted bool          `json:"interrupted,omitempty"`
}

func (s *StageReport) add(res ledger.UnitResult) {
	switch res.Status {
	case ledger.UnitDone:
		s.Done++
		s.Rows += res.Rows
	case ledger.UnitSkipped:
		s.Skipped++
	case ledger.UnitFailed:
		s.Failed++
	}
}

func (s *StageReport) metadata() map[string]any {
	return map[string]any{
		"done":    s.Done,
		"skipped": s.Skipped,
		"failed":  s.Failed,
		"rows":    s.Rows,
	}
}

// Report summarises one run.
type Report struct {
	RunID         string             `json:"run_id"`
	StartedAt     time.Time          `json:"started_at"`
	Selected      string             `json:"stages"`
	Stages        []StageReport      `json:"stage_reports"`
	Counts        []store.TableCount `json:"table_counts"`
	LedgerErrors  int                `json:"ledger_errors"`
	ErrorsByStage map[string]int     `json:"errors_by_stage,omitempty"`
	Duration      time.Duration      `json:"duration"`
	Interrupted   bool               `json:"interrupted,omitempty"`
}

// Totals sums unit outcomes over all stages.
func (r *Report) Totals() (done, skipped, failed int) {
	for _, s := range r.Stages {
		done += s.Done
		skipped += s.Skipped
		failed += s.Failed
	}
	return done, skipped, failed
}

// Stage returns the report for stage n, if it ran.
func (r *Report) Stage(n int) (StageReport, bool) {
	for _, s := range r.Stages {
		if s.Num == n {
			return s, true
		}
	}
	return StageReport{}, false
}

// Log prints the end-of-run summary: per-stage units, per-table rows and
// outstanding ledger errors.
func (r *Report) Log() {
	logging.Info("pipeline", "=== Run %s (%s) finished in %s ===", r.RunID, r.Selected, r.Duration.Round(time.Millisecond))
	if r.Interrupted {
		logging.Info("pipeline", "Run was interrupted; re-run to resume")
	}
	for _, s := range r.Stages {
		logging.Info("pipeline", "  %d %-16s done=%d skipped=%d failed=%d rows=%d (%s)",
			s.Num, s.Name, s.Done, s.Skipped, s.Failed, s.Rows, s.Duration.Round(time.Millisecond))
	}
	logging.Info("pipeline", "Table counts:")
	for _, c := range r.Counts {
		logging.Info("pipeline", "  %-20s %d", c.Table, c.Rows)
	}
	logging.Info("pipeline", "Ledger errors: %d", r.LedgerErrors)
	stages := make([]string, 0, len(r.ErrorsByStage))
	for s := range r.ErrorsByStage {
		stages = append(stages, s)
	}
	sort.Strings(stages)
	for _, s := range stages {
		logging.Info("pipeline", "  %-20s %d", s, r.ErrorsByStage[s])
	}
}
