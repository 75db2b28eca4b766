// Package pipeline runs the MediaDive ingest stages in dependency order.
// Each stage is resumable on its own through the ledger; a run is simply
// the selected stages executed one unit at a time.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vthunder/culturedb/internal/ledger"
	"github.com/vthunder/culturedb/internal/logging"
	"github.com/vthunder/culturedb/internal/mediadive"
	"github.com/vthunder/culturedb/internal/metrics"
	"github.com/vthunder/culturedb/internal/profiling"
	"github.com/vthunder/culturedb/internal/store"
)

// progressEvery controls how often entity stages log progress.
const progressEvery = 100

// Pipeline drives a mediadive.Ingester.
type Pipeline struct {
	in       *mediadive.Ingester
	db       *store.DB
	metrics  *metrics.Collector
	profiler *profiling.Profiler
}

// Options carries optional observers.
type Options struct {
	Metrics  *metrics.Collector
	Profiler *profiling.Profiler
}

// New creates a pipeline over in.
func New(in *mediadive.Ingester, opts Options) *Pipeline {
	return &Pipeline{in: in, db: in.DB(), metrics: opts.Metrics, profiler: opts.Profiler}
}

// Reset clears the ledger entries of a stage (by number or name) or of any
// task prefix, so that work runs again. It returns the number of entries
// removed.
func (p *Pipeline) Reset(ctx context.Context, target string) (int64, error) {
	prefix := target
	if nums, err := ParseStages(target); err == nil && target != "" && target != "all" {
		var total int64
		for _, n := range nums {
			s, _ := StageByNum(n)
			c, err := p.in.Ledger().ClearPrefix(ctx, s.Name)
			if err != nil {
				return total, err
			}
			total += c
		}
		logging.Info("pipeline", "Reset %d ledger entries for stages %s", total, FormatStages(nums))
		return total, nil
	}
	n, err := p.in.Ledger().ClearPrefix(ctx, prefix)
	if err != nil {
		return 0, err
	}
	logging.Info("pipeline", "Reset %d ledger entries under %q", n, prefix)
	return n, nil
}

// Run executes the selected stages. Unit failures are counted, never
// returned; an error means the run itself could not proceed. Cancelling ctx
// stops the run between units and marks the report interrupted.
func (p *Pipeline) Run(ctx context.Context, stages []int) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Selected:  FormatStages(stages),
	}

	if err := p.db.StartRun(ctx, report.RunID, report.Selected); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	logging.Info("pipeline", "Run %s: stages %s", report.RunID, report.Selected)

	var runErr error
	for _, n := range stages {
		stage, ok := StageByNum(n)
		if !ok {
			runErr = fmt.Errorf("unknown stage %d", n)
			break
		}
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}
		sr, err := p.runStage(ctx, stage, report.RunID)
		report.Stages = append(report.Stages, sr)
		if err != nil {
			runErr = fmt.Errorf("stage %d (%s): %w", stage.Num, stage.Name, err)
			break
		}
		if sr.Interrupted {
			report.Interrupted = true
			break
		}
	}
	report.Duration = time.Since(report.StartedAt)

	// the summary is written even when ctx was cancelled
	bg := context.WithoutCancel(ctx)
	done, skipped, failed := report.Totals()
	if err := p.db.FinishRun(bg, report.RunID, done, skipped, failed); err != nil {
		logging.Warn("pipeline", "could not finish run record: %v", err)
	}
	if counts, err := p.db.TableCounts(bg); err == nil {
		report.Counts = counts
	} else {
		logging.Warn("pipeline", "table counts: %v", err)
	}
	if n, err := p.in.Ledger().ErrorCount(bg); err == nil {
		report.LedgerErrors = n
	}
	if byStage, err := p.in.Ledger().ErrorCountsByStage(bg); err == nil {
		report.ErrorsByStage = byStage
	}

	if _, err := p.metrics.SampleProcess(); err != nil {
		logging.Debug("pipeline", "process sample: %v", err)
	}
	return report, runErr
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, runID string) (sr StageReport, err error) {
	sr = StageReport{Num: stage.Num, Name: stage.Name}
	start := time.Now()
	stop := p.profiler.Stage(runID, stage.Name)
	defer func() {
		sr.Duration = time.Since(start)
		p.metrics.ObserveStage(stage.Name, sr.Duration)
	}()

	logging.Info("pipeline", "Stage %d: %s", stage.Num, stage.Name)

	if stage.IsList() {
		endUnit := p.profiler.Unit(runID, stage.Name, stage.Name)
		res := stage.list(p.in, ctx)
		endUnit(res.Status)
		sr.add(res)
		if res.Status == ledger.UnitFailed && ctx.Err() != nil {
			sr.Interrupted = true
		}
		stop(sr.metadata())
		return sr, nil
	}

	ids, err := stage.ids(ctx, p.db)
	if err != nil {
		stop(sr.metadata())
		return sr, fmt.Errorf("list ids: %w", err)
	}
	logging.Info("pipeline", "%s: %d units", stage.Name, len(ids))

	for i, id := range ids {
		if ctx.Err() != nil {
			sr.Interrupted = true
			logging.Info("pipeline", "%s: interrupted after %d/%d units", stage.Name, i, len(ids))
			break
		}
		if (i+1)%progressEvery == 0 || i == 0 {
			logging.Info("pipeline", "  [%d/%d] %s %s", i+1, len(ids), stage.Name, id)
		}
		endUnit := p.profiler.Unit(runID, stage.Name, ledger.UnitTask(stage.Name, id))
		res := stage.unit(p.in, ctx, id)
		endUnit(res.Status)
		if res.Status == ledger.UnitFailed && ctx.Err() != nil {
			// interrupted mid-unit; nothing was committed or recorded
			sr.Interrupted = true
			break
		}
		sr.add(res)
	}

	stop(sr.metadata())
	logging.Info("pipeline", "%s: %d done, %d skipped, %d failed, %d rows",
		stage.Name, sr.Done, sr.Skipped, sr.Failed, sr.Rows)
	return sr, nil
}
