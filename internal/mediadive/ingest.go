// Package mediadive ingests the MediaDive culture-media catalogue into the
// relational store. Every unit of work (a list stage, or one entity of a
// detail stage) is gated by the ingest ledger, and its rows commit in the
// same transaction as its ledger entry.
package mediadive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/vthunder/culturedb/internal/apiclient"
	"github.com/vthunder/culturedb/internal/ledger"
	"github.com/vthunder/culturedb/internal/logging"
	"github.com/vthunder/culturedb/internal/metrics"
	"github.com/vthunder/culturedb/internal/store"
)

// Ingester runs MediaDive units against one database.
type Ingester struct {
	db       *store.DB
	ledger   *ledger.Ledger
	client   *apiclient.Client
	metrics  *metrics.Collector
	pageSize int
}

// Options tunes an Ingester.
type Options struct {
	PageSize int
	Metrics  *metrics.Collector
}

// New creates an ingester. client must point at the MediaDive REST root.
func New(db *store.DB, client *apiclient.Client, opts Options) *Ingester {
	if opts.PageSize <= 0 {
		opts.PageSize = apiclient.DefaultPageSize
	}
	return &Ingester{
		db:       db,
		ledger:   ledger.New(db),
		client:   client,
		metrics:  opts.Metrics,
		pageSize: opts.PageSize,
	}
}

// DB returns the underlying store.
func (in *Ingester) DB() *store.DB { return in.db }

// Ledger returns the ledger gating this ingester's units.
func (in *Ingester) Ledger() *ledger.Ledger { return in.ledger }

type writeFunc = ledger.WriteFunc

func (in *Ingester) runUnit(ctx context.Context, stage, task string, fetch ledger.FetchFunc) ledger.UnitResult {
	res := in.ledger.Run(ctx, "mediadive", task, fetch)
	in.metrics.ObserveUnit(stage, res.Status)
	return res
}

func (in *Ingester) fail(ctx context.Context, task string, err error) ledger.UnitResult {
	return in.ledger.Fail(ctx, "mediadive", task, err)
}

// runList pages through a list endpoint, writing each page in its own
// transaction, and marks the stage done after the last page. Inserts are
// insert-or-ignore, so a list interrupted mid-way replays harmlessly from
// the response cache.
func (in *Ingester) runList(ctx context.Context, stage, endpoint string, extra apiclient.Params,
	write func(ctx context.Context, tx *store.Tx, items []json.RawMessage) (int, error)) ledger.UnitResult {

	task := stage
	done, err := in.ledger.IsDone(ctx, task)
	if err != nil {
		return ledger.Failed(task, err)
	}
	if done {
		logging.Info("mediadive", "Skipping %s (already done)", task)
		in.metrics.ObserveUnit(stage, ledger.UnitSkipped)
		return ledger.Skipped(task)
	}

	total := 0
	it := in.client.Paginate(endpoint, in.pageSize, extra)
	err = it.Each(ctx, func(items []json.RawMessage) error {
		return in.db.InTx(ctx, func(tx *store.Tx) error {
			n, err := write(ctx, tx, items)
			total += n
			return err
		})
	})
	if err == nil {
		err = in.ledger.MarkDone(ctx, task)
	}
	if err != nil {
		res := in.fail(ctx, task, err)
		in.metrics.ObserveUnit(stage, res.Status)
		return res
	}

	logging.Info("mediadive", "Fetched %d records from %s (%d pages)", total, endpoint, it.Pages())
	in.metrics.ObserveUnit(stage, ledger.UnitDone)
	return ledger.Done(task, total)
}

// decodeItems unmarshals each raw item into T, skipping malformed ones.
func decodeItems[T any](endpoint string, items []json.RawMessage) []T {
	out := make([]T, 0, len(items))
	for i, raw := range items {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			logging.Warn("mediadive", "%s: skipping malformed item %d: %v", endpoint, i, err)
			continue
		}
		out = append(out, v)
	}
	return out
}

// detail fetches a detail endpoint and decodes its data object into out.
func (in *Ingester) detail(ctx context.Context, endpoint string, out any) error {
	data, err := in.client.Detail(ctx, endpoint, nil)
	if err != nil {
		return err
	}
	if isNull(data) {
		return fmt.Errorf("%s: data is null", endpoint)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

// detailList fetches a detail endpoint whose data is a list. Null or any
// other shape is treated as empty.
func (in *Ingester) detailList(ctx context.Context, endpoint string) ([]json.RawMessage, error) {
	data, err := in.client.Detail(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if isNull(data) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		logging.Debug("mediadive", "%s: data is not a list, treating as empty", endpoint)
		return nil, nil
	}
	return items, nil
}

func isNull(data json.RawMessage) bool {
	return len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}
