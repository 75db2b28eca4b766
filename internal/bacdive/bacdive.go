// Package bacdive adds strains from the BacDive bacterial diversity
// database. BacDive ids share the strains table with MediaDive ids, so every
// row it writes is tagged with its id source.
package bacdive

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/vthunder/culturedb/internal/apiclient"
	"github.com/vthunder/culturedb/internal/ledger"
	"github.com/vthunder/culturedb/internal/logging"
	"github.com/vthunder/culturedb/internal/metrics"
	"github.com/vthunder/culturedb/internal/store"
)

// StrainStage is the ledger stage of per-strain units.
const StrainStage = "bacdive_strain"

// Ingester fetches BacDive records and upserts strains.
type Ingester struct {
	db      *store.DB
	ledger  *ledger.Ledger
	client  *apiclient.Client
	metrics *metrics.Collector
}

// New creates an ingester. client must point at the BacDive API root.
func New(db *store.DB, client *apiclient.Client, m *metrics.Collector) *Ingester {
	return &Ingester{db: db, ledger: ledger.New(db), client: client, metrics: m}
}

// Search returns the hits for a species, genus or phenotype query.
func (in *Ingester) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	params := apiclient.Params{"search": query}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	var resp struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := in.client.Get(ctx, "/", params, &resp); err != nil {
		return nil, fmt.Errorf("bacdive search %q: %w", query, err)
	}
	out := make([]SearchResult, 0, len(resp.Results))
	for _, raw := range resp.Results {
		var r SearchResult
		if err := json.Unmarshal(raw, &r); err != nil {
			logging.Debug("bacdive", "skipping malformed search hit: %v", err)
			continue
		}
		out = append(out, r)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	logging.Info("bacdive", "Found %d strains for %q", len(out), query)
	return out, nil
}

// Strain fetches one strain document.
func (in *Ingester) Strain(ctx context.Context, id int64) (*StrainRecord, error) {
	var rec StrainRecord
	if err := in.client.Get(ctx, fmt.Sprintf("/%d/", id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Ingest stores one BacDive strain. organismType may be empty, in which
// case it is taken from the record's domain.
func (in *Ingester) Ingest(ctx context.Context, id int64, organismType string) ledger.UnitResult {
	task := ledger.UnitTask(StrainStage, id)
	res := in.ledger.Run(ctx, "bacdive", task, func(ctx context.Context) (ledger.WriteFunc, error) {
		rec, err := in.Strain(ctx, id)
		if err != nil {
			return nil, err
		}
		otype := organismType
		if otype == "" {
			otype = OrganismType(rec.Domain.Value)
		}
		if !store.ValidOrganismType(otype) {
			return nil, fmt.Errorf("invalid organism type %q", otype)
		}
		return func(ctx context.Context, tx *store.Tx) (int, error) {
			return 1, upsertBacDiveStrain(ctx, tx, id, otype, rec)
		}, nil
	})
	in.metrics.ObserveUnit(StrainStage, res.Status)
	return res
}

func upsertBacDiveStrain(ctx context.Context, tx *store.Tx, id int64, organismType string, rec *StrainRecord) error {
	existing, err := store.GetStrain(ctx, tx, id)
	if err != nil {
		return err
	}
	if existing != nil && (existing.IDSource == nil || *existing.IDSource != store.StrainSourceBacDive) {
		src := "unknown"
		if existing.IDSource != nil {
			src = *existing.IDSource
		}
		return fmt.Errorf("strain id %d already belongs to %s", id, src)
	}

	name := rec.StrainName.Ptr()
	if name == nil {
		s := fmt.Sprintf("Strain %d", id)
		name = &s
	}
	domain := domainCode(organismType)
	source := store.StrainSourceBacDive
	bacdiveID := id
	logging.Debug("bacdive", "strain %d: %s %s, conditions %+v",
		id, rec.Genus.Value, rec.Species.Value, rec.Conditions())
	return store.UpsertStrain(ctx, tx, store.Strain{
		ID:        id,
		Species:   rec.Species.Ptr(),
		CCNo:      name,
		BacDiveID: &bacdiveID,
		Domain:    &domain,
		IDSource:  &source,
	})
}

// Counts summarises a SearchAndIngest call.
type Counts struct {
	Found    int `json:"found"`
	Ingested int `json:"ingested"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// SearchAndIngest ingests every hit of query. Individual strain failures are
// counted and recorded in the ledger; only a failed search is returned.
func (in *Ingester) SearchAndIngest(ctx context.Context, query, organismType string, limit int) (Counts, error) {
	hits, err := in.Search(ctx, query, limit)
	if err != nil {
		return Counts{}, err
	}
	c := Counts{Found: len(hits)}
	for _, h := range hits {
		if ctx.Err() != nil {
			return c, ctx.Err()
		}
		id, ok := h.StrainID()
		if !ok {
			continue
		}
		switch in.Ingest(ctx, id, organismType).Status {
		case ledger.UnitDone:
			c.Ingested++
		case ledger.UnitSkipped:
			c.Skipped++
		default:
			c.Failed++
		}
	}
	logging.Info("bacdive", "Ingested %d/%d strains for %q (%d already present, %d failed)",
		c.Ingested, c.Found, query, c.Skipped, c.Failed)
	return c, nil
}

// Stats counts BacDive-sourced strains per domain code.
func (in *Ingester) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := in.db.Query(ctx, `
		SELECT COALESCE(domain, ''), COUNT(*) FROM strains
		WHERE id_source = ? GROUP BY domain ORDER BY domain`, store.StrainSourceBacDive)
	if err != nil {
		return nil, fmt.Errorf("bacdive stats: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var domain string
		var n int
		if err := rows.Scan(&domain, &n); err != nil {
			return nil, err
		}
		out[domain] = n
	}
	return out, rows.Err()
}
