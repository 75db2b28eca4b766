package ncbi

import (
	"context"
	"fmt"
	"path"

	"github.com/vthunder/culturedb/internal/ledger"
	"github.com/vthunder/culturedb/internal/logging"
	"github.com/vthunder/culturedb/internal/metrics"
	"github.com/vthunder/culturedb/internal/store"
)

// GenomeStage is the ledger stage of per-assembly units.
const GenomeStage = "ncbi_genome"

// Ingester stores assembly metadata as genome rows.
type Ingester struct {
	db      *store.DB
	ledger  *ledger.Ledger
	client  *Client
	metrics *metrics.Collector
}

// NewIngester creates an ingester over client.
func NewIngester(db *store.DB, client *Client, m *metrics.Collector) *Ingester {
	return &Ingester{db: db, ledger: ledger.New(db), client: client, metrics: m}
}

// Client returns the E-utilities client.
func (in *Ingester) Client() *Client { return in.client }

// Counts summarises one ingest call.
type Counts struct {
	Found    int `json:"found"`
	Ingested int `json:"ingested"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

func (c *Counts) add(res ledger.UnitResult) {
	switch res.Status {
	case ledger.UnitDone:
		c.Ingested++
	case ledger.UnitSkipped:
		c.Skipped++
	default:
		c.Failed++
	}
}

// IngestGenomes searches complete genomes of an organism group (optionally
// one genus) and stores up to limit of them.
func (in *Ingester) IngestGenomes(ctx context.Context, organismType, genus string, limit int) (Counts, error) {
	if !store.ValidOrganismType(organismType) {
		return Counts{}, fmt.Errorf("invalid organism type %q", organismType)
	}
	logging.Info("ncbi", "Searching %s genomes (genus %q, limit %d)", organismType, genus, limit)
	asms, err := in.client.Assemblies(ctx, GenomeTerm(organismType, genus), limit)
	if err != nil {
		return Counts{}, err
	}
	c := Counts{Found: len(asms)}
	for _, a := range asms {
		if ctx.Err() != nil {
			return c, ctx.Err()
		}
		c.add(in.StoreAssembly(ctx, a, organismType, nil))
	}
	logging.Info("ncbi", "Ingested %d/%d %s genomes (%d already present, %d failed)",
		c.Ingested, c.Found, organismType, c.Skipped, c.Failed)
	return c, nil
}

// StoreAssembly inserts the genome row for an assembly as one ledger unit.
// A genome that already exists is left untouched. When strainID is set the
// genome is linked to it.
func (in *Ingester) StoreAssembly(ctx context.Context, a Assembly, organismType string, strainID *int64) ledger.UnitResult {
	task := ledger.UnitTask(GenomeStage, a.UID)
	res := in.ledger.Run(ctx, "ncbi", task, func(ctx context.Context) (ledger.WriteFunc, error) {
		name := a.Organism
		if name == "" {
			name = a.SpeciesName
		}
		if name == "" {
			return nil, fmt.Errorf("assembly %s has no organism name", a.UID)
		}
		fasta := path.Join(organismType, a.GenomeID()+".fasta")
		g := store.Genome{
			ID:           a.GenomeID(),
			OrganismName: name,
			OrganismType: organismType,
			TaxID:        a.TaxID.Ptr(),
			FastaPath:    &fasta,
		}
		return func(ctx context.Context, tx *store.Tx) (int, error) {
			inserted, err := store.InsertGenome(ctx, tx, g)
			if err != nil {
				return 0, err
			}
			if strainID != nil {
				if err := store.LinkGenomeStrain(ctx, tx, g.ID, *strainID); err != nil {
					return 0, err
				}
			}
			if inserted {
				return 1, nil
			}
			return 0, nil
		}, nil
	})
	in.metrics.ObserveUnit(GenomeStage, res.Status)
	return res
}

// Stats counts genomes per organism type.
func (in *Ingester) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := in.db.Query(ctx, `SELECT organism_type, COUNT(*) FROM genomes GROUP BY organism_type`)
	if err != nil {
		return nil, fmt.Errorf("genome stats: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		out[t] = n
	}
	return out, rows.Err()
}
