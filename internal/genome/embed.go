package genome

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vthunder/culturedb/internal/embedding"
	"github.com/vthunder/culturedb/internal/ledger"
	"github.com/vthunder/culturedb/internal/logging"
	"github.com/vthunder/culturedb/internal/metrics"
	"github.com/vthunder/culturedb/internal/store"
)

// EmbedStage labels embedding work in metrics.
const EmbedStage = "genome_embedding"

// Embedder computes and stores genome embeddings from FASTA files.
type Embedder struct {
	db      *store.DB
	dir     string
	metrics *metrics.Collector
}

// NewEmbedder creates an Embedder. Relative FASTA paths are resolved
// against genomesDir.
func NewEmbedder(db *store.DB, genomesDir string, m *metrics.Collector) *Embedder {
	return &Embedder{db: db, dir: genomesDir, metrics: m}
}

// EmbedCounts summarises a ComputeAll call.
type EmbedCounts struct {
	Pending  int `json:"pending"`
	Computed int `json:"computed"`
	Failed   int `json:"failed"`
}

// FastaPath resolves where a genome's sequence lives on disk.
func (e *Embedder) FastaPath(g store.Genome) string {
	if g.FastaPath == nil {
		return ""
	}
	if filepath.IsAbs(*g.FastaPath) {
		return *g.FastaPath
	}
	return filepath.Join(e.dir, filepath.FromSlash(*g.FastaPath))
}

// ComputeAll embeds every genome that has a FASTA path and no vector for
// method yet. A genome that cannot be read is logged and skipped; it is
// retried on the next call.
func (e *Embedder) ComputeAll(ctx context.Context, method string) (EmbedCounts, error) {
	m, err := ParseMethod(method)
	if err != nil {
		return EmbedCounts{}, err
	}
	genomes, err := e.db.GenomesWithoutEmbedding(ctx, m.Name)
	if err != nil {
		return EmbedCounts{}, err
	}
	c := EmbedCounts{Pending: len(genomes)}
	logging.Info("genome", "Computing %s embeddings for %d genomes", m.Name, len(genomes))
	for _, g := range genomes {
		if ctx.Err() != nil {
			return c, ctx.Err()
		}
		if err := e.Compute(ctx, g, m); err != nil {
			if ctx.Err() != nil {
				return c, ctx.Err()
			}
			logging.Warn("genome", "Embedding %s failed: %v", g.ID, err)
			e.metrics.ObserveUnit(EmbedStage, ledger.UnitFailed)
			c.Failed++
			continue
		}
		e.metrics.ObserveUnit(EmbedStage, ledger.UnitDone)
		c.Computed++
	}
	logging.Info("genome", "Computed %d/%d %s embeddings (%d failed)", c.Computed, c.Pending, m.Name, c.Failed)
	return c, nil
}

// Compute embeds one genome and records its sequence statistics.
func (e *Embedder) Compute(ctx context.Context, g store.Genome, m Method) error {
	path := e.FastaPath(g)
	if path == "" {
		return fmt.Errorf("genome %s has no FASTA path", g.ID)
	}
	rec, err := ReadFile(path)
	if err != nil {
		return err
	}
	vec, err := m.Embed(rec.Sequence)
	if err != nil {
		return err
	}
	stats := ComputeStats(rec.Sequence)
	logging.Debug("genome", "%s: %d bp, GC %.1f%%, %d-dim %s", g.ID, stats.Length, stats.GC, len(vec), m.Name)
	return e.db.InTx(ctx, func(tx *store.Tx) error {
		if err := store.UpsertEmbedding(ctx, tx, store.Embedding{GenomeID: g.ID, Method: m.Name, Vector: vec}); err != nil {
			return err
		}
		return store.UpdateGenomeStats(ctx, tx, g.ID, stats.GC, stats.Length)
	})
}

// Similar returns the genomes whose method embeddings are closest to the
// given genome's.
func Similar(ctx context.Context, db *store.DB, genomeID, method string, k int) ([]embedding.Match, error) {
	vectors, err := db.Embeddings(ctx, method)
	if err != nil {
		return nil, err
	}
	query, ok := vectors[genomeID]
	if !ok {
		return nil, fmt.Errorf("genome %s has no %s embedding", genomeID, method)
	}
	return embedding.Nearest(genomeID, query, vectors, k), nil
}
