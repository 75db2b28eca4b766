package features

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/vthunder/culturedb/internal/logging"
	"github.com/vthunder/culturedb/internal/store"
)

// Options select what Export builds.
type Options struct {
	// Method names the genome embedding for the genome-media dataset. Empty
	// skips that dataset.
	Method       string
	OrganismType string
	Seed         int64
	TestSize     float64
	ValSize      float64
}

// MediaVector is one row of the exported composition matrix.
type MediaVector struct {
	MediaID string    `parquet:"media_id"`
	Vector  []float32 `parquet:"vector"`
}

// Summary reports what Export wrote.
type Summary struct {
	Dir           string                    `json:"dir"`
	Media         int                       `json:"media"`
	Ingredients   int                       `json:"ingredients"`
	Strains       int                       `json:"strains"`
	GrowthSamples int                       `json:"growth_samples"`
	GenomeSamples int                       `json:"genome_samples"`
	Splits        map[string]map[string]int `json:"splits"`
	Files         []string                  `json:"files"`
}

// Builder reads the catalogue and assembles datasets.
type Builder struct {
	db *store.DB
}

// NewBuilder creates a Builder over db.
func NewBuilder(db *store.DB) *Builder {
	return &Builder{db: db}
}

// Composition builds the raw g/L composition matrix.
func (b *Builder) Composition(ctx context.Context) (*CompositionMatrix, error) {
	ingredients, err := b.db.AllIngredients(ctx)
	if err != nil {
		return nil, err
	}
	triples, err := b.db.CompositionTriples(ctx)
	if err != nil {
		return nil, err
	}
	logging.Info("features", "Building composition matrix from %d triples across %d ingredients",
		len(triples), len(ingredients))
	return BuildComposition(NewIngredientIndex(ingredients), triples)
}

// Export writes the composition matrix, strain summaries and the growth and
// genome-media datasets under dir as Parquet files.
func (b *Builder) Export(ctx context.Context, dir string, opts Options) (*Summary, error) {
	comp, err := b.Composition(ctx)
	if err != nil {
		return nil, fmt.Errorf("composition: %w", err)
	}
	scaled := comp.WithData(LogScale(comp.Data))

	growth, err := b.db.AllGrowth(ctx)
	if err != nil {
		return nil, err
	}
	gm, err := BuildGrowthMatrix(growth)
	if err != nil {
		return nil, fmt.Errorf("growth matrix: %w (run the ingest pipeline first)", err)
	}
	media, err := b.db.AllMedia(ctx)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Dir:         dir,
		Media:       len(comp.MediaIDs),
		Ingredients: comp.Index.Len(),
		Strains:     len(gm.StrainIDs),
		Splits:      make(map[string]map[string]int),
	}
	write := func(name string, fn func(path string) error) error {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := fn(path); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		s.Files = append(s.Files, path)
		return nil
	}

	vectors := make([]MediaVector, len(scaled.MediaIDs))
	for i, id := range scaled.MediaIDs {
		row, _ := scaled.Row(id)
		vectors[i] = MediaVector{MediaID: id, Vector: toFloat32(row)}
	}
	if err := write("media_composition.parquet", func(p string) error { return WriteParquet(p, vectors) }); err != nil {
		return nil, err
	}
	summaries := StrainSummaries(growth, media)
	if err := write("strain_summary.parquet", func(p string) error { return WriteParquet(p, summaries) }); err != nil {
		return nil, err
	}

	samples := GrowthSamples(gm, scaled)
	labels := make([]int32, len(samples))
	for i, x := range samples {
		labels[i] = x.Label
	}
	splits, err := StratifiedSplit(labels, opts.TestSize, opts.ValSize, opts.Seed)
	if err != nil {
		return nil, err
	}
	for i := range samples {
		samples[i].Split = splits[i]
	}
	s.GrowthSamples = len(samples)
	s.Splits["growth_prediction"] = SplitCounts(splits)
	logging.Info("features", "Growth samples: %d (%s)", len(samples), positiveShare(labels))
	if err := write("growth_prediction/samples.parquet", func(p string) error { return WriteParquet(p, samples) }); err != nil {
		return nil, err
	}

	if opts.Method != "" {
		gs, err := b.genomeSamples(ctx, scaled, opts)
		switch {
		case errors.Is(err, ErrEmpty):
			logging.Info("features", "No genome-media pairs for %s embeddings, skipping that dataset", opts.Method)
		case err != nil:
			return nil, err
		default:
			strata := make([]int32, len(gs))
			for i, x := range gs {
				strata[i] = x.Priority
			}
			splits, err := StratifiedSplit(strata, opts.TestSize, opts.ValSize, opts.Seed)
			if err != nil {
				return nil, err
			}
			for i := range gs {
				gs[i].Split = splits[i]
			}
			s.GenomeSamples = len(gs)
			s.Splits["genome_media"] = SplitCounts(splits)
			if err := write("genome_media/samples.parquet", func(p string) error { return WriteParquet(p, gs) }); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func (b *Builder) genomeSamples(ctx context.Context, comp *CompositionMatrix, opts Options) ([]GenomeMediaSample, error) {
	growth, err := b.db.GenomeGrowthRows(ctx, "")
	if err != nil {
		return nil, err
	}
	genomes, err := b.db.Genomes(ctx, opts.OrganismType)
	if err != nil {
		return nil, err
	}
	embeddings, err := b.db.Embeddings(ctx, opts.Method)
	if err != nil {
		return nil, err
	}
	logging.Info("features", "Genome-media: %d labels, %d genomes, %d %s embeddings",
		len(growth), len(genomes), len(embeddings), opts.Method)
	samples := GenomeMediaSamples(growth, genomes, embeddings, comp, opts.OrganismType)
	if len(samples) == 0 {
		return nil, ErrEmpty
	}
	return samples, nil
}

// WriteParquet writes rows to a Parquet file at path.
func WriteParquet[T any](path string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := parquet.NewGenericWriter[T](f)
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func positiveShare(labels []int32) string {
	if len(labels) == 0 {
		return "no samples"
	}
	pos := 0
	for _, l := range labels {
		if l > 0 {
			pos++
		}
	}
	return fmt.Sprintf("positive=%.1f%%", 100*float64(pos)/float64(len(labels)))
}
