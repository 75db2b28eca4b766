package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/vthunder/culturedb/internal/logging"
	"github.com/vthunder/culturedb/internal/ncbi"
	"github.com/vthunder/culturedb/internal/store"
)

const (
	// LiteratureConfidence is the confidence of a media link taken from a
	// literature mention.
	LiteratureConfidence = 0.5
	// LiteratureFoundConfidence is the overall confidence of an enrichment
	// backed by at least one article.
	LiteratureFoundConfidence = 0.7
)

// LinkOrganismToMedia records that every genome whose organism name
// contains organism grows (or not) on a medium. It returns the number of
// genomes labelled; zero when no genome matches. The propagated source is
// reserved for strain-derived labels and is rejected.
func LinkOrganismToMedia(ctx context.Context, db *store.DB, organism, mediaID string, growth bool, confidence float64, source string) (int, error) {
	switch source {
	case store.GrowthSourceLiterature, store.GrowthSourceInferred, store.GrowthSourceCurated:
	default:
		return 0, fmt.Errorf("growth source %q cannot be linked directly", source)
	}
	if confidence < 0 || confidence > 1 {
		return 0, fmt.Errorf("confidence %v out of range", confidence)
	}
	ok, err := store.MediaExists(ctx, db, mediaID)
	if err != nil {
		return 0, err
	}
	if !ok {
		logging.Warn("enrich", "Medium %s not in database, not linking %s", mediaID, organism)
		return 0, nil
	}
	genomes, err := db.GenomesMatching(ctx, organism)
	if err != nil {
		return 0, err
	}
	if len(genomes) == 0 {
		logging.Debug("enrich", "No genome for organism %q", organism)
		return 0, nil
	}
	err = db.InTx(ctx, func(tx *store.Tx) error {
		for _, g := range genomes {
			if err := store.UpsertGenomeGrowth(ctx, tx, store.GenomeGrowth{
				GenomeID:   g.ID,
				MediaID:    mediaID,
				Growth:     growth,
				Confidence: confidence,
				Source:     source,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logging.Debug("enrich", "Linked %d %s genomes to medium %s (%s)", len(genomes), organism, mediaID, source)
	return len(genomes), nil
}

// ApplyCurated links every genome matching a curated pattern to its media.
// It returns the number of labels written.
func ApplyCurated(ctx context.Context, db *store.DB, m CuratedMap) (int, error) {
	total := 0
	for _, pattern := range m.Patterns() {
		for _, id := range m.Media(pattern) {
			n, err := LinkOrganismToMedia(ctx, db, pattern, id, true, m[pattern][id], store.GrowthSourceCurated)
			if err != nil {
				return total, err
			}
			total += n
		}
	}
	logging.Info("enrich", "Applied %d curated organism-media links", total)
	return total, nil
}

// Report is the outcome of enriching one organism.
type Report struct {
	Organism   string          `json:"organism_name"`
	Inferred   Conditions      `json:"inferred"`
	Articles   []ArticleParams `json:"articles,omitempty"`
	Found      AbstractParams  `json:"extracted"`
	Confidence float64         `json:"overall_confidence"`
	Linked     map[string]int  `json:"linked_media,omitempty"`
	Statistics map[string]int  `json:"genome_growth_by_source,omitempty"`
}

// ArticleParams are the parameters extracted from one article.
type ArticleParams struct {
	PMID   string         `json:"pmid"`
	Title  string         `json:"title"`
	Params AbstractParams `json:"params"`
}

// Enricher combines taxonomy inference with PubMed literature.
type Enricher struct {
	db     *store.DB
	pubmed *ncbi.Client
}

// NewEnricher creates an Enricher. pubmed may be nil to skip literature.
func NewEnricher(db *store.DB, pubmed *ncbi.Client) *Enricher {
	return &Enricher{db: db, pubmed: pubmed}
}

// Enrich infers conditions for organism, searches up to limit PubMed
// articles about it and links its genomes to catalogue media named in them.
func (e *Enricher) Enrich(ctx context.Context, organism, organismType string, limit int) (*Report, error) {
	logging.Info("enrich", "Enriching growth conditions for %s", organism)
	r := &Report{
		Organism:   organism,
		Inferred:   InferFromTaxonomy(organism, organismType),
		Confidence: TaxonomyConfidence,
	}
	if e.pubmed != nil && limit > 0 {
		arts, err := e.pubmed.PubMedSearch(ctx, organism, limit)
		if err != nil {
			return nil, err
		}
		params := make([]AbstractParams, 0, len(arts))
		for _, a := range arts {
			p := ExtractFromAbstract(a.Text())
			r.Articles = append(r.Articles, ArticleParams{PMID: a.PMID, Title: a.Title, Params: p})
			params = append(params, p)
		}
		r.Found = Merge(params)
		if len(arts) > 0 {
			r.Confidence = LiteratureFoundConfidence
		}
	}

	if len(r.Found.Media) > 0 {
		media, err := e.db.AllMedia(ctx)
		if err != nil {
			return nil, err
		}
		r.Linked = make(map[string]int)
		for _, mention := range r.Found.Media {
			for _, id := range MatchMedia(media, mention) {
				n, err := LinkOrganismToMedia(ctx, e.db, organism, id, true, LiteratureConfidence, store.GrowthSourceLiterature)
				if err != nil {
					return nil, err
				}
				r.Linked[id] += n
			}
		}
	}

	stats, err := e.db.GenomeGrowthBySource(ctx)
	if err != nil {
		return nil, err
	}
	r.Statistics = stats
	return r, nil
}

// MatchMedia returns the ids of media whose name is mention or starts with
// mention followed by a space, ignoring case.
func MatchMedia(media []store.Medium, mention string) []string {
	m := strings.ToLower(mention)
	var out []string
	for _, md := range media {
		name := strings.ToLower(strings.TrimSpace(md.Name))
		if name == m || strings.HasPrefix(name, m+" ") {
			out = append(out, md.ID)
		}
	}
	return out
}
