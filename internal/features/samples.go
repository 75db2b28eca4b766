package features

import (
	"sort"

	"github.com/vthunder/culturedb/internal/store"
)

// Split names.
const (
	SplitTrain = "train"
	SplitVal   = "val"
	SplitTest  = "test"
)

// GrowthSample is one (strain, medium) pair with the medium's composition.
type GrowthSample struct {
	StrainID int64     `parquet:"strain_id"`
	MediaID  string    `parquet:"media_id"`
	Label    int32     `parquet:"label"`
	Split    string    `parquet:"split"`
	Media    []float32 `parquet:"media_vector"`
}

// GrowthSamples pairs every strain of gm with every medium present in both
// gm and comp. Labels come from gm, so untested pairs are negatives.
func GrowthSamples(gm *GrowthMatrix, comp *CompositionMatrix) []GrowthSample {
	var overlap []int
	for j, id := range gm.MediaIDs {
		if comp.Has(id) {
			overlap = append(overlap, j)
		}
	}
	out := make([]GrowthSample, 0, len(gm.StrainIDs)*len(overlap))
	for i, sid := range gm.StrainIDs {
		for _, j := range overlap {
			mid := gm.MediaIDs[j]
			row, _ := comp.Row(mid)
			out = append(out, GrowthSample{
				StrainID: sid,
				MediaID:  mid,
				Label:    int32(gm.Data.At(i, j)),
				Media:    toFloat32(row),
			})
		}
	}
	return out
}

// Priority orders organism types for curriculum learning: bacteria first,
// viruses last, unknown types after everything.
func Priority(organismType string) int32 {
	for i, t := range store.OrganismTypes {
		if t == organismType {
			return int32(i + 1)
		}
	}
	return 999
}

// GenomeMediaSample pairs a genome embedding with a medium it grows on.
type GenomeMediaSample struct {
	GenomeID     string    `parquet:"genome_id"`
	MediaID      string    `parquet:"media_id"`
	OrganismType string    `parquet:"organism_type"`
	Priority     int32     `parquet:"priority"`
	Source       string    `parquet:"source"`
	Confidence   float64   `parquet:"confidence"`
	Split        string    `parquet:"split"`
	Media        []float32 `parquet:"media_vector"`
	Genome       []float32 `parquet:"genome_embedding"`
}

// GenomeMediaSamples builds positive genome-media pairs for genomes that
// have an embedding and media that have a composition row. organismType
// restricts the genomes when non-empty. A pair labelled by several sources
// keeps the most confident one. Samples are in curriculum order.
func GenomeMediaSamples(growth []store.GenomeGrowth, genomes []store.Genome, embeddings map[string][]float32,
	comp *CompositionMatrix, organismType string) []GenomeMediaSample {
	types := make(map[string]string, len(genomes))
	for _, g := range genomes {
		types[g.ID] = g.OrganismType
	}

	type pair struct{ genome, media string }
	best := make(map[pair]store.GenomeGrowth)
	for _, gg := range growth {
		if !gg.Growth {
			continue
		}
		t, ok := types[gg.GenomeID]
		if !ok || (organismType != "" && t != organismType) {
			continue
		}
		if _, ok := embeddings[gg.GenomeID]; !ok || !comp.Has(gg.MediaID) {
			continue
		}
		k := pair{gg.GenomeID, gg.MediaID}
		if prev, ok := best[k]; !ok || gg.Confidence > prev.Confidence {
			best[k] = gg
		}
	}

	out := make([]GenomeMediaSample, 0, len(best))
	for k, gg := range best {
		row, _ := comp.Row(k.media)
		t := types[k.genome]
		out = append(out, GenomeMediaSample{
			GenomeID:     k.genome,
			MediaID:      k.media,
			OrganismType: t,
			Priority:     Priority(t),
			Source:       gg.Source,
			Confidence:   gg.Confidence,
			Media:        toFloat32(row),
			Genome:       embeddings[k.genome],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.GenomeID != b.GenomeID {
			return a.GenomeID < b.GenomeID
		}
		return a.MediaID < b.MediaID
	})
	return out
}
