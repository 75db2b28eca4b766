package features

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/vthunder/culturedb/internal/store"
)

// GrowthMatrix is a strains x media matrix of 0/1 growth. A pair observed
// more than once takes the maximum; unobserved pairs are 0.
type GrowthMatrix struct {
	StrainIDs []int64
	MediaIDs  []string
	Data      *mat.Dense
}

// BuildGrowthMatrix pivots growth observations.
func BuildGrowthMatrix(growth []store.Growth) (*GrowthMatrix, error) {
	if len(growth) == 0 {
		return nil, ErrEmpty
	}
	strains := make(map[int64]int)
	media := make(map[string]int)
	for _, g := range growth {
		strains[g.StrainID] = 0
		media[g.MediaID] = 0
	}
	gm := &GrowthMatrix{}
	for id := range strains {
		gm.StrainIDs = append(gm.StrainIDs, id)
	}
	for id := range media {
		gm.MediaIDs = append(gm.MediaIDs, id)
	}
	sort.Slice(gm.StrainIDs, func(i, j int) bool { return gm.StrainIDs[i] < gm.StrainIDs[j] })
	sort.Strings(gm.MediaIDs)
	for i, id := range gm.StrainIDs {
		strains[id] = i
	}
	for j, id := range gm.MediaIDs {
		media[id] = j
	}

	gm.Data = mat.NewDense(len(gm.StrainIDs), len(gm.MediaIDs), nil)
	for _, g := range growth {
		if g.Growth {
			gm.Data.Set(strains[g.StrainID], media[g.MediaID], 1)
		}
	}
	return gm, nil
}

// StrainSummary describes one strain's growth record.
type StrainSummary struct {
	StrainID   int64   `json:"strain_id" parquet:"strain_id"`
	Tested     int32   `json:"n_media_tested" parquet:"n_media_tested"`
	Grew       int32   `json:"n_media_grew" parquet:"n_media_grew"`
	GrowthRate float64 `json:"growth_rate" parquet:"growth_rate"`
	PctComplex float64 `json:"pct_complex" parquet:"pct_complex"`
}

// StrainSummaries computes, per strain, how many media were tested, how many
// supported growth, the growth fraction and the fraction of supporting media
// that are complex. Results are ordered by strain id.
func StrainSummaries(growth []store.Growth, media []store.Medium) []StrainSummary {
	complexMedia := make(map[string]bool, len(media))
	for _, m := range media {
		complexMedia[m.ID] = m.Complex
	}
	byStrain := make(map[int64]*StrainSummary)
	complexGrew := make(map[int64]int)
	for _, g := range growth {
		s, ok := byStrain[g.StrainID]
		if !ok {
			s = &StrainSummary{StrainID: g.StrainID}
			byStrain[g.StrainID] = s
		}
		s.Tested++
		if g.Growth {
			s.Grew++
			if complexMedia[g.MediaID] {
				complexGrew[g.StrainID]++
			}
		}
	}
	out := make([]StrainSummary, 0, len(byStrain))
	for id, s := range byStrain {
		if s.Tested > 0 {
			s.GrowthRate = float64(s.Grew) / float64(s.Tested)
		}
		if s.Grew > 0 {
			s.PctComplex = float64(complexGrew[id]) / float64(s.Grew)
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StrainID < out[j].StrainID })
	return out
}
