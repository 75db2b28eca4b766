// Package features turns the catalogue into model-ready matrices and
// datasets: media composition vectors, strain growth matrices and
// genome-media pairs, exported as Parquet.
package features

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/vthunder/culturedb/internal/store"
)

// ErrEmpty is returned when there is nothing to build a matrix from.
var ErrEmpty = errors.New("no data to build features from")

// IngredientIndex maps ingredient ids to dense column numbers in ascending
// id order.
type IngredientIndex struct {
	IDs []int64
	col map[int64]int
}

// NewIngredientIndex indexes ingredients by id.
func NewIngredientIndex(ingredients []store.Ingredient) *IngredientIndex {
	ids := make([]int64, 0, len(ingredients))
	for _, in := range ingredients {
		ids = append(ids, in.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	ix := &IngredientIndex{col: make(map[int64]int, len(ids))}
	for _, id := range ids {
		if _, dup := ix.col[id]; dup {
			continue
		}
		ix.col[id] = len(ix.IDs)
		ix.IDs = append(ix.IDs, id)
	}
	return ix
}

// Len is the number of columns.
func (ix *IngredientIndex) Len() int { return len(ix.IDs) }

// Col returns the column of an ingredient id.
func (ix *IngredientIndex) Col(id int64) (int, bool) {
	c, ok := ix.col[id]
	return c, ok
}

// CompositionMatrix is a media x ingredients matrix of g/L concentrations.
// Rows are the media that have at least one composition entry, in sorted
// id order.
type CompositionMatrix struct {
	MediaIDs []string
	Index    *IngredientIndex
	Data     *mat.Dense
	row      map[string]int
}

// BuildComposition fills a matrix from (medium, ingredient, g/L) triples.
// Unknown concentrations and ingredients outside the index count as 0 and
// are dropped respectively.
func BuildComposition(ix *IngredientIndex, triples []store.Composition) (*CompositionMatrix, error) {
	rows := make(map[string]bool)
	for _, t := range triples {
		rows[t.MediaID] = true
	}
	if len(rows) == 0 || ix.Len() == 0 {
		return nil, ErrEmpty
	}
	m := &CompositionMatrix{Index: ix, row: make(map[string]int, len(rows))}
	for id := range rows {
		m.MediaIDs = append(m.MediaIDs, id)
	}
	sort.Strings(m.MediaIDs)
	for i, id := range m.MediaIDs {
		m.row[id] = i
	}

	m.Data = mat.NewDense(len(m.MediaIDs), ix.Len(), nil)
	for _, t := range triples {
		c, ok := ix.Col(t.IngredientID)
		if !ok {
			continue
		}
		v := 0.0
		if t.GPerL != nil {
			v = *t.GPerL
		}
		m.Data.Set(m.row[t.MediaID], c, v)
	}
	return m, nil
}

// Row returns the vector of one medium.
func (m *CompositionMatrix) Row(mediaID string) ([]float64, bool) {
	i, ok := m.row[mediaID]
	if !ok {
		return nil, false
	}
	return mat.Row(nil, i, m.Data), true
}

// Has reports whether mediaID is a row.
func (m *CompositionMatrix) Has(mediaID string) bool {
	_, ok := m.row[mediaID]
	return ok
}

// WithData returns a copy of m with the same rows and columns over d, which
// must have m's shape.
func (m *CompositionMatrix) WithData(d *mat.Dense) *CompositionMatrix {
	out := *m
	out.Data = d
	return &out
}

// LogScale applies log1p to every value, compressing the wide range of
// concentrations.
func LogScale(d *mat.Dense) *mat.Dense {
	return mapDense(d, math.Log1p)
}

// BinaryPresence maps positive values to 1 and everything else to 0.
func BinaryPresence(d *mat.Dense) *mat.Dense {
	return mapDense(d, func(v float64) float64 {
		if v > 0 {
			return 1
		}
		return 0
	})
}

func mapDense(d *mat.Dense, fn func(v float64) float64) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 { return fn(v) }, d)
	return &out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
