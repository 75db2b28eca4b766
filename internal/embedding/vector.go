// Package embedding provides similarity math over stored feature vectors.
package embedding

import (
	"math"
	"sort"
)

// Cosine computes similarity between two vectors (-1 to 1). Vectors of
// different length or zero norm have similarity 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Centroid computes the mean of vectors sharing the first vector's length.
func Centroid(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}

	dims := len(vectors[0])
	sum := make([]float64, dims)
	n := 0
	for _, v := range vectors {
		if len(v) != dims {
			continue // skip mismatched dimensions
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		n++
	}

	out := make([]float32, dims)
	for i := range sum {
		out[i] = float32(sum[i] / float64(n))
	}
	return out
}

// Match is one neighbour returned by Nearest.
type Match struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
}

// Nearest ranks candidates by cosine similarity to query, best first, and
// returns at most k. Ties are ordered by id. The query's own id is excluded.
func Nearest(queryID string, query []float32, candidates map[string][]float32, k int) []Match {
	matches := make([]Match, 0, len(candidates))
	for id, v := range candidates {
		if id == queryID || len(v) != len(query) {
			continue
		}
		matches = append(matches, Match{ID: id, Similarity: Cosine(query, v)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ID < matches[j].ID
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
