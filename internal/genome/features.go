package genome

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Stats are whole-sequence composition statistics. GC and AT are percentages
// of the full length, ambiguous bases included.
type Stats struct {
	Length int64   `json:"sequence_length"`
	GC     float64 `json:"gc_content"`
	AT     float64 `json:"at_content"`
	NCount int64   `json:"n_count"`
}

// ComputeStats counts bases in an upper-case sequence.
func ComputeStats(seq string) Stats {
	var gc, at, n int64
	for i := 0; i < len(seq); i++ {
		switch seq[i] {
		case 'G', 'C':
			gc++
		case 'A', 'T':
			at++
		case 'N':
			n++
		}
	}
	s := Stats{Length: int64(len(seq)), NCount: n}
	if s.Length > 0 {
		s.GC = 100 * float64(gc) / float64(s.Length)
		s.AT = 100 * float64(at) / float64(s.Length)
	}
	return s
}

// MaxK bounds k-mer profiles to 4^8 dimensions.
const MaxK = 8

func baseCode(b byte) int {
	switch b {
	case 'A', 'a':
		return 0
	case 'C', 'c':
		return 1
	case 'G', 'g':
		return 2
	case 'T', 't':
		return 3
	}
	return -1
}

// KmerProfile returns the frequency of every k-mer over the alphabet ACGT,
// indexed in lexicographic order (AA..A first, TT..T last). K-mers touching
// any other letter are skipped. Counts are divided by the number of k-mer
// positions in the sequence, ambiguous ones included.
func KmerProfile(seq string, k int) []float32 {
	if k < 1 || k > MaxK {
		return nil
	}
	dim := 1 << (2 * k)
	mask := dim - 1
	profile := make([]float32, dim)

	code, run := 0, 0
	for i := 0; i < len(seq); i++ {
		b := baseCode(seq[i])
		if b < 0 {
			code, run = 0, 0
			continue
		}
		code = (code<<2 | b) & mask
		run++
		if run >= k {
			profile[code]++
		}
	}
	denom := float32(max(1, len(seq)-k+1))
	for i := range profile {
		profile[i] /= denom
	}
	return profile
}

// MethodStats names the four-value statistics embedding.
const MethodStats = "stats"

// Method is a parsed embedding method name: "stats" or "kmer_<k>".
type Method struct {
	Name string
	K    int
}

// ParseMethod validates an embedding method name.
func ParseMethod(name string) (Method, error) {
	if name == MethodStats {
		return Method{Name: name}, nil
	}
	if rest, ok := strings.CutPrefix(name, "kmer_"); ok {
		k, err := strconv.Atoi(rest)
		if err != nil || k < 1 || k > MaxK {
			return Method{}, fmt.Errorf("embedding method %q: k must be 1..%d", name, MaxK)
		}
		return Method{Name: name, K: k}, nil
	}
	return Method{}, fmt.Errorf("unknown embedding method %q", name)
}

// Dim is the vector length the method produces.
func (m Method) Dim() int {
	if m.K == 0 {
		return 4
	}
	return 1 << (2 * m.K)
}

// Embed computes the method's vector for seq.
func (m Method) Embed(seq string) ([]float32, error) {
	if seq == "" {
		return nil, ErrNoSequence
	}
	if m.K > 0 {
		return KmerProfile(seq, m.K), nil
	}
	s := ComputeStats(seq)
	return []float32{
		float32(s.GC),
		float32(s.AT),
		float32(math.Log10(float64(s.Length))),
		float32(s.NCount),
	}, nil
}
