package features

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// StratifiedSplit assigns each index to train, val or test so that every
// class of strata is divided in the same proportions. The assignment depends
// only on strata and seed.
func StratifiedSplit(strata []int32, testSize, valSize float64, seed int64) ([]string, error) {
	if testSize < 0 || valSize < 0 || testSize+valSize >= 1 {
		return nil, fmt.Errorf("invalid split sizes test=%v val=%v", testSize, valSize)
	}
	classes := make(map[int32][]int)
	for i, s := range strata {
		classes[s] = append(classes[s], i)
	}
	keys := make([]int32, 0, len(classes))
	for k := range classes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	rng := rand.New(rand.NewPCG(uint64(seed), 0x6375_6c74))
	out := make([]string, len(strata))
	for _, k := range keys {
		idx := classes[k]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		nTest := int(math.Round(float64(len(idx)) * testSize))
		nVal := int(math.Round(float64(len(idx)) * valSize))
		if nTest+nVal > len(idx) {
			nVal = len(idx) - nTest
		}
		for pos, i := range idx {
			switch {
			case pos < nTest:
				out[i] = SplitTest
			case pos < nTest+nVal:
				out[i] = SplitVal
			default:
				out[i] = SplitTrain
			}
		}
	}
	return out, nil
}

// SplitCounts tallies split names.
func SplitCounts(splits []string) map[string]int {
	out := map[string]int{SplitTrain: 0, SplitVal: 0, SplitTest: 0}
	for _, s := range splits {
		out[s]++
	}
	return out
}
