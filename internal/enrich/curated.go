package enrich

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed curated.yaml
var defaultCurated []byte

// CuratedMap maps an organism name pattern to media ids and the confidence
// that the organism grows on each.
type CuratedMap map[string]map[string]float64

// ParseCuratedMap decodes a curated map from YAML.
func ParseCuratedMap(data []byte) (CuratedMap, error) {
	var m CuratedMap
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse curated map: %w", err)
	}
	for pattern, media := range m {
		for id, conf := range media {
			if conf < 0 || conf > 1 {
				return nil, fmt.Errorf("curated map %q medium %s: confidence %v out of range", pattern, id, conf)
			}
		}
	}
	return m, nil
}

// DefaultCuratedMap returns the built-in map of well-known organisms.
func DefaultCuratedMap() CuratedMap {
	m, err := ParseCuratedMap(defaultCurated)
	if err != nil {
		panic(err)
	}
	return m
}

// With returns a copy of m overlaid with extra. Entries in extra replace
// the confidence of the same (pattern, medium) pair.
func (m CuratedMap) With(extra map[string]map[string]float64) CuratedMap {
	out := make(CuratedMap, len(m)+len(extra))
	for _, src := range []map[string]map[string]float64{m, extra} {
		for pattern, media := range src {
			if out[pattern] == nil {
				out[pattern] = make(map[string]float64, len(media))
			}
			for id, conf := range media {
				out[pattern][id] = conf
			}
		}
	}
	return out
}

// Patterns returns the organism patterns in sorted order.
func (m CuratedMap) Patterns() []string {
	out := make([]string, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Media returns the media ids of one pattern in sorted order.
func (m CuratedMap) Media(pattern string) []string {
	out := make([]string, 0, len(m[pattern]))
	for id := range m[pattern] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
