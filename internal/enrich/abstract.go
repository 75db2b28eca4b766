package enrich

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tsawler/prose/v3"
)

// AbstractParams are the growth parameters mentioned in a piece of text.
type AbstractParams struct {
	Temperatures  []int     `json:"temperatures_found,omitempty"`
	PHValues      []float64 `json:"ph_values_found,omitempty"`
	Media         []string  `json:"media_mentioned,omitempty"`
	CarbonSources []string  `json:"carbon_sources_mentioned,omitempty"`
}

// Empty reports whether nothing was found.
func (p AbstractParams) Empty() bool {
	return len(p.Temperatures) == 0 && len(p.PHValues) == 0 && len(p.Media) == 0 && len(p.CarbonSources) == 0
}

// MediaNames are the media recognised in text, matched as whole tokens.
var MediaNames = []string{"LB", "YPD", "M9", "TSB", "rich medium", "minimal medium"}

// CarbonSources are the carbon sources recognised in text.
var CarbonSources = []string{"glucose", "acetate", "succinate", "pyruvate", "glycerol", "lactose"}

var (
	tempPattern = regexp.MustCompile(`(?i)\b(\d{1,3})(?:\.\d+)?\s*(?:°\s*c\b|º\s*c\b|celsius|degrees\s+c\b|c\b)`)
	phPattern   = regexp.MustCompile(`(?i)\bph\s*(?:=|:|of)?\s*(\d{1,2}(?:\.\d+)?)`)
)

// ExtractFromAbstract finds temperatures, pH values, media and carbon
// sources mentioned in text. Numbers come from patterns over the raw text;
// names are matched against its tokens so that "LB" does not match inside
// another word.
func ExtractFromAbstract(text string) AbstractParams {
	var p AbstractParams

	seenT := make(map[int]bool)
	for _, m := range tempPattern.FindAllStringSubmatch(text, -1) {
		v, err := strconv.Atoi(m[1])
		if err != nil || seenT[v] {
			continue
		}
		seenT[v] = true
		p.Temperatures = append(p.Temperatures, v)
	}

	seenPH := make(map[float64]bool)
	for _, m := range phPattern.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil || v < 0 || v > 14 || seenPH[v] {
			continue
		}
		seenPH[v] = true
		p.PHValues = append(p.PHValues, v)
	}

	toks := tokens(text)
	for _, name := range MediaNames {
		if containsPhrase(toks, name) {
			p.Media = append(p.Media, name)
		}
	}
	for _, name := range CarbonSources {
		if containsPhrase(toks, name) {
			p.CarbonSources = append(p.CarbonSources, name)
		}
	}
	return p
}

// Merge combines the parameters of several texts without duplicates.
func Merge(params []AbstractParams) AbstractParams {
	var out AbstractParams
	temps := make(map[int]bool)
	phs := make(map[float64]bool)
	media := make(map[string]bool)
	carbons := make(map[string]bool)
	for _, p := range params {
		for _, v := range p.Temperatures {
			temps[v] = true
		}
		for _, v := range p.PHValues {
			phs[v] = true
		}
		for _, v := range p.Media {
			media[v] = true
		}
		for _, v := range p.CarbonSources {
			carbons[v] = true
		}
	}
	for v := range temps {
		out.Temperatures = append(out.Temperatures, v)
	}
	for v := range phs {
		out.PHValues = append(out.PHValues, v)
	}
	for v := range media {
		out.Media = append(out.Media, v)
	}
	for v := range carbons {
		out.CarbonSources = append(out.CarbonSources, v)
	}
	sort.Ints(out.Temperatures)
	sort.Float64s(out.PHValues)
	sort.Strings(out.Media)
	sort.Strings(out.CarbonSources)
	return out
}

// tokens splits text into lower-cased word tokens. prose does the
// tokenization; plain whitespace splitting is the fallback when it fails.
func tokens(text string) []string {
	var raw []string
	if doc, err := prose.NewDocument(text); err == nil {
		for _, tok := range doc.Tokens() {
			raw = append(raw, tok.Text)
		}
	} else {
		raw = strings.Fields(text)
	}
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.Trim(t, ".,;:()[]{}\"'"))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func containsPhrase(toks []string, phrase string) bool {
	words := strings.Fields(strings.ToLower(phrase))
	if len(words) == 0 {
		return false
	}
	for i := 0; i+len(words) <= len(toks); i++ {
		match := true
		for j, w := range words {
			if toks[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
