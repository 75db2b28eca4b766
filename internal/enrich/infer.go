// Package enrich attaches growth conditions and media to genomes from
// sources other than the culture catalogue: name-based inference, PubMed
// abstracts and a curated organism-to-media map.
package enrich

import "strings"

// Range is an inclusive [low, high] interval.
type Range [2]float64

// Conditions are growth conditions guessed for an organism.
type Conditions struct {
	Organism     string  `json:"organism_name"`
	OrganismType string  `json:"organism_type"`
	Temperature  string  `json:"temperature_preference"`
	TempRangeC   Range   `json:"temperature_range_c"`
	PH           string  `json:"ph_preference"`
	PHRange      Range   `json:"ph_range"`
	Salt         string  `json:"salt_preference,omitempty"`
	SaltRangeM   *Range  `json:"salt_concentration_m,omitempty"`
	Oxygen       string  `json:"oxygen_requirement"`
	Confidence   float64 `json:"confidence"`
}

// TaxonomyConfidence is the confidence of name-based inference.
const TaxonomyConfidence = 0.3

func containsAny(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// InferFromTaxonomy guesses conditions from words in the organism name,
// e.g. "Thermoplasma acidophilum" is a thermophilic acidophile and
// "Clostridium botulinum" is anaerobic. Anything unrecognised falls back to
// a mesophilic, neutrophilic, facultative organism.
func InferFromTaxonomy(name, organismType string) Conditions {
	n := strings.ToLower(name)
	c := Conditions{Organism: name, OrganismType: organismType, Confidence: TaxonomyConfidence}

	switch {
	case containsAny(n, "thermo", "hot"):
		c.Temperature, c.TempRangeC = "thermophile", Range{45, 122}
	case containsAny(n, "psychro", "cold", "cryo"):
		c.Temperature, c.TempRangeC = "psychrophile", Range{-10, 15}
	default:
		c.Temperature, c.TempRangeC = "mesophile", Range{20, 45}
	}

	switch {
	case containsAny(n, "acidophil", "acidic", "acidobacter"):
		c.PH, c.PHRange = "acidophile", Range{1, 5}
	case containsAny(n, "alkaliphil", "alkaline"):
		c.PH, c.PHRange = "alkaliphile", Range{8, 14}
	default:
		c.PH, c.PHRange = "neutrophile", Range{6, 8}
	}

	if containsAny(n, "haloba", "halococ", "halophil", "salt") {
		c.Salt = "halophile"
		c.SaltRangeM = &Range{0.5, 5}
	}

	switch {
	case containsAny(n, "clostr", "anaerob"):
		c.Oxygen = "anaerobic"
	case containsAny(n, "aerob"):
		c.Oxygen = "aerobic"
	default:
		c.Oxygen = "facultative"
	}
	return c
}
