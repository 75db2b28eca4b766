package bacdive

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/vthunder/culturedb/internal/mediadive"
	"github.com/vthunder/culturedb/internal/store"
)

// SearchResult is one hit of a BacDive search. Older responses carry the id
// as bacdive_id.
type SearchResult struct {
	ID        mediadive.OptInt    `json:"id"`
	BacDiveID mediadive.OptInt    `json:"bacdive_id"`
	Species   mediadive.OptString `json:"species"`
}

// StrainID returns the BacDive id of the hit, if any.
func (r SearchResult) StrainID() (int64, bool) {
	if r.ID.Valid {
		return r.ID.Value, true
	}
	return r.BacDiveID.Value, r.BacDiveID.Valid
}

// StrainRecord is the subset of a BacDive strain document we store.
type StrainRecord struct {
	StrainName mediadive.OptString `json:"strain_name"`
	Species    mediadive.OptString `json:"species"`
	Genus      mediadive.OptString `json:"genus"`
	Domain     mediadive.OptString `json:"domain"`
	TaxID      mediadive.OptInt    `json:"NCBI Taxonomy ID"`

	CultureConditions []CultureCondition `json:"Culture conditions"`
	Physiology        []Physiology       `json:"Physiology"`
}

// CultureCondition values vary between a scalar, a list and an object, so
// they are kept raw and rendered on demand.
type CultureCondition struct {
	Temperature json.RawMessage `json:"temperature"`
	PH          json.RawMessage `json:"pH"`
	Oxygen      json.RawMessage `json:"oxygen"`
	Medium      json.RawMessage `json:"Medium"`
}

type Physiology struct {
	SubstrateUtilization json.RawMessage `json:"Substrate utilization"`
	MediaUsed            json.RawMessage `json:"Media used"`
}

// Conditions is the flattened culture summary of a strain.
type Conditions struct {
	Temperature   string   `json:"temperature,omitempty"`
	PH            string   `json:"ph,omitempty"`
	Oxygen        string   `json:"oxygen,omitempty"`
	CarbonSources []string `json:"carbon_sources,omitempty"`
}

// Conditions reads the first culture-condition and physiology blocks.
func (r *StrainRecord) Conditions() Conditions {
	var c Conditions
	if len(r.CultureConditions) > 0 {
		cc := r.CultureConditions[0]
		c.Temperature = rawText(cc.Temperature)
		c.PH = rawText(cc.PH)
		c.Oxygen = rawText(cc.Oxygen)
	}
	if len(r.Physiology) > 0 {
		c.CarbonSources = rawStrings(r.Physiology[0].SubstrateUtilization)
	}
	return c
}

// MediaPreferences lists the distinct media names mentioned anywhere in the
// record, sorted.
func (r *StrainRecord) MediaPreferences() []string {
	seen := make(map[string]bool)
	for _, cc := range r.CultureConditions {
		for _, m := range rawStrings(cc.Medium) {
			seen[m] = true
		}
	}
	for _, p := range r.Physiology {
		for _, m := range rawStrings(p.MediaUsed) {
			seen[m] = true
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// domainTypes maps BacDive domains to organism types.
var domainTypes = map[string]string{
	"bacteria":  store.OrganismBacteria,
	"archaea":   store.OrganismArchaea,
	"fungi":     store.OrganismFungi,
	"eukaryota": store.OrganismProtist,
}

// OrganismType maps a BacDive domain to an organism type, defaulting to
// bacteria.
func OrganismType(domain string) string {
	if t, ok := domainTypes[strings.ToLower(strings.TrimSpace(domain))]; ok {
		return t
	}
	return store.OrganismBacteria
}

// domainCode is the one-letter domain stored on strains, as MediaDive does.
func domainCode(organismType string) string {
	if organismType == "" {
		return ""
	}
	return strings.ToUpper(organismType[:1])
}

// rawText renders a scalar as text. Lists and objects are kept as compact
// JSON.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var buf bytes.Buffer
	if json.Compact(&buf, raw) != nil {
		return ""
	}
	return buf.String()
}

// rawStrings accepts a string or a list of strings.
func rawStrings(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		out := list[:0]
		for _, s := range list {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	if s := rawText(raw); s != "" && raw[0] == '"' {
		return []string{s}
	}
	return nil
}
