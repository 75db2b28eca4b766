package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/vthunder/culturedb/internal/apiclient"
	"github.com/vthunder/culturedb/internal/cache"
	"github.com/vthunder/culturedb/internal/ncbi"
	"github.com/vthunder/culturedb/internal/store"
)

func TestInferFromTaxonomy(t *testing.T) {
	tests := []struct {
		name                   string
		temp, ph, salt, oxygen string
	}{
		{"Thermoplasma acidophilum", "thermophile", "acidophile", "", "facultative"},
		{"Halobacterium salinarum", "mesophile", "neutrophile", "halophile", "facultative"},
		{"Clostridium botulinum", "mesophile", "neutrophile", "", "anaerobic"},
		{"Psychrobacter arcticus", "psychrophile", "neutrophile", "", "facultative"},
		{"Aerobacter aerogenes", "mesophile", "neutrophile", "", "aerobic"},
		{"Bacillus alkaliphilus", "mesophile", "alkaliphile", "", "facultative"},
	}
	for _, tt := range tests {
		c := InferFromTaxonomy(tt.name, store.OrganismBacteria)
		if c.Temperature != tt.temp || c.PH != tt.ph || c.Salt != tt.salt || c.Oxygen != tt.oxygen {
			t.Errorf("%s: got %s/%s/%q/%s", tt.name, c.Temperature, c.PH, c.Salt, c.Oxygen)
		}
		if c.Confidence != TaxonomyConfidence {
			t.Errorf("%s: confidence %v", tt.name, c.Confidence)
		}
	}
	if c := InferFromTaxonomy("Halobacterium salinarum", store.OrganismArchaea); c.SaltRangeM == nil || *c.SaltRangeM != (Range{0.5, 5}) {
		t.Errorf("salt range = %v", c.SaltRangeM)
	}
}

func TestExtractFromAbstract(t *testing.T) {
	text := "Cells were grown in LB medium with glucose at 37°C and pH 7.0, then shifted to M9 minimal medium with glycerol at 30 C."
	p := ExtractFromAbstract(text)
	if !reflect.DeepEqual(p.Temperatures, []int{37, 30}) {
		t.Errorf("temperatures = %v", p.Temperatures)
	}
	if !reflect.DeepEqual(p.PHValues, []float64{7.0}) {
		t.Errorf("pH = %v", p.PHValues)
	}
	if !reflect.DeepEqual(p.Media, []string{"LB", "M9", "minimal medium"}) {
		t.Errorf("media = %v", p.Media)
	}
	if !reflect.DeepEqual(p.CarbonSources, []string{"glucose", "glycerol"}) {
		t.Errorf("carbon sources = %v", p.CarbonSources)
	}

	if p := ExtractFromAbstract("The album was recorded in a studio."); !p.Empty() {
		t.Errorf("unexpected params = %+v", p)
	}
}

func TestMerge(t *testing.T) {
	got := Merge([]AbstractParams{
		{Temperatures: []int{37}, Media: []string{"LB"}},
		{Temperatures: []int{30, 37}, PHValues: []float64{7}, Media: []string{"LB", "M9"}},
	})
	want := AbstractParams{Temperatures: []int{30, 37}, PHValues: []float64{7}, Media: []string{"LB", "M9"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge = %+v", got)
	}
}

func TestCuratedMap(t *testing.T) {
	m := DefaultCuratedMap()
	if m["Escherichia coli"]["48"] != 0.95 || len(m.Patterns()) != 15 {
		t.Errorf("default map = %v", m)
	}
	merged := m.With(map[string]map[string]float64{
		"Escherichia coli": {"48": 0.5},
		"Vibrio":           {"7": 0.6},
	})
	if merged["Escherichia coli"]["48"] != 0.5 || merged["Escherichia coli"]["1"] != 0.9 || merged["Vibrio"]["7"] != 0.6 {
		t.Errorf("merged = %v", merged)
	}
	if m["Escherichia coli"]["48"] != 0.95 {
		t.Error("With modified the receiver")
	}
	if _, err := ParseCuratedMap([]byte(`Foo: {"1": 1.5}`)); err == nil {
		t.Error("out of range confidence should fail")
	}
}

func openDB(t *testing.T) *store.DB {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, store.Options{Path: filepath.Join(t.TempDir(), "enrich.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	for _, m := range []store.Medium{
		{ID: "1", Name: "LB (Luria-Bertani)"},
		{ID: "48", Name: "Nutrient broth"},
		{ID: "3", Name: "LBX"},
	} {
		if err := store.InsertMedium(ctx, db, m); err != nil {
			t.Fatal(err)
		}
	}
	for _, g := range []store.Genome{
		{ID: "G1", OrganismName: "Escherichia coli K-12", OrganismType: store.OrganismBacteria},
		{ID: "G2", OrganismName: "Escherichia coli O157:H7", OrganismType: store.OrganismBacteria},
		{ID: "G3", OrganismName: "Saccharomyces cerevisiae", OrganismType: store.OrganismFungi},
	} {
		if _, err := store.InsertGenome(ctx, db, g); err != nil {
			t.Fatal(err)
		}
	}
	return db
}

func TestLinkOrganismToMedia(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	n, err := LinkOrganismToMedia(ctx, db, "escherichia coli", "48", true, 0.8, store.GrowthSourceInferred)
	if err != nil || n != 2 {
		t.Fatalf("linked %d, err %v", n, err)
	}
	if n, err := LinkOrganismToMedia(ctx, db, "Escherichia coli", "999", true, 0.8, store.GrowthSourceInferred); err != nil || n != 0 {
		t.Errorf("unknown medium: %d, %v", n, err)
	}
	if n, _ := LinkOrganismToMedia(ctx, db, "Vibrio", "48", true, 0.8, store.GrowthSourceInferred); n != 0 {
		t.Errorf("unknown organism linked %d", n)
	}
	if _, err := LinkOrganismToMedia(ctx, db, "Escherichia coli", "48", true, 0.8, store.GrowthSourcePropagated); err == nil {
		t.Error("propagated source should be rejected")
	}
	if _, err := LinkOrganismToMedia(ctx, db, "Escherichia coli", "48", true, 1.2, store.GrowthSourceInferred); err == nil {
		t.Error("confidence above 1 should be rejected")
	}
}

func TestApplyCurated(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	// E. coli: media 48 and 1 exist, 2 does not. Saccharomyces media are absent.
	n, err := ApplyCurated(ctx, db, DefaultCuratedMap())
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("labels = %d", n)
	}
	rows, _ := db.GenomeGrowthRows(ctx, store.GrowthSourceCurated)
	if len(rows) != 4 || rows[0].GenomeID != "G1" || rows[0].MediaID != "1" || rows[0].Confidence != 0.9 {
		t.Errorf("rows = %+v", rows)
	}

	if n, _ := ApplyCurated(ctx, db, DefaultCuratedMap()); n != 4 {
		t.Errorf("reapply = %d", n)
	}
	if rows, _ := db.GenomeGrowthRows(ctx, ""); len(rows) != 4 {
		t.Errorf("reapply duplicated rows: %d", len(rows))
	}
}

func TestEnrich(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body any
		switch r.URL.Path {
		case "/esearch.fcgi":
			body = map[string]any{"esearchresult": map[string]any{"idlist": []string{"900"}}}
		case "/esummary.fcgi":
			body = map[string]any{"result": map[string]any{
				"uids": []string{"900"},
				"900":  map[string]any{"uid": "900", "title": "Escherichia coli grown in LB at 37°C"},
			}}
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()
	api, err := apiclient.New(apiclient.Options{
		BaseURL: srv.URL, MaxAttempts: 1, BackoffBase: time.Millisecond,
		Cache: cache.NewMemory(), Namespace: "ncbi",
	})
	if err != nil {
		t.Fatal(err)
	}

	r, err := NewEnricher(db, ncbi.NewClient(api)).Enrich(ctx, "Escherichia coli", store.OrganismBacteria, 5)
	if err != nil {
		t.Fatal(err)
	}
	if r.Confidence != LiteratureFoundConfidence || len(r.Articles) != 1 {
		t.Errorf("report = %+v", r)
	}
	if !reflect.DeepEqual(r.Found.Temperatures, []int{37}) {
		t.Errorf("found = %+v", r.Found)
	}
	if r.Linked["1"] != 2 || r.Statistics[store.GrowthSourceLiterature] != 2 {
		t.Errorf("linked = %v, stats = %v", r.Linked, r.Statistics)
	}

	offline, err := NewEnricher(db, nil).Enrich(ctx, "Vibrio fischeri", store.OrganismBacteria, 5)
	if err != nil {
		t.Fatal(err)
	}
	if offline.Confidence != TaxonomyConfidence || offline.Inferred.Temperature != "mesophile" {
		t.Errorf("offline = %+v", offline)
	}
}
