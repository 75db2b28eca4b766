package features

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/parquet-go/parquet-go"
	"gonum.org/v1/gonum/mat"

	"github.com/vthunder/culturedb/internal/store"
)

func f64(v float64) *float64 { return &v }

func TestIngredientIndex(t *testing.T) {
	ix := NewIngredientIndex([]store.Ingredient{{ID: 5}, {ID: 1}, {ID: 3}, {ID: 3}})
	if !reflect.DeepEqual(ix.IDs, []int64{1, 3, 5}) {
		t.Errorf("ids = %v", ix.IDs)
	}
	if c, ok := ix.Col(5); !ok || c != 2 {
		t.Errorf("Col(5) = %d, %v", c, ok)
	}
	if _, ok := ix.Col(7); ok {
		t.Error("unknown id should have no column")
	}
}

func TestBuildComposition(t *testing.T) {
	ix := NewIngredientIndex([]store.Ingredient{{ID: 1}, {ID: 3}, {ID: 5}})
	m, err := BuildComposition(ix, []store.Composition{
		{MediaID: "M2", IngredientID: 1, GPerL: f64(2)},
		{MediaID: "M1", IngredientID: 3},
		{MediaID: "M1", IngredientID: 5, GPerL: f64(1.5)},
		{MediaID: "M1", IngredientID: 99, GPerL: f64(7)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if r, c := m.Data.Dims(); r != 2 || c != 3 {
		t.Fatalf("dims = %dx%d", r, c)
	}
	if row, _ := m.Row("M1"); !reflect.DeepEqual(row, []float64{0, 0, 1.5}) {
		t.Errorf("M1 = %v", row)
	}
	if row, _ := m.Row("M2"); !reflect.DeepEqual(row, []float64{2, 0, 0}) {
		t.Errorf("M2 = %v", row)
	}
	if _, ok := m.Row("M3"); ok {
		t.Error("M3 has no composition")
	}

	if _, err := BuildComposition(ix, nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("empty err = %v", err)
	}
}

func TestLogScaleAndBinaryPresence(t *testing.T) {
	d := mat.NewDense(1, 3, []float64{0, math.E - 1, 3})
	ls := LogScale(d)
	if ls.At(0, 0) != 0 || math.Abs(ls.At(0, 1)-1) > 1e-12 || ls.At(0, 2) >= 3 {
		t.Errorf("log scale = %v", mat.Formatted(ls))
	}
	if d.At(0, 1) != math.E-1 {
		t.Error("LogScale modified its input")
	}
	b := BinaryPresence(d)
	if b.At(0, 0) != 0 || b.At(0, 1) != 1 || b.At(0, 2) != 1 {
		t.Errorf("binary = %v", mat.Formatted(b))
	}
}

var observations = []store.Growth{
	{StrainID: 101, MediaID: "M1", Growth: true},
	{StrainID: 101, MediaID: "M2", Growth: false},
	{StrainID: 101, MediaID: "M3", Growth: true},
	{StrainID: 102, MediaID: "M1", Growth: false},
	{StrainID: 102, MediaID: "M2", Growth: true},
}

func TestBuildGrowthMatrix(t *testing.T) {
	gm, err := BuildGrowthMatrix(append(observations, store.Growth{StrainID: 102, MediaID: "M1", Growth: true}))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(gm.StrainIDs, []int64{101, 102}) || !reflect.DeepEqual(gm.MediaIDs, []string{"M1", "M2", "M3"}) {
		t.Fatalf("labels = %v %v", gm.StrainIDs, gm.MediaIDs)
	}
	want := []float64{1, 0, 1, 1, 1, 0}
	if !reflect.DeepEqual(gm.Data.RawMatrix().Data, want) {
		t.Errorf("data = %v", gm.Data.RawMatrix().Data)
	}
	if _, err := BuildGrowthMatrix(nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("empty err = %v", err)
	}
}

func TestStrainSummaries(t *testing.T) {
	media := []store.Medium{{ID: "M1"}, {ID: "M2"}, {ID: "M3", Complex: true}}
	got := StrainSummaries(observations, media)
	if len(got) != 2 {
		t.Fatalf("summaries = %+v", got)
	}
	s := got[0]
	if s.StrainID != 101 || s.Tested != 3 || s.Grew != 2 || math.Abs(s.GrowthRate-2.0/3) > 1e-9 || s.PctComplex != 0.5 {
		t.Errorf("101 = %+v", s)
	}
	if got[1].PctComplex != 0 || got[1].GrowthRate != 0.5 {
		t.Errorf("102 = %+v", got[1])
	}
}

func TestGrowthSamples(t *testing.T) {
	gm, _ := BuildGrowthMatrix(observations)
	ix := NewIngredientIndex([]store.Ingredient{{ID: 1}})
	comp, _ := BuildComposition(ix, []store.Composition{
		{MediaID: "M1", IngredientID: 1, GPerL: f64(1)},
		{MediaID: "M2", IngredientID: 1, GPerL: f64(2)},
	})
	samples := GrowthSamples(gm, comp)
	if len(samples) != 4 {
		t.Fatalf("samples = %+v", samples)
	}
	labels := []int32{samples[0].Label, samples[1].Label, samples[2].Label, samples[3].Label}
	if !reflect.DeepEqual(labels, []int32{1, 0, 0, 1}) {
		t.Errorf("labels = %v", labels)
	}
	if samples[1].MediaID != "M2" || samples[1].Media[0] != 2 {
		t.Errorf("sample = %+v", samples[1])
	}
}

func TestGenomeMediaSamples(t *testing.T) {
	ix := NewIngredientIndex([]store.Ingredient{{ID: 1}})
	comp, _ := BuildComposition(ix, []store.Composition{
		{MediaID: "M1", IngredientID: 1, GPerL: f64(1)},
		{MediaID: "M2", IngredientID: 1, GPerL: f64(2)},
	})
	genomes := []store.Genome{
		{ID: "G2", OrganismType: store.OrganismFungi},
		{ID: "G1", OrganismType: store.OrganismBacteria},
		{ID: "G3", OrganismType: store.OrganismBacteria},
	}
	emb := map[string][]float32{"G1": {1, 2}, "G2": {3, 4}}
	growth := []store.GenomeGrowth{
		{GenomeID: "G1", MediaID: "M1", Growth: true, Confidence: 0.5, Source: store.GrowthSourceLiterature},
		{GenomeID: "G1", MediaID: "M1", Growth: true, Confidence: 0.9, Source: store.GrowthSourceCurated},
		{GenomeID: "G1", MediaID: "M2", Growth: false, Confidence: 0.9, Source: store.GrowthSourceCurated},
		{GenomeID: "G1", MediaID: "M3", Growth: true, Confidence: 0.9, Source: store.GrowthSourceCurated},
		{GenomeID: "G2", MediaID: "M2", Growth: true, Confidence: 0.7, Source: store.GrowthSourcePropagated},
		{GenomeID: "G3", MediaID: "M1", Growth: true, Confidence: 0.7, Source: store.GrowthSourcePropagated},
	}

	got := GenomeMediaSamples(growth, genomes, emb, comp, "")
	if len(got) != 2 {
		t.Fatalf("samples = %+v", got)
	}
	if got[0].GenomeID != "G1" || got[0].Source != store.GrowthSourceCurated || got[0].Priority != 1 {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].GenomeID != "G2" || got[1].Priority != 3 || !reflect.DeepEqual(got[1].Genome, []float32{3, 4}) {
		t.Errorf("second = %+v", got[1])
	}

	fungi := GenomeMediaSamples(growth, genomes, emb, comp, store.OrganismFungi)
	if len(fungi) != 1 || fungi[0].GenomeID != "G2" {
		t.Errorf("fungi = %+v", fungi)
	}
}

func TestPriority(t *testing.T) {
	if Priority(store.OrganismBacteria) != 1 || Priority(store.OrganismVirus) != 5 || Priority("plant") != 999 {
		t.Error("priority order")
	}
}

func TestStratifiedSplit(t *testing.T) {
	labels := make([]int32, 100)
	for i := 80; i < 100; i++ {
		labels[i] = 1
	}
	a, err := StratifiedSplit(labels, 0.15, 0.15, 42)
	if err != nil {
		t.Fatal(err)
	}
	counts := SplitCounts(a)
	if counts[SplitTest] != 15 || counts[SplitVal] != 15 || counts[SplitTrain] != 70 {
		t.Errorf("counts = %v", counts)
	}
	positives := 0
	for i := 80; i < 100; i++ {
		if a[i] == SplitTest {
			positives++
		}
	}
	if positives != 3 {
		t.Errorf("positives in test = %d, want 3", positives)
	}

	b, _ := StratifiedSplit(labels, 0.15, 0.15, 42)
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed gave a different split")
	}
	c, _ := StratifiedSplit(labels, 0.15, 0.15, 7)
	if reflect.DeepEqual(a, c) {
		t.Error("different seeds gave the same split")
	}

	if _, err := StratifiedSplit(labels, 0.6, 0.4, 1); err == nil {
		t.Error("sizes summing to 1 should fail")
	}
}

func seedDB(t *testing.T) *store.DB {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, store.Options{Path: filepath.Join(t.TempDir(), "features.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	for _, m := range []store.Medium{{ID: "M1", Name: "one"}, {ID: "M2", Name: "two"}, {ID: "M3", Name: "three", Complex: true}} {
		must(store.InsertMedium(ctx, db, m))
	}
	for i := int64(1); i <= 5; i++ {
		must(store.InsertIngredient(ctx, db, store.Ingredient{ID: i, Name: "ing"}))
	}
	for _, c := range []store.Composition{
		{MediaID: "M1", IngredientID: 1, IngredientName: "ing", GPerL: f64(10)},
		{MediaID: "M1", IngredientID: 4, IngredientName: "ing", GPerL: f64(0.5)},
		{MediaID: "M2", IngredientID: 2, IngredientName: "ing", GPerL: f64(5)},
	} {
		must(store.InsertComposition(ctx, db, c))
	}
	for _, id := range []int64{101, 102} {
		must(store.UpsertStrain(ctx, db, store.Strain{ID: id}))
	}
	for _, g := range observations {
		must(store.UpsertGrowth(ctx, db, g, store.OverwriteGrowthFlag))
	}
	strain := int64(101)
	_, err = store.InsertGenome(ctx, db, store.Genome{ID: "G1", StrainID: &strain, OrganismName: "x", OrganismType: store.OrganismBacteria})
	must(err)
	must(store.UpsertEmbedding(ctx, db, store.Embedding{GenomeID: "G1", Method: "stats", Vector: []float32{50, 50, 6, 0}}))
	must(store.UpsertGenomeGrowth(ctx, db, store.GenomeGrowth{GenomeID: "G1", MediaID: "M1", Growth: true, Confidence: 0.85, Source: store.GrowthSourcePropagated}))
	return db
}

func TestExport(t *testing.T) {
	db := seedDB(t)
	dir := t.TempDir()
	s, err := NewBuilder(db).Export(context.Background(), dir, Options{Method: "stats", Seed: 42, TestSize: 0.25, ValSize: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	if s.Media != 2 || s.Ingredients != 5 || s.Strains != 2 || s.GrowthSamples != 4 || s.GenomeSamples != 1 {
		t.Errorf("summary = %+v", s)
	}
	if len(s.Files) != 4 {
		t.Errorf("files = %v", s.Files)
	}
	for _, f := range s.Files {
		if _, err := os.Stat(f); err != nil {
			t.Error(err)
		}
	}

	rows, err := parquet.ReadFile[GrowthSample](filepath.Join(dir, "growth_prediction", "samples.parquet"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 || len(rows[0].Media) != 5 {
		t.Fatalf("rows = %+v", rows)
	}
	if math.Abs(float64(rows[0].Media[0])-math.Log1p(10)) > 1e-5 {
		t.Errorf("composition is not log scaled: %v", rows[0].Media)
	}

	genome, err := parquet.ReadFile[GenomeMediaSample](filepath.Join(dir, "genome_media", "samples.parquet"))
	if err != nil {
		t.Fatal(err)
	}
	if len(genome) != 1 || genome[0].GenomeID != "G1" || len(genome[0].Genome) != 4 {
		t.Errorf("genome rows = %+v", genome)
	}

	noEmb, err := NewBuilder(db).Export(context.Background(), t.TempDir(), Options{Method: "kmer_2", TestSize: 0.1})
	if err != nil {
		t.Fatal(err)
	}
	if noEmb.GenomeSamples != 0 || len(noEmb.Files) != 3 {
		t.Errorf("without embeddings = %+v", noEmb)
	}
}
