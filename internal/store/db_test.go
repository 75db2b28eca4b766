package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Options{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }
func i64Ptr(i int64) *int64     { return &i }

func TestOpen_CreatesSchemaIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "media.db")
	ctx := context.Background()

	db, err := Open(ctx, Options{Path: path})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := InsertMedium(ctx, db, Medium{ID: "1", Name: "Nutrient agar"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	db.Close()

	db, err = Open(ctx, Options{Path: path})
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer db.Close()

	v, err := db.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if v != schemaVersion {
		t.Errorf("schema version = %d, want %d", v, schemaVersion)
	}
	counts, err := db.TableCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if got := CountOf(counts, "media"); got != 1 {
		t.Errorf("media rows = %d, want 1 (data must survive re-open)", got)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "oracle", Path: filepath.Join(t.TempDir(), "x.db")})
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestOpen_PgxRequiresURL(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: DriverPgx})
	if err == nil {
		t.Fatal("expected error when pgx has no URL")
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		dialect Dialect
		in      string
		want    string
	}{
		{SQLite, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{Postgres, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{Postgres, "SELECT '?' FROM t WHERE a = ?", "SELECT '?' FROM t WHERE a = $1"},
		{Postgres, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		if got := Rebind(tt.dialect, tt.in); got != tt.want {
			t.Errorf("Rebind(%s, %q) = %q, want %q", tt.dialect, tt.in, got, tt.want)
		}
	}
}

func TestInsertMedium_FirstWriterWins(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := InsertMedium(ctx, db, Medium{ID: "1", Name: "first", Source: strPtr("DSMZ")}); err != nil {
		t.Fatal(err)
	}
	if err := InsertMedium(ctx, db, Medium{ID: "1", Name: "second"}); err != nil {
		t.Fatal(err)
	}
	m, err := db.Medium(ctx, "1")
	if err != nil || m == nil {
		t.Fatalf("medium lookup: %v %v", m, err)
	}
	if m.Name != "first" {
		t.Errorf("name = %q, want first", m.Name)
	}
	if m.Source == nil || *m.Source != "DSMZ" {
		t.Errorf("source = %v, want DSMZ", m.Source)
	}
}

func TestComposition_ForeignKeyViolation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := InsertComposition(ctx, db, Composition{MediaID: "missing", IngredientID: 1, GPerL: f64Ptr(1)})
	if err == nil {
		t.Fatal("expected foreign key violation for unknown media")
	}
	if !IsForeignKeyViolation(err) {
		t.Errorf("IsForeignKeyViolation(%v) = false", err)
	}
}

func TestComposition_NegativeConcentrationStoredAsNull(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := InsertMedium(ctx, db, Medium{ID: "1", Name: "m"}); err != nil {
		t.Fatal(err)
	}
	if err := InsertComposition(ctx, db, Composition{MediaID: "1", IngredientID: 7, GPerL: f64Ptr(-2)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	rows, err := db.MediaComposition(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].GPerL != nil {
		t.Errorf("g_per_l = %v, want nil", *rows[0].GPerL)
	}
}

func TestUpsertStrain_CoalescesFields(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := UpsertStrain(ctx, db, Strain{ID: 42, CCNo: strPtr("X")}); err != nil {
		t.Fatal(err)
	}
	if err := UpsertStrain(ctx, db, Strain{ID: 42, Species: strPtr("E. coli")}); err != nil {
		t.Fatal(err)
	}
	s, err := GetStrain(ctx, db, 42)
	if err != nil || s == nil {
		t.Fatalf("get strain: %v %v", s, err)
	}
	if s.Species == nil || *s.Species != "E. coli" {
		t.Errorf("species = %v, want E. coli", s.Species)
	}
	if s.CCNo == nil || *s.CCNo != "X" {
		t.Errorf("ccno = %v, want X", s.CCNo)
	}
}

func TestUpsertGrowth_StrainDetailIsAuthoritative(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := InsertMedium(ctx, db, Medium{ID: "M1", Name: "m"}); err != nil {
		t.Fatal(err)
	}
	if err := UpsertStrain(ctx, db, Strain{ID: 1}); err != nil {
		t.Fatal(err)
	}

	// medium-centric path first
	if err := UpsertGrowth(ctx, db, Growth{StrainID: 1, MediaID: "M1", Growth: true}, KeepGrowthFlag); err != nil {
		t.Fatal(err)
	}
	// then strain-centric path
	if err := UpsertGrowth(ctx, db, Growth{StrainID: 1, MediaID: "M1", Growth: false, GrowthRate: strPtr("fast")}, OverwriteGrowthFlag); err != nil {
		t.Fatal(err)
	}
	// medium-centric again must not flip the flag back or null the rate
	if err := UpsertGrowth(ctx, db, Growth{StrainID: 1, MediaID: "M1", Growth: true}, KeepGrowthFlag); err != nil {
		t.Fatal(err)
	}

	rows, err := db.GrowthForStrain(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].GrowthRate == nil || *rows[0].GrowthRate != "fast" {
		t.Errorf("growth_rate = %v, want fast", rows[0].GrowthRate)
	}
	if rows[0].Growth {
		t.Error("growth = true, want false from strain-detail path")
	}
}

func TestUpsertGenomeGrowth_ReplacesPerSource(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := InsertMedium(ctx, db, Medium{ID: "1", Name: "m"}); err != nil {
		t.Fatal(err)
	}
	if _, err := InsertGenome(ctx, db, Genome{ID: "g1", OrganismName: "E. coli", OrganismType: OrganismBacteria}); err != nil {
		t.Fatal(err)
	}

	writes := []GenomeGrowth{
		{GenomeID: "g1", MediaID: "1", Growth: true, Confidence: 0.5, Source: GrowthSourceInferred},
		{GenomeID: "g1", MediaID: "1", Growth: true, Confidence: 0.9, Source: GrowthSourceInferred},
		{GenomeID: "g1", MediaID: "1", Growth: false, Confidence: 0.7, Source: GrowthSourceCurated},
	}
	for _, w := range writes {
		if err := UpsertGenomeGrowth(ctx, db, w); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := db.GenomeGrowthRows(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 (one per source)", len(rows))
	}
	for _, r := range rows {
		if r.Source == GrowthSourceInferred && r.Confidence != 0.9 {
			t.Errorf("inferred confidence = %v, want 0.9", r.Confidence)
		}
	}
}

func TestInsertGenome_RejectsUnknownOrganismType(t *testing.T) {
	db := openTestDB(t)
	if _, err := InsertGenome(context.Background(), db, Genome{ID: "g", OrganismName: "x", OrganismType: "plant"}); err == nil {
		t.Fatal("expected error for invalid organism type")
	}
}

func TestEmbedding_RoundTripAndReplace(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := InsertGenome(ctx, db, Genome{ID: "g1", OrganismName: "x", OrganismType: OrganismFungi}); err != nil {
		t.Fatal(err)
	}
	if err := UpsertEmbedding(ctx, db, Embedding{GenomeID: "g1", Method: "stats", Vector: []float32{1, 2}}); err != nil {
		t.Fatal(err)
	}
	if err := UpsertEmbedding(ctx, db, Embedding{GenomeID: "g1", Method: "stats", Vector: []float32{0.5, 0.25, 3}}); err != nil {
		t.Fatal(err)
	}

	vecs, err := db.Embeddings(ctx, "stats")
	if err != nil {
		t.Fatal(err)
	}
	got := vecs["g1"]
	want := []float32{0.5, 0.25, 3}
	if len(got) != len(want) {
		t.Fatalf("vector = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("vector[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecodeVector_LengthMismatch(t *testing.T) {
	if _, err := DecodeVector([]byte{1, 2, 3}, 1); err == nil {
		t.Fatal("expected error for short blob")
	}
}

func TestRecipeOrderPreserved(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := InsertSolution(ctx, db, Solution{ID: 9, Name: "trace elements"}); err != nil {
		t.Fatal(err)
	}
	for _, order := range []int{3, 1, 2} {
		line := RecipeLine{SolutionID: 9, Order: order, IngredientName: "c", IngredientID: i64Ptr(int64(order))}
		if err := InsertRecipeLine(ctx, db, line); err != nil {
			t.Fatal(err)
		}
	}
	lines, err := db.SolutionRecipe(ctx, 9)
	if err != nil {
		t.Fatal(err)
	}
	for i, l := range lines {
		if l.Order != i+1 {
			t.Errorf("line %d order = %d", i, l.Order)
		}
	}
}

func TestRuns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.StartRun(ctx, "run-1", "1-8"); err != nil {
		t.Fatal(err)
	}
	if err := db.FinishRun(ctx, "run-1", 5, 2, 1); err != nil {
		t.Fatal(err)
	}
	runs, err := db.RecentRuns(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].UnitsFailed != 1 || runs[0].FinishedAt == nil {
		t.Errorf("runs = %+v", runs)
	}
}
