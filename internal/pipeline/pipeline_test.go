package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/vthunder/culturedb/internal/apiclient"
	"github.com/vthunder/culturedb/internal/cache"
	"github.com/vthunder/culturedb/internal/ledger"
	"github.com/vthunder/culturedb/internal/mediadive"
	"github.com/vthunder/culturedb/internal/store"
)

func TestParseStages(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"", []int{1, 2, 3, 4, 5, 6, 7, 8}, false},
		{"all", []int{1, 2, 3, 4, 5, 6, 7, 8}, false},
		{"3", []int{3}, false},
		{"1-3,5", []int{1, 2, 3, 5}, false},
		{"5, 1-2 ,2", []int{1, 2, 5}, false},
		{"0", nil, true},
		{"9", nil, true},
		{"3-1", nil, true},
		{"1,,2", nil, true},
		{"x", nil, true},
	}
	for _, tt := range tests {
		got, err := ParseStages(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStages(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseStages(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatStages(t *testing.T) {
	for in, want := range map[string]string{"": "1-8", "1,3-5,8": "1,3-5,8", "2": "2", "6,7": "6-7"} {
		nums, err := ParseStages(in)
		if err != nil {
			t.Fatal(err)
		}
		if got := FormatStages(nums); got != want {
			t.Errorf("FormatStages(%v) = %q, want %q", nums, got, want)
		}
	}
}

func TestStagesDependOnEarlierStages(t *testing.T) {
	for _, s := range Stages {
		for _, d := range s.Deps {
			if d >= s.Num {
				t.Errorf("stage %d depends on later stage %d", s.Num, d)
			}
		}
		if s.IsList() == (s.unit != nil) {
			t.Errorf("stage %d must be either a list or an entity stage", s.Num)
		}
	}
}

// catalogue is a minimal MediaDive: one medium, one ingredient, one
// solution and one strain.
type catalogue struct {
	mu      sync.Mutex
	hits    int
	onHit   func(path string)
	lists   map[string][]any
	details map[string]any
}

func newCatalogue() *catalogue {
	recipe := []any{
		map[string]any{"recipe_order": 1, "compound_id": 100, "compound": "Peptone", "g_l": 5},
		map[string]any{"recipe_order": 2, "compound": "Trace elements", "solution_id": 11, "optional": "yes"},
	}
	return &catalogue{
		lists: map[string][]any{
			"/media":       {map[string]any{"id": 1, "name": "Nutrient agar", "complex_medium": 1}},
			"/ingredients": {map[string]any{"id": 100, "name": "Peptone"}},
			"/solutions":   {map[string]any{"id": 10, "name": "Main", "volume": 1000}},
		},
		details: map[string]any{
			"/medium/1": map[string]any{
				"medium":    map[string]any{"id": 1},
				"solutions": []any{map[string]any{"id": 10, "name": "Main", "recipe": recipe, "steps": []any{map[string]any{"step": "Mix"}}}},
			},
			"/medium-composition/1": []any{map[string]any{"id": 100, "name": "Peptone", "g_l": 5}},
			"/solution/10":          map[string]any{"recipe": recipe},
			"/medium-strains/1":     []any{map[string]any{"id": 42, "ccno": "DSM 498", "growth": true}},
			"/strain/id/42": map[string]any{
				"id": 42, "species": "Escherichia coli",
				"media": []any{map[string]any{"medium_id": 1, "growth": true, "growth_rate": "fast"}},
			},
		},
	}
}

func (c *catalogue) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	c.hits++
	onHit := c.onHit
	c.mu.Unlock()
	if onHit != nil {
		onHit(r.URL.Path)
	}

	var payload any
	if items, ok := c.lists[r.URL.Path]; ok {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		page := []any{}
		if offset < len(items) {
			page = items[offset:min(offset+limit, len(items))]
		}
		payload = map[string]any{"count": len(items), "data": page}
	} else if data, ok := c.details[r.URL.Path]; ok {
		payload = map[string]any{"status": 200, "data": data}
	} else {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func (c *catalogue) requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

func newPipeline(t *testing.T, api http.Handler) (*Pipeline, *store.DB) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	db, err := store.Open(context.Background(), store.Options{Path: filepath.Join(t.TempDir(), "mediadive.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	client, err := apiclient.New(apiclient.Options{
		BaseURL:     srv.URL,
		MaxAttempts: 2,
		BackoffBase: time.Millisecond,
		Cache:       cache.NewMemory(),
		Namespace:   "mediadive",
	})
	if err != nil {
		t.Fatal(err)
	}
	return New(mediadive.New(db, client, mediadive.Options{}), Options{}), db
}

func TestRun_AllStages(t *testing.T) {
	api := newCatalogue()
	p, db := newPipeline(t, api)
	ctx := context.Background()

	report, err := p.Run(ctx, []int{1, 2, 3, 4, 5, 6, 7, 8})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	done, skipped, failed := report.Totals()
	if done != 8 || skipped != 0 || failed != 0 {
		t.Fatalf("totals = %d/%d/%d, report = %+v", done, skipped, failed, report.Stages)
	}
	if report.Interrupted || report.LedgerErrors != 0 {
		t.Errorf("report = %+v", report)
	}

	for table, want := range map[string]int{
		"media": 1, "ingredients": 1, "solutions": 1, "media_solutions": 1,
		"solution_recipe": 2, "solution_steps": 1, "media_composition": 1,
		"strains": 1, "strain_growth": 1,
	} {
		if got := store.CountOf(report.Counts, table); got != want {
			t.Errorf("%s rows = %d, want %d", table, got, want)
		}
	}

	growth, err := db.GrowthForStrain(ctx, 42)
	if err != nil || len(growth) != 1 || growth[0].GrowthRate == nil || *growth[0].GrowthRate != "fast" {
		t.Errorf("growth = %+v, %v", growth, err)
	}

	runs, err := db.RecentRuns(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != report.RunID || runs[0].FinishedAt == nil || runs[0].UnitsDone != 8 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestRun_SecondRunSkipsEverything(t *testing.T) {
	api := newCatalogue()
	p, _ := newPipeline(t, api)
	ctx := context.Background()
	all, _ := ParseStages("")

	first, err := p.Run(ctx, all)
	if err != nil {
		t.Fatal(err)
	}
	requests := api.requests()

	second, err := p.Run(ctx, all)
	if err != nil {
		t.Fatal(err)
	}
	done, _, failed := second.Totals()
	if done != 0 || failed != 0 {
		t.Errorf("second run totals: done=%d failed=%d", done, failed)
	}
	if api.requests() != requests {
		t.Errorf("second run made %d requests", api.requests()-requests)
	}
	if !reflect.DeepEqual(first.Counts, second.Counts) {
		t.Errorf("counts changed: %v -> %v", first.Counts, second.Counts)
	}
	// media were flagged fetched, so stage 2 has no units left at all
	if sr, ok := second.Stage(2); !ok || sr.Skipped != 0 || sr.Done != 0 {
		t.Errorf("stage 2 = %+v", sr)
	}
}

func TestRun_FailuresAreCountedNotReturned(t *testing.T) {
	api := newCatalogue()
	delete(api.details, "/medium-composition/1")
	p, _ := newPipeline(t, api)
	ctx := context.Background()

	report, err := p.Run(ctx, []int{1, 4})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	sr, _ := report.Stage(4)
	if sr.Failed != 1 {
		t.Errorf("stage 4 = %+v", sr)
	}
	if report.LedgerErrors != 1 || report.ErrorsByStage[ledger.Composition] != 1 {
		t.Errorf("ledger errors = %d %v", report.LedgerErrors, report.ErrorsByStage)
	}
}

func TestRun_InterruptedBetweenUnits(t *testing.T) {
	api := newCatalogue()
	api.lists["/media"] = append(api.lists["/media"], map[string]any{"id": 2, "name": "LB"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api.onHit = func(path string) {
		if path == "/medium/1" || path == "/medium/2" {
			cancel()
		}
	}
	p, db := newPipeline(t, api)

	report, err := p.Run(ctx, []int{1, 2, 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Interrupted {
		t.Fatalf("report should be interrupted: %+v", report)
	}
	if _, ok := report.Stage(3); ok {
		t.Error("stage 3 should not have started")
	}
	sr, _ := report.Stage(2)
	if sr.Done != 0 || sr.Failed != 0 {
		t.Errorf("stage 2 = %+v", sr)
	}

	bg := context.Background()
	if n, _ := p.in.Ledger().ErrorCount(bg); n != 0 {
		t.Errorf("cancellation recorded %d ledger errors", n)
	}
	remaining, _ := db.MediaIDsWithoutDetail(bg)
	if len(remaining) != 2 {
		t.Errorf("media without detail = %v", remaining)
	}
	runs, _ := db.RecentRuns(bg, 1)
	if len(runs) != 1 || runs[0].FinishedAt == nil {
		t.Errorf("interrupted run should still be finished: %+v", runs)
	}
}

func TestReset(t *testing.T) {
	api := newCatalogue()
	p, _ := newPipeline(t, api)
	ctx := context.Background()

	if _, err := p.Run(ctx, []int{1, 3}); err != nil {
		t.Fatal(err)
	}
	n, err := p.Reset(ctx, "3")
	if err != nil || n != 1 {
		t.Fatalf("Reset(3) = %d, %v", n, err)
	}
	if done, _ := p.in.Ledger().IsDone(ctx, ledger.MediaList); !done {
		t.Error("stage 1 should still be done")
	}
	if _, err := p.Reset(ctx, ""); err == nil {
		t.Error("empty reset target should be rejected")
	}
}
