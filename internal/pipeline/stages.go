package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/vthunder/culturedb/internal/ledger"
	"github.com/vthunder/culturedb/internal/mediadive"
	"github.com/vthunder/culturedb/internal/store"
)

// Stage is one step of the MediaDive ingest. List stages are a single unit;
// entity stages run one unit per id returned by ids.
type Stage struct {
	Num  int
	Name string
	Deps []int

	list func(in *mediadive.Ingester, ctx context.Context) ledger.UnitResult
	ids  func(ctx context.Context, db *store.DB) ([]string, error)
	unit func(in *mediadive.Ingester, ctx context.Context, id string) ledger.UnitResult
}

// IsList reports whether the stage is a single paginated listing.
func (s Stage) IsList() bool { return s.list != nil }

// Stages in dependency order.
var Stages = []Stage{
	{
		Num: 1, Name: ledger.MediaList,
		list: (*mediadive.Ingester).FetchMediaList,
	},
	{
		Num: 2, Name: ledger.MediumDetail, Deps: []int{1},
		ids:  func(ctx context.Context, db *store.DB) ([]string, error) { return db.MediaIDsWithoutDetail(ctx) },
		unit: (*mediadive.Ingester).FetchMediumDetail,
	},
	{
		Num: 3, Name: ledger.IngredientList,
		list: (*mediadive.Ingester).FetchIngredientList,
	},
	{
		Num: 4, Name: ledger.Composition, Deps: []int{1},
		ids:  func(ctx context.Context, db *store.DB) ([]string, error) { return db.MediaIDs(ctx) },
		unit: (*mediadive.Ingester).FetchMediumComposition,
	},
	{
		Num: 5, Name: ledger.SolutionList,
		list: (*mediadive.Ingester).FetchSolutionList,
	},
	{
		Num: 6, Name: ledger.SolutionDetail, Deps: []int{5},
		ids: func(ctx context.Context, db *store.DB) ([]string, error) {
			return int64Strings(db.SolutionIDs(ctx))
		},
		unit: func(in *mediadive.Ingester, ctx context.Context, id string) ledger.UnitResult {
			n, _ := strconv.ParseInt(id, 10, 64)
			return in.FetchSolutionDetail(ctx, n)
		},
	},
	{
		Num: 7, Name: ledger.MediumStrains, Deps: []int{1},
		ids:  func(ctx context.Context, db *store.DB) ([]string, error) { return db.MediaIDs(ctx) },
		unit: (*mediadive.Ingester).FetchMediumStrains,
	},
	{
		Num: 8, Name: ledger.StrainDetail, Deps: []int{7},
		ids: func(ctx context.Context, db *store.DB) ([]string, error) {
			return int64Strings(db.StrainIDsFrom(ctx, store.StrainSourceMediaDive))
		},
		unit: func(in *mediadive.Ingester, ctx context.Context, id string) ledger.UnitResult {
			n, _ := strconv.ParseInt(id, 10, 64)
			return in.FetchStrainDetail(ctx, n)
		},
	},
}

// StageByNum returns the stage numbered n.
func StageByNum(n int) (Stage, bool) {
	for _, s := range Stages {
		if s.Num == n {
			return s, true
		}
	}
	return Stage{}, false
}

// StageByName returns the stage with the given ledger name.
func StageByName(name string) (Stage, bool) {
	for _, s := range Stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// ParseStages parses a selector such as "1-3,5" into sorted, de-duplicated
// stage numbers. An empty selector selects every stage.
func ParseStages(sel string) ([]int, error) {
	sel = strings.TrimSpace(sel)
	if sel == "" || sel == "all" {
		all := make([]int, len(Stages))
		for i, s := range Stages {
			all[i] = s.Num
		}
		return all, nil
	}

	seen := make(map[int]bool)
	for _, part := range strings.Split(sel, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty element in stage selector %q", sel)
		}
		lo, hi := part, part
		if i := strings.Index(part, "-"); i >= 0 {
			lo, hi = strings.TrimSpace(part[:i]), strings.TrimSpace(part[i+1:])
		}
		from, err := parseStageNum(lo)
		if err != nil {
			return nil, err
		}
		to, err := parseStageNum(hi)
		if err != nil {
			return nil, err
		}
		if from > to {
			return nil, fmt.Errorf("descending stage range %q", part)
		}
		for n := from; n <= to; n++ {
			seen[n] = true
		}
	}

	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

func parseStageNum(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid stage %q", s)
	}
	if _, ok := StageByNum(n); !ok {
		return 0, fmt.Errorf("stage %d out of range 1-%d", n, len(Stages))
	}
	return n, nil
}

// FormatStages renders stage numbers compactly, e.g. "1-3,5".
func FormatStages(nums []int) string {
	var parts []string
	for i := 0; i < len(nums); {
		j := i
		for j+1 < len(nums) && nums[j+1] == nums[j]+1 {
			j++
		}
		if j > i {
			parts = append(parts, fmt.Sprintf("%d-%d", nums[i], nums[j]))
		} else {
			parts = append(parts, strconv.Itoa(nums[i]))
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}

func int64Strings(ids []int64, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatInt(id, 10)
	}
	return out, nil
}
