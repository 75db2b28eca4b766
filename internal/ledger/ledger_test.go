package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/vthunder/culturedb/internal/store"
)

func newTestLedger(t *testing.T) (*Ledger, *store.DB) {
	t.Helper()
	db, err := store.Open(context.Background(), store.Options{Path: filepath.Join(t.TempDir(), "ledger.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), db
}

func TestUnitTask(t *testing.T) {
	if got := UnitTask(MediumDetail, "J22"); got != "medium_detail:J22" {
		t.Errorf("UnitTask = %q", got)
	}
	if got := UnitTask(StrainDetail, int64(17)); got != "strain_detail:17" {
		t.Errorf("UnitTask = %q", got)
	}
}

func TestIsDone_Missing(t *testing.T) {
	l, _ := newTestLedger(t)
	done, err := l.IsDone(context.Background(), "media_list")
	if err != nil {
		t.Fatal(err)
	}
	if done {
		t.Error("expected not done for unknown task")
	}
}

func TestMarkDone_OverwritesError(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	if err := l.MarkError(ctx, "medium_detail:1", "timeout"); err != nil {
		t.Fatal(err)
	}
	done, _ := l.IsDone(ctx, "medium_detail:1")
	if done {
		t.Fatal("error entry must not count as done")
	}

	if err := l.MarkDone(ctx, "medium_detail:1"); err != nil {
		t.Fatal(err)
	}
	e, err := l.Get(ctx, "medium_detail:1")
	if err != nil || e == nil {
		t.Fatalf("get: %v %v", e, err)
	}
	if e.Status != StatusDone {
		t.Errorf("status = %q, want done", e.Status)
	}
	if e.Message != nil {
		t.Errorf("message = %q, want nil after done", *e.Message)
	}
}

func TestMarkDone_InTransactionRollsBack(t *testing.T) {
	l, db := newTestLedger(t)
	ctx := context.Background()

	sentinel := errors.New("write failed")
	err := db.InTx(ctx, func(tx *store.Tx) error {
		if err := MarkDone(ctx, tx, "composition:9"); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("InTx error = %v", err)
	}
	done, _ := l.IsDone(ctx, "composition:9")
	if done {
		t.Error("done entry survived a rolled back transaction")
	}
}

func TestClearPrefix(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	for _, task := range []string{"medium_detail:1", "medium_detail:2", "medium_detail", "media_list", "medium_strains:1"} {
		if err := l.MarkDone(ctx, task); err != nil {
			t.Fatal(err)
		}
	}
	n, err := l.ClearPrefix(ctx, MediumDetail)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("cleared %d, want 3", n)
	}
	for _, task := range []string{"media_list", "medium_strains:1"} {
		if done, _ := l.IsDone(ctx, task); !done {
			t.Errorf("%s should be untouched", task)
		}
	}
}

func TestErrors(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_ = l.MarkError(ctx, "strain_detail:5", "404")
	_ = l.MarkError(ctx, "strain_detail:6", "404")
	_ = l.MarkError(ctx, "composition:3", "protocol")
	_ = l.MarkDone(ctx, "composition:4")

	n, err := l.ErrorCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("ErrorCount = %d, want 3", n)
	}

	entries, err := l.Errors(ctx, StrainDetail)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("strain errors = %d, want 2", len(entries))
	}

	byStage, err := l.ErrorCountsByStage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if byStage[StrainDetail] != 2 || byStage[Composition] != 1 {
		t.Errorf("by stage = %v", byStage)
	}
}

func TestMarkError_TruncatesOnRuneBoundary(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	msg := strings.Repeat("x", maxMessage-1) + "°C"
	if err := l.MarkError(ctx, "t", msg); err != nil {
		t.Fatal(err)
	}
	e, _ := l.Get(ctx, "t")
	if e == nil || e.Message == nil {
		t.Fatalf("entry = %+v", e)
	}
	if !utf8.ValidString(*e.Message) || *e.Message != strings.Repeat("x", maxMessage-1) {
		t.Errorf("message has %d bytes, valid UTF-8 %v", len(*e.Message), utf8.ValidString(*e.Message))
	}
}

func TestMarkError_TruncatesMessage(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	long := make([]byte, maxMessage+500)
	for i := range long {
		long[i] = 'x'
	}
	if err := l.MarkError(ctx, "t", string(long)); err != nil {
		t.Fatal(err)
	}
	e, _ := l.Get(ctx, "t")
	if e == nil || e.Message == nil || len(*e.Message) != maxMessage {
		t.Errorf("message not truncated: %+v", e)
	}
}
