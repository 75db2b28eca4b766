package profiling

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// newTestProfiler opens a profiler writing to a fresh file in t.TempDir.
func newTestProfiler(t *testing.T, level Level) (*Profiler, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.jsonl")
	p, err := New(level, path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p, path
}

// readTimings reads all recorded timings from a file.
func readTimings(t *testing.T, path string) []Timing {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("read timings: %v", err)
	}

	var timings []Timing
	dec := json.NewDecoder(strings.NewReader(string(data)))
	for dec.More() {
		var tm Timing
		if err := dec.Decode(&tm); err != nil {
			t.Fatalf("decode timing: %v", err)
		}
		timings = append(timings, tm)
	}
	return timings
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"": LevelOff, "off": LevelOff, "stages": LevelStages, "units": LevelUnits} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("trace"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNilProfilerIsSafe(t *testing.T) {
	var p *Profiler
	p.Stage("run", "media_list")(nil)
	p.Unit("run", "composition", "composition:1")("done")
	p.Record(Timing{Stage: "x"})
	if p.IsEnabled() || p.GetLevel() != LevelOff {
		t.Error("nil profiler should report off")
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestShouldProfile(t *testing.T) {
	stages, _ := newTestProfiler(t, LevelStages)
	if !stages.ShouldProfile(LevelStages) || stages.ShouldProfile(LevelUnits) {
		t.Error("stages level should profile stages only")
	}
	units, _ := newTestProfiler(t, LevelUnits)
	if !units.ShouldProfile(LevelStages) || !units.ShouldProfile(LevelUnits) {
		t.Error("units level should profile stages and units")
	}
	off, _ := newTestProfiler(t, LevelOff)
	if off.ShouldProfile(LevelStages) {
		t.Error("off should profile nothing")
	}
}

func TestStage_MeasuresDuration(t *testing.T) {
	p, path := newTestProfiler(t, LevelStages)

	stop := p.Stage("run-1", "medium_detail")
	time.Sleep(10 * time.Millisecond)
	stop(map[string]any{"done": 3, "failed": 1})

	timings := readTimings(t, path)
	if len(timings) != 1 {
		t.Fatalf("expected 1 timing, got %d", len(timings))
	}
	got := timings[0]
	if got.RunID != "run-1" || got.Stage != "medium_detail" {
		t.Errorf("timing = %+v", got)
	}
	if got.DurationMs < 8 {
		t.Errorf("DurationMs = %.2fms, expected >= 8ms", got.DurationMs)
	}
	if got.Metadata["failed"] != float64(1) {
		t.Errorf("metadata = %v", got.Metadata)
	}
}

func TestUnit_OnlyAtUnitsLevel(t *testing.T) {
	p, path := newTestProfiler(t, LevelStages)
	p.Unit("run", "composition", "composition:1")("done")
	if n := len(readTimings(t, path)); n != 0 {
		t.Errorf("stages level wrote %d unit records", n)
	}

	p, path = newTestProfiler(t, LevelUnits)
	p.Unit("run", "composition", "composition:1")("failed")
	timings := readTimings(t, path)
	if len(timings) != 1 || timings[0].Task != "composition:1" || timings[0].Metadata["status"] != "failed" {
		t.Errorf("timings = %+v", timings)
	}
}

func TestOff_DoesNotCreateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.jsonl")
	p, err := New(LevelOff, path)
	if err != nil {
		t.Fatal(err)
	}
	p.Stage("run", "x")(nil)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file should not exist: %v", err)
	}
}

func TestClose_IsIdempotent(t *testing.T) {
	p, _ := newTestProfiler(t, LevelStages)
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	p.Record(Timing{Stage: "after close"}) // must not panic
}
