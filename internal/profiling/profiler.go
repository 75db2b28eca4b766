package profiling

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Level determines how detailed the profiling is
type Level string

const (
	LevelOff    Level = "off"    // No profiling
	LevelStages Level = "stages" // One record per pipeline stage
	LevelUnits  Level = "units"  // Stages plus every unit of work
)

// ParseLevel accepts a level name; the empty string means off.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case "", LevelOff:
		return LevelOff, nil
	case LevelStages, LevelUnits:
		return Level(s), nil
	}
	return LevelOff, fmt.Errorf("unknown profiling level %q", s)
}

// Timing represents a single timing measurement
type Timing struct {
	RunID      string         `json:"run_id"`
	Stage      string         `json:"stage"`
	Task       string         `json:"task,omitempty"`
	StartTime  time.Time      `json:"start_time"`
	DurationMs float64        `json:"duration_ms"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Profiler appends timings to a JSON-lines file. A nil or disabled
// Profiler records nothing.
type Profiler struct {
	level   Level
	logPath string
	mu      sync.Mutex
	logFile *os.File
	encoder *json.Encoder
}

// New opens logPath for appending when level is not off.
func New(level Level, logPath string) (*Profiler, error) {
	p := &Profiler{level: level, logPath: logPath}
	if level == LevelOff || logPath == "" {
		p.level = LevelOff
		return p, nil
	}
	var err error
	p.logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open profiling log: %w", err)
	}
	p.encoder = json.NewEncoder(p.logFile)
	return p, nil
}

// Close closes the profiler and its log file
func (p *Profiler) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.logFile != nil {
		err := p.logFile.Close()
		p.logFile, p.encoder = nil, nil
		return err
	}
	return nil
}

// Stage begins timing a stage and returns a function to call when done.
// The metadata passed to the returned function is attached to the record.
func (p *Profiler) Stage(runID, stage string) func(metadata map[string]any) {
	if !p.ShouldProfile(LevelStages) {
		return func(map[string]any) {}
	}
	start := time.Now()
	return func(metadata map[string]any) {
		p.Record(Timing{RunID: runID, Stage: stage, StartTime: start, DurationMs: ms(time.Since(start)), Metadata: metadata})
	}
}

// Unit begins timing one unit of work. It is a no-op below LevelUnits.
func (p *Profiler) Unit(runID, stage, task string) func(status string) {
	if !p.ShouldProfile(LevelUnits) {
		return func(string) {}
	}
	start := time.Now()
	return func(status string) {
		p.Record(Timing{
			RunID: runID, Stage: stage, Task: task, StartTime: start,
			DurationMs: ms(time.Since(start)),
			Metadata:   map[string]any{"status": status},
		})
	}
}

// Record writes a timing measurement
func (p *Profiler) Record(t Timing) {
	if !p.IsEnabled() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.encoder != nil {
		_ = p.encoder.Encode(t)
	}
}

// ShouldProfile returns true if the given level should be profiled
func (p *Profiler) ShouldProfile(level Level) bool {
	if !p.IsEnabled() {
		return false
	}
	switch p.level {
	case LevelUnits:
		return level == LevelStages || level == LevelUnits
	case LevelStages:
		return level == LevelStages
	default:
		return false
	}
}

// IsEnabled returns true if profiling is enabled
func (p *Profiler) IsEnabled() bool {
	return p != nil && p.level != LevelOff
}

// GetLevel returns the current profiling level
func (p *Profiler) GetLevel() Level {
	if p == nil {
		return LevelOff
	}
	return p.level
}

func ms(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
