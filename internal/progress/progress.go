// Package progress carries stage progress snapshots to the console or tests.
// Every Sink must tolerate concurrent Report calls.
package progress

import (
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/photobuilder/internal/logfields"
)

// Snapshot is one progress update.
type Snapshot struct {
	Stage   string
	Status  string
	Current string
	Done    int
	Total   int
	Skipped int
}

// Sink receives progress snapshots.
type Sink interface {
	Report(Snapshot)
}

// Func adapts a function to Sink.
type Func func(Snapshot)

func (f Func) Report(s Snapshot) { f(s) }

// Discard drops every snapshot.
var Discard Sink = Func(func(Snapshot) {})

// LogSink writes snapshots as structured log records.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (l *LogSink) Report(s Snapshot) {
	l.logger.Info(s.Status,
		logfields.Stage(s.Stage),
		slog.String("current", s.Current),
		slog.Int("done", s.Done),
		slog.Int("total", s.Total),
		slog.Int("skipped", s.Skipped))
}

// Recorder keeps every snapshot in memory.
type Recorder struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

func (r *Recorder) Report(s Snapshot) {
	r.mu.Lock()
	r.snapshots = append(r.snapshots, s)
	r.mu.Unlock()
}

// Snapshots returns a copy of what was recorded.
func (r *Recorder) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snapshots...)
}

// OrNop returns s, or Discard when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}
