package progress

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecorder_ConcurrentReports(t *testing.T) {
	var rec Recorder
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Report(Snapshot{Stage: "images", Done: i})
		}()
	}
	wg.Wait()
	require.Len(t, rec.Snapshots(), 50)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))
	sink.Report(Snapshot{Stage: "scan", Status: "Reading metadata", Current: "a.jpg", Done: 3, Total: 9})
	require.Contains(t, buf.String(), "Reading metadata")
	require.Contains(t, buf.String(), "current=a.jpg")
	require.Contains(t, buf.String(), "total=9")
}

func TestOrNop(t *testing.T) {
	require.NotNil(t, OrNop(nil))
	require.NotPanics(t, func() { OrNop(nil).Report(Snapshot{}) })
	var rec Recorder
	require.Same(t, &rec, OrNop(&rec))
}
