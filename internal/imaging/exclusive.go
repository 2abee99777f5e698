package imaging

import (
	"context"
	"sync"
	"sync/atomic"
)

// Exclusive is the single handle through which the codec is used. It is a
// counting lock with capacity one: at most one goroutine runs inside Do at any
// instant, process-wide when obtained from Shared.
type Exclusive struct {
	codec Codec
	sem   chan struct{}

	inside    atomic.Int32
	maxInside atomic.Int32
	sections  atomic.Int64
}

// NewExclusive wraps codec in a fresh capacity-1 lock.
func NewExclusive(codec Codec) *Exclusive {
	return &Exclusive{codec: codec, sem: make(chan struct{}, 1)}
}

var shared = sync.OnceValue(func() *Exclusive { return NewExclusive(NewCodec()) })

// Shared returns the process-wide handle around the default codec.
func Shared() *Exclusive { return shared() }

// Do runs fn with exclusive access to the codec. It returns ctx.Err() without
// running fn if ctx is canceled while waiting.
func (e *Exclusive) Do(ctx context.Context, fn func(Codec) error) error {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.sem }()

	n := e.inside.Add(1)
	defer e.inside.Add(-1)
	for {
		cur := e.maxInside.Load()
		if n <= cur || e.maxInside.CompareAndSwap(cur, n) {
			break
		}
	}
	e.sections.Add(1)

	return fn(e.codec)
}

// Reader exposes the codec's metadata side. Reads bypass the lock only when
// the codec implements ConcurrentMetadata; otherwise each read is its own
// exclusive section.
func (e *Exclusive) Reader() MetadataReader {
	if _, ok := e.codec.(ConcurrentMetadata); ok {
		return e.codec
	}
	return lockedReader{e}
}

type lockedReader struct{ e *Exclusive }

func (r lockedReader) ReadMetadata(path string) (md Metadata, err error) {
	err = r.e.Do(context.Background(), func(c Codec) error {
		md, err = c.ReadMetadata(path)
		return err
	})
	return md, err
}

// MaxConcurrent is the highest number of goroutines ever observed inside Do.
// Anything above 1 means the lock was bypassed.
func (e *Exclusive) MaxConcurrent() int { return int(e.maxInside.Load()) }

// Sections is the number of completed or running Do calls.
func (e *Exclusive) Sections() int64 { return e.sections.Load() }
