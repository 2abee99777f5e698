// Package imagingtest provides a scripted codec for pipeline tests.
package imagingtest

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/photobuilder/internal/imaging"
)

// Variant records one GenerateVariant call.
type Variant struct {
	Src    string
	Dst    string
	Width  int
	Format string
}

// Codec is a fake imaging.Codec. Metadata is looked up by base filename; each
// variant is written as a small text file. It reports an overlap when two
// goroutines are inside GenerateVariant at once.
type Codec struct {
	Meta  map[string]imaging.Metadata
	Fail  map[string]bool
	Delay time.Duration

	mu       sync.Mutex
	variants []Variant
	reads    atomic.Int64
	inside   atomic.Int32
	overlaps atomic.Int32
}

// New returns an empty fake codec.
func New() *Codec {
	return &Codec{Meta: map[string]imaging.Metadata{}, Fail: map[string]bool{}}
}

func (c *Codec) ReadMetadata(path string) (imaging.Metadata, error) {
	c.reads.Add(1)
	name := filepath.Base(path)
	if c.Fail[name] {
		return imaging.Metadata{}, fmt.Errorf("%w: %s", imaging.ErrUnsupported, name)
	}
	md, ok := c.Meta[name]
	if !ok {
		return imaging.Metadata{}, fmt.Errorf("no metadata for %s", name)
	}
	return md, nil
}

func (c *Codec) GenerateVariant(src, dst string, width int, format string, _ int) (imaging.VariantResult, error) {
	if c.inside.Add(1) > 1 {
		c.overlaps.Add(1)
	}
	defer c.inside.Add(-1)
	if c.Delay > 0 {
		time.Sleep(c.Delay)
	}

	c.mu.Lock()
	c.variants = append(c.variants, Variant{Src: src, Dst: dst, Width: width, Format: format})
	c.mu.Unlock()

	if c.Fail["gen:"+filepath.Base(src)] {
		return imaging.VariantResult{}, fmt.Errorf("generate %s failed", filepath.Base(src))
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return imaging.VariantResult{}, err
	}
	data := []byte(fmt.Sprintf("%s@%d", filepath.Base(src), width))
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return imaging.VariantResult{}, err
	}
	return imaging.VariantResult{Width: width, BytesWritten: int64(len(data))}, nil
}

// Variants returns a copy of all recorded generate calls.
func (c *Codec) Variants() []Variant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Variant(nil), c.variants...)
}

// Reads is the number of ReadMetadata calls.
func (c *Codec) Reads() int64 { return c.reads.Load() }

// Overlaps is the number of GenerateVariant calls that started while another
// was running.
func (c *Codec) Overlaps() int { return int(c.overlaps.Load()) }

// Reset clears recorded calls.
func (c *Codec) Reset() {
	c.mu.Lock()
	c.variants = nil
	c.mu.Unlock()
	c.reads.Store(0)
}
