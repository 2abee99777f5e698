// Package manifest holds the persisted build cache: per-image processing state,
// the global config fingerprint and the unified site tree produced by a scan.
package manifest

import (
	"slices"
	"sync"
	"time"

	"git.home.luguber.info/inful/photobuilder/internal/util/sets"
)

// ImageEntry is the cached processing state of one source image.
type ImageEntry struct {
	Hash        string    `json:"hash"`
	ProcessedAt time.Time `json:"processedAt,omitzero"`
}

// Meta carries global manifest metadata.
type Meta struct {
	ConfigHash          string    `json:"configHash,omitempty"`
	LastScanned         time.Time `json:"lastScanned,omitzero"`
	LastImagesProcessed time.Time `json:"lastImagesProcessed,omitzero"`
	LastUpdated         time.Time `json:"lastUpdated,omitzero"`
}

// Manifest is the in-memory form of manifest.json. Image map access goes
// through methods that hold mu, so workers may update entries concurrently.
// Root and Meta are owned by whichever stage is running and are not guarded.
type Manifest struct {
	mu     sync.Mutex
	Images map[string]ImageEntry `json:"images"`
	Meta   Meta                  `json:"meta"`
	Root   *Entry                `json:"root,omitempty"`
}

// New returns an empty manifest (a cold cache).
func New() *Manifest {
	return &Manifest{Images: make(map[string]ImageEntry)}
}

// GetImage returns the cached entry for key.
func (m *Manifest) GetImage(key string) (ImageEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Images[key]
	return e, ok
}

// SetImage stores entry under key.
func (m *Manifest) SetImage(key string, entry ImageEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Images == nil {
		m.Images = make(map[string]ImageEntry)
	}
	m.Images[key] = entry
}

// ImageCount returns the number of cached image entries.
func (m *Manifest) ImageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Images)
}

// ImageKeys returns the cached keys in sorted order.
func (m *Manifest) ImageKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.Images))
	for k := range m.Images {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ClearImages drops every cached image entry. The tree is left untouched.
func (m *Manifest) ClearImages() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Images = make(map[string]ImageEntry)
}

// RemoveOrphans deletes every entry whose key is not in existing and returns
// the removed keys in sorted order.
func (m *Manifest) RemoveOrphans(existing sets.Set[string]) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []string
	for k := range m.Images {
		if !existing.Has(k) {
			removed = append(removed, k)
		}
	}
	for _, k := range removed {
		delete(m.Images, k)
	}
	slices.Sort(removed)
	return removed
}

// ConfigChanged reports whether the stored config hash differs from current
// while cached entries exist, i.e. whether every cached hash must be dropped.
func (m *Manifest) ConfigChanged(current string) bool {
	return m.Meta.ConfigHash != current && m.ImageCount() > 0
}
