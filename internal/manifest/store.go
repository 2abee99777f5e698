package manifest

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/photobuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/photobuilder/internal/logfields"
)

// FileName is the manifest file name inside the cache directory.
const FileName = "manifest.json"

// Store loads and atomically persists the manifest file.
type Store struct {
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a store for <cacheDir>/manifest.json.
func NewStore(cacheDir string) *Store {
	return &Store{
		path:   filepath.Join(cacheDir, FileName),
		logger: slog.Default(),
		now:    time.Now,
	}
}

// WithLogger sets a custom logger.
func (s *Store) WithLogger(logger *slog.Logger) *Store {
	s.logger = logger
	return s
}

// WithClock overrides the time source used for LastUpdated.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Path returns the manifest file path.
func (s *Store) Path() string { return s.path }

// Exists reports whether a manifest file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the manifest. A missing or unreadable file yields an empty
// manifest: that is a cold cache, not a failure.
func (s *Store) Load() *Manifest {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read manifest, starting with empty cache", logfields.Path(s.path), logfields.Error(err))
		}
		return New()
	}

	m := New()
	if err := json.Unmarshal(data, m); err != nil {
		s.logger.Warn("Corrupt manifest, starting with empty cache", logfields.Path(s.path), logfields.Error(err))
		return New()
	}
	if m.Images == nil {
		m.Images = make(map[string]ImageEntry)
	}
	s.logger.Debug("Manifest loaded", logfields.Path(s.path), logfields.Count(len(m.Images)))
	return m
}

// Save writes the manifest to a temporary file next to the target and renames
// it into place. On failure the temporary file is removed and the error returned.
func (s *Store) Save(m *Manifest) error {
	m.mu.Lock()
	m.Meta.LastUpdated = s.now().UTC()
	data, err := json.MarshalIndent(m, "", "  ")
	m.mu.Unlock()
	if err != nil {
		return errors.ManifestError("marshal manifest").WithCause(err).Build()
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.ManifestError("create cache directory").WithCause(err).
			WithContext("path", filepath.Dir(s.path)).Build()
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		_ = os.Remove(tempPath)
		return errors.ManifestError("write manifest").WithCause(err).
			WithContext("path", tempPath).Build()
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return errors.ManifestError("replace manifest").WithCause(err).
			WithContext("path", s.path).Build()
	}

	s.logger.Debug("Manifest saved", logfields.Path(s.path), logfields.Count(len(m.Images)))
	return nil
}
