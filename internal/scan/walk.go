package scan

import (
	"context"
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"git.home.luguber.info/inful/photobuilder/internal/content"
	"git.home.luguber.info/inful/photobuilder/internal/logfields"
	"git.home.luguber.info/inful/photobuilder/internal/manifest"
)

type sourceFile struct {
	key     string // forward-slash path relative to the source root
	dir     string // key of the containing directory, "" for the root
	name    string
	abs     string
	size    int64
	modTime time.Time
}

type sourceTree struct {
	images   []sourceFile
	markdown []sourceFile
	// galleries holds every directory with gallery semantics, by key. The root
	// is always present.
	galleries map[string]bool
}

// walk enumerates images, markdown and gallery directories under the source.
// Hidden entries and the output and cache directories are skipped.
func (s *Scanner) walk(ctx context.Context) (*sourceTree, error) {
	tree := &sourceTree{galleries: map[string]bool{"": true}}
	skipDirs := map[string]bool{}
	for _, d := range []string{s.snap.OutputDir, s.snap.CacheDir} {
		if d != "" {
			if abs, err := filepath.Abs(d); err == nil {
				skipDirs[abs] = true
			}
		}
	}
	root, err := filepath.Abs(s.snap.SourceDir)
	if err != nil {
		return nil, err
	}

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			s.logger.Warn("Skipping unreadable path", logfields.Path(p), logfields.Error(walkErr))
			if d != nil && d.IsDir() && p != root {
				return fs.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := manifest.NormalizeKey(rel)
		if key == "." {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if content.IsHidden(name) || skipDirs[p] {
				return fs.SkipDir
			}
			return nil
		}
		if content.IsHidden(name) {
			return nil
		}

		dir := path.Dir(key)
		if dir == "." {
			dir = ""
		}
		switch {
		case name == content.IndexFile:
			tree.galleries[dir] = true
			return nil
		case content.IsImageFile(name), content.IsMarkdownFile(name):
		default:
			return nil
		}

		info, err := d.Info()
		if err != nil {
			s.logger.Warn("Skipping unreadable file", logfields.Path(p), logfields.Error(err))
			return nil
		}
		f := sourceFile{key: key, dir: dir, name: name, abs: p, size: info.Size(), modTime: info.ModTime()}
		tree.galleries[dir] = true
		if content.IsImageFile(name) {
			tree.images = append(tree.images, f)
		} else {
			tree.markdown = append(tree.markdown, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	byKey := func(a, b sourceFile) int { return strings.Compare(a.key, b.key) }
	slices.SortFunc(tree.images, byKey)
	slices.SortFunc(tree.markdown, byKey)
	s.logger.Debug("Source walked",
		logfields.Count(len(tree.images)),
		logfields.Path(s.snap.SourceDir))
	return tree, nil
}
