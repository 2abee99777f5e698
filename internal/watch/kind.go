package watch

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/photobuilder/internal/content"
	"git.home.luguber.info/inful/photobuilder/internal/render"
)

// Kind is the amount of work a change requires. Larger kinds include smaller ones.
type Kind int

const (
	None Kind = iota
	// RenderOnly: prose, data or template edits.
	RenderOnly
	// Full: anything that can change the tree or the images.
	Full
	// Reload: the configuration file changed.
	Reload
)

func (k Kind) String() string {
	switch k {
	case RenderOnly:
		return "render"
	case Full:
		return "full"
	case Reload:
		return "reload"
	default:
		return "none"
	}
}

// classify maps one event to the work it requires.
func (w *Watcher) classify(ev fsnotify.Event) Kind {
	if ev.Op == fsnotify.Chmod {
		return None
	}
	name, err := filepath.Abs(ev.Name)
	if err != nil {
		return None
	}
	if w.configPath != "" && name == w.configPath {
		if ev.Has(fsnotify.Remove) {
			return None
		}
		return Reload
	}
	if !w.isUnder(name, w.source) || w.ignoredPath(name) {
		return None
	}
	rel, err := filepath.Rel(w.source, name)
	if err != nil || rel == "." {
		return None
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, p := range parts {
		if strings.HasPrefix(p, ".") {
			return None
		}
	}
	base := parts[len(parts)-1]
	if strings.HasPrefix(base, "#") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".tmp") || strings.HasSuffix(base, ".swp") {
		return None
	}

	if parts[0] == render.OverrideDir {
		return RenderOnly
	}
	ext := strings.ToLower(filepath.Ext(base))
	if ext == ".json" {
		return RenderOnly
	}
	// Adding or removing a file changes the tree; editing prose does not.
	if ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) && content.IsMarkdownFile(base) {
		return RenderOnly
	}
	return Full
}
