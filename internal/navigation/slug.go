package navigation

import (
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Unordered sorts after every numbered entry.
const Unordered = math.MaxInt

// Slugify converts s to a lower-case, dash-separated, ASCII slug. Accents are
// stripped before mapping.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// StripOrder splits a leading numeric prefix off a directory name:
// "01 Landscapes" and "01-landscapes" give (1, "Landscapes"/"landscapes").
// Names without a prefix return Unordered.
func StripOrder(name string) (int, string) {
	i := 0
	for i < len(name) && name[i] >= '0' && name[i] <= '9' {
		i++
	}
	if i == 0 || i == len(name) {
		return Unordered, name
	}
	sep := name[i]
	if sep != ' ' && sep != '-' && sep != '_' && sep != '.' {
		return Unordered, name
	}
	n, err := strconv.Atoi(name[:i])
	if err != nil {
		return Unordered, name
	}
	label := strings.TrimSpace(name[i+1:])
	if label == "" {
		return Unordered, name
	}
	return n, label
}

// SlugForPath derives the default gallery slug from a source-relative
// directory path. Each segment loses its order prefix. The root maps to "";
// every other path maps to a non-empty slug.
func SlugForPath(rel string) string {
	rel = strings.Trim(path.Clean("/"+rel), "/")
	if rel == "" {
		return ""
	}
	parts := strings.Split(rel, "/")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = segmentSlug(p)
	}
	return strings.Join(out, "/")
}

// segmentSlug slugifies one directory name. Names with nothing to keep, such
// as "日本" or "01 !!!", get a stable slug derived from a hash of the name.
func segmentSlug(seg string) string {
	_, label := StripOrder(seg)
	if s := Slugify(label); s != "" {
		return s
	}
	return fmt.Sprintf("g-%08x", uint32(xxhash.Sum64String(seg)))
}
