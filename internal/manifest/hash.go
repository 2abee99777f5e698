package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// SourceHash fingerprints a source file from its name, modification time and
// size. It is a change detector, not an integrity check: file contents are never read.
func SourceHash(filename string, modTime time.Time, size int64) string {
	d := xxhash.New()
	_, _ = d.WriteString(filename)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.FormatInt(modTime.UTC().UnixNano(), 10))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.FormatInt(size, 10))
	return strconv.FormatUint(d.Sum64(), 16)
}

// ConfigHash fingerprints the settings that shape generated variants. Input
// order does not matter.
func ConfigHash(widths []int, formats []string, quality int) string {
	w := slices.Clone(widths)
	slices.Sort(w)
	w = slices.Compact(w)
	f := slices.Clone(formats)
	slices.Sort(f)
	f = slices.Compact(f)

	parts := make([]string, 0, len(w))
	for _, x := range w {
		parts = append(parts, strconv.Itoa(x))
	}
	h := sha256.New()
	h.Write([]byte("widths=" + strings.Join(parts, ",")))
	h.Write([]byte{0})
	h.Write([]byte("formats=" + strings.Join(f, ",")))
	h.Write([]byte{0})
	h.Write([]byte("quality=" + strconv.Itoa(quality)))
	return hex.EncodeToString(h.Sum(nil))
}

// NeedsProcessing is true when there is no cached entry or its hash differs.
func NeedsProcessing(existing *ImageEntry, newHash string) bool {
	return existing == nil || existing.Hash != newHash
}

// NormalizeKey turns a relative host path into a forward-slash manifest key.
func NormalizeKey(rel string) string {
	return strings.TrimPrefix(filepath.ToSlash(filepath.Clean(rel)), "./")
}
