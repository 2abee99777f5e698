package variants

import (
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// ImagesDir is the output subdirectory holding every variant.
const ImagesDir = "images"

// BaseName is the variant directory name for a source file name.
func BaseName(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// URL is the output-relative, forward-slash location of one variant.
func URL(filename string, width int, format string) string {
	return path.Join(ImagesDir, BaseName(filename), strconv.Itoa(width)+"."+format)
}

// Path is the on-disk location of one variant under outputDir.
func Path(outputDir, filename string, width int, format string) string {
	return filepath.Join(outputDir, filepath.FromSlash(URL(filename, width, format)))
}

// outputsExist reports whether every expected variant file is present.
func outputsExist(outputDir, filename string, sizes []int, formats []string) bool {
	for _, w := range sizes {
		for _, f := range formats {
			if _, err := os.Stat(Path(outputDir, filename, w, f)); err != nil {
				return false
			}
		}
	}
	return true
}
