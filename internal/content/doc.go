// Package content resolves named fields on gallery content, orders content
// lists and derives responsive image widths.
//
// Fields are looked up through a fixed registry of typed accessors
// ("filename", "dateTaken", "exif.iso", ...) plus "exif.raw.<tag>" for any
// decoded EXIF tag. The same registry backs gallery sorting and the filter
// query language.
package content
