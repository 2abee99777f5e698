// Package imaging wraps image decoding, metadata extraction and variant
// encoding behind a codec interface.
//
// A codec is modelled as a non-thread-safe resource: callers must go through
// an Exclusive handle, which admits one goroutine at a time. A codec that
// implements ConcurrentMetadata lets the scanner read metadata without the
// lock.
package imaging

import "git.home.luguber.info/inful/photobuilder/internal/manifest"

// Metadata is what a codec can tell about a source image without decoding pixels.
type Metadata struct {
	Width  int
	Height int
	Exif   *manifest.Exif
}

// VariantResult describes one written variant.
type VariantResult struct {
	Width        int
	Height       int
	BytesWritten int64
}

// MetadataReader reads image geometry and EXIF.
type MetadataReader interface {
	ReadMetadata(path string) (Metadata, error)
}

// ConcurrentMetadata marks a codec whose ReadMetadata touches no shared state
// and may run at the same time as any other codec call.
type ConcurrentMetadata interface {
	ConcurrentMetadata()
}

// Codec generates resized variants. Implementations are assumed to hold global
// state: both methods must only be invoked through Exclusive unless the codec
// implements ConcurrentMetadata.
type Codec interface {
	MetadataReader
	// GenerateVariant writes src scaled to targetWidth (never upscaled) in the
	// given format to dst.
	GenerateVariant(src, dst string, targetWidth int, format string, quality int) (VariantResult, error)
}
