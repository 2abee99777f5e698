package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"git.home.luguber.info/inful/photobuilder/internal/manifest"
)

// XImage is the default codec, built on the standard decoders plus
// golang.org/x/image. It keeps the most recently decoded source so that
// generating several widths of one image decodes it once. That cache is the
// global state that makes the codec unsafe outside Exclusive.
type XImage struct {
	last struct {
		path    string
		modTime time.Time
		img     image.Image
	}
}

// NewCodec returns the default codec.
func NewCodec() *XImage { return &XImage{} }

// ConcurrentMetadata marks ReadMetadata as independent of the decode cache.
func (c *XImage) ConcurrentMetadata() {}

// ReadMetadata reads dimensions from the image header and EXIF when present.
// Missing or unreadable EXIF is not an error.
func (c *XImage) ReadMetadata(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer func() { _ = f.Close() }()

	cfg, _, err := image.DecodeConfig(f)
	if errors.Is(err, image.ErrFormat) {
		return Metadata{}, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("decode header %s: %w", filepath.Base(path), err)
	}
	md := Metadata{Width: cfg.Width, Height: cfg.Height}

	if _, err := f.Seek(0, 0); err != nil {
		return md, nil
	}
	if x, err := exif.Decode(f); err == nil {
		md.Exif = exifFrom(x)
	}
	return md, nil
}

// GenerateVariant writes src scaled to targetWidth. Widths at or above the
// source width produce a re-encoded copy at the original size.
func (c *XImage) GenerateVariant(src, dst string, targetWidth int, format string, quality int) (VariantResult, error) {
	if targetWidth <= 0 {
		return VariantResult{}, fmt.Errorf("invalid target width %d", targetWidth)
	}
	img, err := c.decode(src)
	if err != nil {
		return VariantResult{}, err
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return VariantResult{}, fmt.Errorf("empty image %s", filepath.Base(src))
	}
	out := img
	if targetWidth < w {
		newH := max(1, h*targetWidth/w)
		scaled := image.NewRGBA(image.Rect(0, 0, targetWidth, newH))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, draw.Over, nil)
		out = scaled
		w, h = targetWidth, newH
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return VariantResult{}, fmt.Errorf("create variant dir: %w", err)
	}
	n, err := writeEncoded(dst, out, format, quality)
	if err != nil {
		return VariantResult{}, err
	}
	return VariantResult{Width: w, Height: h, BytesWritten: n}, nil
}

func (c *XImage) decode(path string) (image.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if c.last.img != nil && c.last.path == path && c.last.modTime.Equal(info.ModTime()) {
		return c.last.img, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if errors.Is(err, image.ErrFormat) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", filepath.Base(path), err)
	}
	c.last.path = path
	c.last.modTime = info.ModTime()
	c.last.img = img
	return img, nil
}

func writeEncoded(dst string, img image.Image, format string, quality int) (int64, error) {
	tmp := dst + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create variant: %w", err)
	}

	switch strings.ToLower(format) {
	case "jpg", "jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: quality})
	case "png":
		err = (&png.Encoder{CompressionLevel: png.BestCompression}).Encode(f, img)
	case "gif":
		err = gif.Encode(f, img, &gif.Options{NumColors: len(palette.Plan9), Drawer: draw.FloydSteinberg})
	default:
		err = fmt.Errorf("unsupported output format %q", format)
	}
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("encode %s: %w", format, err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("rename variant: %w", err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// exifFrom maps the fields the site uses and keeps every tag as a string in Raw.
func exifFrom(x *exif.Exif) *manifest.Exif {
	out := &manifest.Exif{Raw: map[string]string{}}
	_ = x.Walk(rawWalker(out.Raw))

	out.Make = stringTag(x, exif.Make)
	out.Model = stringTag(x, exif.Model)
	out.LensModel = stringTag(x, exif.LensModel)
	out.FocalLength = ratTag(x, exif.FocalLength)
	out.FNumber = ratTag(x, exif.FNumber)
	if tag, err := x.Get(exif.ExposureTime); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 {
			out.ExposureTime = formatExposure(num, den)
		}
	}
	if tag, err := x.Get(exif.ISOSpeedRatings); err == nil {
		if v, err := tag.Int(0); err == nil {
			out.ISO = v
		}
	}
	if r, ok := out.Raw["Rating"]; ok {
		if v, err := strconv.Atoi(r); err == nil {
			out.Rating = v
		}
	}
	if t, err := x.DateTime(); err == nil && !t.IsZero() {
		taken := t.UTC()
		out.DateTaken = &taken
	}
	return out
}

type rawWalker map[string]string

func (w rawWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if tag.Format() == tiff.StringVal {
		if s, err := tag.StringVal(); err == nil {
			w[string(name)] = strings.TrimSpace(s)
			return nil
		}
	}
	w[string(name)] = tag.String()
	return nil
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

func ratTag(x *exif.Exif, name exif.FieldName) float64 {
	tag, err := x.Get(name)
	if err != nil {
		return 0
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func formatExposure(num, den int64) string {
	if num <= 0 {
		return ""
	}
	if num >= den {
		return strconv.FormatFloat(float64(num)/float64(den), 'f', -1, 64)
	}
	return "1/" + strconv.FormatInt((den+num/2)/num, 10)
}

// ErrUnsupported is returned for source files no registered decoder accepts.
var ErrUnsupported = errors.New("unsupported image format")
