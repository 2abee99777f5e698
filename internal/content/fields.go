package content

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/photobuilder/internal/manifest"
)

// Accessor reads one field from a content item.
type Accessor func(manifest.GalleryContent) Value

const rawPrefix = "exif.raw."

var registry = map[string]Accessor{
	"filename": func(c manifest.GalleryContent) Value { return StringValue(c.Filename()) },
	"sourcepath": func(c manifest.GalleryContent) Value {
		return StringValue(c.SourcePath())
	},
	"filesize": func(c manifest.GalleryContent) Value {
		switch {
		case c.Image != nil:
			return NumberValue(float64(c.Image.FileSize))
		case c.Markdown != nil:
			return NumberValue(float64(c.Markdown.FileSize))
		}
		return Value{}
	},
	"datetaken": image(func(i *manifest.ImageContent) Value { return timePtr(i.DateTaken) }),
	"width":     image(func(i *manifest.ImageContent) Value { return positive(float64(i.Width)) }),
	"height":    image(func(i *manifest.ImageContent) Value { return positive(float64(i.Height)) }),

	"exif.make":         exif(func(e *manifest.Exif) Value { return str(e.Make) }),
	"exif.model":        exif(func(e *manifest.Exif) Value { return str(e.Model) }),
	"exif.lensmodel":    exif(func(e *manifest.Exif) Value { return str(e.LensModel) }),
	"exif.focallength":  exif(func(e *manifest.Exif) Value { return positive(e.FocalLength) }),
	"exif.fnumber":      exif(func(e *manifest.Exif) Value { return positive(e.FNumber) }),
	"exif.exposuretime": exif(func(e *manifest.Exif) Value { return str(e.ExposureTime) }),
	"exif.iso":          exif(func(e *manifest.Exif) Value { return positive(float64(e.ISO)) }),
	"exif.rating":       exif(func(e *manifest.Exif) Value { return positive(float64(e.Rating)) }),
	"exif.datetaken":    exif(func(e *manifest.Exif) Value { return timePtr(e.DateTaken) }),
}

// Lookup returns the accessor for a field name. Names are case-insensitive.
// Unknown names are an error, except under "exif.raw." which always resolves.
func Lookup(field string) (Accessor, error) {
	key := strings.ToLower(strings.TrimSpace(field))
	if acc, ok := registry[key]; ok {
		return acc, nil
	}
	if len(key) > len(rawPrefix) && strings.HasPrefix(key, rawPrefix) {
		return rawTag(strings.TrimSpace(field)[len(rawPrefix):]), nil
	}
	return nil, fmt.Errorf("unknown field %q (known: %s, exif.raw.<tag>)", field, strings.Join(Fields(), ", "))
}

// Fields lists the registered field names.
func Fields() []string {
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func image(fn func(*manifest.ImageContent) Value) Accessor {
	return func(c manifest.GalleryContent) Value {
		if c.Image == nil {
			return Value{}
		}
		return fn(c.Image)
	}
}

func exif(fn func(*manifest.Exif) Value) Accessor {
	return image(func(i *manifest.ImageContent) Value {
		if i.Exif == nil {
			return Value{}
		}
		return fn(i.Exif)
	})
}

// rawTag matches the tag name case-insensitively; raw values that parse as
// numbers or dates are typed accordingly.
func rawTag(tag string) Accessor {
	return exif(func(e *manifest.Exif) Value {
		v, ok := e.Raw[tag]
		if !ok {
			for k, rv := range e.Raw {
				if strings.EqualFold(k, tag) {
					v, ok = rv, true
					break
				}
			}
		}
		if !ok || strings.TrimSpace(v) == "" {
			return Value{}
		}
		return ParseLiteral(v)
	})
}

func str(s string) Value {
	if s == "" {
		return Value{}
	}
	return StringValue(s)
}

func positive(n float64) Value {
	if n <= 0 {
		return Value{}
	}
	return NumberValue(n)
}

func timePtr(t *time.Time) Value {
	if t == nil || t.IsZero() {
		return Value{}
	}
	return TimeValue(*t)
}
