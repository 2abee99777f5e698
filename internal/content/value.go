package content

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Kind is the dynamic type of a resolved field value.
type Kind int

const (
	KindNone Kind = iota
	KindTime
	KindNumber
	KindString
)

// Value is a resolved field value. The zero Value means "absent".
type Value struct {
	Kind Kind
	Time time.Time
	Num  float64
	Str  string
}

func TimeValue(t time.Time) Value { return Value{Kind: KindTime, Time: t} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }

func (v Value) IsZero() bool { return v.Kind == KindNone }

func (v Value) String() string {
	switch v.Kind {
	case KindTime:
		return v.Time.UTC().Format(time.RFC3339)
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindString:
		return v.Str
	default:
		return ""
	}
}

// ParseLiteral interprets a query literal: dates (RFC3339 or YYYY-MM-DD) become
// times, numerals become numbers, everything else a string. Surrounding quotes
// are removed and force a string.
func ParseLiteral(s string) Value {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return StringValue(s[1 : len(s)-1])
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return TimeValue(t)
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return TimeValue(t)
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return NumberValue(n)
	}
	return StringValue(s)
}

// Comparer orders values of any kind. Values of the same kind compare
// natively; mixed kinds compare as collated strings. Absent values sort after
// present ones. A Comparer is not safe for concurrent use.
type Comparer struct {
	coll *collate.Collator
}

// NewComparer returns a comparer using root-locale collation.
func NewComparer() *Comparer {
	return &Comparer{coll: collate.New(language.Und)}
}

func (c *Comparer) Compare(a, b Value) int {
	switch {
	case a.IsZero() && b.IsZero():
		return 0
	case a.IsZero():
		return 1
	case b.IsZero():
		return -1
	}
	if a.Kind == b.Kind {
		switch a.Kind {
		case KindTime:
			return a.Time.Compare(b.Time)
		case KindNumber:
			switch {
			case a.Num < b.Num:
				return -1
			case a.Num > b.Num:
				return 1
			}
			return 0
		}
	}
	return c.coll.CompareString(a.String(), b.String())
}
