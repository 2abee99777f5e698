package frontmatter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSplit_NoFrontmatter_ReturnsBodyOnly(t *testing.T) {
	input := []byte("# Title\n\nHello\n")

	fm, body, had, err := Split(input)
	require.NoError(t, err)
	require.False(t, had)
	require.Empty(t, fm)
	require.Equal(t, input, body)
}

func TestSplit_YAMLFrontmatter_SplitsFrontmatterAndBody(t *testing.T) {
	fm, body, had, err := Split([]byte("---\nkey: value\n---\n# Title\n"))
	require.NoError(t, err)
	require.True(t, had)
	require.Equal(t, []byte("key: value\n"), fm)
	require.Equal(t, []byte("# Title\n"), body)
}

func TestSplit_MissingClosingDelimiter_ReturnsError(t *testing.T) {
	_, _, had, err := Split([]byte("---\nkey: value\n# Title\n"))
	require.ErrorIs(t, err, ErrMissingClosingDelimiter)
	require.False(t, had)
}

func TestSplit_CRLF_SplitsFrontmatterAndBody(t *testing.T) {
	fm, body, had, err := Split([]byte("---\r\nkey: value\r\n---\r\n# Title\r\n"))
	require.NoError(t, err)
	require.True(t, had)
	require.Equal(t, []byte("key: value\r\n"), fm)
	require.Equal(t, []byte("# Title\r\n"), body)
}

func TestSplit_EmptyFrontmatterBlock(t *testing.T) {
	fm, body, had, err := Split([]byte("---\n---\n# Title\n"))
	require.NoError(t, err)
	require.True(t, had)
	require.Empty(t, fm)
	require.Equal(t, []byte("# Title\n"), body)
}

func TestSplit_FrontmatterOnly(t *testing.T) {
	fm, body, had, err := Split([]byte("---\ntitle: x\n---"))
	require.NoError(t, err)
	require.True(t, had)
	require.Equal(t, []byte("title: x\n"), fm)
	require.Empty(t, body)
}

func TestParseYAML(t *testing.T) {
	fields, err := ParseYAML([]byte("title: abc\ntags:\n  - one\n"))
	require.NoError(t, err)
	require.Equal(t, "abc", fields["title"])
	require.Equal(t, []any{"one"}, fields["tags"])

	fields, err = ParseYAML(nil)
	require.NoError(t, err)
	require.Empty(t, fields)

	_, err = ParseYAML([]byte(": not yaml"))
	require.Error(t, err)
}

func TestDecodePage(t *testing.T) {
	doc := []byte(`---
title: Mountains
slug: peaks
date: 2023-07-14
featured: true
filter: "exif.make = Canon | sort dateTaken desc"
sort: filename:desc
data:
  trips: data/trips.json
---
Intro text.
`)
	page, body, err := DecodePage(doc)
	require.NoError(t, err)
	require.Equal(t, "Mountains", page.Title)
	require.Equal(t, "peaks", page.Slug)
	require.True(t, page.Featured)
	require.Equal(t, "filename:desc", page.Sort)
	require.Equal(t, "exif.make = Canon | sort dateTaken desc", page.Filter)
	require.Equal(t, map[string]string{"trips": "data/trips.json"}, page.DataSources)
	require.NotNil(t, page.Date)
	require.True(t, page.Date.Equal(time.Date(2023, 7, 14, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, "Intro text.\n", string(body))
}

func TestDecodePage_Invalid(t *testing.T) {
	_, _, err := DecodePage([]byte("---\ntitle: [unterminated\n---\n"))
	require.Error(t, err)
}
