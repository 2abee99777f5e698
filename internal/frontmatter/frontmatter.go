// Package frontmatter splits YAML frontmatter from markdown documents and
// decodes the gallery page schema carried by _index.md files.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter indicates the document started with a YAML
// frontmatter delimiter but did not contain a closing delimiter.
var ErrMissingClosingDelimiter = errors.New("yaml frontmatter start delimiter found but closing delimiter is missing")

// Page is the frontmatter of a gallery's _index.md.
type Page struct {
	Title       string            `yaml:"title"`
	Slug        string            `yaml:"slug"`
	Description string            `yaml:"description"`
	Cover       string            `yaml:"cover"`
	Date        *time.Time        `yaml:"date"`
	Featured    bool              `yaml:"featured"`
	Hidden      bool              `yaml:"hidden"`
	Template    string            `yaml:"template"`
	Filter      string            `yaml:"filter"`
	Sort        string            `yaml:"sort"`
	Weight      int               `yaml:"weight"`
	DataSources map[string]string `yaml:"data"`
}

// Split separates YAML frontmatter (`---` delimited) from the Markdown body.
// Both LF and CRLF documents are accepted.
//
// If the document does not start with a delimiter, had is false and body is
// the full input.
func Split(content []byte) (fm []byte, body []byte, had bool, err error) {
	nl := detectNewline(content)
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, false, nil
	}

	start := len(open)
	if bytes.HasPrefix(content[start:], open) {
		return []byte{}, content[start+len(open):], true, nil
	}

	closeSeq := []byte(nl + "---" + nl)
	idx := bytes.Index(content[start:], closeSeq)
	if idx < 0 {
		// A closing delimiter on the last line without a newline.
		if bytes.HasSuffix(content, []byte(nl+"---")) {
			end := len(content) - len("---")
			return content[start:end], []byte{}, true, nil
		}
		return nil, nil, false, ErrMissingClosingDelimiter
	}

	end := start + idx + len(nl)
	return content[start:end], content[start+idx+len(closeSeq):], true, nil
}

// ParseYAML parses raw YAML frontmatter (without --- delimiters) into a map.
func ParseYAML(fm []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(fm)) == 0 {
		return map[string]any{}, nil
	}

	var fields map[string]any
	if err := yaml.Unmarshal(fm, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// Decode unmarshals the frontmatter of content into v and returns the body.
// Documents without frontmatter leave v untouched.
func Decode(content []byte, v any) ([]byte, error) {
	fm, body, had, err := Split(content)
	if err != nil {
		return nil, err
	}
	if !had || len(bytes.TrimSpace(fm)) == 0 {
		return body, nil
	}
	if err := yaml.Unmarshal(fm, v); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	return body, nil
}

// DecodePage reads the gallery page schema from an _index.md document.
func DecodePage(content []byte) (Page, []byte, error) {
	var p Page
	body, err := Decode(content, &p)
	return p, body, err
}

func detectNewline(content []byte) string {
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}
