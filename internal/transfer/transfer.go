// Package transfer exports and imports personal blacklists as JSON, YAML,
// TOML or markdown files. Imports also accept plain id lists in place of
// entry objects.
package transfer

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/JohanCodinha/blsync/internal/blacklist"
	"gopkg.in/yaml.v3"
)

// Format is a file encoding.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	TOML Format = "toml"
	// Markdown is a checklist with YAML frontmatter, meant for hand editing.
	Markdown Format = "md"
)

// documentVersion is written to every export.
const documentVersion = 1

// ParseFormat converts a user supplied name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "toml":
		return TOML, nil
	case "md", "markdown":
		return Markdown, nil
	default:
		return "", fmt.Errorf("unknown format %q: valid formats are json, yaml, toml, md", s)
	}
}

// FormatFromPath picks a Format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot infer format of %q: no file extension", path)
	}
	return ParseFormat(ext)
}

// document is the exported file layout.
type document struct {
	Version    int               `json:"version" yaml:"version" toml:"version"`
	ExportedAt int64             `json:"exportedAt" yaml:"exportedAt" toml:"exportedAt"`
	Subjects   []blacklist.Entry `json:"subjects" yaml:"subjects" toml:"subjects"`
	Items      []blacklist.Entry `json:"items" yaml:"items" toml:"items"`
}

// Export writes lists to w. exportedAt is milliseconds since the epoch.
func Export(w io.Writer, f Format, lists blacklist.Lists, exportedAt int64) error {
	doc := document{
		Version:    documentVersion,
		ExportedAt: exportedAt,
		Subjects:   nonNil(lists.Subjects),
		Items:      nonNil(lists.Items),
	}

	var err error
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(doc)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		err = enc.Encode(doc)
		if err == nil {
			err = enc.Close()
		}
	case TOML:
		err = toml.NewEncoder(w).Encode(doc)
	case Markdown:
		err = exportMarkdown(w, doc)
	default:
		return fmt.Errorf("unsupported format %q", f)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s export: %w", f, err)
	}
	return nil
}

// importDocument mirrors document with lenient entries.
type importDocument struct {
	Version  int          `json:"version" yaml:"version" toml:"version"`
	Subjects []entryValue `json:"subjects" yaml:"subjects" toml:"subjects"`
	Items    []entryValue `json:"items" yaml:"items" toml:"items"`
}

// Import reads lists from r. Plain id entries decode with AddedAt 0; callers
// stamp them through blacklist.Normalize.
func Import(r io.Reader, f Format) (blacklist.Lists, error) {
	var doc importDocument
	var err error
	switch f {
	case JSON:
		err = json.NewDecoder(r).Decode(&doc)
	case YAML:
		err = yaml.NewDecoder(r).Decode(&doc)
		if err == io.EOF {
			err = nil
		}
	case TOML:
		_, err = toml.NewDecoder(r).Decode(&doc)
	case Markdown:
		lists, err := importMarkdown(r)
		if err != nil {
			return blacklist.Lists{}, fmt.Errorf("failed to decode %s import: %w", f, err)
		}
		return lists, nil
	default:
		return blacklist.Lists{}, fmt.Errorf("unsupported format %q", f)
	}
	if err != nil {
		return blacklist.Lists{}, fmt.Errorf("failed to decode %s import: %w", f, err)
	}
	if doc.Version > documentVersion {
		return blacklist.Lists{}, fmt.Errorf("unsupported export version %d", doc.Version)
	}

	return blacklist.Lists{
		Subjects: toEntries(doc.Subjects),
		Items:    toEntries(doc.Items),
	}, nil
}

func toEntries(values []entryValue) []blacklist.Entry {
	out := make([]blacklist.Entry, 0, len(values))
	for _, v := range values {
		out = append(out, blacklist.Entry(v))
	}
	return out
}

func nonNil(entries []blacklist.Entry) []blacklist.Entry {
	if entries == nil {
		return []blacklist.Entry{}
	}
	return entries
}
