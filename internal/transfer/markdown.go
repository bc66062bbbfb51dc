package transfer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/JohanCodinha/blsync/internal/blacklist"
	"gopkg.in/yaml.v3"
)

const frontmatterDelim = "---"

// frontmatter is the YAML header of a markdown export.
type frontmatter struct {
	Version    int   `yaml:"version"`
	ExportedAt int64 `yaml:"exportedAt"`
	Subjects   int   `yaml:"subjects"`
	Items      int   `yaml:"items"`
}

// exportMarkdown writes a human-editable list: YAML frontmatter followed by
// one "## <partition>" section per partition and one "- id @addedAt" line
// per entry.
func exportMarkdown(w io.Writer, doc document) error {
	fm, err := yaml.Marshal(frontmatter{
		Version:    doc.Version,
		ExportedAt: doc.ExportedAt,
		Subjects:   len(doc.Subjects),
		Items:      len(doc.Items),
	})
	if err != nil {
		return err
	}

	var b bytes.Buffer
	b.WriteString(frontmatterDelim + "\n")
	b.Write(fm)
	b.WriteString(frontmatterDelim + "\n")
	for _, p := range blacklist.Partitions {
		entries := doc.Subjects
		if p == blacklist.Items {
			entries = doc.Items
		}
		fmt.Fprintf(&b, "\n## %s\n\n", p)
		for _, e := range entries {
			fmt.Fprintf(&b, "- %s @%d\n", e.ID, e.AddedAt)
		}
	}

	_, err = w.Write(b.Bytes())
	return err
}

// importMarkdown parses exportMarkdown output. The frontmatter is optional
// and entries without an @timestamp decode with AddedAt 0.
func importMarkdown(r io.Reader) (blacklist.Lists, error) {
	lists := blacklist.Lists{Subjects: []blacklist.Entry{}, Items: []blacklist.Entry{}}

	sc := bufio.NewScanner(r)
	var (
		lineNo  int
		inFront bool
		front   strings.Builder
		section blacklist.Partition
	)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())

		if lineNo == 1 && line == frontmatterDelim {
			inFront = true
			continue
		}
		if inFront {
			if line == frontmatterDelim {
				inFront = false
				if err := checkFrontmatter(front.String()); err != nil {
					return blacklist.Lists{}, err
				}
				continue
			}
			front.WriteString(sc.Text() + "\n")
			continue
		}

		switch {
		case strings.HasPrefix(line, "## "):
			p, err := blacklist.ParsePartition(strings.TrimPrefix(line, "## "))
			if err != nil {
				return blacklist.Lists{}, fmt.Errorf("line %d: %w", lineNo, err)
			}
			section = p
		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* "):
			if section == "" {
				return blacklist.Lists{}, fmt.Errorf("line %d: entry outside a section", lineNo)
			}
			e, err := parseMarkdownEntry(line[2:])
			if err != nil {
				return blacklist.Lists{}, fmt.Errorf("line %d: %w", lineNo, err)
			}
			lists.Set(section, append(lists.Get(section), e))
		}
	}
	if err := sc.Err(); err != nil {
		return blacklist.Lists{}, err
	}
	if inFront {
		return blacklist.Lists{}, fmt.Errorf("unterminated frontmatter")
	}
	return lists, nil
}

func checkFrontmatter(raw string) error {
	var fm frontmatter
	if err := yaml.Unmarshal([]byte(raw), &fm); err != nil {
		return fmt.Errorf("invalid frontmatter: %w", err)
	}
	if fm.Version > documentVersion {
		return fmt.Errorf("unsupported export version %d", fm.Version)
	}
	return nil
}

func parseMarkdownEntry(s string) (blacklist.Entry, error) {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, " @"); i >= 0 {
		at, err := strconv.ParseInt(s[i+2:], 10, 64)
		if err != nil {
			return blacklist.Entry{}, fmt.Errorf("invalid timestamp %q", s[i+2:])
		}
		return blacklist.Entry{ID: strings.TrimSpace(s[:i]), AddedAt: at}, nil
	}
	return blacklist.Entry{ID: s}, nil
}
