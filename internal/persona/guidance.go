package persona

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Trigger controls when a guidance note applies.
type Trigger string

const (
	// TriggerAlways applies the note to every query.
	TriggerAlways Trigger = "always"
	// TriggerAuto applies the note when one of its keywords is in the query.
	TriggerAuto Trigger = "auto"
)

// Sentinel errors for note parsing.
var (
	ErrNoFrontmatter   = errors.New("guidance: missing YAML frontmatter")
	ErrInvalidTrigger  = errors.New("guidance: invalid trigger")
	ErrMissingNoteName = errors.New("guidance: missing required 'name' field")
)

// NoteMeta holds the YAML frontmatter of a guidance note.
type NoteMeta struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Trigger     Trigger  `yaml:"trigger"`
	Keywords    []string `yaml:"keywords"`
}

// Note is a parsed guidance file: response advice for the generator.
type Note struct {
	Meta NoteMeta
	Body string
	Path string
}

// ParseNote parses note content. It must start with YAML frontmatter
// delimited by "---".
func ParseNote(content, path string) (Note, error) {
	front, body, err := splitFrontmatter(content)
	if err != nil {
		return Note{}, err
	}

	var meta NoteMeta
	if err := yaml.Unmarshal([]byte(front), &meta); err != nil {
		return Note{}, fmt.Errorf("guidance: invalid YAML in %s: %w", path, err)
	}
	if meta.Name == "" {
		return Note{}, fmt.Errorf("%w in %s", ErrMissingNoteName, path)
	}
	if meta.Trigger == "" {
		meta.Trigger = TriggerAlways
	}
	switch meta.Trigger {
	case TriggerAlways, TriggerAuto:
	default:
		return Note{}, fmt.Errorf("%w %q in %s", ErrInvalidTrigger, meta.Trigger, path)
	}

	return Note{Meta: meta, Body: strings.TrimSpace(body), Path: path}, nil
}

// LoadNotesFromDir loads every .md note in dir, sorted by file name.
// A missing directory yields no notes. Unparseable files are skipped.
func LoadNotesFromDir(dir string) ([]Note, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	notes := make([]Note, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		note, err := ParseNote(string(data), path)
		if err != nil {
			continue
		}
		notes = append(notes, note)
	}
	slices.SortFunc(notes, func(a, b Note) int { return strings.Compare(a.Path, b.Path) })
	return notes, nil
}

// LoadGuidance reads the guidance notes of a scope.
func (d Directory) LoadGuidance(_ context.Context, scopeID string) ([]Note, error) {
	if err := CheckScope(scopeID); err != nil {
		return nil, err
	}
	return LoadNotesFromDir(d.GuidanceDir(scopeID))
}

// Select returns the notes that apply to query: always notes first, then
// auto notes whose keywords appear in it, each group in input order.
func Select(notes []Note, query string) []Note {
	lower := strings.ToLower(query)
	var out []Note
	for i := range notes {
		if notes[i].Meta.Trigger == TriggerAlways {
			out = append(out, notes[i])
		}
	}
	for i := range notes {
		if notes[i].Meta.Trigger == TriggerAuto && keywordMatch(notes[i], lower) {
			out = append(out, notes[i])
		}
	}
	return out
}

func keywordMatch(n Note, lowerQuery string) bool {
	for _, kw := range n.Meta.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lowerQuery, kw) {
			return true
		}
	}
	return false
}

// FormatGuidance renders notes as a markdown section. It returns an empty
// string when there are no notes.
func FormatGuidance(notes []Note) string {
	if len(notes) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Response Guidance")
	for _, n := range notes {
		b.WriteString("\n\n### ")
		b.WriteString(n.Meta.Name)
		if n.Meta.Description != "" {
			b.WriteString(": ")
			b.WriteString(n.Meta.Description)
		}
		if n.Body != "" {
			b.WriteString("\n\n")
			b.WriteString(n.Body)
		}
	}
	return b.String()
}

// splitFrontmatter splits content into YAML frontmatter and body.
func splitFrontmatter(content string) (front, body string, err error) {
	const delimiter = "---"

	content = strings.TrimSpace(content)
	rest, ok := strings.CutPrefix(content, delimiter+"\n")
	if !ok {
		return "", "", ErrNoFrontmatter
	}
	idx := strings.Index(rest, "\n"+delimiter)
	if idx < 0 {
		return "", "", ErrNoFrontmatter
	}
	return rest[:idx], rest[idx+1+len(delimiter):], nil
}
