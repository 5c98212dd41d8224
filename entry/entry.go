// Package entry defines the format-neutral record every resource codec
// produces and consumes, together with the codec contract and the error
// types codecs report.
package entry

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
)

// Entry is one translatable unit extracted from a resource file.
type Entry struct {
	// Key identifies the entry within one parse of one file.
	Key string `yaml:"key" json:"key"`
	// SourceText is the text to translate.
	SourceText string `yaml:"source_text" json:"source_text"`
	// Context is a free-form comment or note, empty when absent.
	Context string `yaml:"context,omitempty" json:"context,omitempty"`
	// MaxLength is a positive length limit; 0 means unset.
	MaxLength int `yaml:"max_length,omitempty" json:"max_length,omitempty"`
	// HasPlurals marks entries carrying plural variants.
	HasPlurals bool `yaml:"has_plurals,omitempty" json:"has_plurals,omitempty"`
	// PluralForms maps a plural category (one, few, other, form0, ...) to text.
	PluralForms map[string]string `yaml:"plural_forms,omitempty" json:"plural_forms,omitempty"`
	// Order is the zero-based position of the entry in its source file.
	Order int `yaml:"order" json:"order"`
	// Flags are advisory format markers such as "fuzzy".
	Flags []string `yaml:"flags,omitempty" json:"flags,omitempty"`
}

// Codec converts between a file format and entries.
//
// Export emits entries in ascending Order. A nil translations map requests
// an identity export that echoes source text.
type Codec interface {
	Parse(content []byte) ([]Entry, error)
	Export(entries []Entry, translations map[string]string) ([]byte, error)
}

// HasFlag reports whether flag is set on the entry.
func (e *Entry) HasFlag(flag string) bool {
	return slices.Contains(e.Flags, flag)
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	if e.PluralForms != nil {
		e.PluralForms = maps.Clone(e.PluralForms)
	}
	if e.Flags != nil {
		e.Flags = slices.Clone(e.Flags)
	}
	return e
}

// SameContent reports whether two entries carry the same translatable
// content: source text, context and plural data.
func SameContent(a, b Entry) bool {
	if a.SourceText != b.SourceText || a.Context != b.Context || a.HasPlurals != b.HasPlurals {
		return false
	}
	return maps.Equal(a.PluralForms, b.PluralForms)
}

// PluralKey is the translation-map key for one plural category of key.
func PluralKey(key, category string) string {
	return key + "_" + category
}

// SortByOrder returns a copy of entries stably sorted by Order.
func SortByOrder(entries []Entry) []Entry {
	out := slices.Clone(entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Keys returns the entry keys in slice order.
func Keys(entries []Entry) []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

// ---------------------------------------------------------------------------
// Collecting parse results
// ---------------------------------------------------------------------------

// List accumulates entries in emission order while keeping keys unique.
// A repeated key replaces the earlier entry's content but keeps its
// position. Order is assigned contiguously from zero.
type List struct {
	entries []Entry
	index   map[string]int
}

// Add appends e, or replaces the content of an earlier entry with the same key.
func (l *List) Add(e Entry) {
	if l.index == nil {
		l.index = make(map[string]int)
	}
	if i, ok := l.index[e.Key]; ok {
		e.Order = l.entries[i].Order
		l.entries[i] = e
		return
	}
	e.Order = len(l.entries)
	l.index[e.Key] = len(l.entries)
	l.entries = append(l.entries, e)
}

// Has reports whether key was added.
func (l *List) Has(key string) bool {
	_, ok := l.index[key]
	return ok
}

// Len returns the number of distinct keys.
func (l *List) Len() int {
	return len(l.entries)
}

// Entries returns the collected entries. An empty list yields a non-nil slice.
func (l *List) Entries() []Entry {
	if l.entries == nil {
		return []Entry{}
	}
	return l.entries
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// ErrUnexpectedRoot is wrapped by ParseError when content is syntactically
// valid but its top-level structure is not what the format requires.
var ErrUnexpectedRoot = errors.New("unexpected document root")

// ParseError reports malformed content for a format.
type ParseError struct {
	Format string
	// Line is the 1-based line of the problem, 0 when unknown.
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid %s file: line %d: %v", e.Format, e.Line, e.Err)
	}
	return fmt.Sprintf("invalid %s file: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ExportError reports entries that cannot be written in a format.
type ExportError struct {
	Format string
	// Key is the offending entry key, empty when the problem is not tied to one entry.
	Key string
	Err error
}

func (e *ExportError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("cannot export %s: key %q: %v", e.Format, e.Key, e.Err)
	}
	return fmt.Sprintf("cannot export %s: %v", e.Format, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }
