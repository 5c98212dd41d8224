// Package i18next implements the JSON resource codec with i18next
// conventions.
//
// Nested objects are flattened into dot-separated keys:
//
//	{
//	    "common": { "ok": "OK" },
//	    "item_one": "{{count}} item",
//	    "item_other": "{{count}} items"
//	}
//
// yields the entries "common.ok" and "item". Keys ending in a plural suffix
// (_zero, _one, _two, _few, _many, _other, _plural) are grouped under their
// base key into a single plural entry.
package i18next

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minios-linux/locflow/entry"
	"github.com/minios-linux/locflow/plural"
)

// Format is the registry identifier of this codec.
const Format = "json"

// pluralSuffixes are matched in this order; the first match wins.
var pluralSuffixes = []string{"_zero", "_one", "_two", "_few", "_many", "_other", "_plural"}

// Codec reads and writes i18next JSON files.
type Codec struct{}

// New returns a JSON codec.
func New() entry.Codec { return Codec{} }

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// item is one flattened leaf in document order.
type item struct {
	key   string
	value string
}

// Parse flattens a JSON object into entries.
func (Codec) Parse(content []byte) ([]entry.Entry, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))

	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()

	var root json.RawMessage
	if err := dec.Decode(&root); err != nil {
		return nil, syntaxError(content, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &entry.ParseError{Format: Format, Err: errors.New("unexpected data after top-level value")}
	}
	if kind := firstByte(root); kind != '{' {
		return nil, &entry.ParseError{
			Format: Format,
			Err:    fmt.Errorf("%w: JSON root must be an object, got %s", entry.ErrUnexpectedRoot, kindName(kind)),
		}
	}

	var items []item
	if err := flatten(root, "", &items); err != nil {
		return nil, syntaxError(content, err)
	}
	return group(items), nil
}

// flatten appends every leaf of the object in raw to items, preserving
// key order.
func flatten(raw json.RawMessage, prefix string, items *[]item) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	if _, err := dec.Token(); err != nil { // opening brace
		return err
	}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := kt.(string)
		if !ok {
			return fmt.Errorf("expected string key, got %T", kt)
		}
		if prefix != "" {
			key = prefix + "." + key
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		if firstByte(value) == '{' {
			if err := flatten(value, key, items); err != nil {
				return err
			}
			continue
		}
		text, err := leafText(value)
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		*items = append(*items, item{key: key, value: text})
	}
	return nil
}

// leafText renders a non-object JSON value as entry text. Strings are
// decoded, null is empty, arrays keep their compact JSON text and numbers
// and booleans keep their literal spelling.
func leafText(raw json.RawMessage) (string, error) {
	switch firstByte(raw) {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case 'n':
		return "", nil
	case '[':
		var b bytes.Buffer
		if err := json.Compact(&b, raw); err != nil {
			return "", err
		}
		return b.String(), nil
	default:
		return string(bytes.TrimSpace(raw)), nil
	}
}

// pluralGroup collects the suffixed keys sharing one base key.
type pluralGroup struct {
	forms map[string]string
	order []string
}

// group merges suffixed keys into plural entries. A group takes the
// position of its first suffixed key; a plain key equal to a group's base
// is dropped.
func group(items []item) []entry.Entry {
	bases := make(map[string]*pluralGroup)
	type slot struct {
		base string // non-empty for plural groups
		item item
	}
	var slots []slot

	for _, it := range items {
		base, cat, ok := splitPluralSuffix(it.key)
		if !ok {
			slots = append(slots, slot{item: it})
			continue
		}
		g, seen := bases[base]
		if !seen {
			g = &pluralGroup{forms: make(map[string]string)}
			bases[base] = g
			slots = append(slots, slot{base: base})
		}
		if _, dup := g.forms[cat]; !dup {
			g.order = append(g.order, cat)
		}
		g.forms[cat] = it.value
	}

	var list entry.List
	for _, s := range slots {
		if s.base == "" {
			if _, shadowed := bases[s.item.key]; shadowed {
				continue
			}
			list.Add(entry.Entry{Key: s.item.key, SourceText: s.item.value})
			continue
		}
		g := bases[s.base]
		list.Add(entry.Entry{
			Key:         s.base,
			SourceText:  g.sourceText(),
			HasPlurals:  true,
			PluralForms: g.forms,
		})
	}
	return list.Entries()
}

func (g *pluralGroup) sourceText() string {
	if v, ok := g.forms[plural.One]; ok {
		return v
	}
	if v, ok := g.forms[plural.Other]; ok {
		return v
	}
	return g.forms[g.order[0]]
}

// splitPluralSuffix splits "item_one" into ("item", "one").
func splitPluralSuffix(key string) (base, category string, ok bool) {
	for _, suffix := range pluralSuffixes {
		if len(key) > len(suffix) && strings.HasSuffix(key, suffix) {
			return key[:len(key)-len(suffix)], suffix[1:], true
		}
	}
	return "", "", false
}

func firstByte(raw []byte) byte {
	raw = bytes.TrimLeft(raw, " \t\r\n")
	if len(raw) == 0 {
		return 0
	}
	return raw[0]
}

func kindName(b byte) string {
	switch b {
	case '[':
		return "array"
	case '"':
		return "string"
	case 'n':
		return "null"
	case 't', 'f':
		return "boolean"
	case 0:
		return "nothing"
	default:
		return "number"
	}
}

// syntaxError wraps a decoder error, resolving byte offsets to a line.
func syntaxError(content []byte, err error) error {
	if errors.Is(err, io.EOF) {
		err = errors.New("empty document")
	}
	perr := &entry.ParseError{Format: Format, Err: err}
	var se *json.SyntaxError
	if errors.As(err, &se) {
		perr.Line = lineAt(content, se.Offset)
	}
	return perr
}

func lineAt(content []byte, offset int64) int {
	if offset > int64(len(content)) {
		offset = int64(len(content))
	}
	return bytes.Count(content[:offset], []byte("\n")) + 1
}

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

// node is an ordered JSON object under construction.
type node struct {
	keys     []string
	children map[string]*node
	leaves   map[string]string
}

func newNode() *node {
	return &node{children: make(map[string]*node), leaves: make(map[string]string)}
}

// set stores value at the dotted path. A path segment that is already a
// leaf cannot become an object and vice versa.
func (n *node) set(path, value string) error {
	parts := strings.Split(path, ".")
	cur := n
	for i, part := range parts[:len(parts)-1] {
		if _, isLeaf := cur.leaves[part]; isLeaf {
			return fmt.Errorf("%q is both a value and a parent", strings.Join(parts[:i+1], "."))
		}
		child, ok := cur.children[part]
		if !ok {
			child = newNode()
			cur.children[part] = child
			cur.keys = append(cur.keys, part)
		}
		cur = child
	}
	last := parts[len(parts)-1]
	if _, isParent := cur.children[last]; isParent {
		return fmt.Errorf("%q is both a value and a parent", path)
	}
	if _, exists := cur.leaves[last]; !exists {
		cur.keys = append(cur.keys, last)
	}
	cur.leaves[last] = value
	return nil
}

// Export rebuilds the nested JSON document. Plural entries are expanded
// back into suffixed keys, in CLDR category order.
func (Codec) Export(entries []entry.Entry, translations map[string]string) ([]byte, error) {
	root := newNode()
	for _, e := range entry.SortByOrder(entries) {
		if e.HasPlurals {
			for _, form := range plural.SortedKeys(e.PluralForms) {
				key := entry.PluralKey(e.Key, form)
				text := e.PluralForms[form]
				if t, ok := translations[key]; ok {
					text = t
				}
				if err := root.set(key, text); err != nil {
					return nil, &entry.ExportError{Format: Format, Key: e.Key, Err: err}
				}
			}
			continue
		}
		text := e.SourceText
		if t, ok := translations[e.Key]; ok {
			text = t
		}
		if err := root.set(e.Key, text); err != nil {
			return nil, &entry.ExportError{Format: Format, Key: e.Key, Err: err}
		}
	}

	var b strings.Builder
	writeNode(&b, root, 0)
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// writeNode writes n with two-space indentation.
func writeNode(b *strings.Builder, n *node, depth int) {
	if len(n.keys) == 0 {
		b.WriteString("{}")
		return
	}
	indent := strings.Repeat("  ", depth+1)
	b.WriteString("{\n")
	for i, k := range n.keys {
		b.WriteString(indent)
		b.WriteString(jsonString(k))
		b.WriteString(": ")
		if child, ok := n.children[k]; ok {
			writeNode(b, child, depth+1)
		} else {
			b.WriteString(jsonString(n.leaves[k]))
		}
		if i < len(n.keys)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteByte('}')
}

// jsonString returns s as a JSON string literal without HTML escaping.
func jsonString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s) // strings always encode
	return strings.TrimSuffix(buf.String(), "\n")
}
