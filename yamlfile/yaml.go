// Package yamlfile converts YAML translation files to entries and back.
//
// The expected file format is a nested YAML map with string leaf values:
//
//	greeting: Hello
//	nav:
//	  home: Home
//	  about: About
//
// Rails i18n style (locale as the only top-level key) is also supported:
//
//	en:
//	  greeting: Hello
//	  items:
//	    one: 1 item
//	    other: "%{count} items"
//
// A map whose keys are all CLDR plural categories becomes one plural entry.
// Comments directly above a key, or after its value, become the context.
// Non-string scalars (numbers, booleans, null) and sequences are skipped.
package yamlfile

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/minios-linux/locflow/entry"
	"github.com/minios-linux/locflow/plural"
)

// Format is the registry identifier for YAML files.
const Format = "yaml"

// Codec converts YAML documents.
type Codec struct {
	// Locale, when set, wraps exported documents in a top-level locale key.
	Locale string
}

// New returns a YAML codec without a locale wrapper.
func New() entry.Codec { return &Codec{} }

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Parse converts YAML content into entries in document order.
func (c *Codec) Parse(content []byte) ([]entry.Entry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, syntaxError(err)
	}

	// yaml.Unmarshal wraps the document in a DocumentNode; empty files have none.
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return []entry.Entry{}, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &entry.ParseError{Format: Format, Line: root.Line,
			Err: fmt.Errorf("%w: YAML root must be a mapping", entry.ErrUnexpectedRoot)}
	}

	if body := localeBody(root); body != nil {
		root = body
	}

	var list entry.List
	collectEntries(root, "", &list)
	return list.Entries(), nil
}

// localeBody returns the mapping under a single top-level locale key, or nil
// when root is not in Rails i18n style.
func localeBody(root *yaml.Node) *yaml.Node {
	if len(root.Content) != 2 {
		return nil
	}
	keyNode, valNode := root.Content[0], root.Content[1]
	if keyNode.Kind != yaml.ScalarNode || valNode.Kind != yaml.MappingNode || isPluralMap(valNode) {
		return nil
	}
	if !isLocale(keyNode.Value) {
		return nil
	}
	return valNode
}

// isLocale reports whether s names a language in the plural table.
func isLocale(s string) bool {
	base, _, _ := strings.Cut(strings.ReplaceAll(s, "_", "-"), "-")
	_, ok := plural.Rules[strings.ToLower(base)]
	return ok
}

// collectEntries recursively walks a mapping node and adds leaf entries.
func collectEntries(node *yaml.Node, prefix string, list *entry.List) {
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]

		path := keyNode.Value
		if prefix != "" {
			path = prefix + "." + path
		}

		switch valNode.Kind {
		case yaml.MappingNode:
			if isPluralMap(valNode) {
				list.Add(pluralEntry(path, keyNode, valNode))
				continue
			}
			collectEntries(valNode, path, list)
		case yaml.ScalarNode:
			if !isString(valNode) {
				continue
			}
			list.Add(entry.Entry{
				Key:        path,
				SourceText: valNode.Value,
				Context:    comment(keyNode, valNode),
			})
		}
	}
}

// isString reports whether a scalar resolves to a string.
func isString(n *yaml.Node) bool {
	switch n.ShortTag() {
	case "!!bool", "!!int", "!!float", "!!null":
		return false
	}
	return true
}

// isPluralMap reports whether every key of a mapping is a plural category
// and every value a string.
func isPluralMap(n *yaml.Node) bool {
	if len(n.Content) == 0 {
		return false
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Kind != yaml.ScalarNode || !plural.IsCategory(k.Value) {
			return false
		}
		if v.Kind != yaml.ScalarNode || !isString(v) {
			return false
		}
	}
	return true
}

func pluralEntry(path string, keyNode, valNode *yaml.Node) entry.Entry {
	forms := make(map[string]string, len(valNode.Content)/2)
	first := ""
	for i := 0; i+1 < len(valNode.Content); i += 2 {
		cat := valNode.Content[i].Value
		if first == "" {
			first = cat
		}
		forms[cat] = valNode.Content[i+1].Value
	}

	source := forms[first]
	if text, ok := forms[plural.One]; ok {
		source = text
	} else if text, ok := forms[plural.Other]; ok {
		source = text
	}

	return entry.Entry{
		Key:         path,
		SourceText:  source,
		Context:     comment(keyNode, valNode),
		HasPlurals:  true,
		PluralForms: forms,
	}
}

// comment returns the head comment of the key, or the line comment of the
// value, without comment markers.
func comment(keyNode, valNode *yaml.Node) string {
	text := keyNode.HeadComment
	if text == "" {
		text = keyNode.LineComment
	}
	if text == "" {
		text = valNode.LineComment
	}
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		l = strings.TrimPrefix(strings.TrimSpace(l), "#")
		lines[i] = strings.TrimPrefix(l, " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

var lineRE = regexp.MustCompile(`line (\d+)`)

// syntaxError turns a yaml.v3 error into a ParseError with the first line
// number mentioned in the message.
func syntaxError(err error) error {
	perr := &entry.ParseError{Format: Format, Err: err}
	if m := lineRE.FindStringSubmatch(err.Error()); m != nil {
		perr.Line, _ = strconv.Atoi(m[1])
	}
	return perr
}

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

// Export builds a nested YAML document. Translations replace source text
// where present; plural entries become category maps in CLDR order.
func (c *Codec) Export(entries []entry.Entry, translations map[string]string) ([]byte, error) {
	root := mapping()
	leaves := make(map[*yaml.Node]bool)

	for _, e := range entry.SortByOrder(entries) {
		var value *yaml.Node
		if e.HasPlurals {
			value = mapping()
			for _, form := range pluralForms(e, translations) {
				text := e.PluralForms[form]
				if t, ok := translations[entry.PluralKey(e.Key, form)]; ok {
					text = t
				}
				value.Content = append(value.Content, str(form), str(text))
			}
		} else {
			text := e.SourceText
			if t, ok := translations[e.Key]; ok {
				text = t
			}
			value = str(text)
		}

		keyNode, err := place(root, e.Key, value, leaves)
		if err != nil {
			return nil, &entry.ExportError{Format: Format, Key: e.Key, Err: err}
		}
		if e.Context != "" {
			keyNode.HeadComment = headComment(e.Context)
		}
	}

	doc := root
	if c.Locale != "" {
		doc = mapping()
		doc.Content = append(doc.Content, str(c.Locale), root)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, &entry.ExportError{Format: Format, Err: err}
	}
	if err := enc.Close(); err != nil {
		return nil, &entry.ExportError{Format: Format, Err: err}
	}
	return buf.Bytes(), nil
}

// pluralForms lists the categories to export: the entry's own forms plus
// any category supplied only as a translation, in CLDR order.
func pluralForms(e entry.Entry, translations map[string]string) []string {
	forms := make(map[string]string, len(e.PluralForms))
	for form, text := range e.PluralForms {
		if plural.IsCategory(form) {
			forms[form] = text
		}
	}
	for key := range translations {
		if form, ok := strings.CutPrefix(key, e.Key+"_"); ok && plural.IsCategory(form) {
			forms[form] = ""
		}
	}
	return plural.SortedKeys(forms)
}

// place stores value at the dotted path under root and returns the key node.
// leaves records value nodes, so plural maps are never used as parents.
func place(root *yaml.Node, path string, value *yaml.Node, leaves map[*yaml.Node]bool) (*yaml.Node, error) {
	parts := strings.Split(path, ".")
	cur := root
	for i, part := range parts[:len(parts)-1] {
		child := lookup(cur, part)
		switch {
		case child == nil:
			child = mapping()
			cur.Content = append(cur.Content, str(part), child)
		case leaves[child]:
			return nil, fmt.Errorf("%q is both a value and a parent", strings.Join(parts[:i+1], "."))
		}
		cur = child
	}

	last := parts[len(parts)-1]
	if existing := lookup(cur, last); existing != nil {
		if !leaves[existing] {
			return nil, fmt.Errorf("%q is both a value and a parent", path)
		}
		return nil, errors.New("duplicate key")
	}
	leaves[value] = true
	keyNode := str(last)
	cur.Content = append(cur.Content, keyNode, value)
	return keyNode, nil
}

func lookup(n *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func mapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode}
}

// str returns a string scalar; the encoder quotes values that would
// otherwise resolve to another type.
func str(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func headComment(context string) string {
	lines := strings.Split(context, "\n")
	for i, l := range lines {
		lines[i] = "# " + l
	}
	return strings.Join(lines, "\n")
}
