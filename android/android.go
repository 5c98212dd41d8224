// Package android implements the Android strings.xml resource codec.
//
// Supported resource types:
//   - <string>        simple key/value string
//   - <string-array>  one entry per item, keyed "name[0]", "name[1]", ...
//   - <plurals>       one plural entry with quantity-keyed forms
//
// Resources with translatable="false" are skipped. An XML comment directly
// before a resource becomes its context. Values use Android's backslash
// escapes (\' \" \n \t \\ and a leading \@ or \?).
package android

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/minios-linux/locflow/entry"
	"github.com/minios-linux/locflow/plural"
)

// Format is the registry identifier of this codec.
const Format = "android"

// Codec reads and writes strings.xml files.
type Codec struct{}

// New returns an Android resource codec.
func New() entry.Codec { return Codec{} }

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Parse converts a <resources> document into entries in document order.
func (Codec) Parse(content []byte) ([]entry.Entry, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))

	root, err := rootElement(dec)
	if err != nil {
		return nil, wrapErr(err)
	}
	if root.Name.Local != "resources" {
		return nil, &entry.ParseError{
			Format: Format,
			Err:    fmt.Errorf("%w: expected <resources>, got <%s>", entry.ErrUnexpectedRoot, root.Name.Local),
		}
	}

	var list entry.List
	comment := ""
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, wrapErr(err)
		}
		if _, ok := tok.(xml.EndElement); ok {
			break
		}

		switch t := tok.(type) {
		case xml.Comment:
			comment = strings.TrimSpace(string(t))
		case xml.StartElement:
			name, translatable := parseAttrs(t)
			var err error
			switch t.Name.Local {
			case "string":
				var text string
				if text, err = readText(dec); err == nil && translatable && name != "" {
					list.Add(entry.Entry{Key: name, SourceText: text, Context: comment})
				}
			case "string-array":
				var items []string
				if items, err = readItems(dec, nil); err == nil && translatable && name != "" {
					for i, text := range items {
						e := entry.Entry{Key: arrayKey(name, i), SourceText: text}
						if i == 0 {
							e.Context = comment
						}
						list.Add(e)
					}
				}
			case "plurals":
				forms := make(map[string]string)
				var order []string
				if order, err = readItems(dec, forms); err == nil && translatable && name != "" && len(forms) > 0 {
					list.Add(pluralEntry(name, comment, forms, order))
				}
			default:
				err = dec.Skip()
			}
			if err != nil {
				return nil, wrapErr(err)
			}
			comment = ""
		}
	}

	if err := trailing(dec); err != nil {
		return nil, wrapErr(err)
	}
	return list.Entries(), nil
}

// parseAttrs extracts name and translatable from a start element.
func parseAttrs(elem xml.StartElement) (name string, translatable bool) {
	translatable = true
	for _, attr := range elem.Attr {
		switch attr.Name.Local {
		case "name":
			name = attr.Value
		case "translatable":
			if strings.EqualFold(attr.Value, "false") {
				translatable = false
			}
		}
	}
	return
}

// readItems consumes the <item> children of a <string-array> or <plurals>
// element. With forms set, items are stored by quantity and the quantities
// are returned in document order; otherwise item texts are returned.
func readItems(dec *xml.Decoder, forms map[string]string) ([]string, error) {
	var out []string
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.EndElement:
			return out, nil
		case xml.StartElement:
			if t.Name.Local != "item" {
				if err := dec.Skip(); err != nil {
					return nil, err
				}
				continue
			}
			quantity := ""
			for _, attr := range t.Attr {
				if attr.Name.Local == "quantity" {
					quantity = attr.Value
				}
			}
			text, err := readText(dec)
			if err != nil {
				return nil, err
			}
			if forms == nil {
				out = append(out, text)
				continue
			}
			if plural.IsCategory(quantity) {
				if _, seen := forms[quantity]; !seen {
					out = append(out, quantity)
				}
				forms[quantity] = text
			}
		}
	}
}

func pluralEntry(name, comment string, forms map[string]string, order []string) entry.Entry {
	source := forms[order[0]]
	if text, ok := forms[plural.One]; ok {
		source = text
	} else if text, ok := forms[plural.Other]; ok {
		source = text
	}
	return entry.Entry{Key: name, SourceText: source, Context: comment, HasPlurals: true, PluralForms: forms}
}

// readText reads the content of the current element up to its end tag.
// Inline markup such as <b> or <xliff:g> is re-serialized by local name.
func readText(dec *xml.Decoder) (string, error) {
	var b strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.StartElement:
			depth++
			b.WriteString("<")
			b.WriteString(t.Name.Local)
			for _, attr := range t.Attr {
				if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" {
					continue
				}
				fmt.Fprintf(&b, ` %s="%s"`, attr.Name.Local, escapeXML(attr.Value, true))
			}
			b.WriteString(">")
		case xml.EndElement:
			depth--
			if depth > 0 {
				b.WriteString("</")
				b.WriteString(t.Name.Local)
				b.WriteString(">")
			}
		}
	}
	return unescape(b.String()), nil
}

// unescape resolves Android string escapes. A value wrapped in double
// quotes loses the quotes.
func unescape(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// rootElement returns the first start element of the document.
func rootElement(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return xml.StartElement{}, errors.New("document has no root element")
		}
		if err != nil {
			return xml.StartElement{}, err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se, nil
		}
	}
}

// trailing checks that nothing but comments and whitespace follows the root.
func trailing(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return fmt.Errorf("unexpected element <%s> after root", t.Name.Local)
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return errors.New("unexpected text after root")
			}
		}
	}
}

func wrapErr(err error) error {
	var perr *entry.ParseError
	if errors.As(err, &perr) {
		return err
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	pe := &entry.ParseError{Format: Format, Err: err}
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		pe.Line = se.Line
	}
	return pe
}

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

var (
	nameRE     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)
	arrayKeyRE = regexp.MustCompile(`^(.+)\[(\d+)\]$`)
)

func arrayKey(name string, i int) string {
	return name + "[" + strconv.Itoa(i) + "]"
}

// resource is one element of the exported document.
type resource struct {
	entry entry.Entry
	items map[int]entry.Entry // string-array items by index
}

// Export writes a strings.xml document. Keys of the form "name[N]" are
// grouped into a <string-array> at the position of their first item.
func (Codec) Export(entries []entry.Entry, translations map[string]string) ([]byte, error) {
	var resources []*resource
	arrays := make(map[string]*resource)
	names := make(map[string]bool)

	for _, e := range entry.SortByOrder(entries) {
		name := e.Key
		index := -1
		if m := arrayKeyRE.FindStringSubmatch(e.Key); m != nil {
			name = m[1]
			index, _ = strconv.Atoi(m[2])
		}
		if !nameRE.MatchString(name) {
			return nil, &entry.ExportError{Format: Format, Key: e.Key, Err: errors.New("not a valid resource name")}
		}
		if strings.Contains(e.Context, "--") {
			return nil, &entry.ExportError{Format: Format, Key: e.Key, Err: errors.New(`context contains "--"`)}
		}

		if index < 0 {
			if names[name] {
				return nil, &entry.ExportError{Format: Format, Key: e.Key, Err: errors.New("duplicate resource name")}
			}
			names[name] = true
			resources = append(resources, &resource{entry: e})
			continue
		}
		r, ok := arrays[name]
		if !ok {
			if names[name] {
				return nil, &entry.ExportError{Format: Format, Key: e.Key, Err: errors.New("duplicate resource name")}
			}
			names[name] = true
			head := e
			head.Key = name
			r = &resource{entry: head, items: make(map[int]entry.Entry)}
			arrays[name] = r
			resources = append(resources, r)
		}
		r.items[index] = e
	}

	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	b.WriteString("<resources>\n")
	for _, r := range resources {
		e := r.entry
		if e.Context != "" {
			fmt.Fprintf(&b, "    <!-- %s -->\n", e.Context)
		}
		switch {
		case r.items != nil:
			fmt.Fprintf(&b, "    <string-array name=\"%s\">\n", e.Key)
			indices := make([]int, 0, len(r.items))
			for i := range r.items {
				indices = append(indices, i)
			}
			sort.Ints(indices)
			for _, i := range indices {
				item := r.items[i]
				fmt.Fprintf(&b, "        <item>%s</item>\n", escape(lookup(translations, item.Key, item.SourceText)))
			}
			b.WriteString("    </string-array>\n")
		case e.HasPlurals:
			fmt.Fprintf(&b, "    <plurals name=\"%s\">\n", e.Key)
			for _, form := range quantities(e, translations) {
				text := lookup(translations, entry.PluralKey(e.Key, form), e.PluralForms[form])
				fmt.Fprintf(&b, "        <item quantity=\"%s\">%s</item>\n", form, escape(text))
			}
			b.WriteString("    </plurals>\n")
		default:
			fmt.Fprintf(&b, "    <string name=\"%s\">%s</string>\n", e.Key, escape(lookup(translations, e.Key, e.SourceText)))
		}
	}
	b.WriteString("</resources>\n")
	return []byte(b.String()), nil
}

// quantities lists the categories of a plural entry plus those supplied
// only as translations, in CLDR order.
func quantities(e entry.Entry, translations map[string]string) []string {
	forms := make(map[string]string)
	for form := range e.PluralForms {
		if plural.IsCategory(form) {
			forms[form] = ""
		}
	}
	for key := range translations {
		if form, ok := strings.CutPrefix(key, e.Key+"_"); ok && plural.IsCategory(form) {
			forms[form] = ""
		}
	}
	return plural.SortedKeys(forms)
}

func lookup(translations map[string]string, key, fallback string) string {
	if t, ok := translations[key]; ok {
		return t
	}
	return fallback
}

// escape applies Android string escapes, then XML escaping.
func escape(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '@', '?':
			if i == 0 {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return escapeXML(b.String(), false)
}

func escapeXML(s string, attr bool) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	if attr {
		r = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	}
	return r.Replace(s)
}
