// Package xliff implements the XLIFF 1.2 resource codec.
//
// Every trans-unit inside a file element becomes one entry: the unit id is
// the key, source is the source text, the first note is the context and a
// maxwidth or size-restriction attribute is the length limit.
package xliff

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/minios-linux/locflow/entry"
)

// Format is the registry identifier of this codec.
const Format = "xliff"

// Namespace is the XLIFF 1.2 document namespace.
const Namespace = "urn:oasis:names:tc:xliff:document:1.2"

// Codec reads and writes XLIFF 1.2 documents.
type Codec struct {
	// SourceLanguage is written on the file element; defaults to "en".
	SourceLanguage string
	// TargetLanguage is written on the file element when set.
	TargetLanguage string
	// Original is the file element's original attribute; defaults to "locflow".
	Original string
}

// New returns an XLIFF codec with default file attributes.
func New() entry.Codec { return &Codec{} }

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Parse walks the document's token stream. Elements are matched in the
// namespace of the root element, so namespaced and bare documents both work.
func (c *Codec) Parse(content []byte) ([]entry.Entry, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))

	root, err := rootElement(dec)
	if err != nil {
		return nil, wrapErr(err)
	}
	if root.Name.Local != "xliff" {
		return nil, &entry.ParseError{
			Format: Format,
			Err:    fmt.Errorf("%w: expected <xliff>, got <%s>", entry.ErrUnexpectedRoot, root.Name.Local),
		}
	}
	ns := root.Name.Space

	var list entry.List
	fileDepth := 0
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return nil, wrapErr(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != ns {
				if err := dec.Skip(); err != nil {
					return nil, wrapErr(err)
				}
				continue
			}
			switch {
			case t.Name.Local == "file":
				fileDepth++
			case t.Name.Local == "trans-unit" && fileDepth > 0:
				e, ok, err := parseUnit(dec, t, ns)
				if err != nil {
					return nil, wrapErr(err)
				}
				if ok {
					list.Add(e)
				}
				continue
			}
			depth++
		case xml.EndElement:
			depth--
			if t.Name.Space == ns && t.Name.Local == "file" {
				fileDepth--
			}
		}
	}
	if err := trailing(dec); err != nil {
		return nil, wrapErr(err)
	}
	return list.Entries(), nil
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

// parseUnit consumes a trans-unit element. ok is false for units without
// a source child.
func parseUnit(dec *xml.Decoder, start xml.StartElement, ns string) (e entry.Entry, ok bool, err error) {
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "id":
			e.Key = attr.Value
		case "maxwidth", "size-restriction":
			if e.MaxLength == 0 {
				if n, convErr := strconv.Atoi(strings.TrimSpace(attr.Value)); convErr == nil && n > 0 {
					e.MaxLength = n
				}
			}
		}
	}

	sawNote := false
	for {
		tok, err := dec.Token()
		if err != nil {
			return e, false, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Space == ns && t.Name.Local == "source" && !ok:
				var b strings.Builder
				if err := readElementContent(dec, &b); err != nil {
					return e, false, err
				}
				e.SourceText = strings.TrimSpace(b.String())
				ok = true
			case t.Name.Space == ns && t.Name.Local == "note" && !sawNote:
				var b strings.Builder
				if err := readElementContent(dec, &b); err != nil {
					return e, false, err
				}
				e.Context = strings.TrimSpace(b.String())
				sawNote = true
			default:
				if err := dec.Skip(); err != nil {
					return e, false, err
				}
			}
		case xml.EndElement:
			return e, ok, nil
		}
	}
}

// readElementContent reads the content of the current element up to its
// end tag. Inline child elements are re-serialized as markup.
func readElementContent(dec *xml.Decoder, b *strings.Builder) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
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
				fmt.Fprintf(b, ` %s="%s"`, attr.Name.Local, escape(attr.Value))
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
	return nil
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

// Export writes an XLIFF 1.2 document. A target element is emitted only
// for keys present in translations.
func (c *Codec) Export(entries []entry.Entry, translations map[string]string) ([]byte, error) {
	sourceLang := c.SourceLanguage
	if sourceLang == "" {
		sourceLang = "en"
	}
	original := c.Original
	if original == "" {
		original = "locflow"
	}

	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	fmt.Fprintf(&b, "<xliff xmlns=\"%s\" version=\"1.2\">\n", Namespace)
	fmt.Fprintf(&b, "  <file source-language=\"%s\"", escape(sourceLang))
	if c.TargetLanguage != "" {
		fmt.Fprintf(&b, " target-language=\"%s\"", escape(c.TargetLanguage))
	}
	fmt.Fprintf(&b, " datatype=\"plaintext\" original=\"%s\">\n", escape(original))
	b.WriteString("    <body>\n")

	for _, e := range entry.SortByOrder(entries) {
		fmt.Fprintf(&b, "      <trans-unit id=\"%s\"", escape(e.Key))
		if e.MaxLength > 0 {
			fmt.Fprintf(&b, " maxwidth=\"%d\"", e.MaxLength)
		}
		b.WriteString(">\n")
		fmt.Fprintf(&b, "        <source>%s</source>\n", escape(e.SourceText))
		if t, ok := translations[e.Key]; ok {
			fmt.Fprintf(&b, "        <target>%s</target>\n", escape(t))
		}
		if e.Context != "" {
			fmt.Fprintf(&b, "        <note>%s</note>\n", escape(e.Context))
		}
		b.WriteString("      </trans-unit>\n")
	}

	b.WriteString("    </body>\n")
	b.WriteString("  </file>\n")
	b.WriteString("</xliff>\n")
	return []byte(b.String()), nil
}

// escape returns s with XML special characters escaped, safe for both
// element content and attribute values.
func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s)) // bytes.Buffer writes never fail
	return buf.String()
}
