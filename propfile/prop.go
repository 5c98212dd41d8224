// Package propfile implements the Java .properties codec.
//
// Format: key=value pairs, one per logical line. The separator may be '=',
// ':' or whitespace. A trailing backslash continues the value on the next
// line. Lines starting with '#' or '!' are comments; the comment block
// directly above a pair becomes that entry's context.
//
//	# Title of the main window
//	window.title=Main
//	greeting=Hello, \
//	    world
//
// Keys and values use backslash escapes (\t \n \r \f \\ \= \: \# \! and
// \uXXXX).
package propfile

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/minios-linux/locflow/entry"
)

// Format is the registry identifier of this codec.
const Format = "properties"

// Codec reads and writes .properties files.
type Codec struct{}

// New returns a .properties codec.
func New() entry.Codec { return Codec{} }

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Parse converts .properties content into entries in document order. A
// repeated key keeps its first position and takes the last value.
func (Codec) Parse(content []byte) ([]entry.Entry, error) {
	text := strings.TrimPrefix(string(content), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	var list entry.List
	var comments []string

	for i := 0; i < len(lines); i++ {
		lineNo := i + 1
		trimmed := strings.TrimLeft(lines[i], " \t\f")

		switch {
		case trimmed == "":
			comments = nil
			continue
		case trimmed[0] == '#' || trimmed[0] == '!':
			comments = append(comments, strings.TrimSpace(trimmed[1:]))
			continue
		}

		logical := trimmed
		for continues(logical) {
			logical = logical[:len(logical)-1]
			if i+1 >= len(lines) {
				break
			}
			i++
			logical += strings.TrimLeft(lines[i], " \t\f")
		}

		rawKey, rawValue := splitKeyValue(logical)
		key, err := unescape(rawKey)
		if err != nil {
			return nil, &entry.ParseError{Format: Format, Line: lineNo, Err: err}
		}
		value, err := unescape(rawValue)
		if err != nil {
			return nil, &entry.ParseError{Format: Format, Line: lineNo, Err: err}
		}

		list.Add(entry.Entry{
			Key:        key,
			SourceText: value,
			Context:    strings.Join(comments, "\n"),
		})
		comments = nil
	}
	return list.Entries(), nil
}

// continues reports whether s ends with an odd number of backslashes.
func continues(s string) bool {
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

// splitKeyValue splits a logical line at the first unescaped '=', ':' or
// whitespace. Whitespace around the separator is dropped.
func splitKeyValue(s string) (key, value string) {
	end := len(s)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' {
			i++
			continue
		}
		if c == '=' || c == ':' || c == ' ' || c == '\t' || c == '\f' {
			end = i
			break
		}
	}
	key = s[:end]
	rest := strings.TrimLeft(s[end:], " \t\f")
	if rest != "" && (rest[0] == '=' || rest[0] == ':') {
		rest = strings.TrimLeft(rest[1:], " \t\f")
	}
	return key, rest
}

func unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	var pending []uint16
	flush := func() {
		if len(pending) > 0 {
			b.WriteString(string(utf16.Decode(pending)))
			pending = nil
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			flush()
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			break
		}
		i++
		if s[i] == 'u' {
			if i+4 >= len(s) {
				return "", errors.New(`truncated \u escape`)
			}
			n, err := strconv.ParseUint(s[i+1:i+5], 16, 16)
			if err != nil {
				return "", fmt.Errorf(`invalid \u escape %q`, s[i+1:i+5])
			}
			pending = append(pending, uint16(n))
			i += 4
			continue
		}
		flush()
		switch s[i] {
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'f':
			b.WriteByte('\f')
		default:
			b.WriteByte(s[i])
		}
	}
	flush()
	return b.String(), nil
}

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

// Export writes entries as key=value lines in entry order. Translations
// replace source text where present. Plural entries are written under their
// source text; the format has no plural syntax.
func (Codec) Export(entries []entry.Entry, translations map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	for i, e := range entry.SortByOrder(entries) {
		if e.Key == "" {
			return nil, &entry.ExportError{Format: Format, Err: errors.New("empty key")}
		}
		if i > 0 && e.Context != "" {
			buf.WriteByte('\n')
		}
		if e.Context != "" {
			for _, l := range strings.Split(e.Context, "\n") {
				buf.WriteString("# ")
				buf.WriteString(l)
				buf.WriteByte('\n')
			}
		}
		value := e.SourceText
		if t, ok := translations[e.Key]; ok {
			value = t
		}
		buf.WriteString(escape(e.Key, true))
		buf.WriteByte('=')
		buf.WriteString(escape(value, false))
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// escape encodes s for a key or value. Leading spaces are always escaped;
// keys also escape separators and inner spaces.
func escape(s string, isKey bool) string {
	var b strings.Builder
	for i, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\f':
			b.WriteString(`\f`)
		case '=', ':':
			if isKey {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		case '#', '!':
			if i == 0 {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		case ' ':
			if isKey || i == 0 {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
