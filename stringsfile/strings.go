// Package stringsfile implements the Apple .strings resource codec.
//
// Format: one "key" = "value"; pair per line. A /* block */ or // line
// comment preceding a pair becomes that entry's context and is consumed by
// it. Values use backslash escapes (\" \\ \n \t \r) and \UXXXX Unicode
// escapes.
//
//	/* Title of the main window */
//	"window.title" = "Main";
package stringsfile

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/minios-linux/locflow/entry"
)

// Format is the registry identifier of this codec.
const Format = "strings"

var entryPattern = regexp.MustCompile(`^"((?:[^"\\]|\\.)*)"\s*=\s*"((?:[^"\\]|\\.)*)"\s*;`)

// Codec reads and writes .strings files.
type Codec struct{}

// New returns a .strings codec.
func New() entry.Codec { return Codec{} }

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Parse scans .strings content line by line.
func (Codec) Parse(content []byte) ([]entry.Entry, error) {
	text := strings.TrimPrefix(string(content), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	var list entry.List
	comment := ""
	var lineComments []string

	for i := 0; i < len(lines); i++ {
		lineNo := i + 1
		rest := strings.TrimSpace(lines[i])

		for rest != "" {
			switch {
			case strings.HasPrefix(rest, "/*"):
				body := rest[2:]
				start := lineNo
				for !strings.Contains(body, "*/") {
					if i+1 >= len(lines) {
						return nil, &entry.ParseError{Format: Format, Line: start, Err: errors.New("unterminated comment")}
					}
					i++
					lineNo = i + 1
					body += "\n" + lines[i]
				}
				end := strings.Index(body, "*/")
				comment = strings.TrimSpace(body[:end])
				lineComments = nil
				rest = strings.TrimSpace(body[end+2:])

			case strings.HasPrefix(rest, "//"):
				lineComments = append(lineComments, strings.TrimSpace(rest[2:]))
				comment = strings.Join(lineComments, "\n")
				rest = ""

			default:
				m := entryPattern.FindStringSubmatch(rest)
				if m == nil {
					return nil, &entry.ParseError{Format: Format, Line: lineNo, Err: fmt.Errorf("unrecognized line: %s", rest)}
				}
				key, err := unescape(m[1])
				if err != nil {
					return nil, &entry.ParseError{Format: Format, Line: lineNo, Err: fmt.Errorf("key: %w", err)}
				}
				value, err := unescape(m[2])
				if err != nil {
					return nil, &entry.ParseError{Format: Format, Line: lineNo, Err: fmt.Errorf("value: %w", err)}
				}
				list.Add(entry.Entry{Key: key, SourceText: value, Context: comment})
				comment = ""
				lineComments = nil
				rest = strings.TrimSpace(rest[len(m[0]):])
				if rest != "" && !strings.HasPrefix(rest, "/*") && !strings.HasPrefix(rest, "//") {
					return nil, &entry.ParseError{Format: Format, Line: lineNo, Err: fmt.Errorf("unexpected text after entry: %s", rest)}
				}
				if strings.HasPrefix(rest, "//") {
					rest = "" // trailing remark, not a context
				}
			}
		}
	}
	return list.Entries(), nil
}

// unescape resolves backslash escapes in a single left-to-right pass.
// Unknown escapes are kept verbatim.
func unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case '"':
			b.WriteByte('"')
		case '\'':
			b.WriteByte('\'')
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'U', 'u':
			r, n, err := hexRune(s[i+1:])
			if err != nil {
				return "", err
			}
			i += n
			if utf16.IsSurrogate(r) {
				if lo, m, ok := lowSurrogate(s[i+1:]); ok {
					r = utf16.DecodeRune(r, lo)
					i += m
				}
			}
			b.WriteRune(r)
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String(), nil
}

// hexRune reads the four hex digits of a \U escape.
func hexRune(s string) (rune, int, error) {
	if len(s) < 4 {
		return 0, 0, fmt.Errorf("short unicode escape %q", s)
	}
	v, err := strconv.ParseUint(s[:4], 16, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid unicode escape %q", s[:4])
	}
	return rune(v), 4, nil
}

// lowSurrogate reads a following \UXXXX escape holding the low half of a
// surrogate pair.
func lowSurrogate(s string) (rune, int, bool) {
	if len(s) < 6 || s[0] != '\\' || (s[1] != 'U' && s[1] != 'u') {
		return 0, 0, false
	}
	r, _, err := hexRune(s[2:])
	if err != nil || r < 0xDC00 || r > 0xDFFF {
		return 0, 0, false
	}
	return r, 6, true
}

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

var escaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\t", `\t`,
	"\r", `\r`,
)

// Export writes one pair per entry, each preceded by its context as a
// block comment and separated by blank lines. A context containing "*/"
// is written as line comments instead.
func (Codec) Export(entries []entry.Entry, translations map[string]string) ([]byte, error) {
	var b strings.Builder
	for i, e := range entry.SortByOrder(entries) {
		text := e.SourceText
		if t, ok := translations[e.Key]; ok {
			text = t
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		switch {
		case strings.Contains(e.Context, "*/"):
			for _, line := range strings.Split(e.Context, "\n") {
				fmt.Fprintf(&b, "// %s\n", line)
			}
		case e.Context != "":
			fmt.Fprintf(&b, "/* %s */\n", e.Context)
		}
		fmt.Fprintf(&b, "\"%s\" = \"%s\";\n", escaper.Replace(e.Key), escaper.Replace(text))
	}
	return []byte(b.String()), nil
}
