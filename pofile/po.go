// Package pofile implements reading and writing of PO/POT files
// following the GNU gettext format specification, and the PO resource
// codec built on top of them.
package pofile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/minios-linux/locflow/entry"
)

// Format is the registry identifier of the PO codec.
const Format = "po"

// Entry represents a single translatable message in a PO file.
type Entry struct {
	// TranslatorComments are lines starting with "# " (translator comments).
	TranslatorComments []string
	// ExtractedComments are lines starting with "#." (extracted/automatic comments).
	ExtractedComments []string
	// References are source code locations, lines starting with "#:".
	References []string
	// Flags are format flags, lines starting with "#,".
	Flags []string
	// PreviousMsgID stores the previous msgid for fuzzy entries, lines starting with "#|".
	PreviousMsgID string

	// MsgCtxt is the message context (msgctxt).
	MsgCtxt string
	// MsgID is the untranslated string.
	MsgID string
	// MsgIDPlural is the untranslated plural string.
	MsgIDPlural string
	// MsgStr is the translated string (singular or the only form).
	MsgStr string
	// MsgStrPlural maps plural form index to translated string.
	MsgStrPlural map[int]string

	// Obsolete marks entries prefixed with "#~".
	Obsolete bool
}

// File represents a parsed PO/POT file.
type File struct {
	// Header is the metadata entry (msgid "").
	Header *Entry
	// Entries are the translatable message entries, obsolete ones included.
	Entries []*Entry
}

// NewFile creates a new empty PO file.
func NewFile() *File {
	return &File{
		Header:  &Entry{},
		Entries: make([]*Entry, 0),
	}
}

// SetHeaderField sets a header field value, replacing an existing field
// of the same name (case-insensitive) or appending a new one.
func (f *File) SetHeaderField(name, value string) {
	if f.Header == nil {
		f.Header = &Entry{}
	}

	lines := strings.Split(f.Header.MsgStr, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, ":"); idx > 0 {
			if strings.EqualFold(strings.TrimSpace(line[:idx]), name) {
				lines[i] = name + ": " + value
				f.Header.MsgStr = strings.Join(lines, "\n")
				return
			}
		}
	}
	// Insert before trailing empty line
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = append(lines[:len(lines)-1], name+": "+value, "")
	} else {
		lines = append(lines, name+": "+value, "")
	}
	f.Header.MsgStr = strings.Join(lines, "\n")
}

// ---------------------------------------------------------------------------
// Reading
// ---------------------------------------------------------------------------

// field names tracked for continuation lines.
const (
	fieldNone        = ""
	fieldMsgCtxt     = "msgctxt"
	fieldMsgID       = "msgid"
	fieldMsgIDPlural = "msgid_plural"
	fieldMsgStr      = "msgstr"
)

// parser holds the state of one Parse call.
type parser struct {
	file      *File
	current   *Entry
	sawMsgID  bool
	sawFields bool
	lastField string
	lastIndex int
	line      int
}

func (p *parser) fail(format string, args ...any) error {
	return &entry.ParseError{Format: Format, Line: p.line, Err: fmt.Errorf(format, args...)}
}

func (p *parser) entry() *Entry {
	if p.current == nil {
		p.current = &Entry{MsgStrPlural: make(map[int]string)}
	}
	return p.current
}

func (p *parser) flush() error {
	defer func() {
		p.current = nil
		p.sawMsgID = false
		p.sawFields = false
		p.lastField = fieldNone
	}()
	e := p.current
	if e == nil {
		return nil
	}
	if !p.sawMsgID {
		if p.sawFields {
			return p.fail("entry has no msgid")
		}
		return nil // stray comment block
	}
	if e.MsgID == "" && e.MsgCtxt == "" && !e.Obsolete {
		p.file.Header = e
		return nil
	}
	p.file.Entries = append(p.file.Entries, e)
	return nil
}

// Parse reads a PO/POT file from a reader. Malformed input is reported as
// an *entry.ParseError carrying the offending line number.
func Parse(r io.Reader) (*File, error) {
	p := &parser{file: NewFile()}
	p.file.Header = nil
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		p.line++
		line := strings.TrimRight(scanner.Text(), "\r")
		if p.line == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		line = strings.TrimLeft(line, " \t")

		// Empty line separates entries
		if strings.TrimSpace(line) == "" {
			if err := p.flush(); err != nil {
				return nil, err
			}
			continue
		}

		obsolete := false
		if strings.HasPrefix(line, "#~") {
			obsolete = true
			line = strings.TrimLeft(line[2:], " \t")
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "|") {
				line = "#" + line
			}
		}

		// A comment after message fields starts a new entry.
		if strings.HasPrefix(line, "#") && p.sawMsgID && p.lastField != fieldNone {
			if err := p.flush(); err != nil {
				return nil, err
			}
		}

		cur := p.entry()
		if obsolete {
			cur.Obsolete = true
		}

		if strings.HasPrefix(line, "#") {
			p.comment(cur, line)
			continue
		}

		if strings.HasPrefix(line, `"`) {
			if p.lastField == fieldNone {
				return nil, p.fail("continuation line without a preceding field")
			}
			val, err := unquote(line)
			if err != nil {
				return nil, p.fail("%v", err)
			}
			p.appendValue(cur, val)
			continue
		}

		keyword, rest := line, ""
		if i := strings.IndexAny(line, " \t"); i >= 0 {
			keyword, rest = line[:i], line[i+1:]
		}
		index := -1
		if strings.HasPrefix(keyword, "msgstr[") {
			n, err := parseIndex(keyword)
			if err != nil {
				return nil, p.fail("%v", err)
			}
			index = n
			keyword = fieldMsgStr
		}
		switch keyword {
		case fieldMsgCtxt, fieldMsgID, fieldMsgIDPlural, fieldMsgStr:
		default:
			return nil, p.fail("unexpected line: %s", line)
		}

		// A new msgctxt or msgid after a complete message starts a new entry.
		if (keyword == fieldMsgCtxt || keyword == fieldMsgID) && p.lastField == fieldMsgStr {
			if err := p.flush(); err != nil {
				return nil, err
			}
			cur = p.entry()
			cur.Obsolete = obsolete
		}

		val, err := unquote(rest)
		if err != nil {
			return nil, p.fail("%s: %v", keyword, err)
		}
		p.sawFields = true
		p.lastField = keyword
		p.lastIndex = index
		switch keyword {
		case fieldMsgCtxt:
			cur.MsgCtxt = val
		case fieldMsgID:
			cur.MsgID = val
			p.sawMsgID = true
		case fieldMsgIDPlural:
			cur.MsgIDPlural = val
		case fieldMsgStr:
			if index >= 0 {
				cur.MsgStrPlural[index] = val
			} else {
				cur.MsgStr = val
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading PO file: %w", err)
	}

	// Flush last entry
	if err := p.flush(); err != nil {
		return nil, err
	}
	if p.file.Header == nil {
		p.file.Header = &Entry{}
	}
	return p.file, nil
}

func (p *parser) comment(cur *Entry, line string) {
	switch {
	case strings.HasPrefix(line, "#:"):
		cur.References = append(cur.References, strings.TrimSpace(line[2:]))
	case strings.HasPrefix(line, "#,"):
		for _, flag := range strings.Split(line[2:], ",") {
			if flag = strings.TrimSpace(flag); flag != "" {
				cur.Flags = append(cur.Flags, flag)
			}
		}
	case strings.HasPrefix(line, "#."):
		cur.ExtractedComments = append(cur.ExtractedComments, strings.TrimPrefix(line[2:], " "))
	case strings.HasPrefix(line, "#|"):
		prev := strings.TrimSpace(line[2:])
		if rest, ok := strings.CutPrefix(prev, "msgid "); ok {
			cur.PreviousMsgID, _ = unquote(rest)
		}
	default:
		cur.TranslatorComments = append(cur.TranslatorComments, strings.TrimPrefix(line[1:], " "))
	}
}

func (p *parser) appendValue(cur *Entry, val string) {
	switch p.lastField {
	case fieldMsgCtxt:
		cur.MsgCtxt += val
	case fieldMsgID:
		cur.MsgID += val
	case fieldMsgIDPlural:
		cur.MsgIDPlural += val
	case fieldMsgStr:
		if p.lastIndex >= 0 {
			cur.MsgStrPlural[p.lastIndex] += val
		} else {
			cur.MsgStr += val
		}
	}
}

// parseIndex extracts N from "msgstr[N]".
func parseIndex(keyword string) (int, error) {
	inner, ok := strings.CutPrefix(keyword, "msgstr[")
	if ok {
		inner, ok = strings.CutSuffix(inner, "]")
	}
	if !ok {
		return 0, fmt.Errorf("invalid msgstr index: %s", keyword)
	}
	n, err := strconv.Atoi(inner)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid msgstr index: %s", keyword)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Writing
// ---------------------------------------------------------------------------

// Write writes the PO file to a writer.
func (f *File) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)

	// Write header
	if f.Header != nil {
		writeEntry(bw, f.Header)
	}

	// Write entries
	for i, e := range f.Entries {
		if f.Header != nil || i > 0 {
			fmt.Fprintln(bw)
		}
		writeEntry(bw, e)
	}

	return bw.Flush()
}

func writeEntry(w *bufio.Writer, e *Entry) {
	prefix := ""
	if e.Obsolete {
		prefix = "#~ "
	}

	// Translator comments
	for _, c := range e.TranslatorComments {
		fmt.Fprintf(w, "# %s\n", c)
	}

	// Extracted comments
	for _, c := range e.ExtractedComments {
		fmt.Fprintf(w, "#. %s\n", c)
	}

	// References
	for _, ref := range e.References {
		fmt.Fprintf(w, "#: %s\n", ref)
	}

	// Flags
	if len(e.Flags) > 0 {
		fmt.Fprintf(w, "#, %s\n", strings.Join(e.Flags, ", "))
	}

	// Previous msgid
	if e.PreviousMsgID != "" {
		fmt.Fprintf(w, "#| msgid %s\n", quote(e.PreviousMsgID))
	}

	if e.MsgCtxt != "" {
		writeQuotedField(w, prefix+"msgctxt", e.MsgCtxt)
	}

	writeQuotedField(w, prefix+"msgid", e.MsgID)

	if e.MsgIDPlural != "" {
		writeQuotedField(w, prefix+"msgid_plural", e.MsgIDPlural)
	}

	// msgstr / msgstr[N]
	if e.MsgIDPlural != "" && len(e.MsgStrPlural) > 0 {
		indices := make([]int, 0, len(e.MsgStrPlural))
		for idx := range e.MsgStrPlural {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		for _, idx := range indices {
			writeQuotedField(w, fmt.Sprintf("%smsgstr[%d]", prefix, idx), e.MsgStrPlural[idx])
		}
	} else {
		writeQuotedField(w, prefix+"msgstr", e.MsgStr)
	}
}

// writeQuotedField writes a PO field with proper multiline quoting.
func writeQuotedField(w *bufio.Writer, field, value string) {
	if !strings.Contains(value, "\n") {
		fmt.Fprintf(w, "%s %s\n", field, quote(value))
		return
	}

	// Multiline: use empty string on first line
	fmt.Fprintf(w, "%s \"\"\n", field)
	parts := strings.Split(value, "\n")
	for i, part := range parts {
		if i < len(parts)-1 {
			fmt.Fprintf(w, "%s\n", quote(part+"\n"))
		} else if part != "" {
			fmt.Fprintf(w, "%s\n", quote(part))
		}
	}
}

// quote produces a PO-style quoted string.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	s = strings.ReplaceAll(s, "\t", `\t`)
	return `"` + s + `"`
}

var errUnterminated = errors.New("unterminated string")

// unquote removes PO-style quoting from a string.
func unquote(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		if strings.HasPrefix(s, `"`) {
			return "", errUnterminated
		}
		return "", fmt.Errorf("expected quoted string, got %q", s)
	}
	s = s[1 : len(s)-1]

	var result strings.Builder
	result.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' {
			return "", fmt.Errorf("unescaped quote in string")
		}
		if c != '\\' {
			result.WriteByte(c)
			continue
		}
		if i+1 == len(s) {
			return "", errUnterminated
		}
		i++
		switch s[i] {
		case 'n':
			result.WriteByte('\n')
		case 't':
			result.WriteByte('\t')
		case 'r':
			result.WriteByte('\r')
		case '\\':
			result.WriteByte('\\')
		case '"':
			result.WriteByte('"')
		default:
			result.WriteByte('\\')
			result.WriteByte(s[i])
		}
	}
	return result.String(), nil
}

// PluralFormsForLang returns the standard Plural-Forms header for a language code.
func PluralFormsForLang(lang string) string {
	// Normalize to base language
	base := lang
	if idx := strings.IndexAny(lang, "_-"); idx > 0 {
		base = lang[:idx]
	}

	switch base {
	case "ja", "ko", "zh", "vi", "th", "id", "ms":
		return "nplurals=1; plural=0;"
	case "fr", "pt":
		return "nplurals=2; plural=(n > 1);"
	case "en", "de", "nl", "sv", "da", "no", "nb", "nn", "fi", "es", "it", "el", "he", "hu", "tr", "bg", "hi", "ur":
		return "nplurals=2; plural=(n != 1);"
	case "ru", "uk", "be", "hr", "sr", "bs":
		return "nplurals=3; plural=(n%10==1 && n%100!=11 ? 0 : n%10>=2 && n%10<=4 && (n%100<10 || n%100>=20) ? 1 : 2);"
	case "pl":
		return "nplurals=3; plural=(n==1 ? 0 : n%10>=2 && n%10<=4 && (n%100<10 || n%100>=20) ? 1 : 2);"
	case "cs", "sk":
		return "nplurals=3; plural=(n==1 ? 0 : n>=2 && n<=4 ? 1 : 2);"
	case "ro":
		return "nplurals=3; plural=(n==1 ? 0 : (n==0 || (n%100 > 0 && n%100 < 20)) ? 1 : 2);"
	case "lt":
		return "nplurals=3; plural=(n%10==1 && n%100!=11 ? 0 : n%10>=2 && (n%100<10 || n%100>=20) ? 1 : 2);"
	case "lv":
		return "nplurals=3; plural=(n%10==1 && n%100!=11 ? 0 : n != 0 ? 1 : 2);"
	case "ar":
		return "nplurals=6; plural=(n==0 ? 0 : n==1 ? 1 : n==2 ? 2 : n%100>=3 && n%100<=10 ? 3 : n%100>=11 ? 4 : 5);"
	default:
		return "nplurals=2; plural=(n != 1);"
	}
}
