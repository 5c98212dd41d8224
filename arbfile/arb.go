// Package arbfile implements the Flutter ARB (Application Resource Bundle)
// codec.
//
// ARB files are flat JSON objects:
//
//   - Keys starting with "@@" (e.g. "@@locale") are file attributes and are
//     not entries.
//   - "@key" holds metadata for "key"; its "description" becomes the
//     entry's context.
//   - All other string values are entries. ICU message syntax inside
//     values is kept verbatim.
//
// Export writes keys in entry order, each followed by its metadata object
// when the entry has a context.
package arbfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/minios-linux/locflow/entry"
)

// Format is the registry identifier of this codec.
const Format = "arb"

// Codec reads and writes ARB files.
type Codec struct {
	// Locale, when set, is written as "@@locale".
	Locale string
}

// New returns an ARB codec without a locale attribute.
func New() entry.Codec { return &Codec{} }

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Parse converts an ARB document into entries in document order.
// Non-string values are skipped.
func (c *Codec) Parse(content []byte) ([]entry.Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(content))

	tok, err := dec.Token()
	if err != nil {
		return nil, syntaxError(content, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, &entry.ParseError{Format: Format, Line: 1,
			Err: fmt.Errorf("%w: ARB root must be an object", entry.ErrUnexpectedRoot)}
	}

	var list entry.List
	descriptions := make(map[string]string)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, syntaxError(content, err)
		}
		key := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, syntaxError(content, err)
		}

		switch {
		case strings.HasPrefix(key, "@@"):
			continue
		case strings.HasPrefix(key, "@"):
			if desc := gjson.GetBytes(raw, "description"); desc.Type == gjson.String {
				descriptions[key[1:]] = desc.String()
			}
			continue
		}

		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			continue
		}
		list.Add(entry.Entry{Key: key, SourceText: value})
	}

	if _, err := dec.Token(); err != nil {
		return nil, syntaxError(content, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &entry.ParseError{Format: Format, Line: lineAt(content, dec.InputOffset()),
			Err: errors.New("unexpected data after the top-level object")}
	}

	entries := list.Entries()
	for i := range entries {
		entries[i].Context = descriptions[entries[i].Key]
	}
	return entries, nil
}

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

// Export writes an ARB document. Translations replace source text where
// present; plural entries are written as a single message.
func (c *Codec) Export(entries []entry.Entry, translations map[string]string) ([]byte, error) {
	var members []string
	if c.Locale != "" {
		members = append(members, fmt.Sprintf("  %s: %s", jsonString("@@locale"), jsonString(c.Locale)))
	}

	for _, e := range entry.SortByOrder(entries) {
		if e.Key == "" || strings.HasPrefix(e.Key, "@") {
			return nil, &entry.ExportError{Format: Format, Key: e.Key, Err: errors.New("key collides with ARB metadata")}
		}
		text := e.SourceText
		if t, ok := translations[e.Key]; ok {
			text = t
		}
		members = append(members, fmt.Sprintf("  %s: %s", jsonString(e.Key), jsonString(text)))
		if e.Context != "" {
			members = append(members, fmt.Sprintf("  %s: {\n    %s: %s\n  }",
				jsonString("@"+e.Key), jsonString("description"), jsonString(e.Context)))
		}
	}

	if len(members) == 0 {
		return []byte("{}\n"), nil
	}
	return []byte("{\n" + strings.Join(members, ",\n") + "\n}\n"), nil
}

func jsonString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}
