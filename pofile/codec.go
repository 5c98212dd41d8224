package pofile

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"github.com/leonelquinteros/gotext"

	"github.com/minios-linux/locflow/entry"
	"github.com/minios-linux/locflow/plural"
)

// formPrefix names numbered msgstr forms in Entry.PluralForms ("form0", "form1", ...).
const formPrefix = "form"

// Codec converts PO files to entries and back.
//
// Keys are msgid, or msgctxt + EOT (\x04) + msgid when a context is
// present, matching gettext's own lookup key.
type Codec struct {
	// Language, when set, is written to the Language and Plural-Forms headers.
	Language string
}

// New returns a PO codec without a target language.
func New() entry.Codec { return &Codec{} }

// Key builds the entry key for a message.
func Key(msgctxt, msgid string) string {
	if msgctxt == "" {
		return msgid
	}
	return msgctxt + gotext.EotSeparator + msgid
}

// SplitKey is the inverse of Key.
func SplitKey(key string) (msgctxt, msgid string) {
	if ctx, id, ok := strings.Cut(key, gotext.EotSeparator); ok {
		return ctx, id
	}
	return "", key
}

// Parse converts PO content into entries. The header and obsolete messages
// are skipped. Context is msgctxt followed by the extracted comments, one
// per line.
func (c *Codec) Parse(content []byte) ([]entry.Entry, error) {
	f, err := Parse(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	var list entry.List
	for _, pe := range f.Entries {
		if pe.Obsolete {
			continue
		}
		var contextParts []string
		if pe.MsgCtxt != "" {
			contextParts = append(contextParts, pe.MsgCtxt)
		}
		if len(pe.ExtractedComments) > 0 {
			contextParts = append(contextParts, strings.Join(pe.ExtractedComments, "\n"))
		}

		e := entry.Entry{
			Key:        Key(pe.MsgCtxt, pe.MsgID),
			SourceText: pe.MsgID,
			Context:    strings.Join(contextParts, "\n"),
			Flags:      pe.Flags,
		}
		if pe.MsgIDPlural != "" {
			e.HasPlurals = true
			e.PluralForms = map[string]string{
				plural.One:   pe.MsgID,
				plural.Other: pe.MsgIDPlural,
			}
			for idx, text := range pe.MsgStrPlural {
				if text != "" {
					e.PluralForms[formPrefix+strconv.Itoa(idx)] = text
				}
			}
		}
		list.Add(e)
	}
	return list.Entries(), nil
}

// Export writes entries as a PO document. msgid is always the entry's
// source text; the key only contributes msgctxt.
func (c *Codec) Export(entries []entry.Entry, translations map[string]string) ([]byte, error) {
	f := NewFile()
	setHeader(f, c.Language)

	for _, e := range entry.SortByOrder(entries) {
		msgctxt, _ := SplitKey(e.Key)
		if e.SourceText == "" && msgctxt == "" {
			return nil, &entry.ExportError{Format: Format, Key: e.Key, Err: errors.New("empty source text would collide with the header")}
		}

		pe := &Entry{
			MsgCtxt:      msgctxt,
			MsgID:        e.SourceText,
			Flags:        e.Flags,
			MsgStrPlural: make(map[int]string),
		}
		if comment := commentPart(e.Context, msgctxt); comment != "" {
			pe.ExtractedComments = strings.Split(comment, "\n")
		}

		if e.HasPlurals {
			pe.MsgIDPlural = e.PluralForms[plural.Other]
			if pe.MsgIDPlural == "" {
				pe.MsgIDPlural = e.SourceText
			}
			pe.MsgStrPlural = pluralStrings(e, translations)
		} else {
			pe.MsgStr = translations[e.Key]
		}
		f.Entries = append(f.Entries, pe)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, &entry.ExportError{Format: Format, Err: err}
	}
	return buf.Bytes(), nil
}

// commentPart strips the msgctxt line that Parse prepends to the context.
func commentPart(context, msgctxt string) string {
	if msgctxt == "" {
		return context
	}
	if context == msgctxt {
		return ""
	}
	if rest, ok := strings.CutPrefix(context, msgctxt+"\n"); ok {
		return rest
	}
	return context
}

// pluralStrings assigns msgstr indices for a plural entry.
//
// Without translations, numbered forms already on the entry are restored.
// With translations, numbered "formN" keys map to index N; failing that,
// two or more CLDR categories are laid out in CLDR order; otherwise the
// single translation for the key goes to index 0. Indices 0 and 1 are
// always present.
func pluralStrings(e entry.Entry, translations map[string]string) map[int]string {
	out := make(map[int]string)

	if translations == nil {
		for form, text := range e.PluralForms {
			if idx, ok := formIndex(form); ok {
				out[idx] = text
			}
		}
	} else {
		for key, text := range translations {
			form, ok := strings.CutPrefix(key, e.Key+"_")
			if !ok {
				continue
			}
			if idx, ok := formIndex(form); ok {
				out[idx] = text
			}
		}
		if len(out) == 0 {
			var cats []string
			for _, cat := range []string{plural.Zero, plural.One, plural.Two, plural.Few, plural.Many, plural.Other} {
				if _, ok := translations[entry.PluralKey(e.Key, cat)]; ok {
					cats = append(cats, cat)
				}
			}
			if len(cats) >= 2 {
				for i, cat := range cats {
					out[i] = translations[entry.PluralKey(e.Key, cat)]
				}
			} else {
				out[0] = translations[e.Key]
			}
		}
	}

	for _, idx := range []int{0, 1} {
		if _, ok := out[idx]; !ok {
			out[idx] = ""
		}
	}
	return out
}

// formIndex parses "formN".
func formIndex(form string) (int, bool) {
	digits, ok := strings.CutPrefix(form, formPrefix)
	if !ok || digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// setHeader fills the metadata entry written at the top of exports.
func setHeader(f *File, language string) {
	f.SetHeaderField("MIME-Version", "1.0")
	f.SetHeaderField("Content-Type", "text/plain; charset=UTF-8")
	f.SetHeaderField("Content-Transfer-Encoding", "8bit")
	if language != "" {
		f.SetHeaderField("Language", language)
		f.SetHeaderField("Plural-Forms", PluralFormsForLang(language))
	}
}
