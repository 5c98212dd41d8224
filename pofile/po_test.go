package pofile

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/minios-linux/locflow/entry"
)

const sampleFile = `# SOME TITLE
msgid ""
msgstr ""
"Project-Id-Version: locflow 1.0\n"
"Language: ru\n"

# translator note
#. extracted comment
#: app.go:12
#: app.go:40
msgid "hello"
msgstr "privet"

#, fuzzy, c-format
#| msgid "old count"
msgctxt "files"
msgid "count"
msgid_plural "counts"
msgstr[0] "odin"
msgstr[1] "mnogo"

msgid ""
"multi\n"
"line"
msgstr ""

#~ msgid "gone"
#~ msgstr "ushlo"
`

func TestParseFields(t *testing.T) {
	f, err := Parse(strings.NewReader(sampleFile))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if !strings.Contains(f.Header.MsgStr, "Language: ru\n") {
		t.Fatalf("header = %q", f.Header.MsgStr)
	}
	if !reflect.DeepEqual(f.Header.TranslatorComments, []string{"SOME TITLE"}) {
		t.Fatalf("header comments = %q", f.Header.TranslatorComments)
	}
	if len(f.Entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(f.Entries))
	}

	hello := f.Entries[0]
	want := &Entry{
		TranslatorComments: []string{"translator note"},
		ExtractedComments:  []string{"extracted comment"},
		References:         []string{"app.go:12", "app.go:40"},
		MsgID:              "hello",
		MsgStr:             "privet",
		MsgStrPlural:       map[int]string{},
	}
	if !reflect.DeepEqual(hello, want) {
		t.Fatalf("hello =\n%#v\nwant\n%#v", hello, want)
	}

	count := f.Entries[1]
	if count.MsgCtxt != "files" || count.PreviousMsgID != "old count" || count.MsgIDPlural != "counts" {
		t.Fatalf("count = %#v", count)
	}
	if !reflect.DeepEqual(count.Flags, []string{"fuzzy", "c-format"}) {
		t.Fatalf("flags = %q", count.Flags)
	}
	if !reflect.DeepEqual(count.MsgStrPlural, map[int]string{0: "odin", 1: "mnogo"}) {
		t.Fatalf("plural strings = %v", count.MsgStrPlural)
	}

	if got := f.Entries[2].MsgID; got != "multi\nline" {
		t.Fatalf("multi-line msgid = %q", got)
	}
	if obs := f.Entries[3]; !obs.Obsolete || obs.MsgID != "gone" || obs.MsgStr != "ushlo" {
		t.Fatalf("obsolete entry = %#v", obs)
	}
}

func TestWriteLayout(t *testing.T) {
	f := NewFile()
	f.SetHeaderField("Language", "de")
	f.Entries = []*Entry{
		{ExtractedComments: []string{"note"}, Flags: []string{"fuzzy"}, MsgCtxt: "menu", MsgID: "Open", MsgStr: "Öffnen"},
		{MsgID: "%d file", MsgIDPlural: "%d files", MsgStrPlural: map[int]string{1: "%d Dateien", 0: "%d Datei"}},
		{MsgID: "two\nlines", MsgStr: ""},
		{MsgID: "old", MsgStr: "alt", Obsolete: true},
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	want := `msgid ""
msgstr ""
"Language: de\n"

#. note
#, fuzzy
msgctxt "menu"
msgid "Open"
msgstr "Öffnen"

msgid "%d file"
msgid_plural "%d files"
msgstr[0] "%d Datei"
msgstr[1] "%d Dateien"

msgid ""
"two\n"
"lines"
msgstr ""

#~ msgid "old"
#~ msgstr "alt"
`
	if buf.String() != want {
		t.Fatalf("Write =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestWriteParseRoundTrip(t *testing.T) {
	f, err := Parse(strings.NewReader(sampleFile))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	round, err := Parse(&buf)
	if err != nil {
		t.Fatalf("re-Parse error: %v", err)
	}
	if !reflect.DeepEqual(f, round) {
		t.Fatalf("round trip changed the file:\n%#v\n%#v", f, round)
	}
}

func TestSetHeaderField(t *testing.T) {
	f := NewFile()
	f.SetHeaderField("Language", "ru")
	f.SetHeaderField("Content-Type", "text/plain; charset=UTF-8")
	f.SetHeaderField("language", "uk")
	if want := "language: uk\nContent-Type: text/plain; charset=UTF-8\n"; f.Header.MsgStr != want {
		t.Fatalf("header = %q, want %q", f.Header.MsgStr, want)
	}
}

func TestPluralFormsForLang(t *testing.T) {
	pluralCases := []struct {
		lang string
		want string
	}{
		{lang: "ru", want: "nplurals=3; plural=(n%10==1 && n%100!=11 ? 0 : n%10>=2 && n%10<=4 && (n%100<10 || n%100>=20) ? 1 : 2);"},
		{lang: "pt-BR", want: "nplurals=2; plural=(n > 1);"},
		{lang: "ja", want: "nplurals=1; plural=0;"},
		{lang: "zz", want: "nplurals=2; plural=(n != 1);"},
	}
	for _, tc := range pluralCases {
		if got := PluralFormsForLang(tc.lang); got != tc.want {
			t.Fatalf("PluralFormsForLang(%q) = %q, want %q", tc.lang, got, tc.want)
		}
	}
}

func TestParseRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		line int
	}{
		{"unknown keyword", "msgid \"a\"\nmsgfoo \"b\"\n", 2},
		{"unterminated quote", "msgid \"a\nmsgstr \"\"\n", 1},
		{"orphan continuation", "\"dangling\"\n", 1},
		{"bad index", "msgid \"a\"\nmsgid_plural \"as\"\nmsgstr[x] \"b\"\n", 3},
		{"unquoted value", "msgid a\n", 1},
		{"msgstr without msgid", "msgstr \"b\"\n\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.in))
			var perr *entry.ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("err = %v, want *entry.ParseError", err)
			}
			if perr.Line != tt.line {
				t.Fatalf("line = %d, want %d (%v)", perr.Line, tt.line, err)
			}
		})
	}
}

func TestParseEntriesWithoutBlankLines(t *testing.T) {
	input := "msgid \"a\"\nmsgstr \"A\"\n#. next\nmsgid \"b\"\nmsgstr \"B\"\nmsgctxt \"menu\"\nmsgid \"c\"\nmsgstr \"\"\n"
	f, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(f.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(f.Entries))
	}
	if f.Entries[1].ExtractedComments[0] != "next" || f.Entries[2].MsgCtxt != "menu" {
		t.Fatalf("entries = %#v", f.Entries)
	}
}

func TestEscapesRoundTrip(t *testing.T) {
	f := NewFile()
	f.Entries = append(f.Entries, &Entry{MsgID: "tab\there \"q\" back\\slash\r\nnext"})
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	round, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if got := round.Entries[0].MsgID; got != f.Entries[0].MsgID {
		t.Fatalf("msgid = %q, want %q", got, f.Entries[0].MsgID)
	}
}
