package pofile

import (
	"reflect"
	"strings"
	"testing"

	"github.com/leonelquinteros/gotext"

	"github.com/minios-linux/locflow/entry"
)

const samplePO = `# Translator note
msgid ""
msgstr ""
"Content-Type: text/plain; charset=UTF-8\n"

#. Shown on the main screen
#: main.c:10
msgid "Hello"
msgstr "Привет"

msgctxt "menu"
msgid "Open"
msgstr ""

#. Button label
msgctxt "verb"
msgid "Open"
msgstr ""

#, fuzzy, c-format
msgid "%d file"
msgid_plural "%d files"
msgstr[0] "%d файл"
msgstr[1] ""
msgstr[2] "%d файлов"

#~ msgid "Gone"
#~ msgstr "Ушло"
`

func TestCodecParse(t *testing.T) {
	entries, err := (&Codec{}).Parse([]byte(samplePO))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	wantKeys := []string{"Hello", "menu\x04Open", "verb\x04Open", "%d file"}
	if got := entry.Keys(entries); !reflect.DeepEqual(got, wantKeys) {
		t.Fatalf("keys = %q, want %q", got, wantKeys)
	}

	if entries[0].Context != "Shown on the main screen" {
		t.Fatalf("Hello context = %q", entries[0].Context)
	}
	if entries[1].Context != "menu" {
		t.Fatalf("menu context = %q", entries[1].Context)
	}
	if entries[2].Context != "verb\nButton label" {
		t.Fatalf("verb context = %q", entries[2].Context)
	}
	if entries[1].SourceText != "Open" || entries[2].SourceText != "Open" {
		t.Fatal("context entries must keep msgid as source text")
	}

	p := entries[3]
	if !p.HasPlurals {
		t.Fatal("plural entry not marked")
	}
	wantForms := map[string]string{"one": "%d file", "other": "%d files", "form0": "%d файл", "form2": "%d файлов"}
	if !reflect.DeepEqual(p.PluralForms, wantForms) {
		t.Fatalf("plural forms = %v, want %v", p.PluralForms, wantForms)
	}
	if !reflect.DeepEqual(p.Flags, []string{"fuzzy", "c-format"}) {
		t.Fatalf("flags = %v", p.Flags)
	}
	for i, e := range entries {
		if e.Order != i {
			t.Fatalf("order of %q = %d, want %d", e.Key, e.Order, i)
		}
	}
}

func TestCodecRoundTrip(t *testing.T) {
	c := &Codec{}
	first, err := c.Parse([]byte(samplePO))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	out, err := c.Export(first, nil)
	if err != nil {
		t.Fatalf("Export error: %v", err)
	}
	second, err := c.Parse(out)
	if err != nil {
		t.Fatalf("re-Parse error: %v\n%s", err, out)
	}
	if len(first) != len(second) {
		t.Fatalf("entry count %d -> %d\n%s", len(first), len(second), out)
	}
	for i := range first {
		a, b := first[i], second[i]
		if a.Key != b.Key || a.SourceText != b.SourceText || a.Context != b.Context {
			t.Fatalf("entry %d changed:\n%#v\n%#v", i, a, b)
		}
	}
	if !reflect.DeepEqual(first[3].PluralForms, second[3].PluralForms) {
		t.Fatalf("identity export lost numbered forms: %v -> %v", first[3].PluralForms, second[3].PluralForms)
	}
}

func TestCodecExportReadableByGettextRuntime(t *testing.T) {
	entries := []entry.Entry{
		{Key: "Hello", SourceText: "Hello", Order: 0},
		{Key: Key("menu", "Open"), SourceText: "Open", Context: "menu", Order: 1},
		{Key: "files", SourceText: "%d file", HasPlurals: true, Order: 2,
			PluralForms: map[string]string{"one": "%d file", "other": "%d files"}},
	}
	translations := map[string]string{
		"Hello":                           "Привет",
		Key("menu", "Open"):               "Открыть",
		entry.PluralKey("files", "form0"): "%d файл",
		entry.PluralKey("files", "form1"): "%d файла",
		entry.PluralKey("files", "form2"): "%d файлов",
	}

	out, err := (&Codec{Language: "ru"}).Export(entries, translations)
	if err != nil {
		t.Fatalf("Export error: %v", err)
	}

	po := gotext.NewPo()
	po.Parse(out)

	if got := po.Get("Hello"); got != "Привет" {
		t.Fatalf("Get(Hello) = %q\n%s", got, out)
	}
	if got := po.GetC("Open", "menu"); got != "Открыть" {
		t.Fatalf("GetC(Open, menu) = %q\n%s", got, out)
	}
	if got := po.GetN("%d file", "%d files", 5); got != "%d файлов" {
		t.Fatalf("GetN(5) = %q\n%s", got, out)
	}
	if got := po.GetN("%d file", "%d files", 3); got != "%d файла" {
		t.Fatalf("GetN(3) = %q\n%s", got, out)
	}
	if !strings.Contains(string(out), "Language: ru") {
		t.Fatalf("missing Language header:\n%s", out)
	}
}

func TestCodecPluralExportIndices(t *testing.T) {
	e := entry.Entry{Key: "n", SourceText: "one", HasPlurals: true,
		PluralForms: map[string]string{"one": "one", "other": "many"}}

	tests := []struct {
		name         string
		translations map[string]string
		want         map[int]string
	}{
		{"single translation goes to index 0", map[string]string{"n": "x"}, map[int]string{0: "x", 1: ""}},
		{"categories in CLDR order", map[string]string{"n_other": "o", "n_one": "1", "n_few": "f"},
			map[int]string{0: "1", 1: "f", 2: "o"}},
		{"numbered forms win", map[string]string{"n_form1": "b", "n_form0": "a", "n_one": "ignored", "n_other": "ignored"},
			map[int]string{0: "a", 1: "b"}},
		{"identity", nil, map[int]string{0: "", 1: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pluralStrings(e, tt.translations); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("pluralStrings = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCodecExportUsesSourceTextAsMsgID(t *testing.T) {
	entries := []entry.Entry{{Key: "greeting.title", SourceText: "Welcome"}}
	out, err := (&Codec{}).Export(entries, map[string]string{"greeting.title": "Bienvenue"})
	if err != nil {
		t.Fatalf("Export error: %v", err)
	}
	if !strings.Contains(string(out), "msgid \"Welcome\"\nmsgstr \"Bienvenue\"\n") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestCodecExportRejectsEmptyMsgID(t *testing.T) {
	_, err := (&Codec{}).Export([]entry.Entry{{Key: "blank", SourceText: ""}}, nil)
	if err == nil {
		t.Fatal("expected an export error for an empty msgid")
	}
	if _, ok := err.(*entry.ExportError); !ok {
		t.Fatalf("err = %T, want *entry.ExportError", err)
	}
}

func TestSplitKey(t *testing.T) {
	ctx, id := SplitKey(Key("menu", "Open"))
	if ctx != "menu" || id != "Open" {
		t.Fatalf("SplitKey = %q, %q", ctx, id)
	}
	ctx, id = SplitKey("plain")
	if ctx != "" || id != "plain" {
		t.Fatalf("SplitKey(plain) = %q, %q", ctx, id)
	}
}
