package yamlfile

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/minios-linux/locflow/entry"
)

// ---------------------------------------------------------------------------
// Parse
// ---------------------------------------------------------------------------

func TestParse_Nested(t *testing.T) {
	data := []byte(`greeting: Hello
nav:
  home: Home
  about: About
footer:
  copyright: Copyright
`)
	entries, err := New().Parse(data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	want := []string{"greeting", "nav.home", "nav.about", "footer.copyright"}
	if got := entry.Keys(entries); !reflect.DeepEqual(got, want) {
		t.Fatalf("keys = %q, want %q", got, want)
	}
	for i, e := range entries {
		if e.Order != i {
			t.Fatalf("order of %q = %d, want %d", e.Key, e.Order, i)
		}
	}
	assertSource(t, entries, "nav.about", "About")
}

func TestParse_RailsStyle(t *testing.T) {
	data := []byte(`en:
  greeting: Hello
  nav:
    home: Home
`)
	entries, err := New().Parse(data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	want := []string{"greeting", "nav.home"}
	if got := entry.Keys(entries); !reflect.DeepEqual(got, want) {
		t.Fatalf("keys = %q, want %q", got, want)
	}
}

func TestParse_SingleNonLocaleRootKept(t *testing.T) {
	data := []byte(`settings:
  title: Settings
`)
	entries, err := New().Parse(data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if got := entry.Keys(entries); !reflect.DeepEqual(got, []string{"settings.title"}) {
		t.Fatalf("keys = %q", got)
	}
}

func TestParse_SkipsNonStringScalars(t *testing.T) {
	data := []byte(`count: 42
enabled: true
ratio: 3.14
nothing: ~
list:
  - a
  - b
label: Hello
quoted: "42"
`)
	entries, err := New().Parse(data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	want := []string{"label", "quoted"}
	if got := entry.Keys(entries); !reflect.DeepEqual(got, want) {
		t.Fatalf("keys = %q, want %q", got, want)
	}
}

func TestParse_Plurals(t *testing.T) {
	data := []byte(`items:
  one: "%{count} item"
  other: "%{count} items"
apples:
  few: few apples
  many: many apples
`)
	entries, err := New().Parse(data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	items := entries[0]
	if !items.HasPlurals || items.SourceText != "%{count} item" {
		t.Fatalf("items = %#v", items)
	}
	wantForms := map[string]string{"one": "%{count} item", "other": "%{count} items"}
	if !reflect.DeepEqual(items.PluralForms, wantForms) {
		t.Fatalf("forms = %v, want %v", items.PluralForms, wantForms)
	}
	if entries[1].SourceText != "few apples" {
		t.Fatalf("first form should be the source without one/other: %q", entries[1].SourceText)
	}
}

func TestParse_Comments(t *testing.T) {
	data := []byte(`title: Main
# Shown on the login button
login: Log in
logout: Log out # header menu
`)
	entries, err := New().Parse(data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if entries[1].Context != "Shown on the login button" {
		t.Fatalf("login context = %q", entries[1].Context)
	}
	if entries[2].Context != "header menu" {
		t.Fatalf("logout context = %q", entries[2].Context)
	}
}

func TestParse_Empty(t *testing.T) {
	entries, err := New().Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestParse_Errors(t *testing.T) {
	_, err := New().Parse([]byte("- a\n- b\n"))
	if !errors.Is(err, entry.ErrUnexpectedRoot) {
		t.Fatalf("sequence root: err = %v, want ErrUnexpectedRoot", err)
	}

	_, err = New().Parse([]byte("a: b\n  c: : d\n"))
	var perr *entry.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *entry.ParseError", err)
	}
	if perr.Format != Format || perr.Line == 0 {
		t.Fatalf("ParseError = %+v, want yaml format and a line", perr)
	}
}

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

func TestExport_Nested(t *testing.T) {
	entries := []entry.Entry{
		{Key: "nav.home", SourceText: "Home", Order: 1},
		{Key: "greeting", SourceText: "Hello", Order: 0},
		{Key: "nav.about", SourceText: "About", Order: 2},
	}
	out, err := New().Export(entries, map[string]string{"greeting": "Hallo", "nav.home": "Startseite"})
	if err != nil {
		t.Fatalf("Export error: %v", err)
	}
	want := "greeting: Hallo\nnav:\n  home: Startseite\n  about: About\n"
	if string(out) != want {
		t.Fatalf("Export =\n%s\nwant\n%s", out, want)
	}
}

func TestExport_QuotesAmbiguousScalars(t *testing.T) {
	entries := []entry.Entry{{Key: "answer", SourceText: "yes"}, {Key: "count", SourceText: "42", Order: 1}}
	out, err := New().Export(entries, nil)
	if err != nil {
		t.Fatalf("Export error: %v", err)
	}
	back, err := New().Parse(out)
	if err != nil {
		t.Fatalf("re-Parse error: %v\n%s", err, out)
	}
	if len(back) != 2 {
		t.Fatalf("string values lost their type:\n%s", out)
	}
}

func TestExport_PluralsAndLocale(t *testing.T) {
	entries := []entry.Entry{{
		Key: "items", SourceText: "%{count} item", HasPlurals: true,
		PluralForms: map[string]string{"other": "%{count} items", "one": "%{count} item"},
	}}
	translations := map[string]string{
		"items_one":  "%{count} Ding",
		"items_few":  "%{count} Dinge (few)",
		"items_many": "%{count} Dinge (many)",
	}
	out, err := (&Codec{Locale: "de"}).Export(entries, translations)
	if err != nil {
		t.Fatalf("Export error: %v", err)
	}
	s := string(out)
	if !strings.HasPrefix(s, "de:\n  items:\n") {
		t.Fatalf("missing locale root:\n%s", s)
	}
	one, few, many, other := strings.Index(s, "one:"), strings.Index(s, "few:"), strings.Index(s, "many:"), strings.Index(s, "other:")
	if one < 0 || !(one < few && few < many && many < other) {
		t.Fatalf("plural forms not in CLDR order:\n%s", s)
	}
	if !strings.Contains(s, "%{count} items") {
		t.Fatalf("untranslated form should fall back to source:\n%s", s)
	}

	back, err := New().Parse(out)
	if err != nil {
		t.Fatalf("re-Parse error: %v\n%s", err, out)
	}
	if len(back) != 1 || back[0].Key != "items" || len(back[0].PluralForms) != 4 {
		t.Fatalf("re-parsed = %#v", back)
	}
}

func TestExport_Context(t *testing.T) {
	entries := []entry.Entry{
		{Key: "title", SourceText: "Main"},
		{Key: "login", SourceText: "Log in", Context: "Button\nsecond line", Order: 1},
	}
	out, err := New().Export(entries, nil)
	if err != nil {
		t.Fatalf("Export error: %v", err)
	}
	if !strings.Contains(string(out), "# Button\n# second line\nlogin: Log in\n") {
		t.Fatalf("Export =\n%s", out)
	}
	back, err := New().Parse(out)
	if err != nil {
		t.Fatalf("re-Parse error: %v", err)
	}
	if back[1].Context != "Button\nsecond line" {
		t.Fatalf("context = %q", back[1].Context)
	}
}

func TestExport_Conflicts(t *testing.T) {
	tests := []struct {
		name    string
		entries []entry.Entry
		key     string
	}{
		{"leaf then parent", []entry.Entry{{Key: "a", SourceText: "x"}, {Key: "a.b", SourceText: "y", Order: 1}}, "a.b"},
		{"parent then leaf", []entry.Entry{{Key: "a.b", SourceText: "y"}, {Key: "a", SourceText: "x", Order: 1}}, "a"},
		{"under plural", []entry.Entry{
			{Key: "n", SourceText: "x", HasPlurals: true, PluralForms: map[string]string{"one": "x", "other": "y"}},
			{Key: "n.sub", SourceText: "z", Order: 1},
		}, "n.sub"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Export(tt.entries, nil)
			var eerr *entry.ExportError
			if !errors.As(err, &eerr) || eerr.Key != tt.key {
				t.Fatalf("err = %v, want ExportError for %q", err, tt.key)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	data := []byte(`app:
  name: Demo
  # Greeting on the start page
  welcome: "Welcome, %{name}!"
items:
  one: one item
  other: many items
`)
	first, err := New().Parse(data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	out, err := New().Export(first, nil)
	if err != nil {
		t.Fatalf("Export error: %v", err)
	}
	second, err := New().Parse(out)
	if err != nil {
		t.Fatalf("re-Parse error: %v\n%s", err, out)
	}
	if len(first) != len(second) {
		t.Fatalf("entry count %d -> %d\n%s", len(first), len(second), out)
	}
	for i := range first {
		a, b := first[i], second[i]
		if a.Key != b.Key || a.SourceText != b.SourceText || a.Context != b.Context ||
			!reflect.DeepEqual(a.PluralForms, b.PluralForms) {
			t.Fatalf("entry %d changed:\n%#v\n%#v", i, a, b)
		}
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func assertSource(t *testing.T, entries []entry.Entry, key, want string) {
	t.Helper()
	for _, e := range entries {
		if e.Key == key {
			if e.SourceText != want {
				t.Errorf("%s = %q, want %q", key, e.SourceText, want)
			}
			return
		}
	}
	t.Errorf("key %q not found", key)
}
