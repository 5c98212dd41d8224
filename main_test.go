package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, errOut, err := run(t, args...)
	if err != nil {
		t.Fatalf("locflow %s: %v\nstderr:\n%s", strings.Join(args, " "), err, errOut)
	}
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

// newProject creates a root directory using the given storage driver.
func newProject(t *testing.T, driver string) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".locflow.yaml"), "storage:\n  driver: "+driver+"\nlog:\n  level: error\n")
	return dir
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name    string
		percent int
		width   int
		color   bool
		want    string
	}{
		{name: "clamps below zero", percent: -10, width: 4, color: true, want: colorRed + "░░░░" + colorReset + "   0%"},
		{name: "mid range uses yellow", percent: 50, width: 4, color: true, want: colorYellow + "██░░" + colorReset + "  50%"},
		{name: "clamps above hundred", percent: 120, width: 4, color: true, want: colorGreen + "████" + colorReset + " 100%"},
		{name: "plain", percent: 25, width: 4, want: "█░░░  25%"},
	}

	for _, tc := range tests {
		if got := progressBar(tc.percent, tc.width, tc.color); got != tc.want {
			t.Fatalf("%s: progressBar() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestDisplayHelpers(t *testing.T) {
	if got := displayKey("menu\x04Open"); got != "menu|Open" {
		t.Fatalf("displayKey(ctx) = %q", got)
	}
	if got := displayKey("plain"); got != "plain" {
		t.Fatalf("displayKey(plain) = %q", got)
	}
	if got := oneLine("a\nb"); got != `a\nb` {
		t.Fatalf("oneLine = %q", got)
	}
	long := strings.Repeat("ж", 80)
	if got := []rune(oneLine(long)); len(got) != 60 || got[59] != '…' {
		t.Fatalf("oneLine did not truncate to 60 runes: %d", len(got))
	}
}

func TestRepresentative(t *testing.T) {
	if got := representative("text", map[string]string{"other": "o"}); got != "text" {
		t.Fatalf("representative with text = %q", got)
	}
	if got := representative("", map[string]string{"one": "1", "other": "o"}); got != "o" {
		t.Fatalf("representative prefers other, got %q", got)
	}
	if got := representative("", map[string]string{"one": "1", "few": "f"}); got != "f" {
		t.Fatalf("representative falls back to the first form, got %q", got)
	}
}

func TestLogicalPath(t *testing.T) {
	dir := t.TempDir()
	a := &app{rootDir: dir}
	if got := a.logicalPath(filepath.Join(dir, "locales", "en.json")); got != "locales/en.json" {
		t.Fatalf("logicalPath inside root = %q", got)
	}
	outside := filepath.Join(filepath.Dir(dir), "elsewhere", "en.json")
	if got := a.logicalPath(outside); got != filepath.ToSlash(outside) {
		t.Fatalf("logicalPath outside root = %q", got)
	}
}

func TestWriteOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := writeOutput("-", []byte("x"), &buf); err != nil || buf.String() != "x" {
		t.Fatalf("writeOutput(-) = %q, %v", buf.String(), err)
	}
	path := filepath.Join(t.TempDir(), "nested", "out.json")
	if err := writeOutput(path, []byte("{}"), &buf); err != nil {
		t.Fatalf("writeOutput(file): %v", err)
	}
	if data, _ := os.ReadFile(path); string(data) != "{}" {
		t.Fatalf("file content = %q", data)
	}
}

func TestFormatsCommand(t *testing.T) {
	out := mustRun(t, "--root", t.TempDir(), "formats")
	for _, want := range []string{"json", "po", "pot", "-> po", "strings", "xliff", "xlf", "application/xml", "text/x-gettext-translation",
		"yaml", "-> yaml", "properties", "text/x-java-properties", "arb", "android"} {
		if !strings.Contains(out, want) {
			t.Fatalf("formats output missing %q:\n%s", want, out)
		}
	}
}

func TestParseCommand(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "en.json")
	writeFile(t, file, `{"common":{"ok":"OK"},"item_one":"1 item","item_other":"N items"}`)

	table := mustRun(t, "--root", dir, "parse", file)
	if !strings.Contains(table, "common.ok") || !strings.Contains(table, "* item") || !strings.Contains(table, "2 entries") {
		t.Fatalf("table output:\n%s", table)
	}

	js := mustRun(t, "--root", dir, "parse", "-o", "json", file)
	if got := gjson.Get(js, "1.plural_forms.other").String(); got != "N items" {
		t.Fatalf("json plural other = %q\n%s", got, js)
	}

	y := mustRun(t, "--root", dir, "parse", "-o", "yaml", file)
	if !strings.Contains(y, "key: common.ok") {
		t.Fatalf("yaml output:\n%s", y)
	}

	if _, _, err := run(t, "--root", dir, "parse", "-o", "xml", file); err == nil {
		t.Fatal("unknown output should fail")
	}
}

func TestConvertExtraFormats(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "messages.properties")
	writeFile(t, in, "app.title=Main\n# Menu entry\napp.quit=Quit\n")

	yml := filepath.Join(dir, "en.yml")
	mustRun(t, "--root", dir, "convert", in, yml)
	data, err := os.ReadFile(yml)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "app:\n  title: Main\n  # Menu entry\n  quit: Quit\n") {
		t.Fatalf("converted YAML:\n%s", data)
	}

	arb := mustRun(t, "--root", dir, "convert", "--to", "arb", "--lang", "de", yml, "-")
	if got := gjson.Get(arb, "app\\.title").String(); got != "Main" {
		t.Fatalf("app.title = %q\n%s", got, arb)
	}
	if !strings.Contains(arb, `"@@locale": "de"`) {
		t.Fatalf("missing locale:\n%s", arb)
	}

	report := mustRun(t, "--root", dir, "check", in, yml)
	if strings.Count(report, "OK") != 2 {
		t.Fatalf("check report:\n%s", report)
	}
}

func TestConvertAndCheck(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "Localizable.strings")
	writeFile(t, in, "/* Greeting */\n\"hello\" = \"Hello\";\n\"bye\" = \"Bye\";\n")
	out := filepath.Join(dir, "out", "messages.xlf")

	mustRun(t, "--root", dir, "convert", "--lang", "de", in, out)
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	doc := string(data)
	for _, want := range []string{`target-language="de"`, `<trans-unit id="hello">`, "<note>Greeting</note>"} {
		if !strings.Contains(doc, want) {
			t.Fatalf("converted XLIFF missing %q:\n%s", want, doc)
		}
	}

	report := mustRun(t, "--root", dir, "check", in, out)
	if strings.Count(report, "OK") != 2 {
		t.Fatalf("check report:\n%s", report)
	}

	broken := filepath.Join(dir, "broken.json")
	writeFile(t, broken, `{"a":`)
	report, _, err = run(t, "--root", dir, "check", in, broken)
	if err == nil || !strings.Contains(err.Error(), "1 file failed") {
		t.Fatalf("check error = %v", err)
	}
	if !strings.Contains(report, "FAIL "+broken) {
		t.Fatalf("check report:\n%s", report)
	}
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	if out := mustRun(t, "--root", dir, "validate", "Hello {{name}}", "Hallo {{name}}"); strings.TrimSpace(out) != "OK" {
		t.Fatalf("validate ok output = %q", out)
	}

	out, _, err := run(t, "--root", dir, "validate", "--max-length", "3", "Hello {{name}}", "Hallo")
	if err == nil || !strings.Contains(err.Error(), "2 problems") {
		t.Fatalf("validate error = %v", err)
	}
	if !strings.Contains(out, "Missing variables in translation: {{name}}") || !strings.Contains(out, "exceeds max length: 5 > 3") {
		t.Fatalf("validate output:\n%s", out)
	}

	_, _, err = run(t, "--root", dir, "validate", "--lang", "ru", "--plural", "one=файл,other=файла", "%d files", "")
	if err == nil {
		t.Fatal("missing Russian plural forms should fail")
	}
}

func TestWorkflow(t *testing.T) {
	for _, driver := range []string{"sqlite", "lockfile"} {
		t.Run(driver, func(t *testing.T) {
			dir := newProject(t, driver)
			src := filepath.Join(dir, "locales", "en.json")
			root := []string{"--root", dir}
			cli := func(args ...string) []string { return append(append([]string{}, root...), args...) }

			writeFile(t, src, `{"common":{"ok":"OK","cancel":"Cancel"},"greeting":"Hello {{name}}","save":"Save file"}`)
			out := mustRun(t, cli("upload", "-p", "web", "--name", "Web", src)...)
			if !strings.Contains(out, "locales/en.json: version 1, 4 new, 0 updated, 0 removed") {
				t.Fatalf("first upload:\n%s", out)
			}
			out = mustRun(t, cli("upload", "-p", "web", src)...)
			if !strings.Contains(out, "unchanged (version 1)") {
				t.Fatalf("re-upload:\n%s", out)
			}

			writeFile(t, src, `{"common":{"ok":"OK","cancel":"Cancel"},"greeting":"Hello, {{name}}","save":"Save file"}`)
			out = mustRun(t, cli("upload", "-p", "web", src)...)
			if !strings.Contains(out, "version 2, 0 new, 1 updated, 0 removed") {
				t.Fatalf("second upload:\n%s", out)
			}

			mustRun(t, cli("submit", "-p", "web", "--lang", "de", "common.ok", "Okay")...)
			mustRun(t, cli("submit", "-p", "web", "--lang", "de", "--status", "approved", "save", "Datei speichern")...)

			_, errOut, err := run(t, cli("submit", "-p", "web", "--lang", "de", "greeting", "Hallo")...)
			if err == nil || !strings.Contains(err.Error(), "translation rejected: 1 problem") {
				t.Fatalf("invalid submit error = %v", err)
			}
			if !strings.Contains(errOut, "Missing variables in translation: {{name}}") {
				t.Fatalf("invalid submit stderr:\n%s", errOut)
			}
			if _, _, err := run(t, cli("submit", "-p", "web", "--lang", "de", "nope", "x")...); err == nil {
				t.Fatal("submit for an unknown key should fail")
			}

			pulled := mustRun(t, cli("pull", "-p", "web", "--lang", "de", "--format", "json")...)
			if got := gjson.Get(pulled, "common.ok").String(); got != "Okay" {
				t.Fatalf("pulled common.ok = %q\n%s", got, pulled)
			}
			if got := gjson.Get(pulled, "common.cancel").String(); got != "Cancel" {
				t.Fatalf("pulled common.cancel = %q", got)
			}

			po := filepath.Join(dir, "po", "de.po")
			mustRun(t, cli("pull", "-p", "web", "--lang", "de", "-o", po)...)
			data, err := os.ReadFile(po)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if !strings.Contains(string(data), "msgid \"Save file\"\nmsgstr \"Datei speichern\"") {
				t.Fatalf("pulled PO:\n%s", data)
			}

			progress := mustRun(t, cli("progress", "-p", "web")...)
			if !strings.Contains(progress, "Web (web)") || !strings.Contains(progress, "4 active strings") || !strings.Contains(progress, "2/4") {
				t.Fatalf("progress:\n%s", progress)
			}

			sug := mustRun(t, cli("suggest", "--lang", "de", "--json", "save files")...)
			if got := gjson.Get(sug, "0.translated_text").String(); got != "Datei speichern" {
				t.Fatalf("suggestion = %q\n%s", got, sug)
			}
			if got := gjson.Get(sug, "#").Int(); got != 1 {
				t.Fatalf("expected only the approved translation, got %d", got)
			}
			none := mustRun(t, cli("suggest", "--lang", "fr", "save files")...)
			if strings.TrimSpace(none) != "No suggestions" {
				t.Fatalf("suggest fr = %q", none)
			}

			history := mustRun(t, cli("history", "-p", "web")...)
			if strings.Count(history, "locales/en.json") != 2 || !strings.Contains(history, "v2") {
				t.Fatalf("history:\n%s", history)
			}
		})
	}
}

func TestLockfileDriverWritesSnapshot(t *testing.T) {
	dir := newProject(t, "lockfile")
	src := filepath.Join(dir, "en.json")
	writeFile(t, src, `{"a":"A"}`)
	mustRun(t, "--root", dir, "upload", "-p", "web", src)

	data, err := os.ReadFile(filepath.Join(dir, "locflow.lock"))
	if err != nil {
		t.Fatalf("lock file not written: %v", err)
	}
	if !strings.Contains(string(data), "slug: web") || !strings.Contains(string(data), "key: a") {
		t.Fatalf("lock file:\n%s", data)
	}
}

func TestRequiredFlags(t *testing.T) {
	dir := newProject(t, "sqlite")
	if _, _, err := run(t, "--root", dir, "progress"); err == nil || !strings.Contains(err.Error(), "project") {
		t.Fatalf("progress without --project: %v", err)
	}
	if _, _, err := run(t, "--root", dir, "pull", "-p", "web"); err == nil || !strings.Contains(err.Error(), "--format") {
		t.Fatalf("pull to stdout without --format: %v", err)
	}
	if _, _, err := run(t, "--root", dir, "progress", "-p", "ghost"); err == nil {
		t.Fatal("progress for an unknown project should fail")
	}
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".locflow.yaml"), "storage:\n  driver: mongo\n")
	if _, _, err := run(t, "--root", dir, "formats"); err == nil || !strings.HasPrefix(err.Error(), "config: ") {
		t.Fatalf("invalid config error = %v", err)
	}
}
