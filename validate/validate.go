// Package validate checks a translation against its source string.
//
// Checks are independent and every problem is reported; a valid
// translation yields no messages.
package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/minios-linux/locflow/plural"
)

// placeholderPattern matches the placeholder styles that must survive
// translation. Longer forms come first so "{{name}}" is not read as "{name}".
var placeholderPattern = regexp.MustCompile(strings.Join([]string{
	`\{\{\w+\}\}`,                  // {{name}}
	`%\{\w+\}`,                     // %{name}
	`\$\{\w+\}`,                    // ${name}
	`\$[ts]\([\w.]+\)`,             // $t(key), $s(key)
	`%(?:\d+\$)?[sdifFeEgGxXou%]`, // %s, %1$s, %%
	`\{\w*\}`,                      // {name}, {0}, {}
}, "|"))

// Input is one translation to check.
type Input struct {
	SourceText  string
	Translation string
	// MaxLength is the limit in characters; 0 disables the check.
	MaxLength  int
	HasPlurals bool
	// PluralTranslations maps plural categories to translated text.
	PluralTranslations map[string]string
	// Language selects the plural categories that must be present.
	Language string
}

// Translation runs every check and returns all messages.
func Translation(in Input) []string {
	var problems []string
	problems = append(problems, Variables(in.SourceText, in.Translation)...)
	problems = append(problems, Length(in.Translation, in.MaxLength)...)
	if in.HasPlurals && len(in.PluralTranslations) > 0 {
		problems = append(problems, PluralForms(in.PluralTranslations, in.Language)...)
	}
	return problems
}

// ExtractVariables returns the distinct placeholders in text, sorted.
func ExtractVariables(text string) []string {
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllString(text, -1) {
		seen[m] = true
	}
	return sortedKeys(seen)
}

// Variables reports placeholders missing from or added by the translation.
func Variables(source, translation string) []string {
	src := toSet(ExtractVariables(source))
	dst := toSet(ExtractVariables(translation))

	var problems []string
	if missing := difference(src, dst); len(missing) > 0 {
		problems = append(problems, "Missing variables in translation: "+strings.Join(missing, ", "))
	}
	if extra := difference(dst, src); len(extra) > 0 {
		problems = append(problems, "Extra variables in translation: "+strings.Join(extra, ", "))
	}
	return problems
}

// Length reports a translation longer than maxLength characters.
func Length(translation string, maxLength int) []string {
	if maxLength <= 0 {
		return nil
	}
	if n := utf8.RuneCountInString(translation); n > maxLength {
		return []string{fmt.Sprintf("Translation exceeds max length: %d > %d", n, maxLength)}
	}
	return nil
}

// PluralForms reports plural categories required by lang that have no
// translation.
func PluralForms(translations map[string]string, lang string) []string {
	missing := plural.Missing(lang, translations)
	if len(missing) == 0 {
		return nil
	}
	return []string{fmt.Sprintf("Missing plural forms for %s: %s", lang, strings.Join(missing, ", "))}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}

// difference returns the sorted members of a not in b.
func difference(a, b map[string]bool) []string {
	out := make(map[string]bool)
	for k := range a {
		if !b[k] {
			out[k] = true
		}
	}
	return sortedKeys(out)
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
