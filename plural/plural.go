// Package plural holds the simplified CLDR plural-category table used to
// check that a translation supplies every grammatical number form its
// language needs.
package plural

import (
	"slices"
	"sort"
	"strings"
)

// CLDR category names.
const (
	Zero  = "zero"
	One   = "one"
	Two   = "two"
	Few   = "few"
	Many  = "many"
	Other = "other"
)

// Default is returned for languages missing from Rules.
var Default = []string{One, Other}

// Rules maps a language code to its required plural categories.
var Rules = map[string][]string{
	// one/other
	"en": {One, Other},
	"de": {One, Other},
	"nl": {One, Other},
	"sv": {One, Other},
	"da": {One, Other},
	"no": {One, Other},
	"fi": {One, Other},
	"tr": {One, Other},

	// one/many/other
	"es":    {One, Many, Other},
	"fr":    {One, Many, Other},
	"it":    {One, Many, Other},
	"pt":    {One, Many, Other},
	"pt-BR": {One, Many, Other},

	"lv": {Zero, One, Other},

	// Slavic
	"pl": {One, Few, Many, Other},
	"ru": {One, Few, Many, Other},
	"uk": {One, Few, Many, Other},
	"cs": {One, Few, Many, Other},
	"sk": {One, Few, Many, Other},
	"hr": {One, Few, Other},

	"ar": {Zero, One, Two, Few, Many, Other},

	// no grammatical number
	"zh": {Other},
	"ja": {Other},
	"ko": {Other},
	"vi": {Other},
	"th": {Other},
	"id": {Other},
	"ms": {Other},

	"he": {One, Two, Other},
}

// Forms returns the plural categories required for lang. Lookup tries the
// code as given, then its canonical form (pt_BR -> pt-BR), then the base
// language before the first '-' or '_', then falls back to Default.
// The returned slice is a copy.
func Forms(lang string) []string {
	if forms, ok := Rules[lang]; ok {
		return slices.Clone(forms)
	}
	canon := canonicalize(lang)
	if forms, ok := Rules[canon]; ok {
		return slices.Clone(forms)
	}
	if base, _, ok := strings.Cut(canon, "-"); ok {
		if forms, ok := Rules[base]; ok {
			return slices.Clone(forms)
		}
	}
	return slices.Clone(Default)
}

// Missing returns the categories required for lang that have no
// non-empty value in got, in table order.
func Missing(lang string, got map[string]string) []string {
	var missing []string
	for _, cat := range Forms(lang) {
		if got[cat] == "" {
			missing = append(missing, cat)
		}
	}
	return missing
}

// order ranks category names the way CLDR lists them. "plural" is the
// legacy i18next v3 suffix.
var order = map[string]int{
	Zero:     0,
	One:      1,
	Two:      2,
	Few:      3,
	Many:     4,
	Other:    5,
	"plural": 6,
}

// IsCategory reports whether name is a CLDR plural category.
func IsCategory(name string) bool {
	r, ok := order[name]
	return ok && r <= order[Other]
}

// Sort orders category names in CLDR order; unknown names go last,
// alphabetically.
func Sort(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		ri, iok := order[names[i]]
		rj, jok := order[names[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		case jok:
			return false
		}
		return names[i] < names[j]
	})
}

// SortedKeys returns the keys of forms in CLDR order.
func SortedKeys(forms map[string]string) []string {
	keys := make([]string, 0, len(forms))
	for k := range forms {
		keys = append(keys, k)
	}
	Sort(keys)
	return keys
}

func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}
