// Package i18n localizes locflow's own user-facing messages.
//
// It wraps gotext with T and N. Catalogs are embedded in the binary under
// locales/{lang}/LC_MESSAGES/locflow.po and loaded by Init.
//
// Usage:
//
//	i18n.Init("")  // auto-detect from LANGUAGE/LC_ALL/LC_MESSAGES/LANG
//	fmt.Println(i18n.T("Upload applied"))
//	fmt.Println(i18n.N("%d string", "%d strings", count))
package i18n

import (
	"embed"
	"os"
	"strings"

	"github.com/leonelquinteros/gotext"
)

//go:embed all:locales
var locales embed.FS

// domain is the gettext domain name for locflow.
const domain = "locflow"

// po is the active catalog; nil until Init.
var po *gotext.Locale

// catalog holds the singular translations of po by msgid.
var catalog map[string]*gotext.Translation

// lang is the language passed to the active catalog.
var lang string

// Init loads the catalog for language. An empty language is detected from
// LANGUAGE, LC_ALL, LC_MESSAGES and LANG, in GNU gettext order.
//
// Init should be called once at program startup, before any T or N calls.
func Init(language string) {
	if language == "" {
		language = detectLanguage()
	}
	lang = language

	po = gotext.NewLocaleFSWithPath(language, locales, "locales")
	po.AddDomain(domain)
	po.SetDomain(domain)
	catalog = po.GetTranslations()
}

// Language returns the language given to Init, or "" before Init.
func Language() string {
	return lang
}

// T translates a message, returning msgid unchanged when no translation
// exists.
func T(msgid string) string {
	if po == nil {
		return msgid
	}
	if tr, ok := catalog[msgid]; ok {
		return tr.Get()
	}
	return msgid
}

// N translates a message with plural forms using the catalog's formula.
func N(singular, plural string, n int) string {
	if po == nil {
		if n == 1 {
			return singular
		}
		return plural
	}
	return po.GetN(singular, plural, n)
}

// detectLanguage follows GNU gettext: LANGUAGE > LC_ALL > LC_MESSAGES > LANG.
func detectLanguage() string {
	for _, env := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		val := os.Getenv(env)
		if val == "" {
			continue
		}
		// LANGUAGE can be a colon-separated list; take the first
		if env == "LANGUAGE" {
			val, _, _ = strings.Cut(val, ":")
		}
		// "ru_RU.UTF-8" -> "ru_RU"
		val, _, _ = strings.Cut(val, ".")
		if val == "C" || val == "POSIX" || val == "" {
			continue
		}
		return val
	}
	return "en"
}
