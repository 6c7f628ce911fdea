// Package translate fans caption text out to the supported languages through
// a machine translation provider.
package translate

import (
	"strings"
)

// Language is a supported caption language.
type Language struct {
	Code   string // ISO-639-1, lower case
	Locale string // BCP-47 locale sent to providers
	Name   string // English display name
}

// English is the pivot language every other translation is made from.
const English = "en"

var supported = []Language{
	{Code: "en", Locale: "en-US", Name: "English"},
	{Code: "fr", Locale: "fr-FR", Name: "French"},
	{Code: "de", Locale: "de-DE", Name: "German"},
	{Code: "hi", Locale: "hi-IN", Name: "Hindi"},
}

// DefaultTargets returns the codes of every supported language.
func DefaultTargets() []string {
	codes := make([]string, len(supported))
	for i, l := range supported {
		codes[i] = l.Code
	}
	return codes
}

// LookupName maps a language name such as "french" or a code such as "fr"
// to its code. Matching is case-insensitive.
func LookupName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, l := range supported {
		if strings.EqualFold(l.Name, name) || strings.EqualFold(l.Code, name) || strings.EqualFold(l.Locale, name) {
			return l.Code, true
		}
	}
	return "", false
}

// Locale maps a code to its provider locale. Unknown codes are returned unchanged.
func Locale(code string) string {
	for _, l := range supported {
		if l.Code == code {
			return l.Locale
		}
	}
	return code
}

// Name returns the display name for code, or the code itself when unknown.
func Name(code string) string {
	for _, l := range supported {
		if l.Code == code {
			return l.Name
		}
	}
	return code
}

// Normalize reduces a provider-reported language ("en-US", "EN", " fr ") to a
// lower-case base code. Empty input yields English.
func Normalize(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	if lang == "" {
		return English
	}
	return lang
}
