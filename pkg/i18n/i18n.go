// Package i18n resolves the standard text keys used by the webservice and the
// terminal host.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Standard text keys.
const (
	KeyLoading       = "std.loading"
	KeyErrorOccurred = "std.error.occurred"
	KeyErrorLoading  = "std.error.loading"
	KeyOK            = "std.ok"
)

var supported = []language.Tag{language.English, language.German}

var messages = map[language.Tag]map[string]string{
	language.English: {
		KeyLoading:       "Loading...",
		KeyErrorOccurred: "An error occurred",
		KeyErrorLoading:  "The data could not be loaded. Please try again later.",
		KeyOK:            "OK",
	},
	language.German: {
		KeyLoading:       "Lädt...",
		KeyErrorOccurred: "Ein Fehler ist aufgetreten",
		KeyErrorLoading:  "Die Daten konnten nicht geladen werden. Bitte versuchen Sie es später erneut.",
		KeyOK:            "OK",
	},
}

// Bundle is a Localizer backed by an x/text message catalog.
type Bundle struct {
	tag     language.Tag
	printer *message.Printer
}

// New returns a bundle for the best match of locale (a BCP 47 tag such as
// "de-DE"). Unknown or empty locales fall back to English.
func New(locale string) *Bundle {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range messages {
		for key, msg := range msgs {
			// SetString only fails for malformed messages; ours are literals.
			_ = b.SetString(tag, key, msg)
		}
	}

	tag := Match(locale)
	return &Bundle{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(b)),
	}
}

// Match returns the supported language closest to locale.
func Match(locale string) language.Tag {
	if locale == "" {
		return language.English
	}
	desired, _, err := language.ParseAcceptLanguage(locale)
	if err != nil || len(desired) == 0 {
		return language.English
	}
	_, idx, conf := language.NewMatcher(supported).Match(desired...)
	if conf == language.No {
		return language.English
	}
	return supported[idx]
}

// Language returns the tag the bundle resolves texts for.
func (b *Bundle) Language() language.Tag {
	return b.tag
}

// Text returns the message for key, or key itself when it is unknown.
func (b *Bundle) Text(key string) string {
	// English holds every key; anything else must not reach the formatter.
	if _, ok := messages[language.English][key]; !ok {
		return key
	}
	return b.printer.Sprintf(key)
}
