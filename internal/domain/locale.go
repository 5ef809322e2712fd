package domain

// Locale selects the language of the persona prompt, stock replies and bot texts.
type Locale string

const (
	// LocaleRU is the default.
	LocaleRU Locale = "ru"
	LocaleEN Locale = "en"
)

// Valid reports whether l is a supported locale.
func (l Locale) Valid() bool {
	return l == LocaleRU || l == LocaleEN
}

// OrDefault returns l, or LocaleRU when l is not supported.
func (l Locale) OrDefault() Locale {
	if l.Valid() {
		return l
	}
	return LocaleRU
}
