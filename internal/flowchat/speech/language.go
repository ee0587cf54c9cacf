package speech

import (
	"errors"
	"fmt"

	"github.com/longkey1/flowchat/internal/flowchat/storage"
	"golang.org/x/text/language"
)

// DefaultLanguage is the speech locale used when none is stored.
const DefaultLanguage = "en-US"

// SupportedLanguages lists the selectable speech locales and their display names.
var SupportedLanguages = []struct {
	Tag  language.Tag
	Name string
}{
	{language.MustParse("en-US"), "English"},
	{language.MustParse("hi-IN"), "Hindi"},
	{language.MustParse("gu-IN"), "Gujarati"},
}

// ParseLanguage validates a BCP 47 locale against the supported set and
// returns its canonical form.
func ParseLanguage(locale string) (string, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return "", fmt.Errorf("invalid speech language %q: %w", locale, err)
	}
	for _, l := range SupportedLanguages {
		if l.Tag == tag {
			return tag.String(), nil
		}
	}
	return "", fmt.Errorf("unsupported speech language %q (supported: en-US, hi-IN, gu-IN)", locale)
}

// LanguageName returns the display name of a supported locale.
func LanguageName(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		return locale
	}
	for _, l := range SupportedLanguages {
		if l.Tag == tag {
			return l.Name
		}
	}
	return locale
}

// LoadLanguage returns the stored speech-language preference or DefaultLanguage.
func LoadLanguage(s storage.Storage) (string, error) {
	var locale string
	if err := storage.GetJSON(s, storage.KeySpeechLanguage, &locale); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return DefaultLanguage, nil
		}
		return "", err
	}
	return locale, nil
}

// SaveLanguage validates and stores the speech-language preference.
func SaveLanguage(s storage.Storage, locale string) (string, error) {
	canonical, err := ParseLanguage(locale)
	if err != nil {
		return "", err
	}
	if err := storage.SetJSON(s, storage.KeySpeechLanguage, canonical); err != nil {
		return "", err
	}
	return canonical, nil
}
