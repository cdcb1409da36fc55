// conf/locale.go contains the target languages the localizer supports
package conf

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/sisigoks/plantverse-go/internal/errors"
)

// LanguageNames maps 2-letter codes to display names for the languages the
// translation endpoint is known to handle well for botanical text.
var LanguageNames = map[string]string{
	"en": "English",
	"hi": "Hindi",
	"te": "Telugu",
	"ta": "Tamil",
	"kn": "Kannada",
	"ml": "Malayalam",
	"bn": "Bengali",
	"mr": "Marathi",
	"gu": "Gujarati",
	"ur": "Urdu",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"pt": "Portuguese",
	"it": "Italian",
	"ru": "Russian",
	"zh": "Chinese",
	"ja": "Japanese",
	"ko": "Korean",
	"ar": "Arabic",
}

// languageCodesByName is the reverse lookup, lowercase name to code.
var languageCodesByName = func() map[string]string {
	m := make(map[string]string, len(LanguageNames))
	for code, name := range LanguageNames {
		m[strings.ToLower(name)] = code
	}
	return m
}()

// SourceLanguage is the language of the upstream knowledge and narrative
// sources; both are queried through their English endpoints.
const SourceLanguage = "en"

// NormalizeLanguage accepts a 2-letter code or a full language name and
// returns the canonical 2-letter code. Unsupported input is a validation
// error, the fatal-input class.
func NormalizeLanguage(input string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", errors.ValidationError("language code must not be empty")
	}

	if code, ok := languageCodesByName[normalized]; ok {
		return code, nil
	}

	// Validate the code is a well-formed BCP 47 tag before checking support,
	// so "xx" and "english!!" fail the same way
	tag, err := language.Parse(normalized)
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryValidation).
			Context("language", input).
			Build()
	}

	base, _ := tag.Base()
	code := base.String()
	if _, ok := LanguageNames[code]; !ok {
		return "", errors.ValidationError("unsupported language: %s", input)
	}

	return code, nil
}
