package utils

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// NormalizeLangCode reduces a raw language code ("eng", "en-US", "fre") to its
// two-letter base. Returns "" for empty, undefined or unparseable codes.
func NormalizeLangCode(code string) string {
	code = strings.TrimSpace(strings.ToLower(code))
	switch code {
	case "", "und", "undefined", "unknown", "none":
		return ""
	}

	tag, err := language.Parse(code)
	if err != nil {
		return ""
	}

	base, conf := tag.Base()
	if conf == language.No {
		return ""
	}

	s := base.String()
	if s == "und" {
		return ""
	}
	return s
}

// LanguageName returns the English display name for a language code
// ("fr" -> "French"). Falls back to the upper-cased code when the name
// is not known.
func LanguageName(code string) string {
	base := NormalizeLangCode(code)
	if base == "" {
		return ""
	}

	tag, err := language.Parse(base)
	if err != nil {
		return strings.ToUpper(base)
	}

	name := display.English.Languages().Name(tag)
	if name == "" {
		return strings.ToUpper(base)
	}
	return name
}

// IsEnglish reports whether a raw code or label refers to English in any
// variant (en, eng, en-US, "English").
func IsEnglish(code string) bool {
	if strings.Contains(strings.ToLower(code), "english") {
		return true
	}
	return NormalizeLangCode(code) == "en"
}

// SimilarLabel reports whether two display labels refer to the same thing,
// tolerating small spelling differences and extra qualifiers.
func SimilarLabel(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	if a == b || strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return levenshtein.ComputeDistance(a, b) <= 2
}
