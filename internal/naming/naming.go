// Package naming folds identifiers from different naming conventions into one
// comparable camelCase form.
package naming

import (
	"strings"
	"unicode"
)

// ToCamelCase converts snake_case, kebab-case, PascalCase, SCREAMING_CASE and
// space separated words into camelCase. The result is a comparison key:
// "content_filter", "Content-Filter" and "contentFilter" all map to
// "contentFilter". ToCamelCase(ToCamelCase(s)) == ToCamelCase(s).
func ToCamelCase(s string) string {
	words := splitWords(s)
	if len(words) == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	for i, word := range words {
		runes := []rune(strings.ToLower(word))
		if i > 0 {
			runes[0] = unicode.ToUpper(runes[0])
		}
		b.WriteString(string(runes))
	}
	return b.String()
}

// splitWords breaks s on separators and case transitions. An uppercase run at
// the start of a segment is one word (HTTP in HTTPServer); an uppercase run
// after a lowercase letter or digit is a sequence of one letter words.
func splitWords(s string) []string {
	runes := []rune(s)
	words := make([]string, 0, 4)
	current := make([]rune, 0, len(runes))
	acronym := false

	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
		acronym = false
	}

	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}

		upper := isUpper(r)
		if upper && len(current) > 0 {
			prev := runes[i-1]
			switch {
			case !isUpper(prev):
				flush()
			case !acronym:
				flush()
			case i+1 < len(runes) && unicode.IsLower(runes[i+1]):
				flush()
			}
		}

		if len(current) == 0 {
			startsSegment := i == 0 || !isWordRune(runes[i-1])
			acronym = upper && startsSegment
		} else if !upper {
			acronym = false
		}
		current = append(current, r)
	}
	flush()
	return words
}

// isUpper counts titlecase letters as uppercase, since unicode.ToUpper maps
// some lowercase letters (ᾖ) to titlecase ones (ᾞ).
func isUpper(r rune) bool {
	return unicode.IsUpper(r) || unicode.IsTitle(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// ToCamelCaseAll converts every element of values.
func ToCamelCaseAll(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, value := range values {
		out[i] = ToCamelCase(value)
	}
	return out
}

// ToCamelCaseKeys returns a copy of value with every object key converted,
// walking nested maps and slices. Non-container values are returned as is.
// When two keys collapse to the same form the lexically later source key wins.
func ToCamelCaseKeys(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		sources := make(map[string]string, len(typed))
		for key, item := range typed {
			converted := ToCamelCase(key)
			if previous, ok := sources[converted]; ok && previous > key {
				continue
			}
			sources[converted] = key
			out[converted] = ToCamelCaseKeys(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = ToCamelCaseKeys(item)
		}
		return out
	default:
		return value
	}
}

// Equal reports whether a and b name the same thing after normalization.
func Equal(a, b string) bool {
	return ToCamelCase(a) == ToCamelCase(b)
}
