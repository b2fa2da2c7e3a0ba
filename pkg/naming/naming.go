// Package naming converts between storage (snake_case) and in-memory
// (camelCase / Go exported) field naming conventions. Pure functions, no state.
package naming

import (
	"strings"
	"unicode"
)

// ToSnake converts CamelCase or camelCase to snake_case.
// Consecutive capitals are treated as an initialism: "ParentID" -> "parent_id".
func ToSnake(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + 4)

	for i, r := range runes {
		if unicode.IsUpper(r) {
			// Boundary: previous rune is lower/digit, or next rune is lower.
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}

// ToCamel converts snake_case to camelCase.
func ToCamel(s string) string {
	if s == "" {
		return ""
	}

	parts := strings.Split(s, "_")
	var b strings.Builder
	b.Grow(len(s))

	first := true
	for _, p := range parts {
		if p == "" {
			continue
		}
		if first {
			b.WriteString(strings.ToLower(p[:1]) + p[1:])
			first = false
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}

	return b.String()
}

// ToExported converts snake_case to an exported Go identifier.
func ToExported(s string) string {
	c := ToCamel(s)
	if c == "" {
		return ""
	}
	return strings.ToUpper(c[:1]) + c[1:]
}
