package template

import (
	"regexp"
	"strings"
	"unicode"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdentifier(key string) bool {
	return identifier.MatchString(key)
}

// dotenvValue leaves v bare unless it holds whitespace or '='.
func dotenvValue(v string) string {
	if !strings.ContainsFunc(v, func(r rune) bool { return unicode.IsSpace(r) || r == '=' }) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(v) + `"`
}

// shellQuote single-quotes v for POSIX shells.
func shellQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'"'"'`) + "'"
}

var fishEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// fishQuote single-quotes v for fish, where \ and ' are escapes inside
// single quotes.
func fishQuote(v string) string {
	return "'" + fishEscaper.Replace(v) + "'"
}
