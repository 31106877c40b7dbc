// Package template renders moderation message templates with {{var}} token
// substitution against a fixed variable set. Deliberately not a general
// template engine: no expressions, no nesting, unknown tokens render empty.
package template

import (
	"regexp"
)

var tokenRegexp = regexp.MustCompile(`\{\{\s*([A-Za-z][A-Za-z0-9_]*)\s*\}\}`)

// Render substitutes {{name}} tokens from vars. Tokens without a binding
// render as the empty string, so a typo in config degrades instead of leaking
// template syntax to users.
func Render(tpl string, vars map[string]string) string {
	return tokenRegexp.ReplaceAllStringFunc(tpl, func(tok string) string {
		name := tokenRegexp.FindStringSubmatch(tok)[1]
		return vars[name]
	})
}
