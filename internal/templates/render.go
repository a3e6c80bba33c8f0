package templates

import "strings"

// Vars are the placeholder values available to template text.
type Vars struct {
	Author   string
	Keyword  string
	Content  string
	Category string
}

// Render substitutes {author}, {keyword}, {content} and {category} in text.
// Unknown placeholders are left as written.
func Render(text string, vars Vars) string {
	return strings.NewReplacer(
		"{author}", vars.Author,
		"{keyword}", vars.Keyword,
		"{content}", vars.Content,
		"{category}", vars.Category,
	).Replace(text)
}
