package utils

import (
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// RenderTemplate substitutes {{variable}} placeholders with values from
// vars. A placeholder with no value renders as an empty string and its
// name is returned in the second result; missing variables are metadata
// on the dispatch, never a failure.
func RenderTemplate(template string, vars map[string]string) (string, []string) {
	var missing []string
	seen := make(map[string]bool)

	rendered := placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		if !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
		return ""
	})

	return rendered, missing
}

// TemplatePlaceholders extracts the distinct placeholder names used in
// a template, in order of first appearance.
func TemplatePlaceholders(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, match := range placeholderRe.FindAllStringSubmatch(template, -1) {
		if !seen[match[1]] {
			seen[match[1]] = true
			names = append(names, match[1])
		}
	}
	return names
}

// ValidateTemplate checks a template for obviously broken placeholder
// syntax before a campaign is accepted.
func ValidateTemplate(template string) error {
	if strings.TrimSpace(template) == "" {
		return &ValidationError{Message: "template cannot be empty"}
	}

	openCount := strings.Count(template, "{{")
	closeCount := strings.Count(template, "}}")
	if openCount != closeCount {
		return &ValidationError{Message: "template has unbalanced placeholder braces"}
	}

	return nil
}
