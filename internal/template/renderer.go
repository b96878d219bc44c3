// internal/template/renderer.go
package template

import (
	"strings"

	"school-notify/internal/models"
)

// Placeholders are delimited as {{name}}. Rendering is pure: the same inputs
// always produce the same output, and a string with no remaining markers
// renders to itself.

// Render substitutes placeholders in tmpl from vars, falling back to the
// declared defaults. Markers that resolve to neither are left in place and
// returned as missing; partially rendered content must still be deliverable,
// so a missing variable is a defect to log, not an error.
func Render(tmpl string, vars map[string]string, declared []models.TemplateVariable) (string, []string) {
	var b strings.Builder
	var missing []string

	i := 0
	for i < len(tmpl) {
		start := strings.Index(tmpl[i:], "{{")
		if start == -1 {
			b.WriteString(tmpl[i:])
			break
		}
		start += i

		end := strings.Index(tmpl[start:], "}}")
		if end == -1 {
			b.WriteString(tmpl[i:])
			break
		}
		end += start

		b.WriteString(tmpl[i:start])
		name := strings.TrimSpace(tmpl[start+2 : end])

		if v, ok := vars[name]; ok {
			b.WriteString(v)
		} else if d, ok := defaultFor(declared, name); ok {
			b.WriteString(d)
		} else {
			// unresolved marker stays in the output
			b.WriteString(tmpl[start : end+2])
			missing = append(missing, name)
		}

		i = end + 2
	}

	return b.String(), missing
}

// RenderContent renders all strings of one channel's content.
func RenderContent(c models.ChannelContent, vars map[string]string, declared []models.TemplateVariable) (models.ChannelContent, []string) {
	var missing []string

	title, m := Render(c.Title, vars, declared)
	missing = append(missing, m...)
	subject, m := Render(c.Subject, vars, declared)
	missing = append(missing, m...)
	body, m := Render(c.Body, vars, declared)
	missing = append(missing, m...)

	return models.ChannelContent{Title: title, Subject: subject, Body: body}, missing
}

// Placeholders returns the distinct placeholder names referenced in s, in
// order of first appearance.
func Placeholders(s string) []string {
	var names []string
	seen := map[string]bool{}

	i := 0
	for i < len(s) {
		start := strings.Index(s[i:], "{{")
		if start == -1 {
			break
		}
		start += i

		end := strings.Index(s[start:], "}}")
		if end == -1 {
			break
		}
		end += start

		name := strings.TrimSpace(s[start+2 : end])
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}

		i = end + 2
	}

	return names
}

func defaultFor(declared []models.TemplateVariable, name string) (string, bool) {
	for _, v := range declared {
		if v.Name == name && v.Default != "" {
			return v.Default, true
		}
	}
	return "", false
}
