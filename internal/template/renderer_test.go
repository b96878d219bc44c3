// internal/template/renderer_test.go
package template

import (
	"testing"

	"school-notify/internal/models"

	"github.com/stretchr/testify/assert"
)

// ==========================
// Render Tests
// ==========================

func TestRender_Substitution(t *testing.T) {
	tests := []struct {
		name        string
		tmpl        string
		vars        map[string]string
		declared    []models.TemplateVariable
		expected    string
		wantMissing []string
	}{
		{
			name:     "single placeholder",
			tmpl:     "Dear {{parent_name}}, welcome.",
			vars:     map[string]string{"parent_name": "Mrs. Rao"},
			expected: "Dear Mrs. Rao, welcome.",
		},
		{
			name: "multiple placeholders",
			tmpl: "Fee of {{amount}} for {{student_name}} is due on {{due_date}}.",
			vars: map[string]string{
				"amount":       "₹4500",
				"student_name": "Aarav",
				"due_date":     "2026-09-15",
			},
			expected: "Fee of ₹4500 for Aarav is due on 2026-09-15.",
		},
		{
			name:     "no placeholders renders to itself",
			tmpl:     "School closed tomorrow.",
			vars:     map[string]string{"unused": "x"},
			expected: "School closed tomorrow.",
		},
		{
			name:     "repeated placeholder substituted everywhere",
			tmpl:     "{{name}}, yes {{name}}",
			vars:     map[string]string{"name": "Kiran"},
			expected: "Kiran, yes Kiran",
		},
		{
			name: "default used when variable absent",
			tmpl: "Venue: {{venue}}",
			declared: []models.TemplateVariable{
				{Name: "venue", Type: "string", Default: "Main Hall"},
			},
			expected: "Venue: Main Hall",
		},
		{
			name: "provided value wins over default",
			tmpl: "Venue: {{venue}}",
			vars: map[string]string{"venue": "Auditorium"},
			declared: []models.TemplateVariable{
				{Name: "venue", Default: "Main Hall"},
			},
			expected: "Venue: Auditorium",
		},
		{
			name:        "unresolved marker left in place",
			tmpl:        "Hello {{ghost}}!",
			expected:    "Hello {{ghost}}!",
			wantMissing: []string{"ghost"},
		},
		{
			name:     "whitespace inside marker trimmed",
			tmpl:     "Hi {{ name }}",
			vars:     map[string]string{"name": "Zara"},
			expected: "Hi Zara",
		},
		{
			name:     "unterminated marker copied through",
			tmpl:     "broken {{name",
			vars:     map[string]string{"name": "x"},
			expected: "broken {{name",
		},
		{
			name:     "empty template",
			tmpl:     "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, missing := Render(tt.tmpl, tt.vars, tt.declared)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.wantMissing, missing)
		})
	}
}

func TestRender_Deterministic(t *testing.T) {
	tmpl := "Fee {{amount}} due {{due_date}} for {{student}}"
	vars := map[string]string{"amount": "1200", "due_date": "Friday", "student": "Meera"}

	first, _ := Render(tmpl, vars, nil)
	for i := 0; i < 10; i++ {
		again, _ := Render(tmpl, vars, nil)
		assert.Equal(t, first, again)
	}
}

func TestRender_FullyRenderedIsFixpoint(t *testing.T) {
	rendered, missing := Render("Dear {{name}}, fee due.", map[string]string{"name": "Sam"}, nil)
	assert.Empty(t, missing)

	// a string with no remaining markers renders to itself
	again, missing := Render(rendered, map[string]string{"name": "OTHER"}, nil)
	assert.Equal(t, rendered, again)
	assert.Empty(t, missing)
}

func TestRenderContent_AllFields(t *testing.T) {
	content := models.ChannelContent{
		Title:   "Fee reminder for {{student}}",
		Subject: "Fees due {{due_date}}",
		Body:    "Dear parent, {{amount}} is pending for {{student}}.",
	}
	vars := map[string]string{"student": "Aarav", "due_date": "Monday", "amount": "4500"}

	got, missing := RenderContent(content, vars, nil)
	assert.Empty(t, missing)
	assert.Equal(t, "Fee reminder for Aarav", got.Title)
	assert.Equal(t, "Fees due Monday", got.Subject)
	assert.Equal(t, "Dear parent, 4500 is pending for Aarav.", got.Body)
}

func TestRenderContent_CollectsMissingAcrossFields(t *testing.T) {
	content := models.ChannelContent{
		Title: "{{a}}",
		Body:  "{{b}} and {{c}}",
	}

	_, missing := RenderContent(content, nil, nil)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, missing)
}

// ==========================
// Placeholder Extraction Tests
// ==========================

func TestPlaceholders(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected []string
	}{
		{
			name:     "distinct names in order of first appearance",
			in:       "{{b}} {{a}} {{b}}",
			expected: []string{"b", "a"},
		},
		{
			name:     "none",
			in:       "plain text",
			expected: nil,
		},
		{
			name:     "empty marker ignored",
			in:       "{{}} {{x}}",
			expected: []string{"x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Placeholders(tt.in))
		})
	}
}
