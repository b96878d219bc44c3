// internal/template/validate.go
package template

import (
	"fmt"
	"strings"

	"school-notify/internal/common/errors"
	"school-notify/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

// definitionSchema constrains raw template definitions on registration.
const definitionSchema = `{
  "type": "object",
  "required": ["name", "type", "channels"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "type": {"type": "string", "minLength": 1},
    "category": {"type": "string"},
    "channels": {
      "type": "object",
      "minProperties": 1,
      "patternProperties": {
        "^(in_app|email|sms|push)$": {
          "type": "object",
          "required": ["body"],
          "properties": {
            "title": {"type": "string"},
            "subject": {"type": "string"},
            "body": {"type": "string", "minLength": 1}
          }
        }
      },
      "additionalProperties": false
    },
    "variables": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "type": {"type": "string", "enum": ["string", "number", "date"]},
          "required": {"type": "boolean"},
          "default": {"type": "string"}
        }
      }
    },
    "recipients": {"type": "object"},
    "settings": {
      "type": "object",
      "properties": {
        "priority": {"type": "string", "enum": ["low", "normal", "high", "urgent"]},
        "enabledChannels": {
          "type": "array",
          "items": {"type": "string", "enum": ["in_app", "email", "sms", "push"]}
        },
        "requireApproval": {"type": "boolean"}
      }
    }
  }
}`

// ValidateDefinition checks a raw JSON template definition against the
// registration schema.
func ValidateDefinition(raw []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(definitionSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return errors.NewTemplateValidationFailedError(err.Error())
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return errors.NewTemplateValidationFailedError(strings.Join(msgs, "; "))
	}

	return nil
}

// CheckPlaceholders verifies that every placeholder referenced in any
// channel's content appears in the declared variable set. Silent
// pass-through of unknown placeholders is a defect class this keeps out of
// the store entirely.
func CheckPlaceholders(t *models.Template) error {
	declared := map[string]bool{}
	for _, v := range t.Variables {
		declared[v.Name] = true
	}

	var unknown []string
	for ch, content := range t.Channels {
		for _, s := range []string{content.Title, content.Subject, content.Body} {
			for _, name := range Placeholders(s) {
				if !declared[name] {
					unknown = append(unknown, fmt.Sprintf("%s (%s)", name, ch))
				}
			}
		}
	}

	if len(unknown) > 0 {
		return errors.NewTemplateValidationFailedError(
			fmt.Sprintf("undeclared placeholders: %s", strings.Join(unknown, ", ")))
	}

	return nil
}
