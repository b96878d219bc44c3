// internal/models/template.go
package models

import "time"

// Template is a reusable notification definition: per-channel content with
// placeholders, a declared variable set, and default settings.
type Template struct {
	Name       string                     `json:"name"` // unique
	Type       string                     `json:"type"` // "fee_overdue", "exam_schedule", ...
	Category   string                     `json:"category"`
	Channels   map[Channel]ChannelContent `json:"channels"`
	Variables  []TemplateVariable         `json:"variables"`
	Recipients RecipientSpec              `json:"recipients"` // default recipient spec
	Settings   TemplateSettings           `json:"settings"`
	CreatedAt  time.Time                  `json:"createdAt"`
	UpdatedAt  time.Time                  `json:"updatedAt"`
}

// ChannelContent is one channel's placeholder-bearing content.
type ChannelContent struct {
	Title   string `json:"title,omitempty"`   // in-app / push
	Subject string `json:"subject,omitempty"` // email
	Body    string `json:"body"`
}

// TemplateVariable declares a placeholder that may appear in channel content.
type TemplateVariable struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"` // "string", "number", "date"
	Required bool   `json:"required"`
	Default  string `json:"default,omitempty"`
}

// TemplateSettings are the defaults applied to notifications built from the
// template.
type TemplateSettings struct {
	Priority        Priority      `json:"priority,omitempty"`
	EnabledChannels []Channel     `json:"enabledChannels"`
	Expiry          time.Duration `json:"expiry,omitempty"`
	RequireApproval bool          `json:"requireApproval"`
}

// Variable returns the declared variable with the given name, if any.
func (t *Template) Variable(name string) (TemplateVariable, bool) {
	for _, v := range t.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return TemplateVariable{}, false
}
