// internal/models/recipient.go
package models

// RecipientSpec declaratively describes who should receive a notification.
// It is resolved at dispatch time, never stored pre-expanded.
type RecipientSpec struct {
	UserIDs []string          `json:"userIds,omitempty"` // unconditionally included
	Roles   []string          `json:"roles,omitempty"`   // "parent", "teacher", "student", ...
	Classes []ClassSection    `json:"classes,omitempty"`
	Filters []AttributeFilter `json:"filters,omitempty"`
}

// ClassSection targets enrollment in a class, optionally restricted to
// specific sections.
type ClassSection struct {
	ClassID  string   `json:"classId"`
	Sections []string `json:"sections,omitempty"` // empty means all sections
}

// AttributeFilter selects users by an attribute of an external record store,
// e.g. {Attribute: "fee_status", Operator: "eq", Value: "overdue"} or
// {Attribute: "attendance_percent", Operator: "lt", Value: "75"}.
type AttributeFilter struct {
	Attribute string `json:"attribute"`
	Operator  string `json:"operator"`
	Value     string `json:"value"`
}

// Empty reports whether the spec selects nobody by construction.
func (s RecipientSpec) Empty() bool {
	return len(s.UserIDs) == 0 && len(s.Roles) == 0 && len(s.Classes) == 0 && len(s.Filters) == 0
}

// Contact is a recipient's addressing and preference data from the user
// directory.
type Contact struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	DeviceToken string    `json:"deviceToken,omitempty"`
	Platform    string    `json:"platform,omitempty"` // "android", "ios", "web"
	Preferences []Channel `json:"preferences,omitempty"`
}

// Accepts reports whether the contact accepts delivery on the channel. An
// empty preference set means no opt-out.
func (c Contact) Accepts(ch Channel) bool {
	if len(c.Preferences) == 0 {
		return true
	}
	for _, p := range c.Preferences {
		if p == ch {
			return true
		}
	}
	return false
}
