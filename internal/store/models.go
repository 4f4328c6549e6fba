package store

import "time"

// ConversationStyle describes how the assistant should write on the user's behalf.
type ConversationStyle struct {
	Tone       string `json:"tone,omitempty"`
	Length     string `json:"length,omitempty"`
	Formality  string `json:"formality,omitempty"`
	EmojiUsage bool   `json:"emoji_usage"`
}

// Preferences is the per-user settings record. Permission values are kept raw:
// a stored value may be anything, and interpreting it is up to the caller.
type Preferences struct {
	UserID              string            `json:"user_id"`
	ConversationStyle   ConversationStyle `json:"conversation_style"`
	Permissions         map[string]any    `json:"permissions"`
	HighMatchThreshold  float64           `json:"high_match_threshold"`
	AutoScheduleEnabled bool              `json:"auto_schedule_enabled"`
}

// PreferencesUpdate is a partial preferences update. Nil fields are left untouched.
type PreferencesUpdate struct {
	ConversationStyle   *ConversationStyle `json:"conversation_style,omitempty"`
	Permissions         map[string]any     `json:"permissions,omitempty"`
	HighMatchThreshold  *float64           `json:"high_match_threshold,omitempty"`
	AutoScheduleEnabled *bool              `json:"auto_schedule_enabled,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u *PreferencesUpdate) IsEmpty() bool {
	return u == nil || (u.ConversationStyle == nil && u.Permissions == nil &&
		u.HighMatchThreshold == nil && u.AutoScheduleEnabled == nil)
}

// Apply merges the update into p.
func (u *PreferencesUpdate) Apply(p *Preferences) {
	if u == nil || p == nil {
		return
	}
	if u.ConversationStyle != nil {
		p.ConversationStyle = *u.ConversationStyle
	}
	if u.Permissions != nil {
		p.Permissions = make(map[string]any, len(u.Permissions))
		for k, v := range u.Permissions {
			p.Permissions[k] = v
		}
	}
	if u.HighMatchThreshold != nil {
		p.HighMatchThreshold = *u.HighMatchThreshold
	}
	if u.AutoScheduleEnabled != nil {
		p.AutoScheduleEnabled = *u.AutoScheduleEnabled
	}
}

// DefaultPreferences is returned for users who never saved preferences.
func DefaultPreferences(userID string) *Preferences {
	return &Preferences{
		UserID: userID,
		ConversationStyle: ConversationStyle{
			Tone:      "professional",
			Length:    "moderate",
			Formality: "semi-formal",
		},
		Permissions: map[string]any{
			"send_message":       "auto_high_match",
			"schedule_meeting":   "always_ask",
			"send_email":         "auto_high_match",
			"share_profile":      "always_auto",
			"request_connection": "auto_high_match",
		},
		HighMatchThreshold:  0.75,
		AutoScheduleEnabled: true,
	}
}

// Message is one entry of a conversation history.
type Message struct {
	Sender    string         `json:"sender"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Interaction is an audit record of something that happened between two users.
type Interaction struct {
	ID          string         `json:"id,omitempty"`
	UserID      string         `json:"user_id"`
	OtherUserID string         `json:"other_user_id"`
	Type        string         `json:"interaction_type"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at,omitempty"`
}

// InteractionFilter narrows ListInteractions results. Empty fields match everything.
type InteractionFilter struct {
	UserID      string
	OtherUserID string
	Type        string
	Limit       int
}
