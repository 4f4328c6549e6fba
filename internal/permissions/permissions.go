package permissions

import (
	"fmt"
	"strings"
)

// ActionType is an effectful action the assistant may take on the user's behalf.
type ActionType string

const (
	SendMessage       ActionType = "send_message"
	ScheduleMeeting   ActionType = "schedule_meeting"
	SendEmail         ActionType = "send_email"
	ShareProfile      ActionType = "share_profile"
	RequestConnection ActionType = "request_connection"
)

// Actions lists every known action in a stable order.
var Actions = []ActionType{SendMessage, ScheduleMeeting, SendEmail, ShareProfile, RequestConnection}

// Level is the autonomy a user grants for one action type.
type Level string

const (
	AlwaysAsk     Level = "always_ask"
	AutoHighMatch Level = "auto_high_match"
	AlwaysAuto    Level = "always_auto"
	Never         Level = "never"
)

// Levels lists every known level.
var Levels = []Level{AlwaysAsk, AutoHighMatch, AlwaysAuto, Never}

var defaults = map[ActionType]Level{
	SendMessage:       AutoHighMatch,
	ScheduleMeeting:   AlwaysAsk,
	SendEmail:         AutoHighMatch,
	ShareProfile:      AlwaysAuto,
	RequestConnection: AutoHighMatch,
}

// Permissions maps every action type to its effective level.
type Permissions map[ActionType]Level

// Defaults returns a fresh copy of the default permission set.
func Defaults() Permissions {
	out := make(Permissions, len(defaults))
	for action, level := range defaults {
		out[action] = level
	}
	return out
}

// DefaultLevel returns the level an action has when the user never set one.
func DefaultLevel(action ActionType) Level {
	if level, ok := defaults[action]; ok {
		return level
	}
	return AlwaysAsk
}

// ParseAction validates an action name typed by a person. Case and surrounding
// space are ignored.
func ParseAction(raw string) (ActionType, error) {
	action := ActionType(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := defaults[action]; !ok {
		return "", fmt.Errorf("unknown action type %q", raw)
	}
	return action, nil
}

// ParseLevel validates a level name typed by a person. Case and surrounding
// space are ignored.
func ParseLevel(raw string) (Level, error) {
	level := Level(strings.ToLower(strings.TrimSpace(raw)))
	if !level.Valid() {
		return "", fmt.Errorf("unknown permission level %q", raw)
	}
	return level, nil
}

// Valid reports whether l is exactly one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case AlwaysAsk, AutoHighMatch, AlwaysAuto, Never:
		return true
	default:
		return false
	}
}

// Allows applies the decision table for a single level.
func (l Level) Allows(isHighMatch bool) bool {
	switch l {
	case AlwaysAuto:
		return true
	case AutoHighMatch:
		return isHighMatch
	default:
		return false
	}
}

// Allows reports whether action may run without asking.
func (p Permissions) Allows(action ActionType, isHighMatch bool) bool {
	level, ok := p[action]
	if !ok {
		level = DefaultLevel(action)
	}
	return level.Allows(isHighMatch)
}

// Resolve builds the effective permission set from a raw stored map.
// Stored values must match a level exactly; missing, unknown, non-string or
// differently cased values fall back to the defaults.
func Resolve(raw map[string]any) Permissions {
	out := Defaults()
	for _, action := range Actions {
		value, ok := raw[string(action)]
		if !ok {
			continue
		}
		s, ok := value.(string)
		if !ok {
			continue
		}
		if level := Level(s); level.Valid() {
			out[action] = level
		}
	}
	return out
}
