package agent

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/spigell/socius/internal/ai"
)

// ErrUnknownTool is returned for tool names outside the supported set.
var ErrUnknownTool = errors.New("unknown tool")

// ErrInvalidToolArgs is returned when tool arguments do not decode or validate.
var ErrInvalidToolArgs = errors.New("invalid tool arguments")

type ToolName string

const (
	ToolSendMessage     ToolName = "send_message"
	ToolSendEmail       ToolName = "send_email"
	ToolScheduleMeeting ToolName = "schedule_meeting"
	ToolGetProfile      ToolName = "get_profile"
	ToolCalculateMatch  ToolName = "calculate_match"
)

const defaultMeetingMinutes = 30

// ToolCall is one decoded tool invocation. The concrete types below are the
// complete set of variants.
type ToolCall interface {
	Tool() ToolName
	validate() error
}

type SendMessageCall struct {
	Recipient string `mapstructure:"recipient"`
	Message   string `mapstructure:"message"`
}

type SendEmailCall struct {
	To      string   `mapstructure:"to"`
	Subject string   `mapstructure:"subject"`
	Body    string   `mapstructure:"body"`
	Cc      []string `mapstructure:"cc"`
	Bcc     []string `mapstructure:"bcc"`
}

type ScheduleMeetingCall struct {
	Summary         string   `mapstructure:"summary"`
	StartTime       string   `mapstructure:"start_time"`
	DurationMinutes int      `mapstructure:"duration_minutes"`
	Attendees       []string `mapstructure:"attendees"`
	Description     string   `mapstructure:"description"`
}

type GetProfileCall struct {
	UserID string `mapstructure:"user_id"`
}

type CalculateMatchCall struct {
	OtherUserID string `mapstructure:"other_user_id"`
}

func (SendMessageCall) Tool() ToolName     { return ToolSendMessage }
func (SendEmailCall) Tool() ToolName       { return ToolSendEmail }
func (ScheduleMeetingCall) Tool() ToolName { return ToolScheduleMeeting }
func (GetProfileCall) Tool() ToolName      { return ToolGetProfile }
func (CalculateMatchCall) Tool() ToolName  { return ToolCalculateMatch }

func (c SendMessageCall) validate() error {
	return required(map[string]string{"recipient": c.Recipient, "message": c.Message})
}

func (c SendEmailCall) validate() error {
	return required(map[string]string{"to": c.To, "subject": c.Subject, "body": c.Body})
}

func (c ScheduleMeetingCall) validate() error {
	if err := required(map[string]string{"summary": c.Summary, "start_time": c.StartTime}); err != nil {
		return err
	}
	if len(c.Attendees) == 0 {
		return errors.New("attendees is required")
	}
	if c.DurationMinutes < 0 {
		return errors.New("duration_minutes must not be negative")
	}
	if _, err := parseStartTime(c.StartTime); err != nil {
		return err
	}
	return nil
}

func (c GetProfileCall) validate() error {
	return required(map[string]string{"user_id": c.UserID})
}

func (c CalculateMatchCall) validate() error {
	return required(map[string]string{"other_user_id": c.OtherUserID})
}

// Window returns the start and end of the requested meeting.
func (c ScheduleMeetingCall) Window() (time.Time, time.Time, error) {
	start, err := parseStartTime(c.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	minutes := c.DurationMinutes
	if minutes == 0 {
		minutes = defaultMeetingMinutes
	}
	return start, start.Add(time.Duration(minutes) * time.Minute), nil
}

// DecodeToolCall turns a raw invocation into its typed variant.
func DecodeToolCall(name string, args map[string]any) (ToolCall, error) {
	var call ToolCall
	switch ToolName(name) {
	case ToolSendMessage:
		call = &SendMessageCall{}
	case ToolSendEmail:
		call = &SendEmailCall{}
	case ToolScheduleMeeting:
		call = &ScheduleMeetingCall{}
	case ToolGetProfile:
		call = &GetProfileCall{}
	case ToolCalculateMatch:
		call = &CalculateMatchCall{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           call,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(args); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidToolArgs, name, err)
	}
	if err := call.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidToolArgs, name, err)
	}

	return call, nil
}

func required(fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("%s is required", strings.Join(missing, ", "))
}

func parseStartTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("start_time %q is not an ISO 8601 timestamp", raw)
}

// ToolSpecs declares every supported tool to the assistant.
func ToolSpecs() []ai.ToolSpec {
	str := func(desc string) *ai.Schema { return &ai.Schema{Type: ai.TypeString, Description: desc} }

	return []ai.ToolSpec{
		{
			Name:        string(ToolSendMessage),
			Description: "Send a text message to someone. Recipient is a phone number or email.",
			Parameters: &ai.Schema{
				Type: ai.TypeObject,
				Properties: map[string]*ai.Schema{
					"recipient": str("Phone number or email of the recipient"),
					"message":   str("Message content to send"),
				},
				Required: []string{"recipient", "message"},
			},
		},
		{
			Name:        string(ToolSendEmail),
			Description: "Send an email to someone.",
			Parameters: &ai.Schema{
				Type: ai.TypeObject,
				Properties: map[string]*ai.Schema{
					"to":      str("Recipient email address"),
					"subject": str("Email subject"),
					"body":    str("Email body content"),
					"cc":      {Type: ai.TypeArray, Items: str(""), Description: "Optional cc addresses"},
					"bcc":     {Type: ai.TypeArray, Items: str(""), Description: "Optional bcc addresses"},
				},
				Required: []string{"to", "subject", "body"},
			},
		},
		{
			Name:        string(ToolScheduleMeeting),
			Description: "Schedule a calendar meeting.",
			Parameters: &ai.Schema{
				Type: ai.TypeObject,
				Properties: map[string]*ai.Schema{
					"summary":          str("Meeting title"),
					"start_time":       str("Start time in ISO 8601 format"),
					"duration_minutes": {Type: ai.TypeInteger, Description: "Duration in minutes"},
					"attendees":        {Type: ai.TypeArray, Items: str(""), Description: "List of attendee emails"},
					"description":      str("Optional meeting description"),
				},
				Required: []string{"summary", "start_time", "duration_minutes", "attendees"},
			},
		},
		{
			Name:        string(ToolGetProfile),
			Description: "Get a user's profile information.",
			Parameters: &ai.Schema{
				Type:       ai.TypeObject,
				Properties: map[string]*ai.Schema{"user_id": str("User ID to fetch")},
				Required:   []string{"user_id"},
			},
		},
		{
			Name:        string(ToolCalculateMatch),
			Description: "Calculate the compatibility score between me and another user.",
			Parameters: &ai.Schema{
				Type:       ai.TypeObject,
				Properties: map[string]*ai.Schema{"other_user_id": str("ID of the other user")},
				Required:   []string{"other_user_id"},
			},
		},
	}
}
