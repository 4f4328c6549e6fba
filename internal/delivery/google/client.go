package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/spigell/socius/internal/delivery"
)

const (
	emailChannel      = "gmail"
	calendarChannel   = "calendar"
	defaultCalendarID = "primary"
)

type Config struct {
	CredentialsFile string `mapstructure:"credentials-file"`
	CalendarID      string `mapstructure:"calendar-id"`
	Sender          string `mapstructure:"sender"`
}

// Client sends email through Gmail and creates events in Google Calendar.
type Client struct {
	gmail      *gmail.Service
	calendar   *calendar.Service
	calendarID string
	sender     string
	logger     *zap.Logger
}

var (
	_ delivery.EmailSender      = (*Client)(nil)
	_ delivery.MeetingScheduler = (*Client)(nil)
)

// New creates both service clients. Extra options are appended after the credentials.
func New(ctx context.Context, cfg Config, logger *zap.Logger, opts ...option.ClientOption) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOpts := []option.ClientOption{
		option.WithScopes(gmail.GmailSendScope, calendar.CalendarEventsScope),
	}
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(file))
	}
	clientOpts = append(clientOpts, opts...)

	gmailSvc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail client: %w", err)
	}

	calendarSvc, err := calendar.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar client: %w", err)
	}

	calendarID := strings.TrimSpace(cfg.CalendarID)
	if calendarID == "" {
		calendarID = defaultCalendarID
	}

	return &Client{
		gmail:      gmailSvc,
		calendar:   calendarSvc,
		calendarID: calendarID,
		sender:     strings.TrimSpace(cfg.Sender),
		logger:     logger,
	}, nil
}

// SendEmail sends a plain-text email from the authenticated account.
func (c *Client) SendEmail(ctx context.Context, email delivery.Email) (string, error) {
	if err := email.Validate(); err != nil {
		return "", delivery.Failure(emailChannel, err)
	}

	raw := buildMessage(c.sender, email)
	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}

	sent, err := c.gmail.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		return "", delivery.Failure(emailChannel, err)
	}

	c.logger.Info("email sent", zap.String("to", email.To), zap.String("message_id", sent.Id))
	return sent.Id, nil
}

// CreateMeeting inserts an event and notifies the attendees.
func (c *Client) CreateMeeting(ctx context.Context, meeting delivery.Meeting) (string, error) {
	if err := meeting.Validate(); err != nil {
		return "", delivery.Failure(calendarChannel, err)
	}

	event := &calendar.Event{
		Summary:     meeting.Summary,
		Description: meeting.Description,
		Start:       &calendar.EventDateTime{DateTime: meeting.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: meeting.End.Format(time.RFC3339)},
	}
	for _, attendee := range meeting.Attendees {
		if attendee = strings.TrimSpace(attendee); attendee != "" {
			event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: attendee})
		}
	}

	created, err := c.calendar.Events.Insert(c.calendarID, event).SendUpdates("all").Context(ctx).Do()
	if err != nil {
		return "", delivery.Failure(calendarChannel, err)
	}
	if created.Id == "" {
		return "", delivery.Failure(calendarChannel, errors.New("calendar returned no event id"))
	}

	c.logger.Info("meeting created",
		zap.String("event_id", created.Id),
		zap.String("start", event.Start.DateTime),
		zap.Int("attendees", len(event.Attendees)),
	)
	return created.Id, nil
}

func buildMessage(from string, email delivery.Email) []byte {
	var buf bytes.Buffer

	header := func(key, value string) {
		if value != "" {
			fmt.Fprintf(&buf, "%s: %s\r\n", key, value)
		}
	}

	header("From", from)
	header("To", email.To)
	header("Cc", strings.Join(email.Cc, ", "))
	header("Bcc", strings.Join(email.Bcc, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", email.Subject))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="UTF-8"`)
	buf.WriteString("\r\n")
	buf.WriteString(email.Body)

	return buf.Bytes()
}
