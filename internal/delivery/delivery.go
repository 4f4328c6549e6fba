package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// ErrSendFailed marks a delivery the transport did not complete.
var ErrSendFailed = errors.New("send failed")

// Email is an outgoing email.
type Email struct {
	To      string
	Subject string
	Body    string
	Cc      []string
	Bcc     []string
}

// Meeting is a calendar event to create.
type Meeting struct {
	Summary     string
	Start       time.Time
	End         time.Time
	Attendees   []string
	Description string
}

// MessageSender delivers short text messages.
type MessageSender interface {
	SendMessage(ctx context.Context, recipient, text string) error
}

// EmailSender delivers emails and returns the provider's message id.
type EmailSender interface {
	SendEmail(ctx context.Context, email Email) (string, error)
}

// MeetingScheduler creates calendar events and returns the event id.
type MeetingScheduler interface {
	CreateMeeting(ctx context.Context, meeting Meeting) (string, error)
}

// Failure wraps a transport error or a provider-reported failure as ErrSendFailed.
func Failure(channel string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSendFailed) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", channel, ErrSendFailed, err)
}

// Reason extracts the human readable cause of a delivery failure.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var sendErr *ProviderError
	if errors.As(err, &sendErr) {
		return sendErr.Message
	}
	return err.Error()
}

// ProviderError is a failure the delivery provider reported in its response.
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string {
	return e.Message
}

// Validate checks that an email has a recipient, subject and body, and that
// every address and the subject are safe to put in a header.
func (e Email) Validate() error {
	switch {
	case e.To == "":
		return errors.New("email recipient is required")
	case e.Subject == "":
		return errors.New("email subject is required")
	case e.Body == "":
		return errors.New("email body is required")
	case strings.ContainsAny(e.Subject, "\r\n"):
		return errors.New("email subject must be a single line")
	}

	if err := validAddress("to", e.To); err != nil {
		return err
	}
	for _, addr := range e.Cc {
		if err := validAddress("cc", addr); err != nil {
			return err
		}
	}
	for _, addr := range e.Bcc {
		if err := validAddress("bcc", addr); err != nil {
			return err
		}
	}
	return nil
}

// Compact drops blank Cc and Bcc entries.
func (e Email) Compact() Email {
	e.Cc = nonBlank(e.Cc)
	e.Bcc = nonBlank(e.Bcc)
	return e
}

func nonBlank(addrs []string) []string {
	var out []string
	for _, addr := range addrs {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func validAddress(field, addr string) error {
	if strings.ContainsAny(addr, "\r\n") {
		return fmt.Errorf("%s address %q contains a line break", field, addr)
	}
	if _, err := mail.ParseAddress(addr); err != nil {
		return fmt.Errorf("invalid %s address %q: %w", field, addr, err)
	}
	return nil
}

// Validate checks that a meeting has a summary and a positive duration.
func (m Meeting) Validate() error {
	switch {
	case m.Summary == "":
		return errors.New("meeting summary is required")
	case m.Start.IsZero():
		return errors.New("meeting start time is required")
	case !m.End.After(m.Start):
		return errors.New("meeting must end after it starts")
	}
	return nil
}
