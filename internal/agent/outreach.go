package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/socius/internal/delivery"
	"github.com/spigell/socius/internal/logger"
	"github.com/spigell/socius/internal/matching"
	"github.com/spigell/socius/internal/permissions"
	"github.com/spigell/socius/internal/profile"
	"github.com/spigell/socius/internal/store"
	"github.com/spigell/socius/internal/utils"
)

// Action names the result of one outreach decision.
type Action string

const (
	ActionSkip              Action = "skip"
	ActionRequestPermission Action = "request_permission"
	ActionSentMessage       Action = "sent_message"
	ActionSentEmail         Action = "sent_email"
	ActionNoContactMethod   Action = "no_contact_method"
)

// InteractionOutreach is the interaction log type of an autonomous outreach attempt.
const InteractionOutreach = "autonomous_outreach"

const (
	reasonNoProfile          = "No profile found"
	defaultEventName         = "the event"
	emailSubjectTemplate     = "Great to connect at %s!"
	errMessageChannelMissing = "message channel is not configured"
	errEmailChannelMissing   = "email channel is not configured"
)

// Detection describes how and where another person was noticed.
type Detection map[string]any

// EventName returns the event the detection happened at, if any.
func (d Detection) EventName() string {
	name, _ := d["event_name"].(string)
	return strings.TrimSpace(name)
}

// Outcome is the decision taken for one detected person.
type Outcome struct {
	Action     Action           `json:"action"`
	Reason     string           `json:"reason,omitempty"`
	OtherUser  *profile.Profile `json:"other_user,omitempty"`
	MatchScore *float64         `json:"match_score,omitempty"`
	Context    Detection        `json:"context,omitempty"`
	Recipient  string           `json:"recipient,omitempty"`
	Message    string           `json:"message,omitempty"`
	Success    *bool            `json:"success,omitempty"`
	Error      string           `json:"error,omitempty"`
	DeliveryID string           `json:"delivery_id,omitempty"`
}

// HandleNewPersonNearby scores a newly detected person and either reaches out,
// asks the user for permission, or skips.
func (a *Agent) HandleNewPersonNearby(ctx context.Context, otherUserID string, detection Detection) (*Outcome, error) {
	log := logger.WithFields(a.logger, logger.UserFields("", otherUserID)...)
	self := a.refreshSelf(ctx)

	other, err := a.otherProfile(ctx, otherUserID)
	if err != nil {
		return nil, err
	}
	if other == nil {
		log.Info("no profile for detected person, skipping")
		return &Outcome{Action: ActionSkip, Reason: reasonNoProfile}, nil
	}

	result := a.deps.Scorer.Evaluate(self, other)
	log.Debug("match evaluated", logger.MatchFields(result.Score, result.IsHighMatch, result.Reason)...)

	allowed, err := a.deps.Gate.CanAutoExecute(ctx, a.cfg.UserID, permissions.SendMessage, result.IsHighMatch)
	if err != nil {
		return nil, fmt.Errorf("check send permission: %w", err)
	}

	if !allowed {
		log.Info("outreach needs approval", zap.Float64(logger.FieldScore, result.Score))
		return &Outcome{
			Action:     ActionRequestPermission,
			Reason:     result.Reason,
			OtherUser:  other,
			MatchScore: ptr(result.Score),
			Context:    detection,
		}, nil
	}

	return a.autonomousOutreach(ctx, log, other, result, detection)
}

// ReachOut performs the outreach the user approved after a request_permission
// outcome. The permission gate is not consulted again.
func (a *Agent) ReachOut(ctx context.Context, otherUserID string, detection Detection) (*Outcome, error) {
	log := logger.WithFields(a.logger, logger.UserFields("", otherUserID)...)
	self := a.refreshSelf(ctx)

	other, err := a.otherProfile(ctx, otherUserID)
	if err != nil {
		return nil, err
	}
	if other == nil {
		return &Outcome{Action: ActionSkip, Reason: reasonNoProfile}, nil
	}

	log.Info("reaching out with user approval")
	return a.autonomousOutreach(ctx, log, other, a.deps.Scorer.Evaluate(self, other), detection)
}

// otherProfile returns nil without error when the person has no profile.
func (a *Agent) otherProfile(ctx context.Context, otherUserID string) (*profile.Profile, error) {
	other, err := a.deps.Profiles.GetProfile(ctx, otherUserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile of %s: %w", otherUserID, err)
	}
	if other.ID == "" {
		other.ID = otherUserID
	}
	return other, nil
}

func (a *Agent) autonomousOutreach(ctx context.Context, log *zap.Logger, other *profile.Profile, result matching.Result, detection Detection) (*Outcome, error) {
	prefs, err := a.preferences(ctx)
	if err != nil {
		return nil, err
	}

	prompt := a.outreachPrompt(other, result, detection)
	draft, err := a.deps.Assistant.Generate(ctx, a.systemPrompt(prefs), prompt)
	if err != nil {
		return nil, fmt.Errorf("draft introduction: %w", err)
	}
	draft = strings.TrimSpace(draft)
	if draft == "" {
		return nil, errors.New("draft introduction: assistant returned an empty message")
	}

	log.Debug("introduction drafted", zap.String("draft", utils.TruncateForLog(draft, a.cfg.MaxLogLength)))

	outcome := &Outcome{
		Recipient: other.DisplayName(other.ID),
		Message:   draft,
	}

	phone := strings.TrimSpace(other.Contact.Phone)
	email := strings.TrimSpace(other.Contact.Email)

	var sendErr error
	switch {
	case phone != "":
		outcome.Action = ActionSentMessage
		if a.deps.Messages == nil {
			sendErr = delivery.Failure("message", errors.New(errMessageChannelMissing))
			break
		}
		sendErr = a.deps.Messages.SendMessage(ctx, phone, draft)
	case email != "":
		outcome.Action = ActionSentEmail
		if a.deps.Email == nil {
			sendErr = delivery.Failure("email", errors.New(errEmailChannelMissing))
			break
		}
		event := detection.EventName()
		if event == "" {
			event = defaultEventName
		}
		outcome.DeliveryID, sendErr = a.deps.Email.SendEmail(ctx, delivery.Email{
			To:      email,
			Subject: fmt.Sprintf(emailSubjectTemplate, event),
			Body:    draft,
		})
	default:
		log.Info("no contact method for matched person")
		return &Outcome{Action: ActionNoContactMethod, Recipient: outcome.Recipient}, nil
	}

	outcome.Success = ptr(sendErr == nil)
	if sendErr != nil {
		outcome.Error = delivery.Reason(sendErr)
		log.Warn("outreach delivery failed", zap.String(logger.FieldAction, string(outcome.Action)), zap.Error(sendErr))
	} else {
		log.Info("outreach sent", zap.String(logger.FieldAction, string(outcome.Action)), zap.Float64(logger.FieldScore, result.Score))
	}

	err = a.deps.Interactions.LogInteraction(ctx, &store.Interaction{
		UserID:      a.cfg.UserID,
		OtherUserID: other.ID,
		Type:        InteractionOutreach,
		Metadata: map[string]any{
			"match_score": result.Score,
			"context":     map[string]any(detection),
			"channel":     string(outcome.Action),
			"success":     sendErr == nil,
		},
	})
	if err != nil {
		return outcome, fmt.Errorf("log outreach: %w", err)
	}

	return outcome, nil
}

func ptr[T any](v T) *T {
	return &v
}
