package permissions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/socius/internal/logger"
	"github.com/spigell/socius/internal/store"
)

// PreferenceStore reads and writes per-user preference records.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID string) (*store.Preferences, error)
	UpdatePreferences(ctx context.Context, userID string, update *store.PreferencesUpdate) error
}

// InteractionLogger appends records to the interaction log.
type InteractionLogger interface {
	LogInteraction(ctx context.Context, interaction *store.Interaction) error
}

// Policy decides whether an action may run without asking the user.
// Every decision reads the stored preferences afresh.
type Policy struct {
	prefs        PreferenceStore
	interactions InteractionLogger
	logger       *zap.Logger
}

func NewPolicy(prefs PreferenceStore, interactions InteractionLogger, logger *zap.Logger) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Policy{prefs: prefs, interactions: interactions, logger: logger}
}

// UserPermissions returns the effective permissions of userID.
func (p *Policy) UserPermissions(ctx context.Context, userID string) (Permissions, error) {
	prefs, err := p.prefs.GetPreferences(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load preferences of %s: %w", userID, err)
	}
	if prefs == nil {
		return Defaults(), nil
	}

	return Resolve(prefs.Permissions), nil
}

// CanAutoExecute reports whether action may run for userID without confirmation.
func (p *Policy) CanAutoExecute(ctx context.Context, userID string, action ActionType, isHighMatch bool) (bool, error) {
	perms, err := p.UserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}

	allowed := perms.Allows(action, isHighMatch)
	p.logger.Debug("permission decision",
		zap.String(logger.FieldUserID, userID),
		zap.String(logger.FieldAction, string(action)),
		zap.String("level", string(perms[action])),
		zap.Bool(logger.FieldHighMatch, isHighMatch),
		zap.Bool("allowed", allowed),
	)

	return allowed, nil
}

// UpdatePermission stores a new level for one action, leaving the others untouched.
func (p *Policy) UpdatePermission(ctx context.Context, userID string, action ActionType, level Level) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", store.ErrValidation)
	}
	action, err := ParseAction(string(action))
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	level, err = ParseLevel(string(level))
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	prefs, err := p.prefs.GetPreferences(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load preferences of %s: %w", userID, err)
	}

	raw := map[string]any{}
	if prefs != nil {
		for k, v := range prefs.Permissions {
			raw[k] = v
		}
	}
	raw[string(action)] = string(level)

	if err := p.prefs.UpdatePreferences(ctx, userID, &store.PreferencesUpdate{Permissions: raw}); err != nil {
		return fmt.Errorf("update preferences of %s: %w", userID, err)
	}

	p.logger.Info("permission updated",
		zap.String("user_id", userID),
		zap.String("action", string(action)),
		zap.String("level", string(level)),
	)

	return nil
}

// LogPermissionResponse records the user's answer to a permission request.
func (p *Policy) LogPermissionResponse(ctx context.Context, userID string, action ActionType, approved bool, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}

	otherUserID, _ := details["other_user_id"].(string)

	interaction := &store.Interaction{
		UserID:      userID,
		OtherUserID: otherUserID,
		Type:        "permission_" + string(action),
		Metadata: map[string]any{
			"approved":    approved,
			"action_type": string(action),
			"context":     details,
		},
	}

	if err := p.interactions.LogInteraction(ctx, interaction); err != nil {
		return fmt.Errorf("log permission response: %w", err)
	}

	return nil
}
