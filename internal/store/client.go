package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/socius/internal/profile"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "socius-agent"

	// DefaultHistoryLimit is the number of conversation messages fetched when no limit is given.
	DefaultHistoryLimit = 50
)

// Client talks to the data-store service that keeps profiles, preferences,
// conversations and the interaction log.
type Client struct {
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

// New returns a client for the service at apiURL. A zero timeout uses the default.
func New(apiURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		token:  token,
		logger: logger,
		APIURL: strings.TrimRight(apiURL, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		UserAgent: userAgent,
	}
}

// GetProfile returns the profile of userID. A missing profile is reported as ErrNotFound.
func (c *Client) GetProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	var p profile.Profile
	if err := c.do(ctx, http.MethodGet, "/profiles/"+url.PathEscape(userID), nil, nil, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = userID
	}
	return &p, nil
}

// UpdateProfile applies a partial update to the profile of userID.
func (c *Client) UpdateProfile(ctx context.Context, userID string, update *profile.Update) error {
	if update.IsEmpty() {
		return &RequestError{Kind: ErrValidation, Method: http.MethodPatch, Path: "/profiles/" + userID, Detail: "empty profile update"}
	}
	return c.do(ctx, http.MethodPatch, "/profiles/"+url.PathEscape(userID), nil, update, nil)
}

// GetPreferences returns the preferences of userID, or the defaults when none are stored.
func (c *Client) GetPreferences(ctx context.Context, userID string) (*Preferences, error) {
	var prefs Preferences
	err := c.do(ctx, http.MethodGet, "/preferences/"+url.PathEscape(userID), nil, nil, &prefs)
	if errors.Is(err, ErrNotFound) {
		c.logger.Debug("preferences not found, using defaults", zap.String("user_id", userID))
		return DefaultPreferences(userID), nil
	}
	if err != nil {
		return nil, err
	}
	if prefs.UserID == "" {
		prefs.UserID = userID
	}
	return &prefs, nil
}

// UpdatePreferences applies a partial update to the preferences of userID.
func (c *Client) UpdatePreferences(ctx context.Context, userID string, update *PreferencesUpdate) error {
	if update.IsEmpty() {
		return &RequestError{Kind: ErrValidation, Method: http.MethodPatch, Path: "/preferences/" + userID, Detail: "empty preferences update"}
	}
	return c.do(ctx, http.MethodPatch, "/preferences/"+url.PathEscape(userID), nil, update, nil)
}

// GetHistory returns up to limit most recent messages of a conversation, oldest first.
// An unknown conversation has an empty history.
func (c *Client) GetHistory(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var resp struct {
		Messages []Message `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID), q, nil, &resp)
	if errors.Is(err, ErrNotFound) {
		c.logger.Debug("conversation not found", zap.String("conversation_id", conversationID))
		return []Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	if resp.Messages == nil {
		resp.Messages = []Message{}
	}
	return resp.Messages, nil
}

// AppendMessage stores a message at the end of a conversation.
func (c *Client) AppendMessage(ctx context.Context, conversationID, sender, message string, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	body := map[string]any{
		"sender":   sender,
		"message":  message,
		"metadata": metadata,
	}
	return c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/messages", nil, body, nil)
}

// LogInteraction appends a record to the interaction log.
func (c *Client) LogInteraction(ctx context.Context, interaction *Interaction) error {
	if interaction.Metadata == nil {
		interaction.Metadata = map[string]any{}
	}
	return c.do(ctx, http.MethodPost, "/interactions", nil, interaction, nil)
}

// ListInteractions returns interaction records matching the filter, newest first.
func (c *Client) ListInteractions(ctx context.Context, filter InteractionFilter) ([]Interaction, error) {
	q := url.Values{}
	if filter.UserID != "" {
		q.Set("user_id", filter.UserID)
	}
	if filter.OtherUserID != "" {
		q.Set("other_user_id", filter.OtherUserID)
	}
	if filter.Type != "" {
		q.Set("type", filter.Type)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}

	var resp struct {
		Interactions []Interaction `json:"interactions"`
	}
	if err := c.do(ctx, http.MethodGet, "/interactions", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Interactions, nil
}

// Health reports whether the service answers its health check.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &resp); err != nil {
		return err
	}
	if resp.Status != "healthy" {
		return fmt.Errorf("data store reports %q", resp.Status)
	}
	return nil
}
