package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/socius/internal/agent"
	"github.com/spigell/socius/internal/ai"
	"github.com/spigell/socius/internal/ai/gemini"
	"github.com/spigell/socius/internal/delivery/google"
	"github.com/spigell/socius/internal/delivery/imessage"
	"github.com/spigell/socius/internal/matching"
	"github.com/spigell/socius/internal/permissions"
	"github.com/spigell/socius/internal/secrets"
	"github.com/spigell/socius/internal/store"
)

// components are the collaborators shared by every agent of a process.
type components struct {
	store     *store.Client
	policy    *permissions.Policy
	scorer    *matching.Scorer
	assistant ai.Assistant
	imessage  *imessage.Client
	google    *google.Client
}

func newStoreClient(config *Config, logger *zap.Logger) (*store.Client, error) {
	token, err := secrets.Optional(secrets.Source{
		Name: "store token",
		File: config.Store.TokenFile,
	})
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(config.Store.URL) == "" {
		return nil, fmt.Errorf("store.url is required")
	}

	return store.New(config.Store.URL, token, config.Store.Timeout, logger.With(zap.String("component", "store"))), nil
}

func newAssistant(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (ai.Assistant, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	generator, err := gemini.NewGenerator(ctx, gemini.Config{
		APIKey:       apiKey,
		Model:        cfg.Gemini.Model,
		MaxRetries:   cfg.Gemini.MaxRetries,
		MaxLogLength: cfg.Gemini.MaxLogLength,
	}, logger.With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries)))
	if err != nil {
		return nil, err
	}

	return generator, nil
}

// newComponents builds the store client, policy and scorer. The assistant and
// delivery channels are built only when withAgent is set.
func newComponents(ctx context.Context, config *Config, withAgent bool, logger *zap.Logger) (*components, error) {
	client, err := newStoreClient(config, logger)
	if err != nil {
		return nil, fmt.Errorf("building store client: %w", err)
	}

	c := &components{
		store:  client,
		policy: permissions.NewPolicy(client, client, logger.With(zap.String("component", "permissions"))),
		scorer: matching.NewScorer(config.HighMatchThreshold),
	}

	if !withAgent {
		return c, nil
	}

	c.assistant, err = newAssistant(ctx, config.AI, logger)
	if err != nil {
		return nil, fmt.Errorf("building ai assistant: %w", err)
	}

	if url := strings.TrimSpace(config.IMessage.URL); url != "" {
		c.imessage = imessage.New(url, config.IMessage.Timeout, logger.With(zap.String("component", "imessage")))
	} else {
		logger.Warn("imessage bridge is not configured, text messages will fail", zap.String("hint", "set imessage.url"))
	}

	if strings.TrimSpace(config.Google.CredentialsFile) != "" {
		c.google, err = google.New(ctx, *config.Google, logger.With(zap.String("component", "google")))
		if err != nil {
			return nil, fmt.Errorf("building google client: %w", err)
		}
	} else {
		logger.Warn("google credentials are not configured, email and meetings will fail", zap.String("hint", "set google.credentials-file"))
	}

	return c, nil
}

// newAgent creates the agent acting for userID.
func (c *components) newAgent(ctx context.Context, config *Config, userID string, logger *zap.Logger) (*agent.Agent, error) {
	deps := agent.Deps{
		Profiles:      c.store,
		Preferences:   c.store,
		Conversations: c.store,
		Interactions:  c.store,
		Gate:          c.policy,
		Scorer:        c.scorer,
		Assistant:     c.assistant,
		Logger:        logger,
	}
	// Typed nil pointers must not reach the interfaces.
	if c.imessage != nil {
		deps.Messages = c.imessage
	}
	if c.google != nil {
		deps.Email = c.google
		deps.Calendar = c.google
	}

	return agent.New(ctx, agent.Config{
		UserID:              userID,
		HistoryLimit:        config.HistoryLimit,
		AutoScheduleEnabled: config.AutoScheduleEnabled,
		MaxLogLength:        config.AI.Gemini.MaxLogLength,
	}, deps)
}

func requireUserID(config *Config, flagValue string) (string, error) {
	userID := strings.TrimSpace(flagValue)
	if userID == "" {
		userID = strings.TrimSpace(config.UserID)
	}
	if userID == "" {
		return "", fmt.Errorf("user id is required (set user-id, SOCIUS_USER_ID or --user)")
	}
	return userID, nil
}
