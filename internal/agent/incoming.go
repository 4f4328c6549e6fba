package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/socius/internal/logger"
	"github.com/spigell/socius/internal/profile"
	"github.com/spigell/socius/internal/store"
	"github.com/spigell/socius/internal/utils"
)

// takeOverPhrase in a generated reply means the user should step in.
const takeOverPhrase = "take over"

type IncomingResult struct {
	Response         string          `json:"response"`
	ShouldNotifyUser bool            `json:"should_notify_user"`
	ConversationID   string          `json:"conversation_id"`
	Executions       []ToolExecution `json:"executions,omitempty"`
}

// HandleIncomingMessage stores an inbound message, lets the assistant answer it
// and stores the answer.
func (a *Agent) HandleIncomingMessage(ctx context.Context, senderID, message, conversationID string) (*IncomingResult, error) {
	log := logger.WithFields(a.logger, logger.ConversationFields(senderID, conversationID)...)

	a.refreshSelf(ctx)

	history, err := a.deps.Conversations.GetHistory(ctx, conversationID, a.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load conversation history: %w", err)
	}

	sender, err := a.deps.Profiles.GetProfile(ctx, senderID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		sender = &profile.Profile{ID: senderID}
	case err != nil:
		return nil, fmt.Errorf("load profile of %s: %w", senderID, err)
	}

	if err := a.deps.Conversations.AppendMessage(ctx, conversationID, senderID, message, nil); err != nil {
		return nil, fmt.Errorf("store inbound message: %w", err)
	}

	run, err := a.run(ctx, a.incomingPrompt(sender, message, history), WithCounterpart(sender))
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{"generated_by_agent": true}
	if err := a.deps.Conversations.AppendMessage(ctx, conversationID, a.cfg.UserID, run.Output, metadata); err != nil {
		return nil, fmt.Errorf("store agent response: %w", err)
	}

	notify := strings.Contains(strings.ToLower(run.Output), takeOverPhrase)
	log.Info("incoming message answered",
		zap.Bool("notify_user", notify),
		zap.Int("tools", len(run.Executions)),
		zap.String("response_preview", utils.TruncateForLog(run.Output, a.cfg.MaxLogLength)),
	)

	return &IncomingResult{
		Response:         run.Output,
		ShouldNotifyUser: notify,
		ConversationID:   conversationID,
		Executions:       run.Executions,
	}, nil
}
