package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/socius/internal/ai"
	"github.com/spigell/socius/internal/delivery"
	"github.com/spigell/socius/internal/permissions"
	"github.com/spigell/socius/internal/profile"
	"github.com/spigell/socius/internal/store"
)

const maxToolRounds = 8

// ErrTooManyToolRounds is returned when the assistant keeps requesting tools.
var ErrTooManyToolRounds = errors.New("too many tool rounds")

// ToolExecution records one tool invocation handled during a run.
type ToolExecution struct {
	Tool    ToolName       `json:"tool"`
	Allowed bool           `json:"allowed"`
	Output  map[string]any `json:"output"`
}

type RunResult struct {
	Output     string          `json:"output"`
	Executions []ToolExecution `json:"executions,omitempty"`
}

// runState carries what tool gating needs to know about the current exchange.
type runState struct {
	counterpart *profile.Profile
	highMatch   bool
}

type RunOption func(*runState)

// WithCounterpart gates effectful tools on the match with p.
func WithCounterpart(p *profile.Profile) RunOption {
	return func(s *runState) {
		s.counterpart = p
	}
}

// Run hands task to the assistant and executes the tools it requests until it
// produces a final answer.
func (a *Agent) Run(ctx context.Context, task string, opts ...RunOption) (*RunResult, error) {
	a.refreshSelf(ctx)
	return a.run(ctx, task, opts...)
}

func (a *Agent) run(ctx context.Context, task string, opts ...RunOption) (*RunResult, error) {
	state := &runState{}
	for _, opt := range opts {
		opt(state)
	}
	if state.counterpart != nil {
		state.highMatch = a.deps.Scorer.Evaluate(a.Self(), state.counterpart).IsHighMatch
	}

	prefs, err := a.preferences(ctx)
	if err != nil {
		return nil, err
	}

	conv, err := a.deps.Assistant.StartConversation(ctx, ai.ConversationConfig{
		SystemPrompt: a.systemPrompt(prefs),
		Tools:        ToolSpecs(),
	})
	if err != nil {
		return nil, fmt.Errorf("start conversation: %w", err)
	}

	reply, err := conv.Send(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("send task: %w", err)
	}

	result := &RunResult{}
	for round := 0; len(reply.ToolCalls) > 0; round++ {
		if round >= maxToolRounds {
			return nil, fmt.Errorf("%w: stopped after %d", ErrTooManyToolRounds, maxToolRounds)
		}

		results := make([]ai.ToolResult, 0, len(reply.ToolCalls))
		for _, invocation := range reply.ToolCalls {
			call, err := DecodeToolCall(invocation.Name, invocation.Args)
			if errors.Is(err, ErrUnknownTool) {
				return nil, err
			}

			var exec ToolExecution
			if err != nil {
				exec = ToolExecution{Tool: ToolName(invocation.Name), Output: errorOutput(err)}
			} else {
				exec, err = a.execute(ctx, state, call, prefs)
				if err != nil {
					return nil, err
				}
			}

			a.logger.Debug("tool executed",
				zap.String("tool", string(exec.Tool)),
				zap.Bool("allowed", exec.Allowed),
			)

			result.Executions = append(result.Executions, exec)
			results = append(results, ai.ToolResult{ID: invocation.ID, Name: invocation.Name, Output: exec.Output})
		}

		reply, err = conv.SendToolResults(ctx, results)
		if err != nil {
			return nil, fmt.Errorf("send tool results: %w", err)
		}
	}

	result.Output = reply.Text
	return result, nil
}

// execute runs one tool. The returned error is set only for failures that must
// end the run; tool-level failures are reported back to the assistant.
func (a *Agent) execute(ctx context.Context, state *runState, call ToolCall, prefs *store.Preferences) (ToolExecution, error) {
	exec := ToolExecution{Tool: call.Tool()}

	switch c := call.(type) {
	case *SendMessageCall:
		if ok, out, err := a.gate(ctx, state, permissions.SendMessage); err != nil || !ok {
			exec.Output = out
			return exec, err
		}
		exec.Allowed = true
		exec.Output = a.sendMessage(ctx, c)

	case *SendEmailCall:
		if ok, out, err := a.gate(ctx, state, permissions.SendEmail); err != nil || !ok {
			exec.Output = out
			return exec, err
		}
		exec.Allowed = true
		exec.Output = a.sendEmail(ctx, c)

	case *ScheduleMeetingCall:
		if !a.cfg.AutoScheduleEnabled || (prefs != nil && !prefs.AutoScheduleEnabled) {
			exec.Output = map[string]any{"success": false, "error": "automatic scheduling is disabled", "requires_approval": true}
			return exec, nil
		}
		if ok, out, err := a.gate(ctx, state, permissions.ScheduleMeeting); err != nil || !ok {
			exec.Output = out
			return exec, err
		}
		exec.Allowed = true
		exec.Output = a.scheduleMeeting(ctx, c)

	case *GetProfileCall:
		exec.Allowed = true
		exec.Output = a.lookupProfile(ctx, c.UserID)

	case *CalculateMatchCall:
		exec.Allowed = true
		exec.Output = a.calculateMatch(ctx, c.OtherUserID)

	default:
		return exec, fmt.Errorf("%w: %q", ErrUnknownTool, call.Tool())
	}

	return exec, nil
}

func (a *Agent) gate(ctx context.Context, state *runState, action permissions.ActionType) (bool, map[string]any, error) {
	allowed, err := a.deps.Gate.CanAutoExecute(ctx, a.cfg.UserID, action, state.highMatch)
	if err != nil {
		return false, nil, fmt.Errorf("check %s permission: %w", action, err)
	}
	if !allowed {
		return false, map[string]any{
			"success":           false,
			"error":             fmt.Sprintf("%s requires the user's approval", action),
			"requires_approval": true,
		}, nil
	}
	return true, nil, nil
}

func (a *Agent) sendMessage(ctx context.Context, c *SendMessageCall) map[string]any {
	if a.deps.Messages == nil {
		return errorOutput(errors.New(errMessageChannelMissing))
	}
	if err := a.deps.Messages.SendMessage(ctx, c.Recipient, c.Message); err != nil {
		return map[string]any{"success": false, "error": delivery.Reason(err)}
	}
	return map[string]any{"success": true}
}

func (a *Agent) sendEmail(ctx context.Context, c *SendEmailCall) map[string]any {
	if a.deps.Email == nil {
		return errorOutput(errors.New(errEmailChannelMissing))
	}
	id, err := a.deps.Email.SendEmail(ctx, delivery.Email{
		To:      c.To,
		Subject: c.Subject,
		Body:    c.Body,
		Cc:      c.Cc,
		Bcc:     c.Bcc,
	}.Compact())
	if err != nil {
		return map[string]any{"success": false, "error": delivery.Reason(err)}
	}
	return map[string]any{"success": true, "message_id": id}
}

func (a *Agent) scheduleMeeting(ctx context.Context, c *ScheduleMeetingCall) map[string]any {
	if a.deps.Calendar == nil {
		return errorOutput(errors.New("calendar is not configured"))
	}
	start, end, err := c.Window()
	if err != nil {
		return errorOutput(err)
	}
	id, err := a.deps.Calendar.CreateMeeting(ctx, delivery.Meeting{
		Summary:     c.Summary,
		Start:       start,
		End:         end,
		Attendees:   c.Attendees,
		Description: c.Description,
	})
	if err != nil {
		return map[string]any{"success": false, "error": delivery.Reason(err)}
	}
	return map[string]any{"success": true, "event_id": id}
}

func (a *Agent) lookupProfile(ctx context.Context, userID string) map[string]any {
	p, err := a.deps.Profiles.GetProfile(ctx, userID)
	if err != nil {
		return errorOutput(err)
	}
	return asMap(p)
}

func (a *Agent) calculateMatch(ctx context.Context, otherUserID string) map[string]any {
	other, err := a.deps.Profiles.GetProfile(ctx, otherUserID)
	if err != nil {
		return errorOutput(err)
	}
	result := a.deps.Scorer.Evaluate(a.Self(), other)
	return map[string]any{
		"score":         result.Score,
		"is_high_match": result.IsHighMatch,
		"reason":        result.Reason,
	}
}

func errorOutput(err error) map[string]any {
	msg := err.Error()
	if errors.Is(err, store.ErrNotFound) {
		msg = "not found"
	}
	return map[string]any{"success": false, "error": strings.TrimSpace(msg)}
}

func asMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return errorOutput(err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return errorOutput(err)
	}
	return out
}
