package gemini

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/socius/internal/ai"
	"github.com/spigell/socius/internal/utils"
)

type conversation struct {
	generator *Generator
	chat      chatSession
}

func (c *conversation) Send(ctx context.Context, text string) (*ai.Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("message must not be empty")
	}

	c.generator.logger.Debug("gemini conversation message",
		zap.Int("message_length", utf8.RuneCountInString(text)),
		zap.String("message_preview", utils.TruncateForLog(text, c.generator.logLen())),
	)

	return c.send(ctx, genai.Part{Text: text})
}

func (c *conversation) SendToolResults(ctx context.Context, results []ai.ToolResult) (*ai.Reply, error) {
	if len(results) == 0 {
		return nil, errors.New("no tool results to send")
	}

	parts := make([]genai.Part, 0, len(results))
	for _, result := range results {
		output := result.Output
		if output == nil {
			output = map[string]any{}
		}
		parts = append(parts, genai.Part{FunctionResponse: &genai.FunctionResponse{
			ID:       result.ID,
			Name:     result.Name,
			Response: output,
		}})
	}

	c.generator.logger.Debug("gemini conversation tool results", zap.Int("results", len(results)))

	return c.send(ctx, parts...)
}

func (c *conversation) send(ctx context.Context, parts ...genai.Part) (*ai.Reply, error) {
	resp, err := c.generator.withRetry(ctx, func() (*genai.GenerateContentResponse, error) {
		return c.chat.SendMessage(ctx, parts...)
	})
	if err != nil {
		return nil, err
	}

	reply := replyFromResponse(resp)
	c.generator.logger.Debug("gemini conversation reply",
		zap.Int("tool_calls", len(reply.ToolCalls)),
		zap.String("response_preview", utils.TruncateForLog(reply.Text, c.generator.logLen())),
	)

	return reply, nil
}
