package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/socius/internal/ai"
	"github.com/spigell/socius/internal/logger"
	"github.com/spigell/socius/internal/utils"
)

const (
	providerName        = "gemini"
	defaultModel        = "gemini-2.5-flash"
	defaultMaxRetries   = 3
	defaultMaxLogLength = 200
)

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type genaiChats struct {
	chats *genai.Chats
}

func (c genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	chat, err := c.chats.Create(ctx, model, config, history)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// Config configures the Gemini backend.
type Config struct {
	APIKey       string
	Model        string
	MaxRetries   int
	MaxLogLength int
}

// Generator is the Gemini implementation of ai.Assistant.
type Generator struct {
	chats      chatCreator
	model      string
	maxRetries int
	maxLogLen  int
	logger     *zap.Logger
}

var _ ai.Assistant = (*Generator)(nil)

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, cfg Config, log *zap.Logger) (*Generator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	return &Generator{
		chats:      genaiChats{chats: client.Chats},
		model:      model,
		maxRetries: maxRetries,
		maxLogLen:  cfg.MaxLogLength,
		logger:     logger.WithFields(log, logger.ProviderFields(providerName, model)...),
	}, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// Generate implements ai.Assistant.
func (g *Generator) Generate(ctx context.Context, system, prompt string) (string, error) {
	return g.GenerateContent(ctx, system, prompt)
}

// GenerateContent sends a single message in a fresh chat and returns the textual answer.
func (g *Generator) GenerateContent(ctx context.Context, system, message string) (string, error) {
	if g == nil || g.chats == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("prompt must not be empty")
	}

	g.logger.Debug("gemini generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(message)),
		zap.String("prompt_preview", utils.TruncateForLog(message, g.logLen())),
	)

	resp, err := g.withRetry(ctx, func() (*genai.GenerateContentResponse, error) {
		chat, err := g.chats.Create(ctx, g.model, g.contentConfig(system, nil), nil)
		if err != nil {
			return nil, fmt.Errorf("create chat: %w", err)
		}
		return chat.SendMessage(ctx, genai.Part{Text: message})
	})
	if err != nil {
		return "", err
	}

	reply := replyFromResponse(resp)
	if reply.Text == "" {
		return "", errors.New("gemini api returned empty response")
	}

	g.logger.Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(reply.Text)),
		zap.String("response_preview", utils.TruncateForLog(reply.Text, g.logLen())),
	)

	return reply.Text, nil
}

// StartConversation implements ai.Assistant.
func (g *Generator) StartConversation(ctx context.Context, cfg ai.ConversationConfig) (ai.Conversation, error) {
	if g == nil || g.chats == nil {
		return nil, errors.New("gemini generator is not initialized")
	}

	chat, err := g.chats.Create(ctx, g.model, g.contentConfig(cfg.SystemPrompt, cfg.Tools), nil)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}

	return &conversation{generator: g, chat: chat}, nil
}

func (g *Generator) contentConfig(system string, tools []ai.ToolSpec) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}

	if system = strings.TrimSpace(system); system != "" {
		cfg.SystemInstruction = &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: system}},
		}
	}

	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, tool := range tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  toGenaiSchema(tool.Parameters),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return cfg
}

func (g *Generator) logLen() int {
	if g.maxLogLen <= 0 {
		return defaultMaxLogLength
	}
	return g.maxLogLen
}

func replyFromResponse(resp *genai.GenerateContentResponse) *ai.Reply {
	reply := &ai.Reply{}
	if resp == nil {
		return reply
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			if part.FunctionCall != nil {
				reply.ToolCalls = append(reply.ToolCalls, ai.ToolInvocation{
					ID:   part.FunctionCall.ID,
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				})
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
		// Only the first usable candidate is considered.
		break
	}

	reply.Text = strings.TrimSpace(builder.String())
	return reply
}
