package ai

import "context"

// Assistant is a text-generation backend.
type Assistant interface {
	// Generate returns a single completion for prompt under the given system instruction.
	Generate(ctx context.Context, system, prompt string) (string, error)
	// StartConversation opens a multi-turn exchange in which the backend may request tool calls.
	StartConversation(ctx context.Context, cfg ConversationConfig) (Conversation, error)
	Model() string
}

// Conversation is one multi-turn exchange with the backend.
type Conversation interface {
	Send(ctx context.Context, text string) (*Reply, error)
	SendToolResults(ctx context.Context, results []ToolResult) (*Reply, error)
}

type ConversationConfig struct {
	SystemPrompt string
	Tools        []ToolSpec
}

// Reply is one backend turn. ToolCalls is empty when the backend is done.
type Reply struct {
	Text      string
	ToolCalls []ToolInvocation
}

type ToolInvocation struct {
	ID   string
	Name string
	Args map[string]any
}

type ToolResult struct {
	ID     string
	Name   string
	Output map[string]any
}

// ToolSpec declares a tool the backend may call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  *Schema
}

// SchemaType names a JSON schema type.
type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeString  SchemaType = "string"
	TypeInteger SchemaType = "integer"
	TypeNumber  SchemaType = "number"
	TypeBoolean SchemaType = "boolean"
	TypeArray   SchemaType = "array"
)

// Schema is the subset of JSON schema used for tool parameters.
type Schema struct {
	Type        SchemaType
	Description string
	Properties  map[string]*Schema
	Required    []string
	Items       *Schema
	Enum        []string
}
