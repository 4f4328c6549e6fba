package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/spigell/socius/internal/matching"
	"github.com/spigell/socius/internal/permissions"
	"github.com/spigell/socius/internal/profile"
)

type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*profile.Profile, error)
}

type PermissionPolicy interface {
	UserPermissions(ctx context.Context, userID string) (permissions.Permissions, error)
	UpdatePermission(ctx context.Context, userID string, action permissions.ActionType, level permissions.Level) error
}

type Deps struct {
	Profiles    ProfileReader
	Permissions PermissionPolicy
	Scorer      *matching.Scorer
	Version     string
	Logger      *zap.Logger
}

// NewServer returns an MCP server exposing match scoring and permission management.
func NewServer(deps Deps) *server.MCPServer {
	if deps.Scorer == nil {
		deps.Scorer = matching.NewScorer(0)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	s := server.NewMCPServer(
		"socius",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithInstructions("socius scores networking matches and manages what the assistant may do without asking."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("calculate_match",
			mcp.WithDescription("Score how well two users match for networking and explain why."),
			mcp.WithString("user_id", mcp.Description("First user"), mcp.Required()),
			mcp.WithString("other_user_id", mcp.Description("Second user"), mcp.Required()),
		),
		calculateMatch(deps),
	)

	s.AddTool(
		mcp.NewTool("get_permissions",
			mcp.WithDescription("Return the effective permission level of every action for a user."),
			mcp.WithString("user_id", mcp.Description("User whose permissions to read"), mcp.Required()),
		),
		getPermissions(deps),
	)

	s.AddTool(
		mcp.NewTool("update_permission",
			mcp.WithDescription("Change the permission level of one action for a user."),
			mcp.WithString("user_id", mcp.Description("User whose permission to change"), mcp.Required()),
			mcp.WithString("action", mcp.Description("Action type"), mcp.Required(), mcp.Enum(actionNames()...)),
			mcp.WithString("level", mcp.Description("Permission level"), mcp.Required(), mcp.Enum(levelNames()...)),
		),
		updatePermission(deps),
	)

	return s
}

func calculateMatch(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return toolError("user_id is required"), nil
		}
		otherID, err := req.RequireString("other_user_id")
		if err != nil {
			return toolError("other_user_id is required"), nil
		}

		a, err := deps.Profiles.GetProfile(ctx, userID)
		if err != nil {
			return toolError(fmt.Sprintf("profile %s: %v", userID, err)), nil
		}
		b, err := deps.Profiles.GetProfile(ctx, otherID)
		if err != nil {
			return toolError(fmt.Sprintf("profile %s: %v", otherID, err)), nil
		}

		return toolJSON(deps.Scorer.Evaluate(a, b))
	}
}

func getPermissions(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return toolError("user_id is required"), nil
		}

		perms, err := deps.Permissions.UserPermissions(ctx, userID)
		if err != nil {
			return toolError(fmt.Sprintf("reading permissions: %v", err)), nil
		}
		return toolJSON(perms)
	}
}

func updatePermission(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return toolError("user_id is required"), nil
		}
		action, err := permissions.ParseAction(req.GetString("action", ""))
		if err != nil {
			return toolError(err.Error()), nil
		}
		level, err := permissions.ParseLevel(req.GetString("level", ""))
		if err != nil {
			return toolError(err.Error()), nil
		}

		if err := deps.Permissions.UpdatePermission(ctx, userID, action, level); err != nil {
			return toolError(fmt.Sprintf("updating permission: %v", err)), nil
		}

		deps.Logger.Info("permission updated over mcp",
			zap.String("user_id", userID),
			zap.String("action", string(action)),
			zap.String("level", string(level)),
		)
		return toolText(fmt.Sprintf("Set %s = %s for %s", action, level, userID)), nil
	}
}

func actionNames() []string {
	names := make([]string, len(permissions.Actions))
	for i, a := range permissions.Actions {
		names[i] = string(a)
	}
	return names
}

func levelNames() []string {
	names := make([]string, len(permissions.Levels))
	for i, l := range permissions.Levels {
		names[i] = string(l)
	}
	return names
}

func toolJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return toolError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return toolText(string(b)), nil
}

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
