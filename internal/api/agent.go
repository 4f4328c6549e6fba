package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/spigell/socius/internal/agent"
	"github.com/spigell/socius/internal/matching"
	"github.com/spigell/socius/internal/permissions"
	"github.com/spigell/socius/internal/profile"
)

// UserAgent acts on behalf of one user.
type UserAgent interface {
	HandleNewPersonNearby(ctx context.Context, otherUserID string, detection agent.Detection) (*agent.Outcome, error)
	HandleIncomingMessage(ctx context.Context, senderID, message, conversationID string) (*agent.IncomingResult, error)
}

// Sessions hands out the agent of a user.
type Sessions interface {
	Get(ctx context.Context, userID string) (UserAgent, error)
}

type PermissionPolicy interface {
	UserPermissions(ctx context.Context, userID string) (permissions.Permissions, error)
	UpdatePermission(ctx context.Context, userID string, action permissions.ActionType, level permissions.Level) error
	LogPermissionResponse(ctx context.Context, userID string, action permissions.ActionType, approved bool, details map[string]any) error
}

type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*profile.Profile, error)
}

type AgentDeps struct {
	Sessions    Sessions
	Permissions PermissionPolicy
	Profiles    ProfileReader
	Scorer      *matching.Scorer
	Token       string
	Logger      *zap.Logger
}

type nearbyRequest struct {
	OtherUserID string          `json:"other_user_id"`
	Context     agent.Detection `json:"context"`
}

type messageRequest struct {
	SenderID       string `json:"sender_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type permissionRequest struct {
	Level string `json:"level"`
}

type permissionResponseRequest struct {
	Approved bool           `json:"approved"`
	Details  map[string]any `json:"details"`
}

type matchRequest struct {
	UserID       string           `json:"user_id"`
	OtherUserID  string           `json:"other_user_id"`
	Profile      *profile.Profile `json:"profile"`
	OtherProfile *profile.Profile `json:"other_profile"`
}

// NewAgentHandler serves the agent API.
func NewAgentHandler(deps AgentDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Scorer == nil {
		deps.Scorer = matching.NewScorer(0)
	}

	r := chi.NewRouter()
	r.Use(RequestLogger(deps.Logger))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/match", handleMatch(deps))
		r.Route("/users/{id}", func(r chi.Router) {
			r.Post("/nearby", handleNearby(deps))
			r.Post("/messages", handleIncoming(deps))
			r.Get("/permissions", handleGetPermissions(deps))
			r.Put("/permissions/{action}", handleSetPermission(deps))
			r.Post("/permissions/{action}/responses", handlePermissionResponse(deps))
		})
	})

	return r
}

func handleNearby(deps AgentDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req nearbyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.OtherUserID) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "other_user_id is required")
			return
		}

		a, err := deps.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			failure(w, deps.Logger, err)
			return
		}

		outcome, err := a.HandleNewPersonNearby(r.Context(), req.OtherUserID, req.Context)
		if err != nil && outcome == nil {
			failure(w, deps.Logger, err)
			return
		}
		if err != nil {
			// the action happened, only its bookkeeping failed
			deps.Logger.Warn("outreach completed with errors", zap.Error(err))
		}
		writeJSON(w, http.StatusOK, outcome)
	}
}

func handleIncoming(deps AgentDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req messageRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.SenderID == "" || req.ConversationID == "" || strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "sender_id, message and conversation_id are required")
			return
		}

		a, err := deps.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			failure(w, deps.Logger, err)
			return
		}

		result, err := a.HandleIncomingMessage(r.Context(), req.SenderID, req.Message, req.ConversationID)
		if err != nil {
			failure(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleGetPermissions(deps AgentDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "id")
		perms, err := deps.Permissions.UserPermissions(r.Context(), userID)
		if err != nil {
			failure(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "permissions": perms})
	}
}

func handleSetPermission(deps AgentDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req permissionRequest
		if !decodeBody(w, r, &req) {
			return
		}

		action, err := permissions.ParseAction(chi.URLParam(r, "action"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		level, err := permissions.ParseLevel(req.Level)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		userID := chi.URLParam(r, "id")
		if err := deps.Permissions.UpdatePermission(r.Context(), userID, action, level); err != nil {
			failure(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"user_id": userID, "action": string(action), "level": string(level)})
	}
}

func handlePermissionResponse(deps AgentDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req permissionResponseRequest
		if !decodeBody(w, r, &req) {
			return
		}

		action, err := permissions.ParseAction(chi.URLParam(r, "action"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		if err := deps.Permissions.LogPermissionResponse(r.Context(), chi.URLParam(r, "id"), action, req.Approved, req.Details); err != nil {
			failure(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
	}
}

func handleMatch(deps AgentDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req matchRequest
		if !decodeBody(w, r, &req) {
			return
		}

		a, err := resolveProfile(r.Context(), deps.Profiles, req.Profile, req.UserID)
		if err != nil {
			failure(w, deps.Logger, err)
			return
		}
		b, err := resolveProfile(r.Context(), deps.Profiles, req.OtherProfile, req.OtherUserID)
		if err != nil {
			failure(w, deps.Logger, err)
			return
		}
		if a == nil || b == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "two profiles or user ids are required")
			return
		}

		writeJSON(w, http.StatusOK, deps.Scorer.Evaluate(a, b))
	}
}

// resolveProfile prefers an inline profile and falls back to a lookup by id.
func resolveProfile(ctx context.Context, profiles ProfileReader, inline *profile.Profile, userID string) (*profile.Profile, error) {
	if inline != nil {
		return inline, nil
	}
	if userID == "" || profiles == nil {
		return nil, nil
	}
	return profiles.GetProfile(ctx, userID)
}
