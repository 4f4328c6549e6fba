package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/spigell/socius/internal/datastore"
	"github.com/spigell/socius/internal/profile"
	"github.com/spigell/socius/internal/store"
)

// Records keeps profiles, preferences and the interaction log.
type Records interface {
	GetProfile(ctx context.Context, userID string) (*profile.Profile, error)
	UpdateProfile(ctx context.Context, userID string, update *profile.Update) (*profile.Profile, error)
	GetPreferences(ctx context.Context, userID string) (*store.Preferences, error)
	UpdatePreferences(ctx context.Context, userID string, update *store.PreferencesUpdate) (*store.Preferences, error)
	LogInteraction(ctx context.Context, interaction *store.Interaction) error
	ListInteractions(ctx context.Context, filter store.InteractionFilter) ([]store.Interaction, error)
}

// Conversations keeps message histories.
type Conversations interface {
	AppendMessage(ctx context.Context, conversationID string, msg store.Message) error
	History(ctx context.Context, conversationID string, limit int) ([]store.Message, error)
}

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type StoreDeps struct {
	Records       Records
	Conversations Conversations
	Token         string
	Logger        *zap.Logger
}

// NewStoreHandler serves the data-store API consumed by store.Client.
func NewStoreHandler(deps StoreDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(RequestLogger(deps.Logger))
	r.Get("/health", handleStoreHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/profiles/{id}", handleGetProfile(deps))
		r.Patch("/profiles/{id}", handlePatchProfile(deps))
		r.Get("/preferences/{id}", handleGetPreferences(deps))
		r.Patch("/preferences/{id}", handlePatchPreferences(deps))
		r.Get("/conversations/{id}", handleGetConversation(deps))
		r.Post("/conversations/{id}/messages", handleAppendMessage(deps))
		r.Post("/interactions", handleLogInteraction(deps))
		r.Get("/interactions", handleListInteractions(deps))
	})

	return r
}

func handleStoreHealth(deps StoreDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, backend := range []any{deps.Records, deps.Conversations} {
			p, ok := backend.(Pinger)
			if !ok {
				continue
			}
			if err := p.Ping(r.Context()); err != nil {
				deps.Logger.Warn("health check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

func handleGetProfile(deps StoreDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Records.GetProfile(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			failure(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handlePatchProfile(deps StoreDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update profile.Update
		if !decodeBody(w, r, &update) {
			return
		}
		if update.IsEmpty() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "empty profile update")
			return
		}

		p, err := deps.Records.UpdateProfile(r.Context(), chi.URLParam(r, "id"), &update)
		if err != nil {
			failure(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleGetPreferences(deps StoreDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prefs, err := deps.Records.GetPreferences(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			failure(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, prefs)
	}
}

func handlePatchPreferences(deps StoreDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update store.PreferencesUpdate
		if !decodeBody(w, r, &update) {
			return
		}
		if update.IsEmpty() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "empty preferences update")
			return
		}
		if update.HighMatchThreshold != nil && (*update.HighMatchThreshold < 0 || *update.HighMatchThreshold > 1) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "high_match_threshold must be within [0, 1]")
			return
		}

		prefs, err := deps.Records.UpdatePreferences(r.Context(), chi.URLParam(r, "id"), &update)
		if err != nil {
			failure(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, prefs)
	}
}

func handleGetConversation(deps StoreDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt(r, "limit")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		id := chi.URLParam(r, "id")
		history, err := deps.Conversations.History(r.Context(), id, limit)
		if err != nil {
			failure(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversation_id": id, "messages": history})
	}
}

func handleAppendMessage(deps StoreDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg store.Message
		if !decodeBody(w, r, &msg) {
			return
		}
		if strings.TrimSpace(msg.Sender) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "sender is required")
			return
		}

		if err := deps.Conversations.AppendMessage(r.Context(), chi.URLParam(r, "id"), msg); err != nil {
			failure(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"status": "stored"})
	}
}

func handleLogInteraction(deps StoreDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec store.Interaction
		if !decodeBody(w, r, &rec) {
			return
		}
		if rec.UserID == "" || rec.Type == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id and interaction_type are required")
			return
		}

		if err := deps.Records.LogInteraction(r.Context(), &rec); err != nil {
			failure(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": rec.ID})
	}
}

func handleListInteractions(deps StoreDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt(r, "limit")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		q := r.URL.Query()
		filter := store.InteractionFilter{
			UserID:      q.Get("user_id"),
			OtherUserID: q.Get("other_user_id"),
			Type:        q.Get("type"),
			Limit:       limit,
		}

		records, err := deps.Records.ListInteractions(r.Context(), filter)
		if errors.Is(err, datastore.ErrNotFound) {
			records, err = []store.Interaction{}, nil
		}
		if err != nil {
			failure(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"interactions": records})
	}
}
