package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spigell/socius/internal/ai"
	"github.com/spigell/socius/internal/delivery"
	"github.com/spigell/socius/internal/logger"
	"github.com/spigell/socius/internal/matching"
	"github.com/spigell/socius/internal/permissions"
	"github.com/spigell/socius/internal/profile"
	"github.com/spigell/socius/internal/store"
)

const (
	defaultAgentName    = "Socius"
	defaultHistoryLimit = 50
	defaultMaxLogLength = 200
)

type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*profile.Profile, error)
}

type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID string) (*store.Preferences, error)
}

type ConversationStore interface {
	GetHistory(ctx context.Context, conversationID string, limit int) ([]store.Message, error)
	AppendMessage(ctx context.Context, conversationID, sender, message string, metadata map[string]any) error
}

type InteractionLogger interface {
	LogInteraction(ctx context.Context, interaction *store.Interaction) error
}

// Gate decides whether an action may run without asking the user.
type Gate interface {
	CanAutoExecute(ctx context.Context, userID string, action permissions.ActionType, isHighMatch bool) (bool, error)
}

type Config struct {
	UserID              string
	AgentName           string
	HistoryLimit        int
	AutoScheduleEnabled bool
	MaxLogLength        int
}

// Deps are the collaborators an Agent works with. Delivery channels may be nil
// when not configured; using one then fails as a send failure.
type Deps struct {
	Profiles      ProfileStore
	Preferences   PreferenceStore
	Conversations ConversationStore
	Interactions  InteractionLogger
	Gate          Gate
	Scorer        *matching.Scorer
	Assistant     ai.Assistant
	Messages      delivery.MessageSender
	Email         delivery.EmailSender
	Calendar      delivery.MeetingScheduler
	Logger        *zap.Logger
}

// Agent acts on behalf of a single user.
type Agent struct {
	cfg  Config
	deps Deps

	mu   sync.RWMutex
	self *profile.Profile

	logger *zap.Logger
}

// New loads the user's own profile and returns an agent acting for that user.
func New(ctx context.Context, cfg Config, deps Deps) (*Agent, error) {
	cfg.UserID = strings.TrimSpace(cfg.UserID)
	if cfg.UserID == "" {
		return nil, errors.New("user id is required")
	}
	if deps.Profiles == nil || deps.Preferences == nil || deps.Conversations == nil ||
		deps.Interactions == nil || deps.Gate == nil || deps.Assistant == nil {
		return nil, errors.New("agent dependencies are incomplete")
	}
	if deps.Scorer == nil {
		deps.Scorer = matching.NewScorer(matching.DefaultHighMatchThreshold)
	}
	if cfg.AgentName == "" {
		cfg.AgentName = defaultAgentName
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.MaxLogLength <= 0 {
		cfg.MaxLogLength = defaultMaxLogLength
	}

	self, err := deps.Profiles.GetProfile(ctx, cfg.UserID)
	if err != nil {
		return nil, fmt.Errorf("load own profile: %w", err)
	}

	return &Agent{
		cfg:    cfg,
		deps:   deps,
		self:   self,
		logger: logger.WithFields(deps.Logger, logger.UserFields(cfg.UserID, "")...),
	}, nil
}

func (a *Agent) UserID() string {
	return a.cfg.UserID
}

// Self returns the most recently loaded profile of the user.
func (a *Agent) Self() *profile.Profile {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.self
}

// refreshSelf re-reads the user's own profile so edits made while a session is
// cached apply to the next request. The last loaded profile is kept when the
// read fails.
func (a *Agent) refreshSelf(ctx context.Context) *profile.Profile {
	self, err := a.deps.Profiles.GetProfile(ctx, a.cfg.UserID)
	if err != nil {
		a.logger.Warn("failed to refresh own profile, using the cached one", zap.Error(err))
		return a.Self()
	}

	a.mu.Lock()
	a.self = self
	a.mu.Unlock()
	return self
}

// preferences reads the user's settings afresh; a missing record means defaults.
func (a *Agent) preferences(ctx context.Context) (*store.Preferences, error) {
	prefs, err := a.deps.Preferences.GetPreferences(ctx, a.cfg.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return store.DefaultPreferences(a.cfg.UserID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	return prefs, nil
}
