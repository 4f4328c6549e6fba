package agent

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/spigell/socius/internal/ai"
	"github.com/spigell/socius/internal/delivery"
	"github.com/spigell/socius/internal/matching"
	"github.com/spigell/socius/internal/permissions"
	"github.com/spigell/socius/internal/profile"
	"github.com/spigell/socius/internal/store"
)

type stubProfiles struct {
	profiles map[string]*profile.Profile
	err      error
}

func (s *stubProfiles) GetProfile(_ context.Context, userID string) (*profile.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.profiles[userID]
	if !ok {
		return nil, &store.RequestError{Kind: store.ErrNotFound, Method: "GET", Path: "/profiles/" + userID}
	}
	cp := *p
	return &cp, nil
}

type stubPreferences struct {
	prefs *store.Preferences
}

func (s *stubPreferences) GetPreferences(_ context.Context, userID string) (*store.Preferences, error) {
	if s.prefs == nil {
		return store.DefaultPreferences(userID), nil
	}
	return s.prefs, nil
}

type appended struct {
	conversation string
	sender       string
	message      string
	metadata     map[string]any
}

type stubConversations struct {
	history  []store.Message
	appended []appended
	calls    *[]string
}

func (s *stubConversations) GetHistory(_ context.Context, _ string, _ int) ([]store.Message, error) {
	s.record("history")
	return s.history, nil
}

func (s *stubConversations) AppendMessage(_ context.Context, conversationID, sender, message string, metadata map[string]any) error {
	s.record("append:" + sender)
	s.appended = append(s.appended, appended{conversationID, sender, message, metadata})
	return nil
}

func (s *stubConversations) record(step string) {
	if s.calls != nil {
		*s.calls = append(*s.calls, step)
	}
}

type stubInteractions struct {
	records []*store.Interaction
	err     error
}

func (s *stubInteractions) LogInteraction(_ context.Context, interaction *store.Interaction) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, interaction)
	return nil
}

type stubGate struct {
	levels map[permissions.ActionType]permissions.Level
	asked  []permissions.ActionType
}

func (s *stubGate) CanAutoExecute(_ context.Context, _ string, action permissions.ActionType, isHighMatch bool) (bool, error) {
	s.asked = append(s.asked, action)
	level, ok := s.levels[action]
	if !ok {
		level = permissions.DefaultLevel(action)
	}
	return level.Allows(isHighMatch), nil
}

type stubConversation struct {
	replies []*ai.Reply
	sent    []string
	results [][]ai.ToolResult
}

func (s *stubConversation) next() (*ai.Reply, error) {
	if len(s.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

func (s *stubConversation) Send(_ context.Context, text string) (*ai.Reply, error) {
	s.sent = append(s.sent, text)
	return s.next()
}

func (s *stubConversation) SendToolResults(_ context.Context, results []ai.ToolResult) (*ai.Reply, error) {
	s.results = append(s.results, results)
	return s.next()
}

type stubAssistant struct {
	draft        string
	err          error
	prompts      []string
	systems      []string
	conversation *stubConversation
	configs      []ai.ConversationConfig
}

func (s *stubAssistant) Generate(_ context.Context, system, prompt string) (string, error) {
	s.systems = append(s.systems, system)
	s.prompts = append(s.prompts, prompt)
	return s.draft, s.err
}

func (s *stubAssistant) StartConversation(_ context.Context, cfg ai.ConversationConfig) (ai.Conversation, error) {
	s.configs = append(s.configs, cfg)
	if s.conversation == nil {
		return nil, errors.New("no conversation scripted")
	}
	return s.conversation, nil
}

func (s *stubAssistant) Model() string { return "stub" }

type sentMessage struct {
	recipient string
	text      string
}

type stubMessages struct {
	sent []sentMessage
	err  error
}

func (s *stubMessages) SendMessage(_ context.Context, recipient, text string) error {
	s.sent = append(s.sent, sentMessage{recipient, text})
	return s.err
}

type stubEmail struct {
	sent []delivery.Email
	err  error
}

func (s *stubEmail) SendEmail(_ context.Context, email delivery.Email) (string, error) {
	s.sent = append(s.sent, email)
	if s.err != nil {
		return "", s.err
	}
	return "msg-1", nil
}

type stubCalendar struct {
	meetings []delivery.Meeting
}

func (s *stubCalendar) CreateMeeting(_ context.Context, meeting delivery.Meeting) (string, error) {
	s.meetings = append(s.meetings, meeting)
	return "evt-1", nil
}

type fixture struct {
	profiles      *stubProfiles
	preferences   *stubPreferences
	conversations *stubConversations
	interactions  *stubInteractions
	gate          *stubGate
	assistant     *stubAssistant
	messages      *stubMessages
	email         *stubEmail
	calendar      *stubCalendar
}

func selfProfile() *profile.Profile {
	return &profile.Profile{
		ID:        "alice",
		Name:      "Alice",
		Role:      "Software Engineer",
		Industry:  "Technology",
		Seniority: "senior",
		Interests: []string{"AI", "networking", "startups"},
		Goals:     []string{"meet founders"},
	}
}

func newFixture() *fixture {
	return &fixture{
		profiles:      &stubProfiles{profiles: map[string]*profile.Profile{"alice": selfProfile()}},
		preferences:   &stubPreferences{},
		conversations: &stubConversations{},
		interactions:  &stubInteractions{},
		gate:          &stubGate{levels: map[permissions.ActionType]permissions.Level{}},
		assistant:     &stubAssistant{draft: "Hi Bob, great to meet a fellow AI fan!"},
		messages:      &stubMessages{},
		email:         &stubEmail{},
		calendar:      &stubCalendar{},
	}
}

func (f *fixture) agent(t *testing.T, cfg Config) *Agent {
	t.Helper()
	if cfg.UserID == "" {
		cfg.UserID = "alice"
	}
	a, err := New(context.Background(), cfg, Deps{
		Profiles:      f.profiles,
		Preferences:   f.preferences,
		Conversations: f.conversations,
		Interactions:  f.interactions,
		Gate:          f.gate,
		Scorer:        matching.NewScorer(matching.DefaultHighMatchThreshold),
		Assistant:     f.assistant,
		Messages:      f.messages,
		Email:         f.email,
		Calendar:      f.calendar,
		Logger:        zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return a
}
