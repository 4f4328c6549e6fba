package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spigell/socius/internal/agent"
	"github.com/spigell/socius/internal/matching"
	"github.com/spigell/socius/internal/permissions"
	"github.com/spigell/socius/internal/profile"
	"github.com/spigell/socius/internal/store"
)

type stubUserAgent struct {
	outcome  *agent.Outcome
	result   *agent.IncomingResult
	err      error
	nearby   []string
	incoming []string
}

func (s *stubUserAgent) HandleNewPersonNearby(_ context.Context, otherUserID string, _ agent.Detection) (*agent.Outcome, error) {
	s.nearby = append(s.nearby, otherUserID)
	return s.outcome, s.err
}

func (s *stubUserAgent) HandleIncomingMessage(_ context.Context, senderID, _, _ string) (*agent.IncomingResult, error) {
	s.incoming = append(s.incoming, senderID)
	return s.result, s.err
}

type stubSessions struct {
	agents map[string]*stubUserAgent
}

func (s *stubSessions) Get(_ context.Context, userID string) (UserAgent, error) {
	a, ok := s.agents[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func setupAgentHandler(t *testing.T, ua *stubUserAgent) (http.Handler, *store.Client) {
	t.Helper()
	client, _ := setupStoreClient(t)
	policy := permissions.NewPolicy(client, client, nil)

	h := NewAgentHandler(AgentDeps{
		Sessions:    &stubSessions{agents: map[string]*stubUserAgent{"alice": ua}},
		Permissions: policy,
		Profiles:    client,
		Scorer:      matching.NewScorer(0.75),
		Token:       testToken,
	})
	return h, client
}

func TestNearbyEndpoint(t *testing.T) {
	ua := &stubUserAgent{outcome: &agent.Outcome{Action: agent.ActionSkip, Reason: "No profile found"}}
	h, _ := setupAgentHandler(t, ua)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/users/alice/nearby", `{"other_user_id":"bob","context":{"event_name":"GopherCon"}}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var outcome agent.Outcome
	if err := json.NewDecoder(rr.Body).Decode(&outcome); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if outcome.Action != agent.ActionSkip || len(ua.nearby) != 1 || ua.nearby[0] != "bob" {
		t.Fatalf("unexpected outcome %+v, calls %v", outcome, ua.nearby)
	}
}

func TestNearbyEndpointErrors(t *testing.T) {
	tests := []struct {
		name string
		user string
		body string
		err  error
		want int
	}{
		{name: "missing other user", user: "alice", body: `{}`, want: http.StatusBadRequest},
		{name: "unknown user", user: "zoe", body: `{"other_user_id":"bob"}`, want: http.StatusNotFound},
		{name: "store timeout", user: "alice", body: `{"other_user_id":"bob"}`, err: store.ErrTimeout, want: http.StatusGatewayTimeout},
		{name: "store down", user: "alice", body: `{"other_user_id":"bob"}`, err: store.ErrConnection, want: http.StatusBadGateway},
		{name: "unexpected", user: "alice", body: `{"other_user_id":"bob"}`, err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := setupAgentHandler(t, &stubUserAgent{err: tt.err})
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/users/"+tt.user+"/nearby", tt.body, testToken))
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d; body = %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestNearbyEndpointReportsCompletedOutreach(t *testing.T) {
	success := true
	ua := &stubUserAgent{
		outcome: &agent.Outcome{Action: agent.ActionSentMessage, Success: &success},
		err:     store.ErrConnection,
	}
	h, _ := setupAgentHandler(t, ua)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/users/alice/nearby", `{"other_user_id":"bob"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("a completed send must be reported, got %d", rr.Code)
	}
}

func TestIncomingEndpoint(t *testing.T) {
	ua := &stubUserAgent{result: &agent.IncomingResult{Response: "hi", ConversationID: "c1"}}
	h, _ := setupAgentHandler(t, ua)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/users/alice/messages", `{"sender_id":"bob","message":"hello","conversation_id":"c1"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if len(ua.incoming) != 1 || ua.incoming[0] != "bob" {
		t.Fatalf("unexpected calls: %v", ua.incoming)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/users/alice/messages", `{"sender_id":"bob","message":"  "}`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestPermissionEndpoints(t *testing.T) {
	h, client := setupAgentHandler(t, &stubUserAgent{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPut, "/v1/users/alice/permissions/send_email", `{"level":"never"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("set: status = %d; body = %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/v1/users/alice/permissions", "", testToken))
	var resp struct {
		UserID      string            `json:"user_id"`
		Permissions map[string]string `json:"permissions"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Permissions["send_email"] != "never" || resp.Permissions["share_profile"] != "always_auto" {
		t.Fatalf("unexpected permissions: %+v", resp.Permissions)
	}

	for _, tt := range []struct{ url, body string }{
		{url: "/v1/users/alice/permissions/launch_rocket", body: `{"level":"never"}`},
		{url: "/v1/users/alice/permissions/send_email", body: `{"level":"sometimes"}`},
	} {
		rr = httptest.NewRecorder()
		h.ServeHTTP(rr, authReq(http.MethodPut, tt.url, tt.body, testToken))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: status = %d, want 400", tt.url, tt.body, rr.Code)
		}
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/users/alice/permissions/send_message/responses",
		`{"approved":true,"details":{"other_user_id":"bob"}}`, testToken))
	if rr.Code != http.StatusCreated {
		t.Fatalf("response: status = %d; body = %s", rr.Code, rr.Body.String())
	}

	records, err := client.ListInteractions(context.Background(), store.InteractionFilter{UserID: "alice", Type: "permission_send_message"})
	if err != nil || len(records) != 1 || records[0].OtherUserID != "bob" || records[0].Metadata["approved"] != true {
		t.Fatalf("unexpected log %+v (err %v)", records, err)
	}
}

func TestMatchEndpoint(t *testing.T) {
	h, client := setupAgentHandler(t, &stubUserAgent{})
	ctx := context.Background()

	interests := []string{"AI", "climate"}
	for _, id := range []string{"alice", "bob"} {
		if err := client.UpdateProfile(ctx, id, &profile.Update{Interests: &interests}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/match", `{"user_id":"alice","other_user_id":"bob"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var result matching.Result
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Score <= 0 || result.Reason == "" {
		t.Fatalf("unexpected result: %+v", result)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/match", `{"profile":{"id":"x","interests":["go"]},"other_profile":{"id":"y","interests":["go"]}}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("inline: status = %d; body = %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/match", `{"user_id":"alice","other_user_id":"ghost"}`, testToken))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing profile: status = %d, want 404", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/match", `{"user_id":"alice"}`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("single profile: status = %d, want 400", rr.Code)
	}
}
