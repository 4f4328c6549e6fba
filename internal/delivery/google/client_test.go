package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/option"

	"github.com/spigell/socius/internal/delivery"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(context.Background(), Config{Sender: "me@example.com"}, nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	return client
}

func TestSendEmail(t *testing.T) {
	var raw string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages/send") {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var msg struct {
			Raw string `json:"raw"`
		}
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		raw = msg.Raw
		json.NewEncoder(w).Encode(map[string]string{"id": "msg-1"})
	})

	id, err := client.SendEmail(context.Background(), delivery.Email{
		To:      "bob@example.com",
		Subject: "Great to connect at GopherCon!",
		Body:    "Hi Bob",
		Cc:      []string{"carol@example.com"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "msg-1" {
		t.Fatalf("unexpected id: %q", id)
	}

	decoded, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		t.Fatalf("decode raw message: %v", err)
	}
	msg := string(decoded)
	for _, want := range []string{"From: me@example.com", "To: bob@example.com", "Cc: carol@example.com", "Subject: Great to connect at GopherCon!", "\r\n\r\nHi Bob"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected message to contain %q, got %q", want, msg)
		}
	}
	if strings.Contains(msg, "Bcc:") {
		t.Fatalf("did not expect empty bcc header: %q", msg)
	}
}

func TestSendEmailFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"insufficient scopes"}}`))
	})

	_, err := client.SendEmail(context.Background(), delivery.Email{To: "bob@example.com", Subject: "s", Body: "b"})
	if !errors.Is(err, delivery.ErrSendFailed) {
		t.Fatalf("expected ErrSendFailed, got %v", err)
	}
}

func TestSendEmailValidation(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Fatalf("no request expected")
	})

	_, err := client.SendEmail(context.Background(), delivery.Email{Subject: "s", Body: "b"})
	if !errors.Is(err, delivery.ErrSendFailed) {
		t.Fatalf("expected ErrSendFailed, got %v", err)
	}
}

func TestSendEmailRejectsHeaderInjection(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Fatalf("no request expected")
	})

	_, err := client.SendEmail(context.Background(), delivery.Email{
		To:      "bob@example.com\r\nBcc: spy@evil.com",
		Subject: "hi",
		Body:    "b",
	})
	if !errors.Is(err, delivery.ErrSendFailed) || !strings.Contains(err.Error(), "line break") {
		t.Fatalf("expected rejected recipient, got %v", err)
	}
}

func TestCreateMeeting(t *testing.T) {
	var event struct {
		Summary string `json:"summary"`
		Start   struct {
			DateTime string `json:"dateTime"`
		} `json:"start"`
		End struct {
			DateTime string `json:"dateTime"`
		} `json:"end"`
		Attendees []struct {
			Email string `json:"email"`
		} `json:"attendees"`
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/calendars/primary/events") {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("sendUpdates") != "all" {
			t.Fatalf("expected attendees to be notified, got query %s", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "evt-1"})
	})

	start := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	id, err := client.CreateMeeting(context.Background(), delivery.Meeting{
		Summary:   "Coffee",
		Start:     start,
		End:       start.Add(30 * time.Minute),
		Attendees: []string{"bob@example.com", " "},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "evt-1" {
		t.Fatalf("unexpected id: %q", id)
	}
	if event.Start.DateTime != "2026-03-01T15:00:00Z" || event.End.DateTime != "2026-03-01T15:30:00Z" {
		t.Fatalf("unexpected times: %+v", event)
	}
	if len(event.Attendees) != 1 || event.Attendees[0].Email != "bob@example.com" {
		t.Fatalf("unexpected attendees: %+v", event.Attendees)
	}
}

func TestCreateMeetingRejectsInvertedTimes(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Fatalf("no request expected")
	})

	start := time.Now()
	_, err := client.CreateMeeting(context.Background(), delivery.Meeting{Summary: "x", Start: start, End: start})
	if !errors.Is(err, delivery.ErrSendFailed) {
		t.Fatalf("expected ErrSendFailed, got %v", err)
	}
}
