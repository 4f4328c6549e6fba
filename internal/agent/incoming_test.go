package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spigell/socius/internal/ai"
	"github.com/spigell/socius/internal/profile"
	"github.com/spigell/socius/internal/store"
)

func TestIncomingMessageFlow(t *testing.T) {
	var steps []string
	f := newFixture()
	f.profiles.profiles["bob"] = &profile.Profile{ID: "bob", Name: "Bob"}
	for i := 0; i < 7; i++ {
		f.conversations.history = append(f.conversations.history, store.Message{Sender: "bob", Message: fmt.Sprintf("old-%d", i)})
	}
	f.conversations.calls = &steps
	f.assistant.conversation = &stubConversation{replies: []*ai.Reply{{Text: "Sounds great, let's grab coffee!"}}}
	a := f.agent(t, Config{})

	result, err := a.HandleIncomingMessage(context.Background(), "bob", "Want to chat more?", "conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"history", "append:bob", "append:alice"}
	if strings.Join(steps, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected step order: %v", steps)
	}

	inbound := f.conversations.appended[0]
	if inbound.conversation != "conv-1" || inbound.message != "Want to chat more?" || inbound.metadata != nil {
		t.Fatalf("unexpected inbound record: %+v", inbound)
	}
	outbound := f.conversations.appended[1]
	if outbound.message != "Sounds great, let's grab coffee!" || outbound.metadata["generated_by_agent"] != true {
		t.Fatalf("unexpected outbound record: %+v", outbound)
	}

	if result.Response != outbound.message || result.ShouldNotifyUser || result.ConversationID != "conv-1" {
		t.Fatalf("unexpected result: %+v", result)
	}

	task := f.assistant.conversation.sent[0]
	if !strings.Contains(task, "Bob") || !strings.Contains(task, "Want to chat more?") {
		t.Fatalf("expected sender and message in task, got %q", task)
	}
	if strings.Contains(task, "old-1") || !strings.Contains(task, "old-2") || !strings.Contains(task, "old-6") {
		t.Fatalf("expected only the last five history entries, got %q", task)
	}
}

func TestIncomingMessageTakeOver(t *testing.T) {
	tests := []struct {
		output string
		notify bool
	}{
		{output: "Alice, you may want to Take Over here.", notify: true},
		{output: "I'll handle it.", notify: false},
		{output: "", notify: false},
	}

	for _, tt := range tests {
		f := newFixture()
		f.assistant.conversation = &stubConversation{replies: []*ai.Reply{{Text: tt.output}}}
		a := f.agent(t, Config{})

		result, err := a.HandleIncomingMessage(context.Background(), "stranger", "hello", "conv")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.ShouldNotifyUser != tt.notify {
			t.Fatalf("%q: expected notify=%v", tt.output, tt.notify)
		}
		if len(f.conversations.appended) != 2 {
			t.Fatalf("expected response to be stored regardless of content, got %d records", len(f.conversations.appended))
		}
	}
}

func TestIncomingMessageUnknownSenderAndFirstMessage(t *testing.T) {
	f := newFixture()
	f.assistant.conversation = &stubConversation{replies: []*ai.Reply{{Text: "Hi!"}}}
	a := f.agent(t, Config{})

	if _, err := a.HandleIncomingMessage(context.Background(), "stranger", "hello", "conv"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	task := f.assistant.conversation.sent[0]
	if !strings.Contains(task, "someone") || !strings.Contains(task, "First message") {
		t.Fatalf("unexpected task: %q", task)
	}
}

func TestIncomingMessageKeepsInboundOnFailure(t *testing.T) {
	f := newFixture()
	f.assistant.conversation = &stubConversation{}
	a := f.agent(t, Config{})

	_, err := a.HandleIncomingMessage(context.Background(), "bob", "hello", "conv")
	if err == nil {
		t.Fatal("expected error when the assistant fails")
	}
	if len(f.conversations.appended) != 1 || f.conversations.appended[0].sender != "bob" {
		t.Fatalf("expected the inbound message to be stored first, got %+v", f.conversations.appended)
	}
}

func TestIncomingMessagePropagatesProfileFailures(t *testing.T) {
	f := newFixture()
	a := f.agent(t, Config{})
	f.profiles.err = store.ErrConnection

	_, err := a.HandleIncomingMessage(context.Background(), "bob", "hello", "conv")
	if !errors.Is(err, store.ErrConnection) {
		t.Fatalf("expected connection failure, got %v", err)
	}
	if len(f.conversations.appended) != 0 {
		t.Fatalf("nothing must be stored when the sender lookup fails")
	}
}
