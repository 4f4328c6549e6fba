package delivery

import (
	"strings"
	"testing"
)

func TestEmailValidate(t *testing.T) {
	valid := Email{To: "bob@example.com", Subject: "Hello", Body: "Hi Bob"}

	tests := []struct {
		name    string
		mutate  func(e *Email)
		wantErr string
	}{
		{name: "valid", mutate: func(*Email) {}},
		{name: "named address", mutate: func(e *Email) { e.To = "Bob <bob@example.com>" }},
		{name: "missing recipient", mutate: func(e *Email) { e.To = "" }, wantErr: "recipient is required"},
		{name: "header in recipient", mutate: func(e *Email) { e.To = "bob@example.com\r\nBcc: spy@evil.com" }, wantErr: "line break"},
		{name: "bare newline in cc", mutate: func(e *Email) { e.Cc = []string{"carol@example.com\nX-Spam: 1"} }, wantErr: "cc address"},
		{name: "header in bcc", mutate: func(e *Email) { e.Bcc = []string{"dave@example.com\r\nSubject: other"} }, wantErr: "bcc address"},
		{name: "not an address", mutate: func(e *Email) { e.To = "bob" }, wantErr: "invalid to address"},
		{name: "multi-line subject", mutate: func(e *Email) { e.Subject = "Hello\r\nBcc: spy@evil.com" }, wantErr: "single line"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := valid
			tt.mutate(&email)

			err := email.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEmailCompact(t *testing.T) {
	email := Email{To: "bob@example.com", Subject: "Hello", Body: "Hi", Cc: []string{"", " carol@example.com "}, Bcc: []string{"  "}}.Compact()

	if len(email.Cc) != 1 || email.Cc[0] != "carol@example.com" || email.Bcc != nil {
		t.Fatalf("unexpected recipients: cc=%q bcc=%q", email.Cc, email.Bcc)
	}
	if err := email.Validate(); err != nil {
		t.Fatalf("compacted email must validate: %v", err)
	}
}
