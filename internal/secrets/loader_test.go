package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "token")
	if err := os.WriteFile(full, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}
	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, []byte("\n"), 0o600); err != nil {
		t.Fatalf("write empty: %v", err)
	}

	t.Setenv("SOCIUS_TEST_SECRET", " from-env ")

	tests := []struct {
		name    string
		src     Source
		want    string
		wantErr string
	}{
		{name: "file wins", src: Source{File: full, Value: "inline", Env: "SOCIUS_TEST_SECRET"}, want: "from-file"},
		{name: "inline before env", src: Source{Value: " inline ", Env: "SOCIUS_TEST_SECRET"}, want: "inline"},
		{name: "env", src: Source{Env: "SOCIUS_TEST_SECRET"}, want: "from-env"},
		{name: "empty file", src: Source{Name: "store token", File: empty}, wantErr: "store token file"},
		{name: "missing file", src: Source{File: filepath.Join(dir, "absent")}, wantErr: "reading secret"},
		{name: "unset env", src: Source{Name: "api key", Env: "SOCIUS_TEST_UNSET"}, wantErr: "SOCIUS_TEST_UNSET"},
		{name: "nothing", src: Source{Name: "api key"}, wantErr: "api key is not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.src)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestOptional(t *testing.T) {
	got, err := Optional(Source{Name: "api token", Env: "SOCIUS_TEST_UNSET"})
	if err != nil || got != "" {
		t.Fatalf("expected empty secret without error, got %q, %v", got, err)
	}

	if _, err := Optional(Source{File: filepath.Join(t.TempDir(), "absent")}); err == nil {
		t.Fatal("expected error for a configured but missing file")
	}
}
