package filtering

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/socius/internal/store"
)

type stubInteractions struct {
	records []store.Interaction
	err     error
	filters []store.InteractionFilter
}

func (s *stubInteractions) ListInteractions(_ context.Context, filter store.InteractionFilter) ([]store.Interaction, error) {
	s.filters = append(s.filters, filter)
	return s.records, s.err
}

func detections(ids ...string) *Detections {
	d := &Detections{}
	for _, id := range ids {
		d.Items = append(d.Items, &Detection{UserID: id})
	}
	return d
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRunDefaultChain(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	excludeFile := writeFile(t, "exclude.json", `{"items":[{"id":"carol"}]}`)
	interactions := &stubInteractions{records: []store.Interaction{
		{UserID: "alice", OtherUserID: "dave", Type: "autonomous_outreach", CreatedAt: time.Now()},
	}}

	deps := Deps{UserID: "alice", Interactions: interactions, Logger: zap.New(core)}
	cfg := &Config{ExcludeFile: excludeFile}

	left, err := Run(context.Background(), cfg, deps, Default(), detections("bob", "alice", "carol", "bob", "dave", "erin"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := strings.Join(left.UserIDs(), ","); got != "bob,erin" {
		t.Fatalf("unexpected detections left: %s", got)
	}

	if len(interactions.filters) != 1 {
		t.Fatalf("expected one history lookup, got %d", len(interactions.filters))
	}
	filter := interactions.filters[0]
	if filter.UserID != "alice" || filter.Type != "autonomous_outreach" {
		t.Fatalf("unexpected history filter: %+v", filter)
	}

	if n := logs.FilterMessage("filter step").Len(); n != 4 {
		t.Fatalf("expected a log entry per step, got %d", n)
	}
}

func TestRunSkipsDisabledFilters(t *testing.T) {
	steps := Default()
	DisableByName(steps, "contacted", "requested via flag")

	left, err := Run(context.Background(), &Config{}, Deps{UserID: "alice"}, steps, detections("bob"))
	if err != nil {
		t.Fatalf("disabled contacted filter must not need the interaction log: %v", err)
	}
	if left.Len() != 1 {
		t.Fatalf("unexpected detections: %v", left.UserIDs())
	}

	for _, status := range Describe(steps) {
		if status.Name == "contacted" && (status.Enabled || status.Reason != "requested via flag") {
			t.Fatalf("unexpected status: %+v", status)
		}
	}
}

func TestRunPropagatesHistoryFailure(t *testing.T) {
	deps := Deps{UserID: "alice", Interactions: &stubInteractions{err: store.ErrConnection}}

	_, err := Run(context.Background(), &Config{}, deps, Default(), detections("bob"))
	if !errors.Is(err, store.ErrConnection) || !strings.Contains(err.Error(), "contacted") {
		t.Fatalf("expected wrapped connection failure, got %v", err)
	}
}

func TestRunValidatesBeforeApplying(t *testing.T) {
	interactions := &stubInteractions{}
	deps := Deps{UserID: "alice", Interactions: interactions}

	_, err := Run(context.Background(), &Config{ContactedWithin: -time.Hour}, deps, Default(), detections("bob"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if len(interactions.filters) != 0 {
		t.Fatal("no step may run when validation fails")
	}
}

func TestContactedWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	interactions := &stubInteractions{records: []store.Interaction{
		{OtherUserID: "bob", CreatedAt: now.Add(-48 * time.Hour)},
		{OtherUserID: "carol", CreatedAt: now.Add(-time.Hour)},
	}}

	f := &contactedFilter{now: func() time.Time { return now }}
	if err := f.Validate(&Config{ContactedWithin: 24 * time.Hour}); err != nil {
		t.Fatalf("validate: %v", err)
	}

	left, step, err := f.Apply(context.Background(), Deps{UserID: "alice", Interactions: interactions, Logger: zap.NewNop()}, detections("bob", "carol"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if strings.Join(left.UserIDs(), ",") != "bob" || step.Dropped != 1 {
		t.Fatalf("expected only recent outreach to exclude, got %v (%+v)", left.UserIDs(), step)
	}
	if f.Status().Details["window"] != "24h0m0s" {
		t.Fatalf("unexpected status: %+v", f.Status())
	}
}

func TestExcludeFileMissingOrEmpty(t *testing.T) {
	for _, path := range []string{
		filepath.Join(t.TempDir(), "absent.json"),
		writeFile(t, "empty.json", ""),
	} {
		f := NewExcludeFile()
		if err := f.Validate(&Config{ExcludeFile: path}); err != nil {
			t.Fatalf("validate: %v", err)
		}
		left, _, err := f.Apply(context.Background(), Deps{Logger: zap.NewNop()}, detections("bob"))
		if err != nil || left.Len() != 1 {
			t.Fatalf("%s: expected nothing excluded, got %v (err %v)", path, left, err)
		}
	}
}

func TestExcludeFileMalformed(t *testing.T) {
	f := NewExcludeFile()
	f.Validate(&Config{ExcludeFile: writeFile(t, "bad.json", "{")})
	if _, _, err := f.Apply(context.Background(), Deps{Logger: zap.NewNop()}, detections("bob")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestExcludedUsersRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclude.json")

	excluded, err := LoadExcludedUsers(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	excluded.Append(detections("bob", "carol").ToExcluded("declined"))
	excluded.Append(detections("bob").ToExcluded("again"))
	if err := excluded.ToFile(path); err != nil {
		t.Fatalf("write: %v", err)
	}

	shorter := &ExcludedUsers{Items: excluded.Items[:1]}
	if err := shorter.ToFile(path); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	reloaded, err := LoadExcludedUsers(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if strings.Join(reloaded.UserIDs(), ",") != "bob" || reloaded.Items[0].Reason != "declined" {
		t.Fatalf("unexpected entries: %+v", reloaded.Items)
	}
}

func TestLoadDetections(t *testing.T) {
	path := writeFile(t, "scan.json", `[
		{"user_id": "bob", "context": {"event_name": "GopherCon", "location": "hall B"}},
		{"user_id": "carol"}
	]`)

	d, err := LoadDetections(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if d.Len() != 2 || d.FindByUserID("bob").Context.EventName() != "GopherCon" {
		t.Fatalf("unexpected detections: %+v", d.Items)
	}

	if _, err := LoadDetections(writeFile(t, "bad.json", `[{"context":{}}]`)); err == nil {
		t.Fatal("expected error for a detection without user_id")
	}
}

func TestExcludeKeepsOrder(t *testing.T) {
	d := detections("a", "b", "c", "b", "d")
	removed := d.Exclude([]string{"b", "x"})

	if strings.Join(removed, ",") != "b,b" {
		t.Fatalf("unexpected removed: %v", removed)
	}
	if strings.Join(d.UserIDs(), ",") != "a,c,d" {
		t.Fatalf("unexpected order: %v", d.UserIDs())
	}
}
