package filtering

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/socius/internal/agent"
	"github.com/spigell/socius/internal/store"
)

const contactedHistoryLimit = 1000

type contactedFilter struct {
	toggle
	within time.Duration
	now    func() time.Time
}

// NewContacted creates a filter that removes people the assistant already reached out to.
func NewContacted() Filter {
	return &contactedFilter{now: time.Now}
}

func (f *contactedFilter) Name() string { return "contacted" }

func (f *contactedFilter) Validate(cfg *Config) error {
	f.within = 0
	if cfg != nil {
		if cfg.ContactedWithin < 0 {
			return fmt.Errorf("contacted window must not be negative")
		}
		f.within = cfg.ContactedWithin
	}
	return nil
}

func (f *contactedFilter) Apply(ctx context.Context, deps Deps, d *Detections) (*Detections, Step, error) {
	initial := d.Len()
	if deps.Interactions == nil {
		return d, Step{}, fmt.Errorf("interaction log is required")
	}

	records, err := deps.Interactions.ListInteractions(ctx, store.InteractionFilter{
		UserID: deps.UserID,
		Type:   agent.InteractionOutreach,
		Limit:  contactedHistoryLimit,
	})
	if err != nil {
		return d, Step{}, fmt.Errorf("get outreach history: %w", err)
	}

	var since time.Time
	if f.within > 0 {
		since = f.now().Add(-f.within)
	}

	contacted := make([]string, 0, len(records))
	for _, rec := range records {
		if !since.IsZero() && rec.CreatedAt.Before(since) {
			continue
		}
		contacted = append(contacted, rec.OtherUserID)
	}

	removed := d.Exclude(contacted)
	if len(removed) > 0 {
		deps.Logger.Info("excluding people already contacted",
			zap.Strings("excluded_users", removed),
			zap.Int("detections_left", d.Len()),
		)
	}

	return d, Step{Initial: initial, Dropped: len(removed), Left: d.Len()}, nil
}

func (f *contactedFilter) Status() Status {
	details := map[string]string{"window": "any time"}
	if f.within > 0 {
		details["window"] = f.within.String()
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
