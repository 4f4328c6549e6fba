package filtering

import (
	"context"

	"go.uber.org/zap"
)

type selfFilter struct {
	toggle
}

// NewSelf creates a filter that removes detections of the user themselves.
func NewSelf() Filter {
	return &selfFilter{}
}

func (f *selfFilter) Name() string { return "self" }

func (f *selfFilter) Validate(*Config) error { return nil }

func (f *selfFilter) Apply(_ context.Context, deps Deps, d *Detections) (*Detections, Step, error) {
	initial := d.Len()
	removed := d.Exclude([]string{deps.UserID})
	if len(removed) > 0 {
		deps.Logger.Debug("excluding self detections", zap.Int("count", len(removed)))
	}
	return d, Step{Initial: initial, Dropped: len(removed), Left: d.Len()}, nil
}

type duplicatesFilter struct {
	toggle
}

// NewDuplicates creates a filter that keeps only the first detection of each person.
func NewDuplicates() Filter {
	return &duplicatesFilter{}
}

func (f *duplicatesFilter) Name() string { return "duplicates" }

func (f *duplicatesFilter) Validate(*Config) error { return nil }

func (f *duplicatesFilter) Apply(_ context.Context, deps Deps, d *Detections) (*Detections, Step, error) {
	initial := d.Len()
	seen := make(map[string]struct{}, initial)
	kept := d.Items[:0]
	var dropped []string
	for _, item := range d.Items {
		if _, ok := seen[item.UserID]; ok {
			dropped = append(dropped, item.UserID)
			continue
		}
		seen[item.UserID] = struct{}{}
		kept = append(kept, item)
	}
	d.Items = kept

	if len(dropped) > 0 {
		deps.Logger.Info("dropping repeated detections", zap.Strings("users", dropped))
	}
	return d, Step{Initial: initial, Dropped: len(dropped), Left: d.Len()}, nil
}
