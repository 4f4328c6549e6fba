package filtering

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type excludeFileFilter struct {
	toggle
	path string
}

// NewExcludeFile creates a filter that removes people listed in the exclude file.
func NewExcludeFile() Filter {
	return &excludeFileFilter{}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Validate(cfg *Config) error {
	f.path = ""
	if cfg != nil {
		f.path = strings.TrimSpace(cfg.ExcludeFile)
	}
	return nil
}

func (f *excludeFileFilter) Apply(_ context.Context, deps Deps, d *Detections) (*Detections, Step, error) {
	initial := d.Len()
	if f.path == "" {
		return d, Step{Initial: initial, Dropped: 0, Left: d.Len()}, nil
	}

	excluded, err := LoadExcludedUsers(f.path)
	if err != nil {
		return d, Step{}, fmt.Errorf("getting excluded users from file: %w", err)
	}

	removed := d.Exclude(excluded.UserIDs())
	if len(removed) > 0 {
		deps.Logger.Info("excluding people based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_users", removed),
			zap.Int("detections_left", d.Len()),
		)
	}

	return d, Step{Initial: initial, Dropped: len(removed), Left: d.Len()}, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
