package filtering

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/spigell/socius/internal/agent"
)

// Detection is one person noticed nearby, as read from a scan file.
type Detection struct {
	UserID  string          `json:"user_id"`
	Context agent.Detection `json:"context,omitempty"`
}

type Detections struct {
	Items []*Detection
}

// LoadDetections reads a JSON array of detections.
func LoadDetections(path string) (*Detections, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var items []*Detection
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decoding detections from %s: %w", path, err)
	}

	d := &Detections{}
	for i, item := range items {
		if item == nil || item.UserID == "" {
			return nil, fmt.Errorf("detection %d in %s has no user_id", i, path)
		}
		d.Items = append(d.Items, item)
	}
	return d, nil
}

func (d *Detections) Len() int {
	return len(d.Items)
}

func (d *Detections) UserIDs() []string {
	ids := make([]string, 0, len(d.Items))
	for _, item := range d.Items {
		ids = append(ids, item.UserID)
	}
	return ids
}

func (d *Detections) FindByUserID(userID string) *Detection {
	for _, item := range d.Items {
		if item.UserID == userID {
			return item
		}
	}
	return nil
}

// Exclude removes every detection of the targeted users, keeping the order of
// the rest, and returns the removed user ids.
func (d *Detections) Exclude(targets []string) []string {
	if len(targets) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		set[t] = struct{}{}
	}

	var excluded []string
	d.Items = slices.DeleteFunc(d.Items, func(item *Detection) bool {
		if _, ok := set[item.UserID]; ok {
			excluded = append(excluded, item.UserID)
			return true
		}
		return false
	})
	return excluded
}

// ToExcluded turns the detections into exclude-file entries.
func (d *Detections) ToExcluded(reason string) *ExcludedUsers {
	excluded := &ExcludedUsers{}
	for _, item := range d.Items {
		excluded.Items = append(excluded.Items, &ExcludedUser{
			ID:         item.UserID,
			Reason:     reason,
			ExcludedAt: time.Now().UTC(),
		})
	}
	return excluded
}

// ExcludedUsers is the content of an exclude file: people never to contact.
type ExcludedUsers struct {
	Items []*ExcludedUser `json:"items"`
}

type ExcludedUser struct {
	ID         string    `json:"id"`
	Reason     string    `json:"reason,omitempty"`
	ExcludedAt time.Time `json:"excluded_at"`
}

// LoadExcludedUsers reads an exclude file. A missing or empty file excludes nobody.
func LoadExcludedUsers(path string) (*ExcludedUsers, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &ExcludedUsers{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if stat.Size() == 0 {
		return &ExcludedUsers{}, nil
	}

	var excluded ExcludedUsers
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		return nil, fmt.Errorf("decoding exclude file %s: %w", path, err)
	}
	return &excluded, nil
}

// Append adds entries for users not excluded yet.
func (e *ExcludedUsers) Append(other *ExcludedUsers) {
	known := make(map[string]struct{}, len(e.Items))
	for _, item := range e.Items {
		known[item.ID] = struct{}{}
	}
	for _, item := range other.Items {
		if _, ok := known[item.ID]; ok {
			continue
		}
		known[item.ID] = struct{}{}
		e.Items = append(e.Items, item)
	}
}

func (e *ExcludedUsers) UserIDs() []string {
	ids := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

func (e *ExcludedUsers) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}
