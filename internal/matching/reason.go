package matching

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spigell/socius/internal/profile"
)

const (
	// FallbackReason is used when two profiles share nothing worth mentioning.
	FallbackReason = "potential synergy based on your profiles"

	maxReasonInterests = 3
	maxReasons         = 2
)

// MatchReason explains in plain words why a and b could connect. It looks at field
// equality and overlap only, never at the numeric score.
func MatchReason(a, b *profile.Profile) string {
	if a == nil {
		a = &profile.Profile{}
	}
	if b == nil {
		b = &profile.Profile{}
	}

	var reasons []string

	if shared := SharedInterests(a.Interests, b.Interests); len(shared) > 0 {
		if len(shared) > maxReasonInterests {
			shared = shared[:maxReasonInterests]
		}
		reasons = append(reasons, fmt.Sprintf("shared interests in %s", strings.Join(shared, ", ")))
	}

	if a.Industry != "" && strings.EqualFold(a.Industry, b.Industry) {
		reasons = append(reasons, fmt.Sprintf("both work in %s", a.Industry))
	}

	if a.Role != "" && b.Role != "" && strings.EqualFold(a.Role, b.Role) {
		reasons = append(reasons, fmt.Sprintf("similar roles as %s", a.Role))
	}

	if len(reasons) == 0 {
		return FallbackReason
	}
	if len(reasons) > maxReasons {
		reasons = reasons[:maxReasons]
	}
	return strings.Join(reasons, " and ")
}

// SharedInterests returns the lower-cased interests present in both lists, sorted.
func SharedInterests(a, b []string) []string {
	shared := intersect(lowerSet(a), lowerSet(b))
	sort.Strings(shared)
	return shared
}
