package matching

import (
	"strings"

	"github.com/spigell/socius/internal/profile"
)

// DefaultHighMatchThreshold is the score from which a match unlocks autonomous actions.
const DefaultHighMatchThreshold = 0.75

const (
	weightInterests = 0.4
	weightIndustry  = 0.3
	weightRole      = 0.2
	weightGoals     = 0.1

	exactRolePoints   = 0.5
	partialRolePoints = 0.3

	maxRelatedIndustry   = 0.7
	industryTokenDivisor = 3.0
)

// seniorityLadder is ordered from the most junior to the most senior level.
var seniorityLadder = []string{"junior", "mid", "senior", "lead", "manager", "director", "vp", "c-level"}

// seniorityPoints is indexed by the ladder distance between two people.
var seniorityPoints = []float64{0.5, 0.3, 0.1}

// Result is the outcome of scoring one profile against another.
type Result struct {
	Score       float64 `json:"score"`
	IsHighMatch bool    `json:"is_high_match"`
	Reason      string  `json:"reason"`
}

// Scorer computes compatibility between profiles. It holds no state besides the threshold
// and is safe for concurrent use.
type Scorer struct {
	threshold float64
}

// NewScorer returns a scorer with the given high-match threshold.
// A non-positive threshold falls back to DefaultHighMatchThreshold.
func NewScorer(threshold float64) *Scorer {
	if threshold <= 0 {
		threshold = DefaultHighMatchThreshold
	}
	return &Scorer{threshold: threshold}
}

// Threshold returns the configured high-match threshold.
func (s *Scorer) Threshold() float64 {
	return s.threshold
}

// Evaluate scores a against b and explains the match.
func (s *Scorer) Evaluate(a, b *profile.Profile) Result {
	score := CalculateMatchScore(a, b)
	return Result{
		Score:       score,
		IsHighMatch: IsHighMatch(score, s.threshold),
		Reason:      MatchReason(a, b),
	}
}

// IsHighMatch reports whether the score reaches the threshold (inclusive).
func IsHighMatch(score, threshold float64) bool {
	return score >= threshold
}

type signal struct {
	weight float64
	score  float64
}

// CalculateMatchScore returns a compatibility score in [0, 1]. Missing fields count as empty.
// The role component is directional: tokens of a's role are looked up in b's role.
func CalculateMatchScore(a, b *profile.Profile) float64 {
	if a == nil {
		a = &profile.Profile{}
	}
	if b == nil {
		b = &profile.Profile{}
	}

	signals := []signal{
		{weight: weightInterests, score: InterestOverlap(a.Interests, b.Interests)},
		{weight: weightIndustry, score: IndustryMatch(a.Industry, b.Industry)},
		{weight: weightRole, score: RoleCompatibility(a.Role, b.Role, a.Seniority, b.Seniority)},
		{weight: weightGoals, score: GoalsAlignment(a.Goals, b.Goals)},
	}

	return weightedAverage(signals)
}

// weightedAverage divides by the weights that actually contributed so optional signals
// can be left out without rescaling the others.
func weightedAverage(signals []signal) float64 {
	var total, weights float64
	for _, s := range signals {
		if s.weight <= 0 {
			continue
		}
		total += clamp(s.score) * s.weight
		weights += s.weight
	}
	if weights == 0 {
		return 0
	}
	return clamp(total / weights)
}

// InterestOverlap is the Jaccard index of the lower-cased interest sets.
func InterestOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return jaccard(lowerSet(a), lowerSet(b))
}

// IndustryMatch is 1 for the same industry and up to 0.7 for industries sharing words.
func IndustryMatch(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}

	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1
	}

	shared := len(intersect(tokenSet(a), tokenSet(b)))
	if shared == 0 {
		return 0
	}
	return min(float64(shared)/industryTokenDivisor, maxRelatedIndustry)
}

// RoleCompatibility combines role similarity with seniority proximity, capped at 1.
func RoleCompatibility(roleA, roleB, seniorityA, seniorityB string) float64 {
	var score float64

	if roleA != "" && roleB != "" {
		a, b := strings.ToLower(roleA), strings.ToLower(roleB)
		switch {
		case a == b:
			score += exactRolePoints
		case anyTokenIn(a, b):
			score += partialRolePoints
		}
	}

	if seniorityA != "" && seniorityB != "" {
		levelA := SeniorityLevel(seniorityA)
		levelB := SeniorityLevel(seniorityB)
		if levelA >= 0 && levelB >= 0 {
			distance := levelA - levelB
			if distance < 0 {
				distance = -distance
			}
			if distance < len(seniorityPoints) {
				score += seniorityPoints[distance]
			}
		}
	}

	return min(score, 1)
}

// SeniorityLevel returns the index of the first ladder entry contained in the seniority
// string, or -1 when none is.
func SeniorityLevel(seniority string) int {
	lowered := strings.ToLower(seniority)
	for idx, level := range seniorityLadder {
		if strings.Contains(lowered, level) {
			return idx
		}
	}
	return -1
}

// GoalsAlignment is the word-level Jaccard index of both goal lists.
func GoalsAlignment(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return jaccard(
		tokenSet(strings.ToLower(strings.Join(a, " "))),
		tokenSet(strings.ToLower(strings.Join(b, " "))),
	)
}

func anyTokenIn(source, target string) bool {
	for _, word := range strings.Fields(source) {
		if strings.Contains(target, word) {
			return true
		}
	}
	return false
}

func jaccard(a, b map[string]struct{}) float64 {
	union := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		union[k] = struct{}{}
	}
	for k := range b {
		union[k] = struct{}{}
	}
	if len(union) == 0 {
		return 0
	}
	return float64(len(intersect(a, b))) / float64(len(union))
}

func intersect(a, b map[string]struct{}) []string {
	var shared []string
	for k := range a {
		if _, ok := b[k]; ok {
			shared = append(shared, k)
		}
	}
	return shared
}

func lowerSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[strings.ToLower(item)] = struct{}{}
	}
	return set
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
