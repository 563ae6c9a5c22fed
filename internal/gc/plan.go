package gc

import (
	"fmt"
	"sort"
	"strings"
)

// Plan is the synthesized pruning recommendation: all scored candidates
// (for visibility), plus the subset selected for stashing or deletion to
// meet targetTokens.
type Plan struct {
	Candidates      []Candidate
	TotalTokensFreed int
	StashSegments   []string
	DeleteSegments  []string
	Reason          string
}

// scoreDeleteThreshold and scoreStashThreshold bucket candidates by
// pruneability: above deleteThreshold is aggressive enough to delete
// outright, above stashThreshold but below is merely stashed, at or below
// is left alone. Matches generate_pruning_plan's 0.7/0.4 cutoffs.
const (
	scoreDeleteThreshold = 0.7
	scoreStashThreshold  = 0.4
)

// GeneratePlan buckets candidates into delete (score > 0.7), stash
// (0.4 < score <= 0.7), and skip (score <= 0.4) tiers, then greedily
// accumulates from the delete tier first, then the stash tier, until
// targetTokens is met or candidates are exhausted. candidates need not be
// pre-sorted.
func GeneratePlan(candidates []Candidate, targetTokens int) Plan {
	if len(candidates) == 0 {
		return Plan{Reason: "no candidates available"}
	}

	var high, medium, low []Candidate
	for _, c := range candidates {
		switch {
		case c.Score > scoreDeleteThreshold:
			high = append(high, c)
		case c.Score > scoreStashThreshold:
			medium = append(medium, c)
		default:
			low = append(low, c)
		}
	}

	byScoreDesc := func(cs []Candidate) {
		sort.SliceStable(cs, func(i, j int) bool { return cs[i].Score > cs[j].Score })
	}
	byScoreDesc(high)
	byScoreDesc(medium)

	var deleteSegments, stashSegments []string
	tokensFreed := 0

	for _, c := range high {
		if tokensFreed >= targetTokens {
			break
		}
		deleteSegments = append(deleteSegments, c.SegmentID)
		tokensFreed += c.Tokens
	}
	for _, c := range medium {
		if tokensFreed >= targetTokens {
			break
		}
		stashSegments = append(stashSegments, c.SegmentID)
		tokensFreed += c.Tokens
	}

	all := make([]Candidate, 0, len(candidates))
	all = append(all, high...)
	all = append(all, medium...)
	all = append(all, low...)
	byScoreDesc(all)

	return Plan{
		Candidates:       all,
		TotalTokensFreed: tokensFreed,
		StashSegments:    stashSegments,
		DeleteSegments:   deleteSegments,
		Reason:           generatePlanReason(len(stashSegments), len(deleteSegments), tokensFreed, targetTokens),
	}
}

func generatePlanReason(stashCount, deleteCount, tokensFreed, targetTokens int) string {
	var actions []string
	if stashCount > 0 {
		actions = append(actions, fmt.Sprintf("stash %d segment(s)", stashCount))
	}
	if deleteCount > 0 {
		actions = append(actions, fmt.Sprintf("delete %d segment(s)", deleteCount))
	}
	actionStr := "no action"
	if len(actions) > 0 {
		actionStr = strings.Join(actions, " and ")
	}

	var status string
	switch {
	case tokensFreed >= targetTokens:
		status = "target met"
	case tokensFreed > 0:
		status = fmt.Sprintf("partial (%d/%d tokens)", tokensFreed, targetTokens)
	default:
		status = "no candidates"
	}

	return fmt.Sprintf("%s to %s", actionStr, status)
}
