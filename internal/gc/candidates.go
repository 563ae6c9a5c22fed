package gc

import (
	"sort"
	"time"

	"github.com/memoria-dev/memoria/internal/generation"
	"github.com/memoria-dev/memoria/internal/segment"
)

// agingClock promotes segments to the old generation once they cross
// generation.DefaultThreshold, so ScoreSegment's generation term reflects
// each segment's current age rather than whatever Generation value it was
// created with.
var agingClock = generation.NewClock(generation.DefaultThreshold)

// Candidate is one segment eligible for pruning, with its computed score
// and human-readable justification.
type Candidate struct {
	SegmentID string
	Score     float64
	Tokens    int
	Reason    string
	Type      segment.Type
	AgeHours  float64
}

// AnalyzeCandidates builds the reference graph, computes reachability from
// roots, and scores every segment that is neither a root, reachable from a
// root, nor pinned. Results are sorted by score descending (most
// prune-eligible first). Pinned segments never appear in the result,
// satisfying spec.md §8 invariant 4.
func AnalyzeCandidates(segments []*segment.Segment, roots map[string]struct{}, now time.Time) []Candidate {
	if len(segments) == 0 {
		return nil
	}

	references := BuildReferenceGraph(segments)
	reachable := ComputeReachability(roots, references)

	var candidates []Candidate
	for _, seg := range segments {
		if _, isRoot := roots[seg.SegmentID]; isRoot {
			continue
		}
		if _, isReachable := reachable[seg.SegmentID]; isReachable {
			continue
		}
		if seg.Pinned {
			continue
		}

		agingClock.Promote(seg, now)
		score := ScoreSegment(seg, now)
		ageHours := now.Sub(seg.LastTouchedAt).Hours()
		reason := GenerateReason(seg, score, ageHours)

		candidates = append(candidates, Candidate{
			SegmentID: seg.SegmentID,
			Score:     score,
			Tokens:    seg.TokenCount(),
			Reason:    reason,
			Type:      seg.Type,
			AgeHours:  ageHours,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}
