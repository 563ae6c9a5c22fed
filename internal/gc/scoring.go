package gc

import (
	"fmt"
	"strings"
	"time"

	"github.com/memoria-dev/memoria/internal/segment"
)

// typeScores gives the per-type weight in the scoring formula: logs and
// notes are considered low-value and prune-eligible, decisions are
// protected. Matches gc_engine.py's type_scores table exactly.
var typeScores = map[segment.Type]float64{
	segment.TypeLog:      1.0,
	segment.TypeNote:     0.8,
	segment.TypeCode:     0.5,
	segment.TypeMessage:  0.3,
	segment.TypeDecision: 0.1,
	segment.TypeSummary:  0.2,
}

const defaultTypeScore = 0.5

// ScoreSegment computes the prune score, which has no upper bound because
// the recency term grows with age: higher means more eligible for pruning. score = 0.4*recency + 0.3*type + 0.2*refcount +
// 0.1*generation, per spec.md §4.5.
func ScoreSegment(seg *segment.Segment, now time.Time) float64 {
	ageHours := now.Sub(seg.LastTouchedAt).Hours()
	recencyScore := ageHours / 24.0

	typeScore, ok := typeScores[seg.Type]
	if !ok {
		typeScore = defaultTypeScore
	}

	refcountScore := 1.0 / float64(seg.Refcount+1)

	generationScore := 0.3
	if seg.Generation == segment.GenerationOld {
		generationScore = 1.0
	}

	return 0.4*recencyScore + 0.3*typeScore + 0.2*refcountScore + 0.1*generationScore
}

// GenerateReason produces the human-readable reason string attached to a
// pruning candidate, matching _generate_reason's clause ordering and
// phrasing exactly: age bucket, low-value type, refcount bucket, old
// generation, falling back to the raw score when nothing else applies.
func GenerateReason(seg *segment.Segment, score, ageHours float64) string {
	var reasons []string

	switch {
	case ageHours > 24:
		reasons = append(reasons, fmt.Sprintf("old (%.1fh)", ageHours))
	case ageHours > 1:
		reasons = append(reasons, fmt.Sprintf("recent (%.1fh)", ageHours))
	}

	if seg.Type == segment.TypeLog || seg.Type == segment.TypeNote {
		reasons = append(reasons, fmt.Sprintf("low-value type (%s)", seg.Type))
	}

	switch {
	case seg.Refcount == 0:
		reasons = append(reasons, "no references")
	case seg.Refcount < 3:
		reasons = append(reasons, fmt.Sprintf("low refcount (%d)", seg.Refcount))
	}

	if seg.Generation == segment.GenerationOld {
		reasons = append(reasons, "old generation")
	}

	if len(reasons) == 0 {
		reasons = append(reasons, fmt.Sprintf("score %.2f", score))
	}

	return strings.Join(reasons, ", ")
}
