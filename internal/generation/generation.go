// Package generation tracks the young→old aging transition used by the GC
// Engine's scoring formula and by segment lifecycle bookkeeping.
//
// This is a direct descendant of the teacher's internal/genring package,
// which rotated *arenas* through a fixed-size ring to bound TTL-based
// memory release. There are no arenas here — a context segment is a JSON
// record, not an off-heap allocation — but the underlying idea survives:
// state transitions on a monotonic age clock rather than on an explicit
// caller-driven flag. Where genring rotated a ring of generations every
// TTL/4 interval, Clock here flips a single segment from young to old once
// it crosses an age threshold, and hands that decision to whoever is
// about to score or store the segment.
//
// © 2025 memoria authors. MIT License.
package generation

import (
	"time"

	"github.com/memoria-dev/memoria/internal/segment"
)

// DefaultThreshold is the age after which a segment promotes from young to
// old generation. Chosen to match the Analysis Engine's "oldest age > 24h"
// recommendation threshold (spec.md §4.4) so the two forms of staleness
// tracking agree.
const DefaultThreshold = 24 * time.Hour

// Clock decides whether a segment should be promoted to the old
// generation, based on its LastTouchedAt relative to now.
type Clock struct {
	threshold time.Duration
}

// NewClock constructs a Clock with the given promotion threshold. A
// non-positive threshold falls back to DefaultThreshold.
func NewClock(threshold time.Duration) *Clock {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Clock{threshold: threshold}
}

// Promote flips seg.Generation to old when its age reaches or exceeds the
// clock's threshold. It is idempotent and safe to call on every touch.
func (c *Clock) Promote(seg *segment.Segment, now time.Time) {
	if seg.Generation == segment.GenerationOld {
		return
	}
	if now.Sub(seg.LastTouchedAt) >= c.threshold {
		seg.Generation = segment.GenerationOld
	}
}

// Age returns the segment's age relative to now, in hours.
func Age(seg *segment.Segment, now time.Time) float64 {
	return now.Sub(seg.LastTouchedAt).Hours()
}
