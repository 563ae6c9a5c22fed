// Package gc implements heuristic pruning analysis: reachability from a
// root set, per-segment prune scoring, candidate generation, and plan
// synthesis (spec.md §4.5). The batch prune/pin operations built on it
// live in pkg/memoria.
//
// Grounded on gc_engine.py's GCEngine and tools/pruning/gc_prune.py's
// per-item error accumulation; the scoring weights, reason phrasing, and
// plan bucketing are carried over exactly so pruning behavior does not
// silently drift under rewrite.
//
// © 2025 memoria authors. MIT License.
package gc

import "github.com/memoria-dev/memoria/internal/segment"

// BuildReferenceGraph derives segment_id -> set-of-referenced-ids edges
// from `ref:<id>` tags and symmetric topic_id membership, matching
// _build_reference_graph. Only references to segments present in segments
// are kept.
func BuildReferenceGraph(segments []*segment.Segment) map[string]map[string]struct{} {
	bySegmentID := make(map[string]*segment.Segment, len(segments))
	for _, s := range segments {
		bySegmentID[s.SegmentID] = s
	}

	references := make(map[string]map[string]struct{})
	for _, s := range segments {
		refs := make(map[string]struct{})

		for _, refID := range s.ReferenceIDs() {
			if _, ok := bySegmentID[refID]; ok {
				refs[refID] = struct{}{}
			}
		}

		if s.TopicID != nil && *s.TopicID != "" {
			for _, other := range segments {
				if other.SegmentID == s.SegmentID {
					continue
				}
				if other.TopicID != nil && *other.TopicID == *s.TopicID {
					refs[other.SegmentID] = struct{}{}
				}
			}
		}

		if len(refs) > 0 {
			references[s.SegmentID] = refs
		}
	}
	return references
}

// ComputeReachability performs mark-and-sweep traversal from roots over
// references, returning every segment id reachable from the root set
// (roots are themselves always reachable). An empty root set reaches
// nothing.
func ComputeReachability(roots map[string]struct{}, references map[string]map[string]struct{}) map[string]struct{} {
	reachable := make(map[string]struct{})
	if len(roots) == 0 {
		return reachable
	}

	toVisit := make([]string, 0, len(roots))
	for id := range roots {
		toVisit = append(toVisit, id)
	}

	for len(toVisit) > 0 {
		id := toVisit[len(toVisit)-1]
		toVisit = toVisit[:len(toVisit)-1]

		if _, seen := reachable[id]; seen {
			continue
		}
		reachable[id] = struct{}{}

		for refID := range references[id] {
			if _, seen := reachable[refID]; !seen {
				toVisit = append(toVisit, refID)
			}
		}
	}
	return reachable
}
