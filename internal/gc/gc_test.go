package gc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoria-dev/memoria/internal/segment"
)

func strPtr(s string) *string { return &s }

func TestComputeReachability_EmptyRootsReachesNothing(t *testing.T) {
	refs := map[string]map[string]struct{}{"a": {"b": {}}}
	got := ComputeReachability(map[string]struct{}{}, refs)
	assert.Empty(t, got)
}

func TestComputeReachability_TransitiveReferences(t *testing.T) {
	refs := map[string]map[string]struct{}{
		"a": {"b": {}},
		"b": {"c": {}},
	}
	got := ComputeReachability(map[string]struct{}{"a": {}}, refs)
	assert.Equal(t, map[string]struct{}{"a": {}, "b": {}, "c": {}}, got)
}

func TestBuildReferenceGraph_RefTagsAndTopicEdges(t *testing.T) {
	segs := []*segment.Segment{
		{SegmentID: "a", Tags: []string{"ref:b"}},
		{SegmentID: "b", Tags: []string{}},
		{SegmentID: "c", TopicID: strPtr("topic1")},
		{SegmentID: "d", TopicID: strPtr("topic1")},
	}
	refs := BuildReferenceGraph(segs)
	assert.Contains(t, refs["a"], "b")
	assert.Contains(t, refs["c"], "d")
	assert.Contains(t, refs["d"], "c")
}

func TestAnalyzeCandidates_PinnedNeverAppear(t *testing.T) {
	now := time.Now()
	segs := []*segment.Segment{
		{SegmentID: "a", Pinned: true, LastTouchedAt: now.Add(-72 * time.Hour), Type: segment.TypeLog},
		{SegmentID: "b", Pinned: false, LastTouchedAt: now.Add(-72 * time.Hour), Type: segment.TypeLog},
	}
	candidates := AnalyzeCandidates(segs, map[string]struct{}{}, now)
	require.Len(t, candidates, 1)
	assert.Equal(t, "b", candidates[0].SegmentID)
}

func TestAnalyzeCandidates_RootsAndReachableExcluded(t *testing.T) {
	now := time.Now()
	segs := []*segment.Segment{
		{SegmentID: "root", LastTouchedAt: now, Tags: []string{"ref:child"}},
		{SegmentID: "child", LastTouchedAt: now.Add(-48 * time.Hour), Type: segment.TypeLog},
		{SegmentID: "orphan", LastTouchedAt: now.Add(-48 * time.Hour), Type: segment.TypeLog},
	}
	candidates := AnalyzeCandidates(segs, map[string]struct{}{"root": {}}, now)
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.SegmentID
	}
	assert.NotContains(t, ids, "root")
	assert.NotContains(t, ids, "child")
	assert.Contains(t, ids, "orphan")
}

func TestAnalyzeCandidates_SortedByScoreDescending(t *testing.T) {
	now := time.Now()
	segs := []*segment.Segment{
		{SegmentID: "old-log", LastTouchedAt: now.Add(-240 * time.Hour), Type: segment.TypeLog},
		{SegmentID: "fresh-decision", LastTouchedAt: now, Type: segment.TypeDecision, Refcount: 5},
	}
	candidates := AnalyzeCandidates(segs, map[string]struct{}{}, now)
	require.Len(t, candidates, 2)
	assert.Equal(t, "old-log", candidates[0].SegmentID)
	assert.GreaterOrEqual(t, candidates[0].Score, candidates[1].Score)
}

func TestGeneratePlan_EmptyCandidates(t *testing.T) {
	plan := GeneratePlan(nil, 100)
	assert.Equal(t, "no candidates available", plan.Reason)
	assert.Equal(t, 0, plan.TotalTokensFreed)
}

func TestGeneratePlan_BucketsByScoreAndStopsAtTarget(t *testing.T) {
	candidates := []Candidate{
		{SegmentID: "high1", Score: 0.9, Tokens: 50},
		{SegmentID: "high2", Score: 0.8, Tokens: 50},
		{SegmentID: "med1", Score: 0.5, Tokens: 50},
		{SegmentID: "low1", Score: 0.1, Tokens: 50},
	}
	plan := GeneratePlan(candidates, 100)
	assert.Equal(t, []string{"high1", "high2"}, plan.DeleteSegments)
	assert.Empty(t, plan.StashSegments)
	assert.Equal(t, 100, plan.TotalTokensFreed)
	assert.Equal(t, "target met", plan.Reason[len(plan.Reason)-len("target met"):])
}

func TestGeneratePlan_FallsThroughToStashWhenDeleteInsufficient(t *testing.T) {
	candidates := []Candidate{
		{SegmentID: "high1", Score: 0.9, Tokens: 10},
		{SegmentID: "med1", Score: 0.5, Tokens: 100},
	}
	plan := GeneratePlan(candidates, 50)
	assert.Equal(t, []string{"high1"}, plan.DeleteSegments)
	assert.Equal(t, []string{"med1"}, plan.StashSegments)
	assert.Equal(t, 110, plan.TotalTokensFreed)
}
