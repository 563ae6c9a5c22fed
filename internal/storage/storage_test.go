package storage

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoria-dev/memoria/internal/index"
	"github.com/memoria-dev/memoria/internal/segment"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	dir, err := os.MkdirTemp("", "memoria-storage-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := Open(dir, WithMaxActiveSegments(2))
	require.NoError(t, err)
	return s
}

func mkSegment(id, text string) *segment.Segment {
	now := time.Now()
	return &segment.Segment{
		SegmentID:     id,
		Text:          text,
		Type:          segment.TypeNote,
		ProjectID:     "proj",
		CreatedAt:     now,
		LastTouchedAt: now,
		Tier:          segment.TierWorking,
		Tags:          []string{},
	}
}

func TestStore_AndLoadAll(t *testing.T) {
	s := newTestStorage(t)
	seg := mkSegment("a", "hello world")
	s.Store(seg, "proj")

	all, err := s.LoadAll("proj")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "a", all[0].SegmentID)
}

func TestStashThenUnstash_IsNoOpOnObservableState(t *testing.T) {
	s := newTestStorage(t)
	seg := mkSegment("a", "hello world")
	s.Store(seg, "proj")

	require.NoError(t, s.Stash(seg, "proj"))
	all, err := s.LoadAll("proj")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, segment.TierStashed, all[0].Tier)

	require.NoError(t, s.Unstash(seg, "proj"))
	all, err = s.LoadAll("proj")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, segment.TierWorking, all[0].Tier)
}

func TestDelete_IsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	seg := mkSegment("a", "hello")
	s.Store(seg, "proj")
	require.NoError(t, s.Stash(seg, "proj"))

	require.NoError(t, s.Delete("a", "proj"))
	require.NoError(t, s.Delete("a", "proj")) // second delete is a no-op

	all, err := s.LoadAll("proj")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSearchStashed_EmptyQueryReturnsAllStashed(t *testing.T) {
	s := newTestStorage(t)
	a, b := mkSegment("a", "alpha"), mkSegment("b", "beta")
	s.Store(a, "proj")
	s.Store(b, "proj")
	require.NoError(t, s.Stash(a, "proj"))
	require.NoError(t, s.Stash(b, "proj"))

	results, err := s.SearchStashed("", index.Filter{}, nil, nil, "proj")
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchStashed_KeywordAndMetadataFilter(t *testing.T) {
	s := newTestStorage(t)
	a := mkSegment("a", "alpha bravo")
	a.Tags = []string{"urgent"}
	b := mkSegment("b", "alpha charlie")
	s.Store(a, "proj")
	s.Store(b, "proj")
	require.NoError(t, s.Stash(a, "proj"))
	require.NoError(t, s.Stash(b, "proj"))

	results, err := s.SearchStashed("alpha", index.Filter{Tags: []string{"urgent"}}, nil, nil, "proj")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].SegmentID)
}

func TestEviction_SpillsLeastRecentlyUsedBeforeAdmittingNew(t *testing.T) {
	s := newTestStorage(t) // maxActiveSegments = 2
	a, b, c := mkSegment("a", "a"), mkSegment("b", "b"), mkSegment("c", "c")
	s.Store(a, "proj")
	s.Store(b, "proj")
	s.Store(c, "proj") // evicts "a" to evicted/

	all, err := s.LoadAll("proj")
	require.NoError(t, err)
	assert.Len(t, all, 3) // "a" now lives only in evicted/, but is still tracked active

	loaded := s.active.Get("a")
	require.NotNil(t, loaded)
	assert.Equal(t, "a", loaded.SegmentID)
}

func TestRebuildIndexes_RecoversFromExistingShards(t *testing.T) {
	dir, err := os.MkdirTemp("", "memoria-storage-rebuild-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	s1, err := Open(dir)
	require.NoError(t, err)
	seg := mkSegment("a", "reopen me")
	s1.Store(seg, "proj")
	require.NoError(t, s1.Stash(seg, "proj"))

	s2, err := Open(dir)
	require.NoError(t, err)
	results, err := s2.SearchStashed("reopen", index.Filter{}, nil, nil, "proj")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].SegmentID)
}
