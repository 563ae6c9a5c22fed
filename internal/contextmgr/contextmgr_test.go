package contextmgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoria-dev/memoria/internal/analysis"
	"github.com/memoria-dev/memoria/internal/index"
	"github.com/memoria-dev/memoria/internal/segment"
	"github.com/memoria-dev/memoria/internal/storage"
	"github.com/memoria-dev/memoria/internal/tokenizer"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	st, err := storage.Open(dir)
	require.NoError(t, err)
	eng := analysis.New()
	return New(st, eng)
}

func strPtr(s string) *string { return &s }

func TestConvertDescriptorsToSegments_MessagesFileAndSummaries(t *testing.T) {
	now := time.Now()
	tok := tokenizer.ForModel(tokenizer.DefaultModel)

	descriptors := ContextDescriptors{
		RecentMessages: []Message{
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi there"},
		},
		CurrentFile: &FileInfo{Path: "main.go", CurrentLine: intPtr(42)},
		SegmentSummaries: []SegmentSummary{
			{SegmentID: "existing-1", Type: segment.TypeNote, Preview: "a note", Tokens: 5, CreatedAt: now},
			{SegmentID: "existing-2", Type: segment.TypeSummary, Preview: "skip me", Tokens: 5, CreatedAt: now},
		},
	}

	segs := ConvertDescriptorsToSegments(descriptors, "proj1", tok, now)

	require.Len(t, segs, 4) // 2 messages + 1 file + 1 note (summary type skipped)

	assert.Equal(t, segment.TypeMessage, segs[0].Type)
	assert.Contains(t, segs[0].SegmentID, "msg-proj1-")
	assert.Equal(t, "user: hello", segs[0].Text)

	assert.Equal(t, segment.TypeCode, segs[2].Type)
	assert.Contains(t, segs[2].SegmentID, "file-proj1-")
	require.NotNil(t, segs[2].FilePath)
	assert.Equal(t, "main.go", *segs[2].FilePath)
	require.NotNil(t, segs[2].LineRange)
	assert.Equal(t, 42, segs[2].LineRange.Start)

	assert.Equal(t, "existing-1", segs[3].SegmentID)
	assert.Equal(t, segment.TypeNote, segs[3].Type)
}

func intPtr(i int) *int { return &i }

func TestAnalyzeContext_StoresSegmentsAndInvalidatesWorkingSet(t *testing.T) {
	mgr := newTestManager(t)
	now := time.Now()

	result, err := mgr.AnalyzeContext(ContextDescriptors{
		RecentMessages: []Message{{Role: "user", Content: "hello world"}},
		TokenUsage:     TokenUsage{Limit: 1000},
	}, "proj1", now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SegmentCount)
	assert.Greater(t, result.TotalTokens, 0)
}

func TestAnalyzeContext_EmptyProjectIDFails(t *testing.T) {
	mgr := newTestManager(t)
	_, err := mgr.AnalyzeContext(ContextDescriptors{}, "", time.Now())
	assert.Error(t, err)
}

func TestGetWorkingSet_SortsByLastTouchedDescendingAndCaches(t *testing.T) {
	mgr := newTestManager(t)
	now := time.Now()

	older := &segment.Segment{SegmentID: "a", ProjectID: "p1", Text: "a", Type: segment.TypeNote, LastTouchedAt: now.Add(-time.Hour), Tier: segment.TierWorking}
	newer := &segment.Segment{SegmentID: "b", ProjectID: "p1", Text: "b", Type: segment.TypeNote, LastTouchedAt: now, Tier: segment.TierWorking}
	mgr.storage.Store(older, "p1")
	mgr.storage.Store(newer, "p1")

	ws, err := mgr.GetWorkingSet("p1", nil, now)
	require.NoError(t, err)
	require.Len(t, ws.Segments, 2)
	assert.Equal(t, "b", ws.Segments[0].SegmentID)
	assert.Equal(t, "a", ws.Segments[1].SegmentID)

	// second call should hit the cache and return the identical pointer-backed slice
	ws2, err := mgr.GetWorkingSet("p1", nil, now)
	require.NoError(t, err)
	assert.Equal(t, ws.LastUpdated, ws2.LastUpdated)
}

func TestStashSegments_SkipsMissingAndNonWorkingIDs(t *testing.T) {
	mgr := newTestManager(t)
	one := &segment.Segment{SegmentID: "s1", ProjectID: "p1", Text: "x", Type: segment.TypeNote, Tier: segment.TierWorking}
	tokens := 10
	one.Tokens = &tokens
	mgr.storage.Store(one, "p1")

	result, err := mgr.StashSegments([]string{"s1", "does-not-exist"}, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, result.StashedSegments)
	assert.Equal(t, 10, result.TokensFreed)
}

func TestSetCurrentTask_ReportsPreviousAndInvalidatesCache(t *testing.T) {
	mgr := newTestManager(t)
	now := time.Now()

	res1, err := mgr.SetCurrentTask("p1", strPtr("task-a"), now)
	require.NoError(t, err)
	assert.Nil(t, res1.PreviousTaskID)
	assert.Equal(t, "task-a", *res1.CurrentTaskID)
	assert.True(t, res1.WorkingSetUpdated)

	res2, err := mgr.SetCurrentTask("p1", strPtr("task-b"), now)
	require.NoError(t, err)
	require.NotNil(t, res2.PreviousTaskID)
	assert.Equal(t, "task-a", *res2.PreviousTaskID)
}

func TestGetTaskContext_NoCurrentTaskReturnsInactiveEmpty(t *testing.T) {
	mgr := newTestManager(t)
	tc, err := mgr.GetTaskContext("p1", nil)
	require.NoError(t, err)
	assert.Nil(t, tc.TaskID)
	assert.False(t, tc.Active)
	assert.Equal(t, 0, tc.SegmentCount)
}

func TestCreateTaskSnapshot_CopiesSegmentsWithDerivedIDsAndTags(t *testing.T) {
	mgr := newTestManager(t)
	now := time.Now()

	seg := &segment.Segment{SegmentID: "seg1", ProjectID: "p1", Text: "x", Type: segment.TypeNote, TaskID: strPtr("task-a"), Tier: segment.TierWorking}
	tokens := 7
	seg.Tokens = &tokens
	mgr.storage.Store(seg, "p1")

	_, err := mgr.SetCurrentTask("p1", strPtr("task-a"), now)
	require.NoError(t, err)

	snap, err := mgr.CreateTaskSnapshot("p1", nil, strPtr("checkpoint"), now)
	require.NoError(t, err)
	assert.Equal(t, "task-a", snap.TaskID)
	assert.Equal(t, 1, snap.SegmentsCaptured)
	assert.Equal(t, 7, snap.TokensCaptured)
	assert.Contains(t, snap.SnapshotID, "snapshot-p1-task-a-")

	stashed, err := mgr.storage.SearchStashed("", index.Filter{}, nil, nil, "p1")
	require.NoError(t, err)
	require.Len(t, stashed, 1)
	assert.Contains(t, stashed[0].SegmentID, "seg1-snapshot-p1-task-a-")
	assert.Contains(t, stashed[0].Tags, "snapshot")
	assert.Contains(t, stashed[0].Tags, "checkpoint")
}

func TestCreateTaskSnapshot_NoTaskFails(t *testing.T) {
	mgr := newTestManager(t)
	_, err := mgr.CreateTaskSnapshot("p1", nil, nil, time.Now())
	assert.Error(t, err)
}
