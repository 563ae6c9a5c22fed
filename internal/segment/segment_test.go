package segment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokensValid(t *testing.T) {
	seg := &Segment{Text: "hello world"}
	assert.False(t, seg.TokensValid(), "no tokens cached yet")

	tokens := 2
	hash := HashText(seg.Text)
	seg.Tokens = &tokens
	seg.TextHash = &hash
	assert.True(t, seg.TokensValid())

	seg.Text = "hello world!"
	assert.False(t, seg.TokensValid(), "text changed, hash stale")
}

func TestHasTag(t *testing.T) {
	seg := &Segment{Tags: []string{"urgent", "ref:seg-1"}}
	assert.True(t, seg.HasTag("urgent"))
	assert.False(t, seg.HasTag("missing"))
}

func TestReferenceIDs_SortedAndFiltered(t *testing.T) {
	seg := &Segment{Tags: []string{"ref:seg-b", "note", "ref:seg-a"}}
	assert.Equal(t, []string{"seg-a", "seg-b"}, seg.ReferenceIDs())
}

func TestClone_DeepCopiesPointerFields(t *testing.T) {
	task := "task-1"
	path := "main.go"
	tokens := 5
	hash := "abc"
	seg := &Segment{
		SegmentID: "s1",
		TaskID:    &task,
		FilePath:  &path,
		LineRange: &LineRange{Start: 1, End: 2},
		Tokens:    &tokens,
		TextHash:  &hash,
		Tags:      []string{"a"},
	}

	clone := seg.Clone()
	require.NotSame(t, seg.TaskID, clone.TaskID)
	require.NotSame(t, seg.FilePath, clone.FilePath)
	require.NotSame(t, seg.LineRange, clone.LineRange)
	require.NotSame(t, seg.Tokens, clone.Tokens)

	*clone.TaskID = "task-2"
	assert.Equal(t, "task-1", *seg.TaskID, "mutating clone must not affect original")

	clone.Tags[0] = "b"
	assert.Equal(t, "a", seg.Tags[0], "clone's tag slice must have independent backing array")
}

func TestTokenCount_NilDefaultsToZero(t *testing.T) {
	seg := &Segment{}
	assert.Equal(t, 0, seg.TokenCount())

	tokens := 7
	seg.Tokens = &tokens
	assert.Equal(t, 7, seg.TokenCount())
}

func TestTypeIsValid(t *testing.T) {
	assert.True(t, TypeMessage.IsValid())
	assert.False(t, Type("bogus").IsValid())
}

func TestHashText_DeterministicAndDistinct(t *testing.T) {
	a := HashText("hello")
	b := HashText("hello")
	c := HashText("world")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestLastTouchedAtUsableInAgeComputation(t *testing.T) {
	seg := &Segment{LastTouchedAt: time.Now().Add(-time.Hour)}
	assert.True(t, time.Since(seg.LastTouchedAt) >= time.Hour)
}
