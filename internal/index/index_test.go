package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoria-dev/memoria/internal/segment"
)

func TestKeyword_SearchIsANDSemantics(t *testing.T) {
	k := NewKeyword()
	k.AddSegment("s1", "The quick brown fox")
	k.AddSegment("s2", "The quick brown dog")
	k.AddSegment("s3", "A slow turtle")

	got := k.Search("quick brown")
	assert.Equal(t, map[string]struct{}{"s1": {}, "s2": {}}, got)

	got = k.Search("fox")
	assert.Equal(t, map[string]struct{}{"s1": {}}, got)

	got = k.Search("quick turtle")
	assert.Empty(t, got)
}

func TestKeyword_RemoveSegment(t *testing.T) {
	k := NewKeyword()
	k.AddSegment("s1", "alpha beta")
	k.RemoveSegment("s1")
	assert.Empty(t, k.Search("alpha"))
}

func TestKeyword_ReAddReplacesOldWords(t *testing.T) {
	k := NewKeyword()
	k.AddSegment("s1", "alpha beta")
	k.AddSegment("s1", "gamma delta")
	assert.Empty(t, k.Search("alpha"))
	assert.NotEmpty(t, k.Search("gamma"))
}

func strPtr(s string) *string { return &s }

func TestMetadata_ApplyFilters(t *testing.T) {
	m := NewMetadata()
	a := &segment.Segment{SegmentID: "a", FilePath: strPtr("main.go"), TaskID: strPtr("t1"), Tags: []string{"urgent", "bug"}, Type: segment.TypeCode}
	b := &segment.Segment{SegmentID: "b", FilePath: strPtr("main.go"), TaskID: strPtr("t2"), Tags: []string{"urgent"}, Type: segment.TypeNote}
	m.Update(a, true)
	m.Update(b, true)

	candidates := map[string]struct{}{"a": {}, "b": {}}

	got := m.Apply(candidates, Filter{}.WithFilePath("main.go"))
	assert.Len(t, got, 2)

	got = m.Apply(candidates, Filter{}.WithTaskID("t1"))
	assert.Equal(t, map[string]struct{}{"a": {}}, got)

	got = m.Apply(candidates, Filter{Tags: []string{"urgent", "bug"}})
	assert.Equal(t, map[string]struct{}{"a": {}}, got)

	got = m.Apply(candidates, Filter{}.WithType(segment.TypeNote))
	assert.Equal(t, map[string]struct{}{"b": {}}, got)
}

func TestRegistry_LazyCreatesProject(t *testing.T) {
	r := NewRegistry()
	p1 := r.Project("proj-a")
	p2 := r.Project("proj-a")
	require.Same(t, p1, p2)

	seg := &segment.Segment{SegmentID: "s1", Text: "hello", Type: segment.TypeNote}
	p1.Add(seg)
	assert.NotEmpty(t, p1.Keyword.Search("hello"))

	r.Drop("proj-a")
	p3 := r.Project("proj-a")
	assert.Empty(t, p3.Keyword.Search("hello"))
}
