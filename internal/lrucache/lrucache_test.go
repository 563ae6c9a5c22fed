package lrucache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoria-dev/memoria/internal/segment"
)

func seg(id string) *segment.Segment {
	return &segment.Segment{SegmentID: id, Text: id, Type: segment.TypeNote, LastTouchedAt: time.Now()}
}

func TestCache_GetPromotesToFront(t *testing.T) {
	c := New(WithMaxSize(10))
	c.Put(seg("a"))
	c.Put(seg("b"))
	c.Put(seg("c"))

	got := c.Get("a")
	require.NotNil(t, got)
	assert.Equal(t, []string{"a", "c", "b"}, ids(c.All()))
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c := New(WithMaxSize(2), WithEjectCallback(func(s *segment.Segment) {
		evicted = append(evicted, s.SegmentID)
	}))
	c.Put(seg("a"))
	c.Put(seg("b"))
	c.Put(seg("c")) // evicts "a" (least recently used)

	assert.Equal(t, []string{"a"}, evicted)
	assert.Equal(t, 2, c.Len())
	assert.Nil(t, c.Get("a"))
}

func TestCache_ReloadsFromEvictedViaLoadCallback(t *testing.T) {
	spilled := map[string]*segment.Segment{}
	var c *Cache
	c = New(WithMaxSize(1),
		WithEjectCallback(func(s *segment.Segment) { spilled[s.SegmentID] = s }),
		WithLoadCallback(func(id string) *segment.Segment { return spilled[id] }),
	)
	c.Put(seg("a"))
	c.Put(seg("b")) // evicts "a" to spilled map

	got := c.Get("a")
	require.NotNil(t, got)
	assert.Equal(t, "a", got.SegmentID)
}

func TestCache_RemoveDoesNotInvokeEjectCallback(t *testing.T) {
	called := false
	c := New(WithEjectCallback(func(*segment.Segment) { called = true }))
	c.Put(seg("a"))
	c.Remove("a")
	assert.False(t, called)
	assert.Nil(t, c.Get("a"))
}

func ids(segs []*segment.Segment) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.SegmentID
	}
	return out
}
