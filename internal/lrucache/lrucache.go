// Package lrucache implements the bounded, ordered active-segment cache
// described in spec.md §4.1: an ordered map keyed by segment id, bounded by
// max_active_segments, evicting least-recently-touched entries to a
// caller-supplied spill callback and reloading them on a subsequent miss
// via a caller-supplied load callback.
//
// This supersedes the teacher's CLOCK-Pro-based shard (internal/clockpro):
// segments are whole JSON records looked up one at a time by id, not a
// high-throughput byte-weighted working set, so a plain recency list gives
// the same externally observable contract — bounded size, oldest-evicted —
// with far less machinery. The functional-options construction and the
// eviction-callback shape are carried over from pkg/cache.go /
// pkg/config.go.
//
// © 2025 memoria authors. MIT License.
package lrucache

import (
	"container/list"
	"sync"

	"go.uber.org/zap"

	"github.com/memoria-dev/memoria/internal/segment"
)

// EjectCallback is invoked synchronously, while the cache's internal lock is
// held, whenever a segment is evicted for capacity reasons. Implementations should spill
// the segment to durable storage; the call MUST NOT re-enter the same Cache.
type EjectCallback func(seg *segment.Segment)

// LoadCallback is invoked on a miss to attempt a reload from wherever
// EjectCallback spilled the segment. A nil return means "not found anywhere".
type LoadCallback func(segmentID string) *segment.Segment

// Option configures a Cache at construction time.
type Option func(*config)

type config struct {
	maxSize  int
	eject    EjectCallback
	load     LoadCallback
	logger   *zap.Logger
}

func defaultConfig() *config {
	return &config{
		maxSize: 10000,
		logger:  zap.NewNop(),
	}
}

// WithMaxSize bounds the number of segments kept in memory. Matches the
// original LRUSegmentCache's maxsize=10000 default.
func WithMaxSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithEjectCallback registers the disk-spill hook invoked on eviction.
func WithEjectCallback(cb EjectCallback) Option {
	return func(c *config) { c.eject = cb }
}

// WithLoadCallback registers the disk-reload hook invoked on an evicted-id
// miss.
func WithLoadCallback(cb LoadCallback) Option {
	return func(c *config) { c.load = cb }
}

// WithLogger plugs an external zap.Logger; defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// Cache is a bounded, order-preserving segment cache: Get promotes an entry
// to most-recently-used, Put evicts the least-recently-used entry once
// maxSize is exceeded. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	cfg     *config
	ll      *list.List               // front = most recently used
	items   map[string]*list.Element // segment id -> list element
	evicted map[string]struct{}      // ids known to have been spilled
}

// New constructs a Cache with the given options.
func New(opts ...Option) *Cache {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Cache{
		cfg:     cfg,
		ll:      list.New(),
		items:   make(map[string]*list.Element),
		evicted: make(map[string]struct{}),
	}
}

// Get returns the segment for id, promoting it to most-recently-used. If
// absent from memory but previously evicted, it is reloaded via the
// configured LoadCallback and re-admitted (which may itself trigger another
// eviction).
func (c *Cache) Get(id string) *segment.Segment {
	c.mu.Lock()
	if el, ok := c.items[id]; ok {
		c.ll.MoveToFront(el)
		seg := el.Value.(*segment.Segment)
		c.mu.Unlock()
		return seg
	}
	_, wasEvicted := c.evicted[id]
	load := c.cfg.load
	c.mu.Unlock()

	if !wasEvicted || load == nil {
		return nil
	}
	seg := load(id)
	if seg == nil {
		return nil
	}
	c.Put(seg)
	return seg
}

// Put inserts or updates seg, evicting the least-recently-used entry via
// EjectCallback when the cache is at capacity.
func (c *Cache) Put(seg *segment.Segment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[seg.SegmentID]; ok {
		el.Value = seg
		c.ll.MoveToFront(el)
		delete(c.evicted, seg.SegmentID)
		return
	}

	if c.ll.Len() >= c.cfg.maxSize {
		c.evictLocked()
	}

	el := c.ll.PushFront(seg)
	c.items[seg.SegmentID] = el
	delete(c.evicted, seg.SegmentID)
}

// evictLocked removes the least-recently-used entry and spills it via
// EjectCallback. Caller must hold c.mu.
func (c *Cache) evictLocked() {
	oldest := c.ll.Back()
	if oldest == nil {
		return
	}
	seg := oldest.Value.(*segment.Segment)
	c.ll.Remove(oldest)
	delete(c.items, seg.SegmentID)

	if c.cfg.eject != nil {
		c.cfg.eject(seg)
		c.evicted[seg.SegmentID] = struct{}{}
	}
	c.cfg.logger.Debug("evicted segment from active cache", zap.String("segment_id", seg.SegmentID))
}

// Remove drops id from the cache and from the evicted-set bookkeeping,
// without invoking EjectCallback (used for explicit deletes, not capacity
// eviction).
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[id]; ok {
		c.ll.Remove(el)
		delete(c.items, id)
	}
	delete(c.evicted, id)
}

// Len returns the number of segments currently resident in memory.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Clear empties the cache, including evicted-id bookkeeping.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
	c.evicted = make(map[string]struct{})
}

// All returns every segment currently resident in memory, most-recently-used
// first. Used by operations (analysis, GC) that need the full working set
// rather than a single lookup.
func (c *Cache) All() []*segment.Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*segment.Segment, 0, c.ll.Len())
	for el := c.ll.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*segment.Segment))
	}
	return out
}
