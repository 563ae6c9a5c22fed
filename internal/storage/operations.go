package storage

import (
	"time"

	"github.com/memoria-dev/memoria/internal/index"
	"github.com/memoria-dev/memoria/internal/merr"
	"github.com/memoria-dev/memoria/internal/segment"
)

// Store places seg in the working tier (LRU), recording project
// membership. May trigger eviction of the least-recently-used working
// segment to disk.
func (s *Storage) Store(seg *segment.Segment, projectID string) {
	s.active.Put(seg)
	s.trackActive(projectID, seg.SegmentID, true)
}

// LoadAll returns the union of working-tier segments resident for
// projectID and segments parsed from its stashed shard. Order is
// unspecified, matching spec.md §4.1.
func (s *Storage) LoadAll(projectID string) ([]*segment.Segment, error) {
	var out []*segment.Segment

	for _, id := range s.activeIDsFor(projectID) {
		if seg := s.active.Get(id); seg != nil {
			out = append(out, seg)
		}
	}

	stashed, err := s.loadShard(projectID)
	if err != nil && !merr.Is(err, merr.KindCorruptedShard) {
		return nil, err
	}
	out = append(out, stashed...)
	return out, nil
}

// Stash removes seg from the working tier, sets tier=stashed, and
// atomically rewrites the project's shard with seg appended (replacing any
// prior entry with the same id). Indexes are updated incrementally.
func (s *Storage) Stash(seg *segment.Segment, projectID string) error {
	lock := s.lockFor(projectID)
	lock.Lock()
	defer lock.Unlock()

	s.active.Remove(seg.SegmentID)
	s.trackActive(projectID, seg.SegmentID, false)
	s.removeEvictedSegment(seg.SegmentID)

	seg.Tier = segment.TierStashed

	shard, err := s.loadShard(projectID)
	if err != nil && !merr.Is(err, merr.KindCorruptedShard) {
		return err
	}
	shard = removeByID(shard, seg.SegmentID)
	shard = append(shard, seg)

	if err := s.saveShard(projectID, shard); err != nil {
		return err
	}

	s.index.Project(projectID).Add(seg)
	return nil
}

// Unstash is the inverse of Stash: removes seg from the shard, sets
// tier=working, and admits it into the LRU.
func (s *Storage) Unstash(seg *segment.Segment, projectID string) error {
	lock := s.lockFor(projectID)
	lock.Lock()
	defer lock.Unlock()

	shard, err := s.loadShard(projectID)
	if err != nil && !merr.Is(err, merr.KindCorruptedShard) {
		return err
	}
	removed := false
	newShard := make([]*segment.Segment, 0, len(shard))
	for _, s2 := range shard {
		if s2.SegmentID == seg.SegmentID {
			removed = true
			continue
		}
		newShard = append(newShard, s2)
	}
	if removed {
		if err := s.saveShard(projectID, newShard); err != nil {
			return err
		}
		s.index.Project(projectID).Remove(seg)
	}

	seg.Tier = segment.TierWorking
	s.active.Put(seg)
	s.trackActive(projectID, seg.SegmentID, true)
	return nil
}

// Delete removes segmentID from the LRU, the evicted-spill directory, and
// the project's shard, and from the derived indexes. Missing ids are a
// no-op, per spec.md §4.1.
func (s *Storage) Delete(segmentID, projectID string) error {
	lock := s.lockFor(projectID)
	lock.Lock()
	defer lock.Unlock()

	s.active.Remove(segmentID)
	s.trackActive(projectID, segmentID, false)
	s.removeEvictedSegment(segmentID)

	shard, err := s.loadShard(projectID)
	if err != nil && !merr.Is(err, merr.KindCorruptedShard) {
		return err
	}

	var removed *segment.Segment
	newShard := make([]*segment.Segment, 0, len(shard))
	for _, seg := range shard {
		if seg.SegmentID == segmentID {
			removed = seg
			continue
		}
		newShard = append(newShard, seg)
	}
	if removed == nil {
		return nil
	}
	if err := s.saveShard(projectID, newShard); err != nil {
		return err
	}
	s.index.Project(projectID).Remove(removed)
	return nil
}

// Update replaces seg's stored representation: if it's currently a working
// segment, the LRU entry is replaced; otherwise its stashed shard entry is
// rewritten and its index rows rebuilt (old entry's rows removed, seg's
// rows re-added).
func (s *Storage) Update(seg *segment.Segment, projectID string) error {
	if existing := s.active.Get(seg.SegmentID); existing != nil {
		s.active.Put(seg)
		return nil
	}

	lock := s.lockFor(projectID)
	lock.Lock()
	defer lock.Unlock()

	shard, err := s.loadShard(projectID)
	if err != nil && !merr.Is(err, merr.KindCorruptedShard) {
		return err
	}

	var old *segment.Segment
	updated := false
	for i, s2 := range shard {
		if s2.SegmentID == seg.SegmentID {
			old = s2
			shard[i] = seg
			updated = true
			break
		}
	}
	if !updated {
		return merr.New(merr.KindNotFound, "segment %s not found for update in project %s", seg.SegmentID, projectID)
	}
	if err := s.saveShard(projectID, shard); err != nil {
		return err
	}

	proj := s.index.Project(projectID)
	if old != nil {
		proj.Remove(old)
	}
	proj.Add(seg)
	return nil
}

// SearchStashed implements §4.2's search contract: keyword AND-search
// (or "all stashed ids" when query is empty), narrowed by metadata filters,
// then narrowed again by the unindexed created_after/created_before
// date-range predicates after load.
func (s *Storage) SearchStashed(query string, filter index.Filter, createdAfter, createdBefore *time.Time, projectID string) ([]*segment.Segment, error) {
	proj := s.index.Project(projectID)

	var candidates map[string]struct{}
	if query != "" {
		candidates = proj.Keyword.Search(query)
	} else {
		ids, err := s.allStashedIDs(projectID)
		if err != nil {
			return nil, err
		}
		candidates = ids
	}

	candidates = proj.Metadata.Apply(candidates, filter)

	shard, err := s.loadShard(projectID)
	if err != nil && !merr.Is(err, merr.KindCorruptedShard) {
		return nil, err
	}

	out := make([]*segment.Segment, 0, len(candidates))
	for _, seg := range shard {
		if _, ok := candidates[seg.SegmentID]; !ok {
			continue
		}
		if createdAfter != nil && seg.CreatedAt.Before(*createdAfter) {
			continue
		}
		if createdBefore != nil && seg.CreatedAt.After(*createdBefore) {
			continue
		}
		out = append(out, seg)
	}
	return out, nil
}

func (s *Storage) allStashedIDs(projectID string) (map[string]struct{}, error) {
	shard, err := s.loadShard(projectID)
	if err != nil && !merr.Is(err, merr.KindCorruptedShard) {
		return nil, err
	}
	out := make(map[string]struct{}, len(shard))
	for _, seg := range shard {
		out[seg.SegmentID] = struct{}{}
	}
	return out, nil
}

func removeByID(segs []*segment.Segment, id string) []*segment.Segment {
	out := make([]*segment.Segment, 0, len(segs))
	for _, s := range segs {
		if s.SegmentID != id {
			out = append(out, s)
		}
	}
	return out
}
