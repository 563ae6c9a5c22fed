package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/memoria-dev/memoria/internal/merr"
	"github.com/memoria-dev/memoria/internal/segment"
)

// shardDoc is the on-disk shape of a per-project stashed shard:
// `{"segments": [...]}`, matching spec.md §4.1 exactly.
type shardDoc struct {
	Segments []*segment.Segment `json:"segments"`
}

func (s *Storage) shardPath(projectID string) string {
	return filepath.Join(s.stashedDir, projectID+".json")
}

func (s *Storage) evictedPath(segmentID string) string {
	return filepath.Join(s.evictedDir, segmentID+".json")
}

// loadShard reads and parses a project's stashed shard. A missing shard
// returns an empty, non-nil slice. A .tmp sibling left over from an
// interrupted write is removed first (spec.md §4.1 atomic write protocol).
// Unparseable content is quarantined to .corrupt and treated as empty.
func (s *Storage) loadShard(projectID string) ([]*segment.Segment, error) {
	path := s.shardPath(projectID)
	tmpPath := path + ".tmp"

	if _, err := os.Stat(tmpPath); err == nil {
		s.logger.Warn("removing stray shard tmp file", zap.String("path", tmpPath))
		if rmErr := os.Remove(tmpPath); rmErr != nil {
			s.logger.Error("failed to remove stray tmp file", zap.Error(rmErr))
		}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []*segment.Segment{}, nil
	}
	if err != nil {
		return nil, classifyIOError(err, "read shard %s", path)
	}

	var doc shardDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		corruptPath := path + ".corrupt"
		s.logger.Error("corrupt shard, quarantining", zap.String("path", path), zap.Error(err))
		if rnErr := os.Rename(path, corruptPath); rnErr != nil {
			s.logger.Error("failed to quarantine corrupt shard", zap.Error(rnErr))
		}
		return []*segment.Segment{}, merr.Wrap(merr.KindCorruptedShard, err, "shard %s failed to parse, quarantined", path)
	}
	if doc.Segments == nil {
		doc.Segments = []*segment.Segment{}
	}
	return doc.Segments, nil
}

// saveShard atomically rewrites a project's stashed shard: write to
// `<shard>.json.tmp`, then rename over the target. The temp file is
// cleaned up on any failure before the rename.
func (s *Storage) saveShard(projectID string, segments []*segment.Segment) error {
	path := s.shardPath(projectID)
	tmpPath := path + ".tmp"

	doc := shardDoc{Segments: segments}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return merr.Wrap(merr.KindInternal, err, "marshal shard %s", projectID)
	}

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return classifyIOError(err, "write shard tmp %s", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return classifyIOError(err, "rename shard %s into place", path)
	}
	return nil
}

// saveEvictedSegment writes seg as a standalone JSON file under evicted/.
// Failures are logged, matching the original's best-effort disk-spill
// (an eviction failure must not crash the in-memory Put path), but the
// error is also returned so storage.go's EjectCallback can decide whether
// to log at a higher severity.
func (s *Storage) saveEvictedSegment(seg *segment.Segment) error {
	data, err := json.MarshalIndent(seg, "", "  ")
	if err != nil {
		return merr.Wrap(merr.KindInternal, err, "marshal evicted segment %s", seg.SegmentID)
	}
	if err := os.WriteFile(s.evictedPath(seg.SegmentID), data, 0o644); err != nil {
		return classifyIOError(err, "write evicted segment %s", seg.SegmentID)
	}
	return nil
}

// loadEvictedSegment reads a previously-spilled segment back from disk,
// returning nil if it doesn't exist.
func (s *Storage) loadEvictedSegment(segmentID string) *segment.Segment {
	data, err := os.ReadFile(s.evictedPath(segmentID))
	if err != nil {
		return nil
	}
	var seg segment.Segment
	if err := json.Unmarshal(data, &seg); err != nil {
		s.logger.Error("failed to deserialize evicted segment", zap.String("segment_id", segmentID), zap.Error(err))
		return nil
	}
	return &seg
}

// removeEvictedSegment deletes an evicted-segment file if present.
func (s *Storage) removeEvictedSegment(segmentID string) {
	_ = os.Remove(s.evictedPath(segmentID))
}

// classifyIOError maps an OS-level error into the §7 IOPermission/DiskFull
// distinction; anything else becomes Internal.
func classifyIOError(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, os.ErrPermission) {
		return merr.Wrap(merr.KindIOPermission, err, "%s", msg)
	}
	if errors.Is(err, syscall.ENOSPC) {
		return merr.Wrap(merr.KindDiskFull, err, "%s", msg)
	}
	return merr.Wrap(merr.KindInternal, err, "%s", msg)
}
