// Package storage implements the tiered persistence layer described in
// spec.md §4.1: an in-memory LRU of working-tier segments backed by a
// spill-to-disk evicted directory, and per-project JSON shards for the
// stashed tier, with derived keyword and metadata indexes rebuilt from
// those shards at startup.
//
// Grounded on the original's storage/__init__.py composition (FileOperations
// + IndexingOperations + SegmentOperations delegating through a single
// StorageLayer facade) and on the teacher's pkg/cache.go for the
// functional-options construction and per-shard locking shape.
//
// © 2025 memoria authors. MIT License.
package storage

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/memoria-dev/memoria/internal/index"
	"github.com/memoria-dev/memoria/internal/lrucache"
	"github.com/memoria-dev/memoria/internal/merr"
	"github.com/memoria-dev/memoria/internal/segment"
)

// Option configures a Storage at construction time.
type Option func(*storageConfig)

type storageConfig struct {
	maxActiveSegments int
	logger            *zap.Logger
}

func defaultStorageConfig() *storageConfig {
	return &storageConfig{
		maxActiveSegments: 10000,
		logger:            zap.NewNop(),
	}
}

// WithMaxActiveSegments bounds the in-memory working set size.
func WithMaxActiveSegments(n int) Option {
	return func(c *storageConfig) {
		if n > 0 {
			c.maxActiveSegments = n
		}
	}
}

// WithLogger plugs an external zap.Logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *storageConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Storage is the tiered persistence layer. All operations take a
// project_id and never touch another project's shard or index.
type Storage struct {
	rootDir    string
	stashedDir string
	evictedDir string

	active *lrucache.Cache
	index  *index.Registry
	logger *zap.Logger

	// activeIDs tracks, per project, which segment ids currently live in
	// the working tier (LRU-resident or evicted-but-still-working), so
	// LoadAll can enumerate a project's working segments without scanning
	// the whole LRU.
	mu        sync.RWMutex
	activeIDs map[string]map[string]struct{}

	// projectLocks shards writers by project_id (mirrors the teacher's
	// per-shard sync.RWMutex in pkg/cache.go), so two projects' stash/
	// unstash/delete/update calls never block each other.
	lockMu       sync.Mutex
	projectLocks map[string]*sync.Mutex
}

// Open constructs a Storage rooted at rootDir, creating the stashed/ and
// evicted/ subdirectories if absent, and rebuilds the keyword and metadata
// indexes from whatever stashed shards are already on disk.
func Open(rootDir string, opts ...Option) (*Storage, error) {
	cfg := defaultStorageConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	stashedDir := filepath.Join(rootDir, "stashed")
	evictedDir := filepath.Join(rootDir, "evicted")
	for _, dir := range []string{rootDir, stashedDir, evictedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, classifyIOError(err, "create storage directory %s", dir)
		}
	}

	s := &Storage{
		rootDir:      rootDir,
		stashedDir:   stashedDir,
		evictedDir:   evictedDir,
		index:        index.NewRegistry(),
		logger:       cfg.logger,
		activeIDs:    make(map[string]map[string]struct{}),
		projectLocks: make(map[string]*sync.Mutex),
	}

	s.active = lrucache.New(
		lrucache.WithMaxSize(cfg.maxActiveSegments),
		lrucache.WithLogger(cfg.logger),
		lrucache.WithEjectCallback(func(seg *segment.Segment) {
			if err := s.saveEvictedSegment(seg); err != nil {
				s.logger.Error("failed to spill evicted segment", zap.String("segment_id", seg.SegmentID), zap.Error(err))
			}
		}),
		lrucache.WithLoadCallback(s.loadEvictedSegment),
	)

	if err := s.rebuildIndexes(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// lockFor returns the per-project mutex, creating it on first use.
func (s *Storage) lockFor(projectID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.projectLocks[projectID]
	if !ok {
		l = &sync.Mutex{}
		s.projectLocks[projectID] = l
	}
	return l
}

func (s *Storage) trackActive(projectID, segmentID string, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.activeIDs[projectID]
	if !ok {
		if !add {
			return
		}
		set = make(map[string]struct{})
		s.activeIDs[projectID] = set
	}
	if add {
		set[segmentID] = struct{}{}
	} else {
		delete(set, segmentID)
	}
}

func (s *Storage) activeIDsFor(projectID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.activeIDs[projectID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// rebuildIndexes walks stashed/*.json once, synchronously, at Open time: one
// goroutine per shard file, bounded by GOMAXPROCS, each goroutine only
// touching its own project's index entries so there is no data race despite
// the concurrency (projects own disjoint index state). This preserves the
// "single goroutine per public call observed externally" contract of §5
// because rebuild happens entirely inside Open, before any public method is
// reachable.
func (s *Storage) rebuildIndexes(ctx context.Context) error {
	entries, err := os.ReadDir(s.stashedDir)
	if err != nil {
		return classifyIOError(err, "read stashed directory %s", s.stashedDir)
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelRebuild())

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		projectID := name[:len(name)-len(".json")]
		g.Go(func() error {
			segs, err := s.loadShard(projectID)
			if err != nil && !merr.Is(err, merr.KindCorruptedShard) {
				return err
			}
			proj := s.index.Project(projectID)
			for _, seg := range segs {
				proj.Add(seg)
			}
			return nil
		})
	}
	return g.Wait()
}

func maxParallelRebuild() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}
