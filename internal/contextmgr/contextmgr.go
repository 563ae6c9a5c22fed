package contextmgr

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/memoria-dev/memoria/internal/analysis"
	"github.com/memoria-dev/memoria/internal/index"
	"github.com/memoria-dev/memoria/internal/merr"
	"github.com/memoria-dev/memoria/internal/segment"
	"github.com/memoria-dev/memoria/internal/storage"
	"github.com/memoria-dev/memoria/internal/tokenizer"
)

// WorkingSet is the cached, sorted view of one project's (optionally
// task-scoped) working-tier segments.
type WorkingSet struct {
	Segments    []*segment.Segment
	TotalTokens int
	ProjectID   string
	TaskID      *string
	LastUpdated time.Time
}

// AnalysisResult is the return shape of AnalyzeContext.
type AnalysisResult struct {
	TotalTokens     int
	SegmentCount    int
	UsagePercent    float64
	HealthScore     float64
	Recommendations []string
}

// StashResult is the return shape of StashSegments.
type StashResult struct {
	StashedSegments []string
	TokensFreed     int
	StashLocation   *string
}

// SetCurrentTaskResult reports the effect of SetCurrentTask, supplementing
// spec.md's "updates the map and invalidates the cache" with the richer
// shape the original returns (previous task, and a post-update working-set
// verification flag).
type SetCurrentTaskResult struct {
	PreviousTaskID    *string
	CurrentTaskID     *string
	WorkingSetUpdated bool
}

// TaskContext is the return shape of GetTaskContext.
type TaskContext struct {
	TaskID       *string
	Segments     []*segment.Segment
	TotalTokens  int
	SegmentCount int
	Active       bool
}

// SnapshotResult is the return shape of CreateTaskSnapshot.
type SnapshotResult struct {
	SnapshotID       string
	TaskID           string
	SegmentsCaptured int
	TokensCaptured   int
	CreatedAt        time.Time
}

// Manager orchestrates the Storage Layer, Tokenizer, and Analysis Engine
// into the descriptor-ingestion and project/task-scoped operations of
// spec.md §4.6. A Manager instance is single-threaded with respect to a
// given project (spec.md §5): the currentTasks/workingSets maps are
// protected by mu so concurrent calls against different projects on the
// same Manager don't race, even though ordering guarantees are only
// specified per-project.
type Manager struct {
	storage   *storage.Storage
	analysis  *analysis.Engine
	tokenizer tokenizer.Tokenizer
	logger    *zap.Logger

	mu           sync.Mutex
	currentTasks map[string]string
	workingSets  map[string]map[string]*WorkingSet
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger plugs an external zap.Logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithTokenizer overrides the tokenizer used for descriptor ingestion.
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(m *Manager) {
		if t != nil {
			m.tokenizer = t
		}
	}
}

// New constructs a Manager wrapping st and eng.
func New(st *storage.Storage, eng *analysis.Engine, opts ...Option) *Manager {
	m := &Manager{
		storage:      st,
		analysis:     eng,
		tokenizer:    tokenizer.ForModel(tokenizer.DefaultModel),
		logger:       zap.NewNop(),
		currentTasks: make(map[string]string),
		workingSets:  make(map[string]map[string]*WorkingSet),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// taskKey maps an optional task id to the working-set cache's inner map
// key; the empty string stands for "no task", matching the original's use
// of None as a dict key.
func taskKey(taskID *string) string {
	if taskID == nil {
		return ""
	}
	return *taskID
}

// InvalidateWorkingSet clears every cached working set for projectID. It is
// exported so batch operations that mutate segments outside the Manager's
// own methods (gc_prune's stash/delete, gc_pin's pinned-flag update) can
// still keep the working-set cache coherent, matching the original's
// "reach into context_manager.working_sets and clear" pattern.
func (m *Manager) InvalidateWorkingSet(projectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateWorkingSet(projectID)
}

// invalidateWorkingSet clears every cached working set for projectID,
// forcing the next GetWorkingSet to rebuild from storage. Called whenever
// stash, unstash, delete, or task-change operations touch the project.
func (m *Manager) invalidateWorkingSet(projectID string) {
	if sets, ok := m.workingSets[projectID]; ok {
		for k := range sets {
			delete(sets, k)
		}
	}
}

func (m *Manager) currentTaskID(projectID string) *string {
	if id, ok := m.currentTasks[projectID]; ok {
		return &id
	}
	return nil
}

// AnalyzeContext validates project_id, converts descriptors into new
// working-tier segments, stores them, computes usage metrics and a health
// score over the project's working tier, generates recommendations,
// updates the current task if supplied, and invalidates the working-set
// cache.
func (m *Manager) AnalyzeContext(descriptors ContextDescriptors, projectID string, now time.Time) (AnalysisResult, error) {
	if projectID == "" {
		return AnalysisResult{}, merr.New(merr.KindInvalidParameter, "project_id cannot be empty")
	}

	newSegments := ConvertDescriptorsToSegments(descriptors, projectID, m.tokenizer, now)
	for _, seg := range newSegments {
		m.storage.Store(seg, projectID)
	}

	all, err := m.storage.LoadAll(projectID)
	if err != nil {
		return AnalysisResult{}, err
	}

	var working []*segment.Segment
	for _, seg := range all {
		if seg.Tier == segment.TierWorking {
			working = append(working, seg)
		}
	}

	tokenLimit := descriptors.TokenUsage.Limit
	metrics := m.analysis.AnalyzeUsage(working, tokenLimit, now)
	health := m.analysis.ComputeHealth(working, tokenLimit, now)
	recs := analysis.GenerateRecommendations(metrics)
	messages := make([]string, len(recs))
	for i, r := range recs {
		messages[i] = r.Message
	}

	m.mu.Lock()
	if descriptors.TaskInfo != nil {
		m.currentTasks[projectID] = descriptors.TaskInfo.TaskID
	}
	m.invalidateWorkingSet(projectID)
	m.mu.Unlock()

	return AnalysisResult{
		TotalTokens:     metrics.TotalTokens,
		SegmentCount:    metrics.TotalSegments,
		UsagePercent:    metrics.UsagePercent,
		HealthScore:     health.Score,
		Recommendations: messages,
	}, nil
}

// GetWorkingSet returns the cached working set for (projectID, taskID),
// rebuilding it from storage on a cache miss. taskID nil means "use the
// project's current task, if any".
func (m *Manager) GetWorkingSet(projectID string, taskID *string, now time.Time) (WorkingSet, error) {
	if projectID == "" {
		return WorkingSet{}, merr.New(merr.KindInvalidParameter, "project_id cannot be empty")
	}

	m.mu.Lock()
	effective := taskID
	if effective == nil {
		effective = m.currentTaskID(projectID)
	}
	key := taskKey(effective)
	if sets, ok := m.workingSets[projectID]; ok {
		if cached, ok := sets[key]; ok {
			m.mu.Unlock()
			return *cached, nil
		}
	}
	m.mu.Unlock()

	all, err := m.storage.LoadAll(projectID)
	if err != nil {
		return WorkingSet{}, err
	}

	var working []*segment.Segment
	for _, seg := range all {
		if seg.Tier != segment.TierWorking {
			continue
		}
		if effective != nil && (seg.TaskID == nil || *seg.TaskID != *effective) {
			continue
		}
		working = append(working, seg)
	}
	sort.SliceStable(working, func(i, j int) bool {
		return working[i].LastTouchedAt.After(working[j].LastTouchedAt)
	})

	total := 0
	for _, seg := range working {
		total += seg.TokenCount()
	}

	ws := WorkingSet{
		Segments:    working,
		TotalTokens: total,
		ProjectID:   projectID,
		TaskID:      effective,
		LastUpdated: now,
	}

	m.mu.Lock()
	sets, ok := m.workingSets[projectID]
	if !ok {
		sets = make(map[string]*WorkingSet)
		m.workingSets[projectID] = sets
	}
	sets[key] = &ws
	m.mu.Unlock()

	return ws, nil
}

// StashSegments moves the given segment ids to the stashed tier, skipping
// ids that are missing or not currently in the working tier. Missing ids
// are logged but never abort the batch, matching the original's
// partial-success posture.
func (m *Manager) StashSegments(segmentIDs []string, projectID string) (StashResult, error) {
	if projectID == "" {
		return StashResult{}, merr.New(merr.KindInvalidParameter, "project_id cannot be empty")
	}
	if len(segmentIDs) == 0 {
		return StashResult{}, nil
	}

	all, err := m.storage.LoadAll(projectID)
	if err != nil {
		return StashResult{}, err
	}

	wanted := make(map[string]struct{}, len(segmentIDs))
	for _, id := range segmentIDs {
		wanted[id] = struct{}{}
	}

	var toStash []*segment.Segment
	found := make(map[string]struct{}, len(segmentIDs))
	for _, seg := range all {
		if _, ok := wanted[seg.SegmentID]; !ok {
			continue
		}
		if seg.Tier != segment.TierWorking {
			continue
		}
		toStash = append(toStash, seg)
		found[seg.SegmentID] = struct{}{}
	}

	for _, id := range segmentIDs {
		if _, ok := found[id]; !ok {
			m.logger.Warn("segment not found or not in working tier, skipping stash", zap.String("segment_id", id), zap.String("project_id", projectID))
		}
	}

	var stashedIDs []string
	tokensFreed := 0
	for _, seg := range toStash {
		if err := m.storage.Stash(seg, projectID); err != nil {
			return StashResult{}, err
		}
		stashedIDs = append(stashedIDs, seg.SegmentID)
		tokensFreed += seg.TokenCount()
	}

	m.mu.Lock()
	m.invalidateWorkingSet(projectID)
	m.mu.Unlock()

	return StashResult{
		StashedSegments: stashedIDs,
		TokensFreed:     tokensFreed,
		StashLocation:   nil,
	}, nil
}

// RetrieveStashed delegates to the Storage Layer's search_stashed.
func (m *Manager) RetrieveStashed(query string, filter index.Filter, createdAfter, createdBefore *time.Time, projectID string) ([]*segment.Segment, error) {
	if projectID == "" {
		return nil, merr.New(merr.KindInvalidParameter, "project_id cannot be empty")
	}
	return m.storage.SearchStashed(query, filter, createdAfter, createdBefore, projectID)
}

// SetCurrentTask updates the project's current-task pointer (nil clears
// it), invalidates the working-set cache, and reports whether the new
// working set could be rebuilt without error.
func (m *Manager) SetCurrentTask(projectID string, taskID *string, now time.Time) (SetCurrentTaskResult, error) {
	if projectID == "" {
		return SetCurrentTaskResult{}, merr.New(merr.KindInvalidParameter, "project_id cannot be empty")
	}

	m.mu.Lock()
	previous := m.currentTaskID(projectID)
	if taskID == nil {
		delete(m.currentTasks, projectID)
	} else {
		m.currentTasks[projectID] = *taskID
	}
	m.invalidateWorkingSet(projectID)
	m.mu.Unlock()

	_, err := m.GetWorkingSet(projectID, taskID, now)

	return SetCurrentTaskResult{
		PreviousTaskID:    previous,
		CurrentTaskID:     taskID,
		WorkingSetUpdated: err == nil,
	}, nil
}

// GetTaskContext returns every segment (any tier) whose task_id matches
// the effective task (taskID, or the project's current task when nil),
// plus aggregate token/segment counts and whether that task is current.
func (m *Manager) GetTaskContext(projectID string, taskID *string) (TaskContext, error) {
	if projectID == "" {
		return TaskContext{}, merr.New(merr.KindInvalidParameter, "project_id cannot be empty")
	}

	m.mu.Lock()
	effective := taskID
	if effective == nil {
		effective = m.currentTaskID(projectID)
	}
	current := m.currentTaskID(projectID)
	m.mu.Unlock()

	if effective == nil {
		return TaskContext{TaskID: nil, Active: false}, nil
	}

	all, err := m.storage.LoadAll(projectID)
	if err != nil {
		return TaskContext{}, err
	}

	var taskSegments []*segment.Segment
	total := 0
	for _, seg := range all {
		if seg.TaskID == nil || *seg.TaskID != *effective {
			continue
		}
		taskSegments = append(taskSegments, seg)
		total += seg.TokenCount()
	}

	active := current != nil && *current == *effective

	return TaskContext{
		TaskID:       effective,
		Segments:     taskSegments,
		TotalTokens:  total,
		SegmentCount: len(taskSegments),
		Active:       active,
	}, nil
}

// CreateTaskSnapshot copies the effective task's segments into the
// stashed tier under derived ids, tagging each with {"snapshot",
// <snapshot_id>, name?}. Snapshot ids are
// snapshot-<project>-<task>-<unixnano>; each copied segment's id is
// <original-id>-<snapshot-id>.
func (m *Manager) CreateTaskSnapshot(projectID string, taskID *string, name *string, now time.Time) (SnapshotResult, error) {
	if projectID == "" {
		return SnapshotResult{}, merr.New(merr.KindInvalidParameter, "project_id cannot be empty")
	}

	m.mu.Lock()
	effective := taskID
	if effective == nil {
		effective = m.currentTaskID(projectID)
	}
	m.mu.Unlock()

	if effective == nil {
		return SnapshotResult{}, merr.New(merr.KindInvalidParameter, "no task specified and no current task set")
	}

	taskCtx, err := m.GetTaskContext(projectID, effective)
	if err != nil {
		return SnapshotResult{}, err
	}

	snapshotID := fmt.Sprintf("snapshot-%s-%s-%d", projectID, *effective, now.UnixNano())

	tags := []string{"snapshot", snapshotID}
	if name != nil && *name != "" {
		tags = append(tags, *name)
	}

	segmentsCaptured := 0
	tokensCaptured := 0
	for _, seg := range taskCtx.Segments {
		snap := seg.Clone()
		snap.SegmentID = fmt.Sprintf("%s-%s", seg.SegmentID, snapshotID)
		snap.LastTouchedAt = now
		snap.Tags = append(append([]string(nil), seg.Tags...), tags...)
		snap.Tier = segment.TierStashed

		if err := m.storage.Stash(snap, projectID); err != nil {
			return SnapshotResult{}, err
		}
		segmentsCaptured++
		tokensCaptured += snap.TokenCount()
	}

	return SnapshotResult{
		SnapshotID:       snapshotID,
		TaskID:           *effective,
		SegmentsCaptured: segmentsCaptured,
		TokensCaptured:   tokensCaptured,
		CreatedAt:        now,
	}, nil
}
