package memoria

import (
	"time"

	"go.uber.org/zap"

	"github.com/memoria-dev/memoria/internal/contextmgr"
	"github.com/memoria-dev/memoria/internal/gc"
	"github.com/memoria-dev/memoria/internal/index"
	"github.com/memoria-dev/memoria/internal/merr"
	"github.com/memoria-dev/memoria/internal/segment"
)

// Action is the pruning action requested by GCPrune.
type Action string

const (
	ActionStash  Action = "stash"
	ActionDelete Action = "delete"
)

// AnalyzeUsageResult is the return shape of AppState.AnalyzeUsage.
type AnalyzeUsageResult struct {
	TotalTokens           int
	SegmentCount          int
	UsagePercent          float64
	HealthScore           float64
	Recommendations       []string
	PruningCandidateCount int
}

// GCAnalyzeResult is the return shape of AppState.GCAnalyze.
type GCAnalyzeResult struct {
	PruningCandidates    []gc.Candidate
	TotalCandidates      int
	EstimatedTokensFreed int
	PruningPlan          *gc.Plan
}

// GCPruneResult is the return shape of AppState.GCPrune.
type GCPruneResult struct {
	PrunedSegments []string
	TokensFreed    int
	Action         string
	Errors         []string
}

// GCPinResult is the return shape of AppState.GCPin / AppState.GCUnpin.
type GCPinResult struct {
	Segments []string
	Errors   []string
}

// AnalyzeUsage consumes optional descriptors, stores and analyzes the
// resulting working tier, and additionally reports the pruning-candidate
// count a GCAnalyze call against the same state would return (spec.md §6).
func (a *AppState) AnalyzeUsage(descriptors *contextmgr.ContextDescriptors, projectID string, taskID *string, tokenLimit int, now time.Time) (AnalyzeUsageResult, error) {
	if projectID == "" {
		return AnalyzeUsageResult{}, merr.New(merr.KindInvalidParameter, "project_id is required")
	}

	d := contextmgr.ContextDescriptors{}
	if descriptors != nil {
		d = *descriptors
	}
	if d.TokenUsage.Limit == 0 {
		d.TokenUsage.Limit = tokenLimit
	}
	if taskID != nil && d.TaskInfo == nil {
		id := *taskID
		d.TaskInfo = &contextmgr.TaskInfo{TaskID: id}
	}

	result, err := a.contextMgr.AnalyzeContext(d, projectID, now)
	if err != nil {
		return AnalyzeUsageResult{}, err
	}

	all, err := a.storage.LoadAll(projectID)
	if err != nil {
		return AnalyzeUsageResult{}, err
	}
	var working []*segment.Segment
	for _, seg := range all {
		if seg.Tier == segment.TierWorking {
			working = append(working, seg)
		}
	}
	roots := a.buildRootSet(working, descriptors, taskID)
	candidates := gc.AnalyzeCandidates(working, roots, now)

	return AnalyzeUsageResult{
		TotalTokens:           result.TotalTokens,
		SegmentCount:          result.SegmentCount,
		UsagePercent:          result.UsagePercent,
		HealthScore:           result.HealthScore,
		Recommendations:       result.Recommendations,
		PruningCandidateCount: len(candidates),
	}, nil
}

// GetWorkingSet returns the cached or freshly-built working set for
// (projectID, taskID).
func (a *AppState) GetWorkingSet(projectID string, taskID *string, now time.Time) (contextmgr.WorkingSet, error) {
	return a.contextMgr.GetWorkingSet(projectID, taskID, now)
}

// Stash moves the given segment ids from the working tier to the stashed
// tier.
func (a *AppState) Stash(segmentIDs []string, projectID string) (contextmgr.StashResult, error) {
	return a.contextMgr.StashSegments(segmentIDs, projectID)
}

// SearchStashed runs a keyword-and-metadata search over projectID's
// stashed tier.
func (a *AppState) SearchStashed(query string, filter index.Filter, createdAfter, createdBefore *time.Time, projectID string) ([]*segment.Segment, error) {
	return a.contextMgr.RetrieveStashed(query, filter, createdAfter, createdBefore, projectID)
}

// RetrieveStashed is an alias for SearchStashed kept for parity with
// spec.md §6's separately-named tool.
func (a *AppState) RetrieveStashed(query string, filter index.Filter, projectID string) ([]*segment.Segment, error) {
	return a.contextMgr.RetrieveStashed(query, filter, nil, nil, projectID)
}

// SetCurrentTask updates the project's current task pointer.
func (a *AppState) SetCurrentTask(projectID string, taskID *string, now time.Time) (contextmgr.SetCurrentTaskResult, error) {
	return a.contextMgr.SetCurrentTask(projectID, taskID, now)
}

// GetTaskContext returns every segment belonging to the effective task.
func (a *AppState) GetTaskContext(projectID string, taskID *string) (contextmgr.TaskContext, error) {
	return a.contextMgr.GetTaskContext(projectID, taskID)
}

// CreateTaskSnapshot copies the effective task's segments into the stashed
// tier under derived ids.
func (a *AppState) CreateTaskSnapshot(projectID string, taskID, name *string, now time.Time) (contextmgr.SnapshotResult, error) {
	return a.contextMgr.CreateTaskSnapshot(projectID, taskID, name, now)
}

// buildRootSet computes the GC root set from optional context descriptors:
// working-tier message segments of the current task, segments matching the
// descriptors' current file, and decision segments created within the
// configured recent-decision window. Grounded on gc_analyze.py's root-set
// construction.
func (a *AppState) buildRootSet(working []*segment.Segment, descriptors *contextmgr.ContextDescriptors, taskID *string) map[string]struct{} {
	roots := make(map[string]struct{})
	if descriptors == nil {
		return roots
	}

	if len(descriptors.RecentMessages) > 0 && taskID != nil {
		for _, seg := range working {
			if seg.Type == segment.TypeMessage && seg.TaskID != nil && *seg.TaskID == *taskID {
				roots[seg.SegmentID] = struct{}{}
			}
		}
	}

	if descriptors.CurrentFile != nil {
		path := descriptors.CurrentFile.Path
		for _, seg := range working {
			if seg.FilePath != nil && *seg.FilePath == path {
				roots[seg.SegmentID] = struct{}{}
			}
		}
	}

	threshold := time.Now().Add(-time.Duration(a.Config.RecentDecisionHours) * time.Hour)
	for _, seg := range working {
		if seg.Type == segment.TypeDecision && seg.CreatedAt.After(threshold) {
			roots[seg.SegmentID] = struct{}{}
		}
	}

	return roots
}

// GCAnalyze identifies pruning candidates for projectID's working tier and,
// when targetTokens is non-nil, synthesizes a pruning plan to free it.
func (a *AppState) GCAnalyze(descriptors *contextmgr.ContextDescriptors, projectID string, taskID *string, targetTokens *int, now time.Time) (GCAnalyzeResult, error) {
	if projectID == "" {
		return GCAnalyzeResult{}, merr.New(merr.KindInvalidParameter, "project_id is required")
	}

	all, err := a.storage.LoadAll(projectID)
	if err != nil {
		return GCAnalyzeResult{}, err
	}
	var working []*segment.Segment
	for _, seg := range all {
		if seg.Tier == segment.TierWorking {
			working = append(working, seg)
		}
	}

	roots := a.buildRootSet(working, descriptors, taskID)
	candidates := gc.AnalyzeCandidates(working, roots, now)

	freed := 0
	for _, c := range candidates {
		freed += c.Tokens
	}

	result := GCAnalyzeResult{
		PruningCandidates:    candidates,
		TotalCandidates:      len(candidates),
		EstimatedTokensFreed: freed,
	}

	if targetTokens != nil {
		plan := gc.GeneratePlan(candidates, *targetTokens)
		result.PruningPlan = &plan
	}

	return result, nil
}

// GCPrune executes a stash or delete action against the given segment ids.
// Delete without confirm=true fails fast with ConfirmationRequired,
// touching no storage (spec.md §6); any action other than stash or delete
// fails with InvalidParameter. Missing, pinned, or non-working segments are
// reported per-item in Errors without aborting the batch. A storage failure
// stops the remaining items; the partial result is returned with the
// failure recorded in Errors.
func (a *AppState) GCPrune(projectID string, segmentIDs []string, action Action, confirm bool) (GCPruneResult, error) {
	if projectID == "" {
		return GCPruneResult{}, merr.New(merr.KindInvalidParameter, "project_id is required")
	}
	if len(segmentIDs) == 0 {
		return GCPruneResult{}, merr.New(merr.KindInvalidParameter, "segment_ids cannot be empty")
	}
	if action != ActionStash && action != ActionDelete {
		return GCPruneResult{}, merr.New(merr.KindInvalidParameter, "unknown action %q", string(action))
	}
	if action == ActionDelete && !confirm {
		return GCPruneResult{}, merr.New(merr.KindConfirmationRequired, "confirm=true is required for delete actions")
	}

	all, err := a.storage.LoadAll(projectID)
	if err != nil {
		return GCPruneResult{}, err
	}
	byID := make(map[string]*segment.Segment, len(all))
	for _, seg := range all {
		byID[seg.SegmentID] = seg
	}

	var toPrune []*segment.Segment
	var errs []string
	for _, id := range segmentIDs {
		seg, ok := byID[id]
		if !ok {
			errs = append(errs, "segment "+id+" not found")
			continue
		}
		if seg.Pinned {
			errs = append(errs, "segment "+id+" is pinned and cannot be pruned")
			continue
		}
		if seg.Tier != segment.TierWorking {
			errs = append(errs, "segment "+id+" is not in working tier (tier: "+string(seg.Tier)+")")
			continue
		}
		toPrune = append(toPrune, seg)
	}

	actionTaken := "stashed"
	if action == ActionDelete {
		actionTaken = "deleted"
	}

	var pruned []string
	tokensFreed := 0
	for _, seg := range toPrune {
		var opErr error
		switch action {
		case ActionStash:
			opErr = a.storage.Stash(seg, projectID)
		case ActionDelete:
			opErr = a.storage.Delete(seg.SegmentID, projectID)
		}
		if opErr != nil {
			errs = append(errs, "failed to "+string(action)+" segment "+seg.SegmentID+": "+opErr.Error())
			a.logger.Error("gc_prune item failed", zap.String("segment_id", seg.SegmentID), zap.Error(opErr))
			break
		}
		pruned = append(pruned, seg.SegmentID)
		tokensFreed += seg.TokenCount()
	}

	a.contextMgr.InvalidateWorkingSet(projectID)

	return GCPruneResult{
		PrunedSegments: pruned,
		TokensFreed:    tokensFreed,
		Action:         actionTaken,
		Errors:         errs,
	}, nil
}

// GCPin marks the given segment ids as pinned, excluding them from future
// GC candidate selection.
func (a *AppState) GCPin(projectID string, segmentIDs []string) (GCPinResult, error) {
	return a.setPinned(projectID, segmentIDs, true)
}

// GCUnpin clears the pinned flag on the given segment ids, allowing them
// to be pruned again.
func (a *AppState) GCUnpin(projectID string, segmentIDs []string) (GCPinResult, error) {
	return a.setPinned(projectID, segmentIDs, false)
}

func (a *AppState) setPinned(projectID string, segmentIDs []string, pinned bool) (GCPinResult, error) {
	if projectID == "" {
		return GCPinResult{}, merr.New(merr.KindInvalidParameter, "project_id is required")
	}
	if len(segmentIDs) == 0 {
		return GCPinResult{}, merr.New(merr.KindInvalidParameter, "segment_ids cannot be empty")
	}

	all, err := a.storage.LoadAll(projectID)
	if err != nil {
		return GCPinResult{}, err
	}
	byID := make(map[string]*segment.Segment, len(all))
	for _, seg := range all {
		byID[seg.SegmentID] = seg
	}

	var affected []string
	var errs []string
	for _, id := range segmentIDs {
		seg, ok := byID[id]
		if !ok {
			errs = append(errs, "segment "+id+" not found")
			continue
		}
		seg.Pinned = pinned
		if err := a.storage.Update(seg, projectID); err != nil {
			errs = append(errs, "failed to update segment "+id+": "+err.Error())
			continue
		}
		affected = append(affected, id)
	}

	return GCPinResult{Segments: affected, Errors: errs}, nil
}
