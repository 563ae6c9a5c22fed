// Package contextmgr converts agent-supplied descriptors into segments,
// enforces project/task scoping, and serves working sets and stashed
// queries on top of the Storage Layer, Tokenizer, and Analysis Engine
// (spec.md §4.6).
//
// Grounded on context_manager/implementation.py's ContextManager class.
//
// © 2025 memoria authors. MIT License.
package contextmgr

import (
	"fmt"
	"time"

	"github.com/memoria-dev/memoria/internal/segment"
	"github.com/memoria-dev/memoria/internal/tokenizer"
)

// Message is one entry of ContextDescriptors.RecentMessages.
type Message struct {
	Role      string
	Content   string
	Timestamp *time.Time
}

// FileInfo describes the agent's active file and cursor location.
type FileInfo struct {
	Path        string
	Name        *string
	Extension   *string
	LineCount   *int
	CurrentLine *int
}

// TaskInfo carries the agent's current task metadata.
type TaskInfo struct {
	TaskID      string
	Name        *string
	Description *string
	CreatedAt   *time.Time
}

// TokenUsage is the agent's self-reported token accounting, used only to
// supply the token_limit for AnalyzeContext (spec.md §4.6).
type TokenUsage struct {
	Current      int
	Limit        int
	UsagePercent float64
}

// SegmentSummary is a high-level description of a segment the caller
// already knows about; entries with Type "summary" are skipped during
// conversion, on the assumption they already exist in storage.
type SegmentSummary struct {
	SegmentID string
	Type      segment.Type
	Preview   string
	Tokens    int
	CreatedAt time.Time
}

// ContextDescriptors is the wire-independent input payload of spec.md §6.
type ContextDescriptors struct {
	RecentMessages   []Message
	CurrentFile      *FileInfo
	TokenUsage       TokenUsage
	SegmentSummaries []SegmentSummary
	TaskInfo         *TaskInfo
}

// ConvertDescriptorsToSegments builds the working-tier segments implied by
// descriptors: one message segment per recent message, one code segment
// for the current file (if present), and one placeholder segment per
// non-summary segment summary. Token counts are computed eagerly via t but
// the cache-validation fields (TextHash, TokensComputedAt) are left unset,
// matching the original's behavior of never marking these freshly-created
// segments as cache-valid — the first CountSegment call against them will
// recompute and stamp the hash.
func ConvertDescriptorsToSegments(d ContextDescriptors, projectID string, t tokenizer.Tokenizer, now time.Time) []*segment.Segment {
	var out []*segment.Segment

	var taskID *string
	if d.TaskInfo != nil {
		id := d.TaskInfo.TaskID
		taskID = &id
	}

	for i, msg := range d.RecentMessages {
		text := fmt.Sprintf("%s: %s", msg.Role, msg.Content)
		ts := now
		if msg.Timestamp != nil {
			ts = *msg.Timestamp
		}
		tokens := t.Count(text)
		out = append(out, &segment.Segment{
			SegmentID:     fmt.Sprintf("msg-%s-%d-%d", projectID, now.UnixNano(), i),
			Text:          text,
			Type:          segment.TypeMessage,
			ProjectID:     projectID,
			TaskID:        taskID,
			CreatedAt:     ts,
			LastTouchedAt: ts,
			Generation:    segment.GenerationYoung,
			Tags:          []string{},
			Tokens:        &tokens,
			Tier:          segment.TierWorking,
		})
	}

	if d.CurrentFile != nil {
		path := d.CurrentFile.Path
		text := fmt.Sprintf("File: %s", path)
		var lineRange *segment.LineRange
		if d.CurrentFile.CurrentLine != nil && *d.CurrentFile.CurrentLine != 0 {
			line := *d.CurrentFile.CurrentLine
			text += fmt.Sprintf(" (line %d)", line)
			lineRange = &segment.LineRange{Start: line, End: line}
		}
		tokens := t.Count(text)
		out = append(out, &segment.Segment{
			SegmentID:     fmt.Sprintf("file-%s-%d", projectID, now.UnixNano()),
			Text:          text,
			Type:          segment.TypeCode,
			ProjectID:     projectID,
			TaskID:        taskID,
			CreatedAt:     now,
			LastTouchedAt: now,
			Generation:    segment.GenerationYoung,
			FilePath:      &path,
			LineRange:     lineRange,
			Tags:          []string{},
			Tokens:        &tokens,
			Tier:          segment.TierWorking,
		})
	}

	for _, sum := range d.SegmentSummaries {
		if sum.Type == segment.TypeSummary {
			continue
		}
		createdAt := sum.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		tokens := sum.Tokens
		out = append(out, &segment.Segment{
			SegmentID:     sum.SegmentID,
			Text:          sum.Preview,
			Type:          sum.Type,
			ProjectID:     projectID,
			TaskID:        taskID,
			CreatedAt:     createdAt,
			LastTouchedAt: createdAt,
			Generation:    segment.GenerationYoung,
			Tags:          []string{},
			Tokens:        &tokens,
			Tier:          segment.TierWorking,
		})
	}

	return out
}
