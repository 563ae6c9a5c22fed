package index

import (
	"sync"

	"github.com/memoria-dev/memoria/internal/segment"
)

// Filter selects the metadata predicates apply_metadata_filters applies.
// A nil/zero field is simply skipped, matching the original's
// `if "key" in filters` guard.
type Filter struct {
	FilePath string
	TaskID   string
	Tags     []string
	Type     segment.Type

	hasFilePath bool
	hasTaskID   bool
	hasType     bool
}

// WithFilePath sets the file_path predicate.
func (f Filter) WithFilePath(path string) Filter {
	f.FilePath, f.hasFilePath = path, true
	return f
}

// WithTaskID sets the task_id predicate.
func (f Filter) WithTaskID(taskID string) Filter {
	f.TaskID, f.hasTaskID = taskID, true
	return f
}

// WithType sets the type predicate.
func (f Filter) WithType(t segment.Type) Filter {
	f.Type, f.hasType = t, true
	return f
}

// Metadata holds the four hash indexes for a single project: by file path,
// by task, by tag, and by type. Safe for concurrent use.
type Metadata struct {
	mu     sync.RWMutex
	byFile map[string]map[string]struct{}
	byTask map[string]map[string]struct{}
	byTag  map[string]map[string]struct{}
	byType map[string]map[string]struct{}
}

// NewMetadata constructs empty metadata indexes for one project.
func NewMetadata() *Metadata {
	return &Metadata{
		byFile: make(map[string]map[string]struct{}),
		byTask: make(map[string]map[string]struct{}),
		byTag:  make(map[string]map[string]struct{}),
		byType: make(map[string]map[string]struct{}),
	}
}

// Update adds (add=true) or removes (add=false) seg from every metadata
// index its fields participate in: by_file when FilePath is set, by_task
// when TaskID is set, by_tag for every tag, and by_type always.
func (m *Metadata) Update(seg *segment.Segment, add bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if seg.FilePath != nil && *seg.FilePath != "" {
		updateIndex(m.byFile, *seg.FilePath, seg.SegmentID, add)
	}
	if seg.TaskID != nil && *seg.TaskID != "" {
		updateIndex(m.byTask, *seg.TaskID, seg.SegmentID, add)
	}
	for _, tag := range seg.Tags {
		updateIndex(m.byTag, tag, seg.SegmentID, add)
	}
	updateIndex(m.byType, string(seg.Type), seg.SegmentID, add)
}

func updateIndex(index map[string]map[string]struct{}, key, segmentID string, add bool) {
	if add {
		set, ok := index[key]
		if !ok {
			set = make(map[string]struct{})
			index[key] = set
		}
		set[segmentID] = struct{}{}
		return
	}
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, segmentID)
	if len(set) == 0 {
		delete(index, key)
	}
}

// Apply narrows candidateIDs to those matching every predicate set on
// filter: file_path and task_id are exact-match, tags requires presence of
// every listed tag, and type is exact-match. candidateIDs is not mutated;
// the narrowed set is returned.
func (m *Metadata) Apply(candidateIDs map[string]struct{}, filter Filter) map[string]struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := cloneSet(candidateIDs)

	if filter.hasFilePath || filter.FilePath != "" {
		result = intersect(result, m.byFile[filter.FilePath])
	}
	if filter.hasTaskID || filter.TaskID != "" {
		result = intersect(result, m.byTask[filter.TaskID])
	}
	for _, tag := range filter.Tags {
		result = intersect(result, m.byTag[tag])
	}
	if filter.hasType || filter.Type != "" {
		result = intersect(result, m.byType[string(filter.Type)])
	}
	return result
}
