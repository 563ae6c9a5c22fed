package index

import (
	"sync"

	"github.com/memoria-dev/memoria/internal/segment"
)

// Project bundles one project's keyword and metadata indexes, the unit the
// Storage Layer keeps one of per project_id.
type Project struct {
	Keyword  *Keyword
	Metadata *Metadata
}

func newProject() *Project {
	return &Project{Keyword: NewKeyword(), Metadata: NewMetadata()}
}

// Add indexes seg under both the keyword and metadata indexes.
func (p *Project) Add(seg *segment.Segment) {
	p.Keyword.AddSegment(seg.SegmentID, seg.Text)
	p.Metadata.Update(seg, true)
}

// Remove drops seg from both indexes. Pass the segment as it was last
// indexed (metadata removal keys off its current fields).
func (p *Project) Remove(seg *segment.Segment) {
	p.Keyword.RemoveSegment(seg.SegmentID)
	p.Metadata.Update(seg, false)
}

// Registry is the top-level multi-project index store: one Project per
// project_id, created lazily on first use (mirrors the original's
// `_ensure_project_indexes`/keyword_index.setdefault pattern).
type Registry struct {
	mu       sync.RWMutex
	projects map[string]*Project
}

// NewRegistry constructs an empty multi-project registry.
func NewRegistry() *Registry {
	return &Registry{projects: make(map[string]*Project)}
}

// Project returns the index bundle for projectID, creating it if absent.
func (r *Registry) Project(projectID string) *Project {
	r.mu.RLock()
	p, ok := r.projects[projectID]
	r.mu.RUnlock()
	if ok {
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.projects[projectID]; ok {
		return p
	}
	p = newProject()
	r.projects[projectID] = p
	return p
}

// Drop removes all indexes for projectID; the next Project call for that id
// starts from empty indexes.
func (r *Registry) Drop(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.projects, projectID)
}
