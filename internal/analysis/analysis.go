// Package analysis computes usage metrics, a health score, and actionable
// recommendations over a project's working-tier segments (spec.md §4.4).
//
// Grounded on analysis_engine.py's AnalysisEngine; the token-counting path
// runs through internal/tokenizer.CountSegment instead of a bespoke
// tiktoken wrapper, and gauge publication is layered on top via an optional
// Prometheus collector, following the teacher's noop-vs-real metricsSink
// pattern in pkg/metrics.go.
//
// © 2025 memoria authors. MIT License.
package analysis

import (
	"fmt"
	"math"
	"time"

	"github.com/memoria-dev/memoria/internal/segment"
	"github.com/memoria-dev/memoria/internal/tokenizer"
)

// DefaultTokenLimit matches the original service's default context budget.
const DefaultTokenLimit = 32000

// UsageMetrics aggregates token and segment counts for one working set.
type UsageMetrics struct {
	TotalTokens             int
	TotalSegments           int
	TokensByType            map[segment.Type]int
	SegmentsByType          map[segment.Type]int
	TokensByTask            map[string]int
	OldestSegmentAgeHours   float64
	NewestSegmentAgeHours   float64
	PinnedSegmentsCount     int
	PinnedTokens            int
	UsagePercent            float64
	EstimatedRemainingTokens int
}

// HealthScore is the 0-100 composite health rating and its contributing
// factors, for diagnostic surfacing.
type HealthScore struct {
	Score        float64
	UsagePercent float64
	Factors      map[string]float64
}

// RecommendationPriority orders recommendations for display.
type RecommendationPriority string

const (
	PriorityUrgent RecommendationPriority = "urgent"
	PriorityHigh   RecommendationPriority = "high"
	PriorityMedium RecommendationPriority = "medium"
	PriorityLow    RecommendationPriority = "low"
)

// Recommendation is a single actionable suggestion surfaced to the caller.
// Action is empty when no action is suggested (spec.md's "no action needed"
// case).
type Recommendation struct {
	Priority RecommendationPriority
	Message  string
	Action   string
}

// Engine computes usage metrics, health scores, and recommendations.
type Engine struct {
	tokenizer tokenizer.Tokenizer
	sink      metricsSink
}

// Option configures an Engine.
type Option func(*Engine)

// WithTokenizer overrides the tokenizer used for uncached segments.
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tokenizer = t
		}
	}
}

// WithMetricsSink wires a Prometheus-backed metricsSink (see metrics.go);
// the zero value is a no-op sink, matching the teacher's default-disabled
// metrics posture.
func WithMetricsSink(sink metricsSink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// New constructs an Engine with the given options.
func New(opts ...Option) *Engine {
	e := &Engine{
		tokenizer: tokenizer.ForModel(tokenizer.DefaultModel),
		sink:      noopSink{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AnalyzeUsage computes UsageMetrics over segments as of now. Empty input
// yields all-zero metrics with usage_percent=0 and estimated_remaining
// equal to the full limit.
func (e *Engine) AnalyzeUsage(segments []*segment.Segment, tokenLimit int, now time.Time) UsageMetrics {
	if tokenLimit <= 0 {
		tokenLimit = DefaultTokenLimit
	}
	if len(segments) == 0 {
		return UsageMetrics{
			TokensByType:             map[segment.Type]int{},
			SegmentsByType:           map[segment.Type]int{},
			TokensByTask:             map[string]int{},
			EstimatedRemainingTokens: tokenLimit,
		}
	}

	m := UsageMetrics{
		TokensByType:   make(map[segment.Type]int),
		SegmentsByType: make(map[segment.Type]int),
		TokensByTask:   make(map[string]int),
	}

	var oldest, newest float64
	first := true

	for _, seg := range segments {
		tokens := tokenizer.CountSegment(e.tokenizer, seg, false, now)
		m.TotalTokens += tokens
		m.TokensByType[seg.Type] += tokens
		m.SegmentsByType[seg.Type]++

		if seg.TaskID != nil && *seg.TaskID != "" {
			m.TokensByTask[*seg.TaskID] += tokens
		}
		if seg.Pinned {
			m.PinnedSegmentsCount++
			m.PinnedTokens += tokens
		}

		age := now.Sub(seg.LastTouchedAt).Hours()
		if first {
			oldest, newest = age, age
			first = false
		} else {
			if age > oldest {
				oldest = age
			}
			if age < newest {
				newest = age
			}
		}
	}

	m.TotalSegments = len(segments)
	m.OldestSegmentAgeHours = oldest
	m.NewestSegmentAgeHours = newest
	m.UsagePercent = float64(m.TotalTokens) / float64(tokenLimit) * 100.0
	m.EstimatedRemainingTokens = tokenLimit - m.TotalTokens
	if m.EstimatedRemainingTokens < 0 {
		m.EstimatedRemainingTokens = 0
	}

	e.sink.observeUsage(m.UsagePercent, m.TotalSegments)
	return m
}

// ComputeHealth returns the 0-100 health score for segments, derived from
// usage, age penalty, and type-distribution bonus.
func (e *Engine) ComputeHealth(segments []*segment.Segment, tokenLimit int, now time.Time) HealthScore {
	if len(segments) == 0 {
		return HealthScore{
			Score:        100.0,
			UsagePercent: 0.0,
			Factors:      map[string]float64{"usage": 100.0, "age_penalty": 0.0, "distribution": 0.0},
		}
	}

	metrics := e.AnalyzeUsage(segments, tokenLimit, now)
	usageScore := math.Max(0.0, 100.0-metrics.UsagePercent)

	oldestAgeDays := metrics.OldestSegmentAgeHours / 24.0
	agePenalty := math.Min(20.0, oldestAgeDays*2.0)

	distribution := distributionScore(segments)

	total := usageScore - agePenalty + distribution
	score := math.Min(100.0, math.Max(0.0, total))

	e.sink.observeHealth(score)

	return HealthScore{
		Score:        score,
		UsagePercent: metrics.UsagePercent,
		Factors: map[string]float64{
			"usage":        usageScore,
			"age_penalty":  -agePenalty,
			"distribution": distribution,
		},
	}
}

// distributionScore computes the Shannon-entropy-based distribution bonus
// (0-10). A single segment (or none) is treated as a neutral population
// (5.0); a population with exactly one type present scores 0 (no
// diversity); otherwise the entropy is normalized against the maximum
// possible entropy for the observed number of types.
func distributionScore(segments []*segment.Segment) float64 {
	if len(segments) <= 1 {
		return 5.0
	}

	counts := make(map[segment.Type]int)
	for _, seg := range segments {
		counts[seg.Type]++
	}

	total := float64(len(segments))
	var entropy float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}

	numTypes := len(counts)
	if numTypes <= 1 {
		return 0.0
	}
	maxEntropy := math.Log2(float64(numTypes))
	if maxEntropy <= 0 {
		return 5.0
	}
	normalized := (entropy / maxEntropy) * 10.0
	return math.Min(10.0, math.Max(0.0, normalized))
}

// GenerateRecommendations derives actionable suggestions from metrics
// already computed by AnalyzeUsage.
func GenerateRecommendations(metrics UsageMetrics) []Recommendation {
	var recs []Recommendation

	switch {
	case metrics.UsagePercent >= 90.0:
		recs = append(recs, Recommendation{PriorityUrgent, "Urgent: Prune context immediately", "prune"})
	case metrics.UsagePercent >= 80.0:
		recs = append(recs, Recommendation{PriorityHigh, "Consider pruning old segments to free space", "prune"})
	case metrics.UsagePercent >= 60.0:
		recs = append(recs, Recommendation{PriorityMedium, "Context usage at 60%+ - monitor closely and consider stashing old segments", "stash"})
	case metrics.UsagePercent < 50.0:
		recs = append(recs, Recommendation{PriorityLow, "Context usage is healthy, no action needed", ""})
	}

	if metrics.OldestSegmentAgeHours > 24.0 {
		recs = append(recs, Recommendation{PriorityMedium, "Stash segments older than 24 hours", "stash"})
	}

	if metrics.TotalSegments > 0 && len(metrics.SegmentsByType) > 0 {
		var dominantType segment.Type
		maxCount := 0
		for t, c := range metrics.SegmentsByType {
			if c > maxCount {
				maxCount = c
				dominantType = t
			}
		}
		if float64(maxCount)/float64(metrics.TotalSegments) > 0.6 {
			if dominantType == segment.TypeLog {
				recs = append(recs, Recommendation{PriorityMedium, "Too many log segments, consider stashing", "stash"})
			} else {
				recs = append(recs, Recommendation{PriorityMedium, fmt.Sprintf("Too many %s segments, consider stashing", dominantType), "stash"})
			}
		}
	}

	if metrics.PinnedSegmentsCount > 0 && metrics.PinnedSegmentsCount == metrics.TotalSegments {
		recs = append(recs, Recommendation{PriorityLow, "All segments are pinned, consider unpinning some", "unpin"})
	}

	return recs
}
