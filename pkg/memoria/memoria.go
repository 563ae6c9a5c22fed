// Package memoria wires the Storage Layer, Tokenizer, Analysis Engine, GC
// Engine, and Context Manager into a single AppState and exposes the
// thin, tool-facing operations of spec.md §6: AnalyzeUsage, GetWorkingSet,
// Stash, SearchStashed, RetrieveStashed, GCAnalyze, GCPrune, GCPin,
// GCUnpin, SetCurrentTask, GetTaskContext, CreateTaskSnapshot.
//
// Grounded on the original's app_state.py (single composition root owning
// one instance of every component) and on the teacher's pkg/cache.go
// functional-options construction style.
//
// © 2025 memoria authors. MIT License.
package memoria

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/memoria-dev/memoria/internal/analysis"
	"github.com/memoria-dev/memoria/internal/config"
	"github.com/memoria-dev/memoria/internal/contextmgr"
	"github.com/memoria-dev/memoria/internal/storage"
	"github.com/memoria-dev/memoria/internal/tokenizer"
)

// AppState owns a single instance of every component and is the sole
// entry point tool-dispatch code should depend on. AppState takes no lock of
// its own, so its public methods are not serialized against each other for
// the same project_id; the only per-project locking is Storage's around
// stash/unstash/delete/update, under which two different projects never
// block each other.
type AppState struct {
	Config config.Config

	storage    *storage.Storage
	tokenizer  tokenizer.Tokenizer
	analysis   *analysis.Engine
	contextMgr *contextmgr.Manager
	logger     *zap.Logger
}

// Option configures an AppState at construction time.
type Option func(*appStateConfig)

type appStateConfig struct {
	logger          *zap.Logger
	metricsRegistry *prometheus.Registry
	persistentCache *tokenizer.PersistentCache
}

// WithLogger plugs an external zap.Logger into every component.
func WithLogger(l *zap.Logger) Option {
	return func(c *appStateConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetricsRegistry opts the Analysis Engine into publishing
// memoria_usage_percent / memoria_health_score / memoria_segments_total
// gauges, mirroring the teacher's WithMetrics(reg) opt-in posture. Passing
// nil leaves metrics disabled (the default).
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(c *appStateConfig) {
		c.metricsRegistry = reg
	}
}

// WithPersistentTokenCache layers a Badger-backed second-level cache in
// front of the Tokenizer's content-hash lookups, so token counts for
// unchanged segments survive a process restart (§4.3, additive to the
// canonical shard/evicted files).
func WithPersistentTokenCache(cache *tokenizer.PersistentCache) Option {
	return func(c *appStateConfig) {
		c.persistentCache = cache
	}
}

// New constructs an AppState from cfg, opening storage at cfg.StorageRoot
// and wiring the Tokenizer, Analysis Engine, and Context Manager around
// it.
func New(cfg config.Config, opts ...Option) (*AppState, error) {
	asc := &appStateConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(asc)
	}

	st, err := storage.Open(cfg.StorageRoot,
		storage.WithMaxActiveSegments(cfg.MaxActiveSegments),
		storage.WithLogger(asc.logger),
	)
	if err != nil {
		return nil, err
	}

	var tok tokenizer.Tokenizer = tokenizer.ForModel(cfg.Model)
	if asc.persistentCache != nil {
		tok = tokenizer.NewWithPersistentCache(tok, asc.persistentCache)
	}
	dedupedTok := tokenizer.NewDeduped(tok)

	analysisOpts := []analysis.Option{analysis.WithTokenizer(dedupedTok)}
	if asc.metricsRegistry != nil {
		analysisOpts = append(analysisOpts, analysis.WithMetricsSink(analysis.NewPrometheusSink(asc.metricsRegistry, "appstate")))
	}
	eng := analysis.New(analysisOpts...)

	ctxMgr := contextmgr.New(st, eng,
		contextmgr.WithTokenizer(dedupedTok),
		contextmgr.WithLogger(asc.logger),
	)

	return &AppState{
		Config:     cfg,
		storage:    st,
		tokenizer:  dedupedTok,
		analysis:   eng,
		contextMgr: ctxMgr,
		logger:     asc.logger,
	}, nil
}
