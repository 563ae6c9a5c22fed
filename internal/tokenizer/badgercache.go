package tokenizer

import (
	"encoding/binary"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/memoria-dev/memoria/internal/segment"
)

// PersistentCache is a second-level, content-addressed cache for token
// counts, backed by an embedded Badger store. It is strictly additive: a
// miss or a disabled cache never blocks counting, only skips memoizing it
// across restarts.
//
// Grounded on the teacher's examples/disk_eject/main.go, which spills
// evicted arena values to a Badger EjectCallback and reloads them with
// GetOrLoad on a subsequent miss — the same L1-miss-falls-to-L2-disk shape,
// here keyed by content hash instead of cache key.
type PersistentCache struct {
	db     *badger.DB
	model  string
	logger *zap.Logger
}

// NewPersistentCache wraps an already-open Badger handle as a cache keyed by
// content hash plus model name, so counts for the same text under different
// models never collide.
func NewPersistentCache(db *badger.DB, model string, logger *zap.Logger) *PersistentCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersistentCache{db: db, model: model, logger: logger}
}

func (p *PersistentCache) key(textHash string) []byte {
	return []byte(p.model + ":" + textHash)
}

// Get returns the cached count for textHash, and whether it was present.
func (p *PersistentCache) Get(textHash string) (int, bool) {
	var count int
	var found bool
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(p.key(textHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return nil
			}
			count = int(binary.BigEndian.Uint64(val))
			found = true
			return nil
		})
	})
	if err != nil {
		p.logger.Warn("tokenizer persistent cache read failed", zap.Error(err))
		return 0, false
	}
	return count, found
}

// Set stores count for textHash. Failures are logged and swallowed — the
// persistent cache is a best-effort accelerator, never a dependency of the
// counting contract.
func (p *PersistentCache) Set(textHash string, count int) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(count))
	err := p.db.Update(func(txn *badger.Txn) error {
		return txn.Set(p.key(textHash), buf)
	})
	if err != nil {
		p.logger.Warn("tokenizer persistent cache write failed", zap.Error(err))
	}
}

// WithPersistentCache wraps inner so that Count first consults the Badger
// store before falling back to actual encoding, and memoizes fresh counts
// back into it.
type WithPersistentCache struct {
	inner Tokenizer
	cache *PersistentCache
}

// NewWithPersistentCache builds a Tokenizer that consults cache before
// delegating to inner.
func NewWithPersistentCache(inner Tokenizer, cache *PersistentCache) *WithPersistentCache {
	return &WithPersistentCache{inner: inner, cache: cache}
}

func (w *WithPersistentCache) Model() string { return w.inner.Model() }

func (w *WithPersistentCache) Count(text string) int {
	if text == "" {
		return 0
	}
	// Hashed the same way as segment.HashText, so the persistent cache's
	// keys line up with the per-segment cache-invalidation check in
	// CountSegment.
	hash := segment.HashText(text)
	if count, ok := w.cache.Get(hash); ok {
		return count
	}
	count := w.inner.Count(text)
	w.cache.Set(hash, count)
	return count
}

// DefaultBadgerOptions returns badger.DefaultOptions(dir) for the
// tokenizer's L2 cache, with logging routed to the supplied zap.Logger
// rather than Badger's own stderr logger. No other option is changed.
func DefaultBadgerOptions(dir string, logger *zap.Logger) badger.Options {
	opts := badger.DefaultOptions(dir)
	opts = opts.WithLogger(&badgerZapLogger{l: logger})
	return opts
}

type badgerZapLogger struct{ l *zap.Logger }

func (b *badgerZapLogger) Errorf(f string, args ...any)   { b.l.Sugar().Errorf(f, args...) }
func (b *badgerZapLogger) Warningf(f string, args ...any) { b.l.Sugar().Warnf(f, args...) }
func (b *badgerZapLogger) Infof(f string, args ...any)    { b.l.Sugar().Infof(f, args...) }
func (b *badgerZapLogger) Debugf(f string, args ...any)   { b.l.Sugar().Debugf(f, args...) }
