package cache

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/ppiankov/uicheck/internal/decl"
	"github.com/ppiankov/uicheck/internal/explain"
	"go.uber.org/zap"
)

// Explainer answers queries from a Cache before asking the wrapped
// Explainer. Unavailable (nil) explanations are never stored, so a later
// run retries them.
type Explainer struct {
	inner  explain.Explainer
	cache  Cache
	scope  string
	ttl    time.Duration
	logger *zap.Logger

	hits, misses int
}

// NewExplainer wraps inner. scope separates entries of different fact
// directories and specifications; see Scope.
func NewExplainer(inner explain.Explainer, c Cache, scope string, ttl time.Duration, logger *zap.Logger) *Explainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Explainer{inner: inner, cache: c, scope: scope, ttl: ttl, logger: logger}
}

// Scope derives a cache scope from the inputs that determine an answer
func Scope(factsDir, specPath string, specContent []byte) string {
	return Key(factsDir, specPath, string(specContent))
}

// Explain implements explain.Explainer
func (e *Explainer) Explain(ctx context.Context, query string) (map[string]any, error) {
	key := Key(e.scope, query)

	if data, ok := e.cache.Get(key); ok {
		var result map[string]any
		if err := json.Unmarshal(data, &result); err == nil && result != nil {
			e.hits++
			return result, nil
		}
		_ = e.cache.Delete(key)
	}
	e.misses++

	result, err := e.inner.Explain(ctx, query)
	if err != nil || result == nil {
		return result, err
	}

	data, err := json.Marshal(result)
	if err != nil {
		e.logger.Warn("explanation not cacheable", zap.String("query", query), zap.Error(err))
		return result, nil
	}
	if err := e.cache.Set(key, data, e.ttl); err != nil {
		e.logger.Warn("cache store failed", zap.String("query", query), zap.Error(err))
	}
	return result, nil
}

// Close closes the wrapped Explainer
func (e *Explainer) Close() error {
	e.logger.Debug("explanation cache", zap.Int("hits", e.hits), zap.Int("misses", e.misses))
	return e.inner.Close()
}

// Stats returns hit and miss counts
func (e *Explainer) Stats() (hits, misses int) {
	return e.hits, e.misses
}

// WrapOpener returns an Opener whose Explainers consult c first. Entries
// are scoped by fact directory, spec path and the spec text with its
// includes expanded, so editing an included rule file invalidates them.
func WrapOpener(open explain.Opener, c Cache, ttl time.Duration, logger *zap.Logger) explain.Opener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, factsDir, specPath string) (explain.Explainer, error) {
		inner, err := open(ctx, factsDir, specPath)
		if err != nil {
			return nil, err
		}
		content, err := decl.Expand(specPath)
		if err != nil {
			// a broken include still scopes by the top-level file
			logger.Debug("spec includes not expanded", zap.String("spec", specPath), zap.Error(err))
			content, _ = os.ReadFile(specPath)
		}
		return NewExplainer(inner, c, Scope(factsDir, specPath, content), ttl, logger), nil
	}
}
