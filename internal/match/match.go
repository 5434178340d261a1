// Package match runs the full mention-to-catalog matching chain: embed the
// mentions, rank catalog rows by inner-product similarity, arbitrate each
// mention's top candidates with an LLM, and attach cross-sell suggestions
// to every confirmed match.
//
// The chain degrades per mention: a failed or refused arbitration yields an
// unmatched Result, never an error for the whole batch. Only the embedding
// call can fail the batch, since without vectors there is nothing to rank.
package match

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/partline/partline/internal/catalog"
	"github.com/partline/partline/internal/crosssell"
	"github.com/partline/partline/internal/observe"
	"github.com/partline/partline/internal/rank"
	"github.com/partline/partline/pkg/provider/embeddings"
	"github.com/partline/partline/pkg/types"
)

// Arbiter decides which candidate, if any, a mention refers to. Implemented
// by [resolve.Resolver].
type Arbiter interface {
	Resolve(ctx context.Context, mention types.Mention, candidates []catalog.Row) (int, bool, error)
}

// Result is the outcome of matching one mention. Row is nil when no
// candidate survived arbitration; CrossSell is populated only for matches.
type Result struct {
	Mention   types.Mention
	Row       *catalog.Row
	CrossSell []catalog.Row
}

// Matched reports whether the mention resolved to a catalog row.
func (r Result) Matched() bool { return r.Row != nil }

const (
	defaultTopK               = 10
	defaultCrossSellMin       = 2
	defaultCrossSellMax       = 5
	defaultResolveConcurrency = 4
)

// Option is a functional option for Engine.
type Option func(*Engine)

// WithTopK sets how many candidates are retrieved per mention. Default 10.
func WithTopK(k int) Option {
	return func(e *Engine) { e.topK = k }
}

// WithCrossSellRange sets the cross-sell suggestion count bounds.
// Default [2, 5].
func WithCrossSellRange(nmin, nmax int) Option {
	return func(e *Engine) {
		e.crossSellMin = nmin
		e.crossSellMax = nmax
	}
}

// WithResolveConcurrency caps how many arbitration calls run in parallel.
// Default 4.
func WithResolveConcurrency(n int) Option {
	return func(e *Engine) { e.resolveConcurrency = n }
}

// WithMetrics sets the metrics instance. Default [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine executes the matching chain against one catalog index.
type Engine struct {
	index    *catalog.Index
	embedder embeddings.Provider
	arbiter  Arbiter
	sampler  *crosssell.Sampler
	logger   *slog.Logger
	metrics  *observe.Metrics

	topK               int
	crossSellMin       int
	crossSellMax       int
	resolveConcurrency int
}

// New creates an Engine. The embedder's dimension must match the index.
func New(index *catalog.Index, embedder embeddings.Provider, arbiter Arbiter, sampler *crosssell.Sampler, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if d := embedder.Dimensions(); d != index.Dimensions() {
		return nil, fmt.Errorf("match: embedder produces %d dimensions, catalog has %d", d, index.Dimensions())
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		index:              index,
		embedder:           embedder,
		arbiter:            arbiter,
		sampler:            sampler,
		logger:             logger,
		topK:               defaultTopK,
		crossSellMin:       defaultCrossSellMin,
		crossSellMax:       defaultCrossSellMax,
		resolveConcurrency: defaultResolveConcurrency,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e, nil
}

// Match resolves a batch of mentions against the catalog. The result slice
// is parallel to mentions. An embedding failure fails the whole batch;
// everything downstream degrades per mention.
func (e *Engine) Match(ctx context.Context, mentions []types.Mention) ([]Result, error) {
	return e.MatchTopK(ctx, mentions, e.topK)
}

// MatchTopK is Match with a per-call candidate count. A non-positive k
// falls back to the engine default.
func (e *Engine) MatchTopK(ctx context.Context, mentions []types.Mention, k int) ([]Result, error) {
	if len(mentions) == 0 {
		return nil, nil
	}
	if k < 1 {
		k = e.topK
	}

	texts := make([]string, len(mentions))
	for i, m := range mentions {
		texts[i] = m.PartName
	}

	embedStart := time.Now()
	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("match: embed mentions: %w", err)
	}
	e.metrics.EmbedDuration.Record(ctx, time.Since(embedStart).Seconds())

	candidateSets, err := rank.TopK(e.index, vectors, k)
	if err != nil {
		return nil, fmt.Errorf("match: rank candidates: %w", err)
	}

	results := make([]Result, len(mentions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.resolveConcurrency)

	for i, mention := range mentions {
		g.Go(func() error {
			results[i] = e.resolveOne(gctx, mention, candidateSets[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return results, nil
}

func (e *Engine) resolveOne(ctx context.Context, mention types.Mention, candidateIdxs []int) Result {
	candidates := make([]catalog.Row, len(candidateIdxs))
	for j, idx := range candidateIdxs {
		candidates[j] = e.index.Row(idx)
	}

	resolveStart := time.Now()
	pos, ok, err := e.arbiter.Resolve(ctx, mention, candidates)
	e.metrics.ResolveDuration.Record(ctx, time.Since(resolveStart).Seconds())
	if err != nil {
		e.logger.Warn("arbitration aborted", "mention", mention.PartName, "error", err)
		return Result{Mention: mention}
	}

	e.metrics.RecordMatchResult(ctx, ok)
	if !ok {
		e.logger.Debug("mention unmatched", "mention", mention.PartName)
		return Result{Mention: mention}
	}

	row := candidates[pos]
	res := Result{Mention: mention, Row: &row}
	if e.sampler != nil {
		res.CrossSell = e.sampler.Sample(row.Index, e.crossSellMin, e.crossSellMax)
	}
	e.logger.Info("mention matched",
		"mention", mention.PartName,
		"item_id", row.ItemID,
		"description", row.Description)
	return res
}
