// Package search answers ranked, paginated, geo-filtered queries against tenant indexes.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/contentindex/internal/gateway"
	"github.com/hyperjump/contentindex/internal/metrics"
	"github.com/hyperjump/contentindex/internal/models"
)

const (
	// DefaultCandidateLimit is how many text documents are fetched from the index per query.
	DefaultCandidateLimit = 1000
	// DefaultCacheSize is the number of cached result pages.
	DefaultCacheSize = 1024
)

// Indexes gives read access to tenant indexes; *factory.Factory implements it.
type Indexes interface {
	Read(ctx context.Context, tenant string, fn func(gateway.Gateway) error) error
}

// Engine runs queries. It only reads committed index data and never waits for writers.
type Engine struct {
	indexes        Indexes
	cache          *lru.Cache[string, *models.SearchResult]
	defaultLimit   int
	maxLimit       int
	candidateLimit int
	cacheSize      int
	logger         *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithLimits sets the default and maximum page size.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(e *Engine) {
		e.defaultLimit = defaultLimit
		e.maxLimit = maxLimit
	}
}

// WithCandidateLimit sets how many text documents are fetched from the index per query.
// Geo queries read every document in the bounding box.
func WithCandidateLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.candidateLimit = n
		}
	}
}

// WithCacheSize sets the result cache size. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.cacheSize = n
		}
	}
}

// NewEngine creates a search engine over tenant indexes.
func NewEngine(indexes Indexes, opts ...Option) *Engine {
	e := &Engine{
		indexes:        indexes,
		defaultLimit:   models.DefaultLimit,
		maxLimit:       models.MaxLimit,
		candidateLimit: DefaultCandidateLimit,
		cacheSize:      DefaultCacheSize,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cacheSize > 0 {
		e.cache, _ = lru.New[string, *models.SearchResult](e.cacheSize)
	}
	return e
}

// Search runs query against tenant's committed index. No match yields an empty result, not an error.
func (e *Engine) Search(ctx context.Context, tenant string, query *models.SearchQuery) (*models.SearchResult, error) {
	startTime := time.Now()
	defer func() {
		metrics.SearchDuration.Observe(time.Since(startTime).Seconds())
	}()

	if err := models.ValidateTenant(tenant); err != nil {
		return nil, err
	}
	if query == nil {
		return nil, fmt.Errorf("%w: query is nil", models.ErrInvalidQuery)
	}
	q := *query
	if q.Geo != nil {
		geo := *q.Geo
		q.Geo = &geo
	}
	if err := ProcessQuery(&q, e.defaultLimit, e.maxLimit); err != nil {
		return nil, err
	}

	var result *models.SearchResult
	err := e.indexes.Read(ctx, tenant, func(gw gateway.Gateway) error {
		key := e.cacheKey(tenant, gw.Generation(), &q)
		if cached, ok := e.lookup(key); ok {
			result = cached
			return nil
		}
		var err error
		result, err = e.run(ctx, gw, &q)
		if err != nil {
			return err
		}
		e.store(key, result)
		return nil
	})
	if err != nil {
		var engineErr *models.EngineError
		if errors.As(err, &engineErr) {
			metrics.EngineErrorsTotal.WithLabelValues(engineErr.Op).Inc()
			e.logger.Error("search failed", zap.String("tenant", tenant), zap.Error(err))
		}
		return nil, err
	}

	out := copyResult(result)
	out.QueryTime = time.Since(startTime).Milliseconds()
	return out, nil
}

// run fetches candidates and builds the result page. With both text and a geo filter, text
// documents and geo documents are matched separately and joined on content id.
//
// Geo candidates are every document in the bounding box, so distances and distance order are
// exact. The text side of a geo query is restricted to the content ids within the radius.
func (e *Engine) run(ctx context.Context, gw gateway.Gateway, q *models.SearchQuery) (*models.SearchResult, error) {
	size := e.candidateLimit
	if need := q.Offset + q.Limit; need > size {
		size = need
	}

	var (
		docs      []*gateway.Hit
		distances map[models.ContentID]float64
		estimate  bool
	)
	if q.Geo != nil {
		hits, err := searchAll(ctx, gw, geoRequest(q, size))
		if err != nil {
			return nil, err
		}
		distances = nearest(hits.Hits, q.Geo)
		docs = within(hits.Hits, distances)
	}
	if q.Text != "" {
		req := textRequest(q, size)
		var (
			hits *gateway.Hits
			err  error
		)
		switch {
		case distances == nil:
			hits, err = gw.Search(ctx, req)
			if err == nil {
				estimate = hits.Total > uint64(len(hits.Hits))
			}
		case len(distances) == 0:
			hits = &gateway.Hits{}
		default:
			req.ContentIDs = sortedIDs(distances)
			hits, err = searchAll(ctx, gw, req)
		}
		if err != nil {
			return nil, err
		}
		docs = hits.Hits
	}

	cands := collapse(docs, distances)
	order(cands, q.OrderBy)

	result := &models.SearchResult{
		Hits:            []models.Hit{},
		Total:           len(cands),
		TotalIsEstimate: estimate,
	}
	start := q.Offset
	if start > len(cands) {
		start = len(cands)
	}
	end := start + q.Limit
	if end > len(cands) {
		end = len(cands)
	}
	for _, c := range cands[start:end] {
		result.Hits = append(result.Hits, models.Hit{
			ContentID:      c.id,
			Score:          c.score,
			DistanceMeters: c.distance,
			Language:       c.language,
		})
	}
	if end < len(cands) {
		next := end
		result.NextOffset = &next
	}
	return result, nil
}

// searchAll runs req and, when the engine reports more matches than the window held,
// runs it again sized to the reported total.
func searchAll(ctx context.Context, gw gateway.Gateway, req *gateway.Request) (*gateway.Hits, error) {
	hits, err := gw.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	if hits.Total <= uint64(len(hits.Hits)) {
		return hits, nil
	}
	all := *req
	all.Size = int(hits.Total)
	return gw.Search(ctx, &all)
}

func sortedIDs(distances map[models.ContentID]float64) []models.ContentID {
	ids := make([]models.ContentID, 0, len(distances))
	for id := range distances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// cacheKey identifies a query against one committed generation of a tenant index.
func (e *Engine) cacheKey(tenant string, generation uint64, q *models.SearchQuery) string {
	if e.cache == nil {
		return ""
	}
	body, _ := json.Marshal(q)
	return fmt.Sprintf("%s|%d|%s", tenant, generation, body)
}

func (e *Engine) lookup(key string) (*models.SearchResult, bool) {
	if e.cache == nil {
		return nil, false
	}
	if r, ok := e.cache.Get(key); ok {
		metrics.SearchCacheTotal.WithLabelValues("hit").Inc()
		return r, true
	}
	metrics.SearchCacheTotal.WithLabelValues("miss").Inc()
	return nil, false
}

func (e *Engine) store(key string, r *models.SearchResult) {
	if e.cache != nil {
		e.cache.Add(key, r)
	}
}

// copyResult returns a result the caller may modify without touching the cached one.
func copyResult(r *models.SearchResult) *models.SearchResult {
	out := *r
	out.Hits = make([]models.Hit, len(r.Hits))
	for i, h := range r.Hits {
		out.Hits[i] = h
		if h.DistanceMeters != nil {
			d := *h.DistanceMeters
			out.Hits[i].DistanceMeters = &d
		}
	}
	if r.NextOffset != nil {
		next := *r.NextOffset
		out.NextOffset = &next
	}
	return &out
}
