package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"

	"github.com/hyperjump/contentindex/internal/models"
)

// Stored field names of an index document.
const (
	fieldContentID    = "contentId"
	fieldLanguage     = "language"
	fieldSchemaID     = "schemaId"
	fieldStatus       = "status"
	fieldCreated      = "created"
	fieldLastModified = "lastModified"

	sectionTexts   = "t"
	sectionNumbers = "n"
	sectionDates   = "d"
	sectionBools   = "b"
	sectionGeo     = "g"

	metaFile = "index_meta.json"

	textAnalyzer = "content_text"
)

var errClosed = errors.New("index closed")

// Keyword fields Request.Filters may name.
const (
	FilterContentID = fieldContentID
	FilterLanguage  = fieldLanguage
	FilterSchemaID  = fieldSchemaID
	FilterStatus    = fieldStatus
)

var filterFields = []string{fieldContentID, fieldLanguage, fieldSchemaID, fieldStatus}

// BleveIndex implements Gateway using Bleve.
type BleveIndex struct {
	index  bleve.Index
	path   string
	tenant string

	mu      sync.Mutex
	pending *bleve.Batch
	closed  bool

	generation atomic.Uint64
}

// Option configures a BleveIndex.
type Option func(*BleveIndex)

// WithTenant names the tenant in engine errors.
func WithTenant(tenant string) Option {
	return func(b *BleveIndex) {
		b.tenant = tenant
	}
}

// WithGeneration sets the starting generation, so a reopened index never repeats an old one.
func WithGeneration(gen uint64) Option {
	return func(b *BleveIndex) {
		b.generation.Store(gen)
	}
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path keeps the index in memory.
// An existing index whose metadata is missing or unreadable is reported as corrupt, not recreated.
func NewBleveIndex(path string, opts ...Option) (*BleveIndex, error) {
	b := &BleveIndex{path: path}
	for _, opt := range opts {
		opt(b)
	}

	index, err := b.open()
	if err != nil {
		return nil, b.engineErr("open", err)
	}
	b.index = index
	b.pending = index.NewBatch()
	return b, nil
}

func (b *BleveIndex) open() (bleve.Index, error) {
	im, err := newIndexMapping()
	if err != nil {
		return nil, err
	}
	if b.path == "" {
		return bleve.NewMemOnly(im)
	}

	entries, err := os.ReadDir(b.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	case len(entries) == 0:
		if err := os.Remove(b.path); err != nil {
			return nil, err
		}
	default:
		if err := validateMeta(b.path); err != nil {
			return nil, err
		}
		index, err := bleve.Open(b.path)
		if err != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", err)
		}
		return index, nil
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return nil, err
	}
	index, err := bleve.New(b.path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return index, nil
}

func validateMeta(path string) error {
	data, err := os.ReadFile(filepath.Join(path, metaFile))
	if err != nil {
		return fmt.Errorf("corrupt index: %w", err)
	}
	var meta struct {
		Storage string `json:"storage"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("corrupt index metadata: %w", err)
	}
	if meta.Storage == "" {
		return errors.New("corrupt index metadata: no storage engine")
	}
	return nil
}

// newIndexMapping builds the document layout: keyword metadata for filtering plus dynamic
// sections per value kind. Only the text section feeds the _all field.
func newIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	// Unicode words, lowercased. No stop words or stemming: every language partition shares it.
	err := im.AddCustomAnalyzer(textAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add text analyzer: %w", err)
	}
	im.DefaultAnalyzer = textAnalyzer

	doc := bleve.NewDocumentMapping()
	for _, name := range filterFields {
		doc.AddFieldMappingsAt(name, keywordField())
	}
	doc.AddFieldMappingsAt(fieldCreated, dateField())
	doc.AddFieldMappingsAt(fieldLastModified, dateField())

	texts := bleve.NewDocumentMapping()
	texts.DefaultAnalyzer = textAnalyzer
	doc.AddSubDocumentMapping(sectionTexts, texts)
	for _, name := range []string{sectionNumbers, sectionDates, sectionBools, sectionGeo} {
		doc.AddSubDocumentMapping(name, bleve.NewDocumentMapping())
	}

	im.DefaultMapping = doc
	return im, nil
}

func keywordField() *mapping.FieldMapping {
	fm := bleve.NewKeywordFieldMapping()
	fm.Store = true
	fm.IncludeInAll = false
	return fm
}

func dateField() *mapping.FieldMapping {
	fm := bleve.NewDateTimeFieldMapping()
	fm.Store = true
	fm.IncludeInAll = false
	return fm
}

// toIndexDocument converts a SearchDocument to the map layout of newIndexMapping.
func toIndexDocument(doc *models.SearchDocument) map[string]interface{} {
	out := map[string]interface{}{
		fieldContentID: doc.ContentID.String(),
		fieldLanguage:  doc.Language,
	}
	if doc.SchemaID != "" {
		out[fieldSchemaID] = doc.SchemaID
	}
	if doc.Status != "" {
		out[fieldStatus] = doc.Status
	}
	if !doc.Created.IsZero() {
		out[fieldCreated] = doc.Created.UTC()
	}
	if !doc.LastModified.IsZero() {
		out[fieldLastModified] = doc.LastModified.UTC()
	}
	if len(doc.Texts) > 0 {
		texts := make(map[string]interface{}, len(doc.Texts))
		for k, v := range doc.Texts {
			texts[k] = v
		}
		out[sectionTexts] = texts
	}
	if len(doc.Numbers) > 0 {
		numbers := make(map[string]interface{}, len(doc.Numbers))
		for k, v := range doc.Numbers {
			numbers[k] = v
		}
		out[sectionNumbers] = numbers
	}
	if len(doc.Dates) > 0 {
		dates := make(map[string]interface{}, len(doc.Dates))
		for k, v := range doc.Dates {
			dates[k] = v.UTC()
		}
		out[sectionDates] = dates
	}
	if len(doc.Bools) > 0 {
		bools := make(map[string]interface{}, len(doc.Bools))
		for k, v := range doc.Bools {
			bools[k] = v
		}
		out[sectionBools] = bools
	}
	if len(doc.Geo) > 0 {
		geo := make(map[string]interface{}, len(doc.Geo))
		for k, v := range doc.Geo {
			geo[k] = map[string]interface{}{"lat": v.Lat, "lon": v.Lon}
		}
		out[sectionGeo] = geo
	}
	return out
}

// Upsert buffers documents for the next commit, replacing any with the same id.
func (b *BleveIndex) Upsert(ctx context.Context, docs []*models.SearchDocument) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return b.engineErr("upsert", errClosed)
	}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.pending.Index(doc.ID, toIndexDocument(doc)); err != nil {
			return b.engineErr("upsert", err)
		}
	}
	return nil
}

// Delete buffers removals for the next commit. Unknown ids are ignored.
func (b *BleveIndex) Delete(ctx context.Context, ids []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return b.engineErr("delete", errClosed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, id := range ids {
		b.pending.Delete(id)
	}
	return nil
}

// Commit executes the pending batch. An empty batch is a no-op and keeps the generation.
func (b *BleveIndex) Commit(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return b.engineErr("commit", errClosed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.pending.Size() == 0 {
		return nil
	}
	err := b.index.Batch(b.pending)
	b.pending.Reset()
	if err != nil {
		return b.engineErr("commit", err)
	}
	b.generation.Add(1)
	return nil
}

// Discard drops the pending batch.
func (b *BleveIndex) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending != nil {
		b.pending.Reset()
	}
}

// Search returns up to req.Size committed candidates ordered by req.Sort.
func (b *BleveIndex) Search(ctx context.Context, req *Request) (*Hits, error) {
	if b.isClosed() {
		return nil, b.engineErr("search", errClosed)
	}

	search := bleve.NewSearchRequest(buildQuery(req))
	search.Size = req.Size
	search.Fields = []string{fieldContentID, fieldLanguage, fieldLastModified}
	if req.Geo != nil {
		search.Fields = append(search.Fields, geoField(req.Geo.Field, "lat"), geoField(req.Geo.Field, "lon"))
	}
	if req.Sort == SortLastModified {
		search.SortBy([]string{"-" + fieldLastModified, "_id"})
	} else {
		search.SortBy([]string{"-_score", "_id"})
	}

	results, err := b.index.SearchInContext(ctx, search)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, b.engineErr("search", err)
	}

	out := &Hits{Total: results.Total, Hits: make([]*Hit, 0, len(results.Hits))}
	for _, match := range results.Hits {
		hit := &Hit{DocID: match.ID, Score: match.Score}
		if s, ok := match.Fields[fieldContentID].(string); ok {
			hit.ContentID, _ = uuid.Parse(s)
		}
		hit.Language, _ = match.Fields[fieldLanguage].(string)
		hit.LastModified = parseStoredTime(match.Fields[fieldLastModified])
		if req.Geo != nil {
			lat, latOK := match.Fields[geoField(req.Geo.Field, "lat")].(float64)
			lon, lonOK := match.Fields[geoField(req.Geo.Field, "lon")].(float64)
			if latOK && lonOK {
				hit.Geo = &models.GeoPoint{Lat: lat, Lon: lon}
			}
		}
		out.Hits = append(out.Hits, hit)
	}
	return out, nil
}

func buildQuery(req *Request) blevequery.Query {
	var must []blevequery.Query
	if req.Text != "" {
		must = append(must, bleve.NewMatchQuery(req.Text))
	}
	for _, name := range filterFields {
		value := req.Filters[name]
		if value == "" {
			continue
		}
		tq := bleve.NewTermQuery(value)
		tq.SetField(name)
		must = append(must, tq)
	}
	if len(req.ContentIDs) > 0 {
		owners := make([]blevequery.Query, 0, len(req.ContentIDs))
		for _, id := range req.ContentIDs {
			tq := bleve.NewTermQuery(id.String())
			tq.SetField(fieldContentID)
			owners = append(owners, tq)
		}
		must = append(must, bleve.NewDisjunctionQuery(owners...))
	}
	if g := req.Geo; g != nil {
		must = append(must,
			numericRange(geoField(g.Field, "lat"), g.MinLat, g.MaxLat),
			numericRange(geoField(g.Field, "lon"), g.MinLon, g.MaxLon))
	}
	switch len(must) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return must[0]
	default:
		return bleve.NewConjunctionQuery(must...)
	}
}

func numericRange(field string, lo, hi float64) blevequery.Query {
	inclusive := true
	q := bleve.NewNumericRangeInclusiveQuery(&lo, &hi, &inclusive, &inclusive)
	q.SetField(field)
	return q
}

func geoField(field, axis string) string {
	return sectionGeo + "." + field + "." + axis
}

func parseStoredTime(v interface{}) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Contains reports which of ids exist in the committed index.
func (b *BleveIndex) Contains(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	if b.isClosed() {
		return nil, b.engineErr("contains", errClosed)
	}
	search := bleve.NewSearchRequest(bleve.NewDocIDQuery(ids))
	search.Size = len(ids)
	results, err := b.index.SearchInContext(ctx, search)
	if err != nil {
		return nil, b.engineErr("contains", err)
	}
	for _, hit := range results.Hits {
		found[hit.ID] = true
	}
	return found, nil
}

// DocCount returns the number of committed documents.
func (b *BleveIndex) DocCount() (uint64, error) {
	if b.isClosed() {
		return 0, b.engineErr("count", errClosed)
	}
	n, err := b.index.DocCount()
	if err != nil {
		return 0, b.engineErr("count", err)
	}
	return n, nil
}

// Generation returns the commit generation.
func (b *BleveIndex) Generation() uint64 {
	return b.generation.Load()
}

// Path returns the on-disk location, empty for memory-only indexes.
func (b *BleveIndex) Path() string {
	return b.path
}

// Close closes the Bleve index. Closing twice is a no-op.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.pending.Reset()
	if err := b.index.Close(); err != nil {
		return b.engineErr("close", err)
	}
	return nil
}

func (b *BleveIndex) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *BleveIndex) engineErr(op string, err error) error {
	return &models.EngineError{Op: op, Tenant: b.tenant, Err: err}
}
