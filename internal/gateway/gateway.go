// Package gateway abstracts the physical full-text index behind a small write/commit/search API.
package gateway

import (
	"context"
	"time"

	"github.com/hyperjump/contentindex/internal/models"
)

// Gateway is the physical index of one tenant.
//
// Upsert and Delete are buffered until Commit. Search only observes committed data.
type Gateway interface {
	Upsert(ctx context.Context, docs []*models.SearchDocument) error
	Delete(ctx context.Context, ids []string) error
	// Commit applies all buffered writes atomically.
	Commit(ctx context.Context) error
	// Discard drops buffered writes that were not committed.
	Discard()
	Search(ctx context.Context, req *Request) (*Hits, error)
	// Contains reports which of ids exist in the committed index.
	Contains(ctx context.Context, ids []string) (map[string]bool, error)
	DocCount() (uint64, error)
	// Generation changes on every commit that applied at least one write.
	Generation() uint64
	Close() error
}

// Sort orders for candidate retrieval.
const (
	SortScore        = ""
	SortLastModified = "lastModified"
)

// GeoBox restricts candidates to a latitude/longitude rectangle of a geo field.
type GeoBox struct {
	Field  string
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// Request selects candidate documents.
type Request struct {
	// Text is matched against all text fields. Empty matches every document.
	Text string
	// Filters are exact matches keyed by the Filter* field names.
	Filters map[string]string
	// ContentIDs restricts candidates to documents of these content items when not empty.
	ContentIDs []models.ContentID
	Geo        *GeoBox
	Sort       string
	Size       int
}

// Hit is one candidate document.
type Hit struct {
	DocID        string
	ContentID    models.ContentID
	Language     string
	Score        float64
	LastModified time.Time
	// Geo holds the document's point for Request.Geo.Field when requested.
	Geo *models.GeoPoint
}

// Hits is a window of candidates plus the engine's total match count.
type Hits struct {
	Total uint64
	Hits  []*Hit
}
