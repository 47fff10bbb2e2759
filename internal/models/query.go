package models

import "fmt"

const (
	// DefaultLimit is used when a query does not set a page size.
	DefaultLimit = 20
	// MaxLimit caps the page size.
	MaxLimit = 200
)

// Result orderings.
const (
	OrderByScore        = "score"
	OrderByDistance     = "distance"
	OrderByLastModified = "lastModified"
)

// GeoFilter keeps content whose geo field lies within RadiusMeters of Center.
type GeoFilter struct {
	Field        string   `json:"field"`
	Center       GeoPoint `json:"center"`
	RadiusMeters float64  `json:"radius_meters"`
}

// SearchQuery is a search request scoped to one tenant.
type SearchQuery struct {
	Text     string     `json:"query"`
	Language string     `json:"language,omitempty"`
	SchemaID string     `json:"schema_id,omitempty"`
	Status   string     `json:"status,omitempty"`
	Geo      *GeoFilter `json:"geo,omitempty"`
	Offset   int        `json:"offset,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	OrderBy  string     `json:"order_by,omitempty"`
}

// Validate checks the query and applies defaults for limit and ordering.
// maxLimit <= 0 means MaxLimit.
func (q *SearchQuery) Validate(defaultLimit, maxLimit int) error {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	if q.Text == "" && q.Geo == nil {
		return fmt.Errorf("%w: query text or geo filter is required", ErrInvalidQuery)
	}
	if q.Offset < 0 {
		return fmt.Errorf("%w: offset must not be negative", ErrInvalidQuery)
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Geo != nil {
		if q.Geo.Field == "" {
			return fmt.Errorf("%w: geo filter needs a field", ErrInvalidQuery)
		}
		if !q.Geo.Center.Valid() {
			return fmt.Errorf("%w: invalid geo center", ErrInvalidQuery)
		}
		if q.Geo.RadiusMeters <= 0 {
			return fmt.Errorf("%w: geo radius must be positive", ErrInvalidQuery)
		}
	}
	switch q.OrderBy {
	case "":
		q.OrderBy = OrderByScore
		if q.Geo != nil && q.Text == "" {
			q.OrderBy = OrderByDistance
		}
	case OrderByScore, OrderByLastModified:
	case OrderByDistance:
		if q.Geo == nil {
			return fmt.Errorf("%w: ordering by distance needs a geo filter", ErrInvalidQuery)
		}
	default:
		return fmt.Errorf("%w: unknown ordering %q", ErrInvalidQuery, q.OrderBy)
	}
	return nil
}
