package search

import (
	"github.com/hyperjump/contentindex/internal/gateway"
	"github.com/hyperjump/contentindex/internal/mapper"
	"github.com/hyperjump/contentindex/internal/models"
)

// ProcessQuery normalizes the query text, validates the query, and applies defaults.
func ProcessQuery(query *models.SearchQuery, defaultLimit, maxLimit int) error {
	query.Text = mapper.Normalize(query.Text)
	return query.Validate(defaultLimit, maxLimit)
}

func scalarFilters(query *models.SearchQuery, withLanguage bool) map[string]string {
	filters := map[string]string{}
	if withLanguage && query.Language != "" {
		filters[gateway.FilterLanguage] = query.Language
	}
	if query.SchemaID != "" {
		filters[gateway.FilterSchemaID] = query.SchemaID
	}
	if query.Status != "" {
		filters[gateway.FilterStatus] = query.Status
	}
	if len(filters) == 0 {
		return nil
	}
	return filters
}

// textRequest selects documents matching the query text and scalar filters.
func textRequest(query *models.SearchQuery, size int) *gateway.Request {
	req := &gateway.Request{
		Text:    query.Text,
		Filters: scalarFilters(query, true),
		Size:    size,
	}
	if query.OrderBy == models.OrderByLastModified {
		req.Sort = gateway.SortLastModified
	}
	return req
}

// geoRequest selects documents whose geo field lies in the bounding box of the radius.
// Geo values usually live in invariant documents, so the language filter is not applied.
func geoRequest(query *models.SearchQuery, size int) *gateway.Request {
	req := &gateway.Request{
		Filters: scalarFilters(query, false),
		Geo:     BoundingBox(query.Geo.Field, query.Geo.Center, query.Geo.RadiusMeters),
		Size:    size,
	}
	if query.OrderBy == models.OrderByLastModified {
		req.Sort = gateway.SortLastModified
	}
	return req
}
