package models

// Hit is one content item in a search result.
type Hit struct {
	ContentID      ContentID `json:"content_id"`
	Score          float64   `json:"score"`
	DistanceMeters *float64  `json:"distance_meters,omitempty"`
	Language       string    `json:"language,omitempty"`
}

// SearchResult is an ordered page of hits.
//
// Total counts distinct content items among the candidates the engine returned.
// When the engine matched more documents than the candidate window,
// TotalIsEstimate is true and Total is a lower bound.
type SearchResult struct {
	Hits            []Hit `json:"hits"`
	Total           int   `json:"total"`
	TotalIsEstimate bool  `json:"total_is_estimate,omitempty"`
	NextOffset      *int  `json:"next_offset,omitempty"`
	QueryTime       int64 `json:"query_time_ms"`
}

// ContentIDs returns the ids of the hits in order.
func (r *SearchResult) ContentIDs() []ContentID {
	ids := make([]ContentID, len(r.Hits))
	for i, h := range r.Hits {
		ids[i] = h.ContentID
	}
	return ids
}
