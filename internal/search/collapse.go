package search

import (
	"sort"
	"time"

	"github.com/hyperjump/contentindex/internal/gateway"
	"github.com/hyperjump/contentindex/internal/models"
)

// candidate is one content item aggregated from its matching documents.
type candidate struct {
	id           models.ContentID
	key          string
	score        float64
	distance     *float64
	language     string
	lastModified time.Time
}

// nearest returns, per content id, the smallest distance from the filter center among
// hits within the radius. Hits without a point are ignored.
func nearest(hits []*gateway.Hit, geo *models.GeoFilter) map[models.ContentID]float64 {
	out := make(map[models.ContentID]float64, len(hits))
	for _, h := range hits {
		if h.Geo == nil {
			continue
		}
		d := Haversine(geo.Center, *h.Geo)
		if d > geo.RadiusMeters {
			continue
		}
		if prev, ok := out[h.ContentID]; !ok || d < prev {
			out[h.ContentID] = d
		}
	}
	return out
}

// within keeps the hits whose content id has a distance.
func within(hits []*gateway.Hit, distances map[models.ContentID]float64) []*gateway.Hit {
	kept := make([]*gateway.Hit, 0, len(hits))
	for _, h := range hits {
		if _, ok := distances[h.ContentID]; ok {
			kept = append(kept, h)
		}
	}
	return kept
}

// collapse merges document hits into one candidate per content id, keeping the best score
// and its document's language, and the latest modification. distances may be nil.
func collapse(hits []*gateway.Hit, distances map[models.ContentID]float64) []*candidate {
	byID := make(map[models.ContentID]*candidate, len(hits))
	out := make([]*candidate, 0, len(hits))
	for _, h := range hits {
		c, ok := byID[h.ContentID]
		if !ok {
			c = &candidate{id: h.ContentID, key: h.ContentID.String(), score: h.Score, language: h.Language, lastModified: h.LastModified}
			if d, ok := distances[h.ContentID]; ok {
				c.distance = &d
			}
			byID[h.ContentID] = c
			out = append(out, c)
			continue
		}
		if h.Score > c.score {
			c.score = h.Score
			c.language = h.Language
		}
		if h.LastModified.After(c.lastModified) {
			c.lastModified = h.LastModified
		}
	}
	return out
}

// order sorts candidates for the given ordering. Ties break on content id.
func order(cands []*candidate, orderBy string) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		switch orderBy {
		case models.OrderByDistance:
			da, db := distanceOf(a), distanceOf(b)
			if da != db {
				return da < db
			}
		case models.OrderByLastModified:
			if !a.lastModified.Equal(b.lastModified) {
				return a.lastModified.After(b.lastModified)
			}
		default:
			if a.score != b.score {
				return a.score > b.score
			}
		}
		return a.key < b.key
	})
}

func distanceOf(c *candidate) float64 {
	if c.distance == nil {
		return 1 << 62
	}
	return *c.distance
}
