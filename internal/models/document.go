package models

import (
	"math"
	"time"
)

// GeoPoint is a latitude/longitude pair in degrees.
type GeoPoint struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Valid reports whether the point lies within the WGS84 coordinate range.
func (p GeoPoint) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// SearchDocument is the flat, physical-index representation of (part of) a content item.
// It only lives for the duration of one indexing operation.
type SearchDocument struct {
	ID           string               `json:"id"`
	ContentID    ContentID            `json:"content_id"`
	Language     string               `json:"language"`
	SchemaID     string               `json:"schema_id,omitempty"`
	Status       string               `json:"status,omitempty"`
	Created      time.Time            `json:"created,omitempty"`
	LastModified time.Time            `json:"last_modified,omitempty"`
	Texts        map[string]string    `json:"texts,omitempty"`
	Numbers      map[string]float64   `json:"numbers,omitempty"`
	Dates        map[string]time.Time `json:"dates,omitempty"`
	Bools        map[string]bool      `json:"bools,omitempty"`
	Geo          map[string]GeoPoint  `json:"geo,omitempty"`
}

// FieldCount is the number of indexed fields carried by the document.
func (d *SearchDocument) FieldCount() int {
	return len(d.Texts) + len(d.Numbers) + len(d.Dates) + len(d.Bools) + len(d.Geo)
}

// IsEmpty reports whether the document carries no indexed field.
func (d *SearchDocument) IsEmpty() bool {
	return d.FieldCount() == 0
}
