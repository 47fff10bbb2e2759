package models

import (
	"errors"
	"testing"
)

func TestSearchQuery_Validate(t *testing.T) {
	geo := &GeoFilter{Field: "location", Center: GeoPoint{Lat: 52.5, Lon: 13.4}, RadiusMeters: 1000}
	tests := []struct {
		name      string
		query     *SearchQuery
		wantErr   bool
		wantLimit int
		wantOrder string
	}{
		{"empty query", &SearchQuery{}, true, 0, ""},
		{"valid text", &SearchQuery{Text: "fox"}, false, DefaultLimit, OrderByScore},
		{"caps limit", &SearchQuery{Text: "x", Limit: 1000}, false, MaxLimit, OrderByScore},
		{"negative offset", &SearchQuery{Text: "x", Offset: -1}, true, 0, ""},
		{"geo only orders by distance", &SearchQuery{Geo: geo}, false, DefaultLimit, OrderByDistance},
		{"geo with text orders by score", &SearchQuery{Text: "x", Geo: geo}, false, DefaultLimit, OrderByScore},
		{"distance without geo", &SearchQuery{Text: "x", OrderBy: OrderByDistance}, true, 0, ""},
		{"unknown order", &SearchQuery{Text: "x", OrderBy: "random"}, true, 0, ""},
		{"bad center", &SearchQuery{Geo: &GeoFilter{Field: "l", Center: GeoPoint{Lat: 91}, RadiusMeters: 1}}, true, 0, ""},
		{"zero radius", &SearchQuery{Geo: &GeoFilter{Field: "l", Center: GeoPoint{}, RadiusMeters: 0}}, true, 0, ""},
		{"geo without field", &SearchQuery{Geo: &GeoFilter{Center: GeoPoint{}, RadiusMeters: 5}}, true, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate(0, 0)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidQuery) {
					t.Errorf("expected ErrInvalidQuery, got %v", err)
				}
				return
			}
			if tt.query.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", tt.query.Limit, tt.wantLimit)
			}
			if tt.query.OrderBy != tt.wantOrder {
				t.Errorf("OrderBy = %q, want %q", tt.query.OrderBy, tt.wantOrder)
			}
		})
	}
}

func TestSearchQuery_ValidateUsesConfiguredLimits(t *testing.T) {
	q := &SearchQuery{Text: "x"}
	if err := q.Validate(5, 10); err != nil {
		t.Fatal(err)
	}
	if q.Limit != 5 {
		t.Errorf("Limit = %d, want 5", q.Limit)
	}
	q = &SearchQuery{Text: "x", Limit: 50}
	if err := q.Validate(5, 10); err != nil {
		t.Fatal(err)
	}
	if q.Limit != 10 {
		t.Errorf("Limit = %d, want 10", q.Limit)
	}
}
