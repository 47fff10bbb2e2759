package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/hyperjump/contentindex/internal/factory"
	"github.com/hyperjump/contentindex/internal/indexer"
	"github.com/hyperjump/contentindex/internal/mapper"
	"github.com/hyperjump/contentindex/internal/models"
	"github.com/hyperjump/contentindex/internal/search"
	"github.com/hyperjump/contentindex/internal/storage"
)

var schema = &models.Schema{
	ID:        "articles",
	Languages: []string{"en", "de"},
	Fields: []models.FieldDef{
		{Name: "title", Type: models.FieldString, Localized: true},
		{Name: "body", Type: models.FieldString, Localized: true},
		{Name: "location", Type: models.FieldGeolocation},
	},
}

func article(i int) *models.Content {
	return &models.Content{
		ID:       uuid.New(),
		SchemaID: schema.ID,
		Status:   "Published",
		Data: models.ContentData{
			"title":    {"en": fmt.Sprintf("article %d about foxes", i), "de": fmt.Sprintf("Artikel %d über Füchse", i)},
			"body":     {"en": "the quick brown fox jumps over the lazy dog", "de": "der schnelle braune Fuchs springt"},
			"location": {"iv": map[string]interface{}{"latitude": 52.0 + float64(i%100)/100, "longitude": 13.0}},
		},
	}
}

func setup(b *testing.B) (*indexer.Indexer, *search.Engine) {
	b.Helper()
	f, err := factory.New("")
	if err != nil {
		b.Fatal(err)
	}
	states := storage.NewMemoryProvider()
	b.Cleanup(func() {
		_ = f.Close()
		_ = states.Close()
	})
	return indexer.NewIndexer(states, f), search.NewEngine(f, search.WithCacheSize(0))
}

func BenchmarkMapperMap(b *testing.B) {
	m := mapper.New()
	c := article(1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Map(c, schema); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkNotify(b *testing.B) {
	idx, _ := setup(b)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n := &models.Notification{Tenant: "bench", Kind: models.KindCreated, Content: article(i), Schema: schema}
		if err := idx.Notify(ctx, n); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSearch(b *testing.B) {
	idx, engine := setup(b)
	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		n := &models.Notification{Tenant: "bench", Kind: models.KindCreated, Content: article(i), Schema: schema}
		if err := idx.Notify(ctx, n); err != nil {
			b.Fatal(err)
		}
	}
	queries := map[string]*models.SearchQuery{
		"text": {Text: "fox"},
		"geo":  {Geo: &models.GeoFilter{Field: "location", Center: models.GeoPoint{Lat: 52.5, Lon: 13.0}, RadiusMeters: 20000}},
		"both": {Text: "fuchs", Geo: &models.GeoFilter{Field: "location", Center: models.GeoPoint{Lat: 52.5, Lon: 13.0}, RadiusMeters: 20000}},
	}
	for name, q := range queries {
		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := engine.Search(ctx, "bench", q); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkHaversine(b *testing.B) {
	berlin := models.GeoPoint{Lat: 52.52, Lon: 13.405}
	paris := models.GeoPoint{Lat: 48.8566, Lon: 2.3522}
	for i := 0; i < b.N; i++ {
		_ = search.Haversine(berlin, paris)
	}
}

func BenchmarkDiff(b *testing.B) {
	id := uuid.New()
	prior := models.NewTextContentState(id, map[string][]string{"en": {"a", "b", "c"}, "de": {"d", "e"}})
	next := models.NewTextContentState(id, map[string][]string{"en": {"a", "b"}, "fr": {"f"}})
	for i := 0; i < b.N; i++ {
		_ = indexer.Diff(prior, next)
	}
}
