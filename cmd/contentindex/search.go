package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/contentindex/internal/cli"
	"github.com/hyperjump/contentindex/internal/models"
)

type searchOptions struct {
	app       string
	serverURL string
	limit     int
	offset    int
	language  string
	schemaID  string
	status    string
	orderBy   string
	near      string
	radius    float64
	geoField  string
	output    string
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	so := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search [flags] <query>",
		Short: "Search one app's index",
		Long: `Search one app's index. The query is all remaining arguments joined by spaces,
so multi-word queries work with or without quotes. A geo radius search needs
--near and --radius and may omit the query.`,
		Example: `  contentindex search --app blog quick brown fox
  contentindex search --app blog --language de --order-by lastModified fuchs
  contentindex search --app venues --near 52.52,13.405 --radius 5000 --geo-field location`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := so.query(args)
			if err != nil {
				return err
			}
			format, err := cli.ParseOutputFormat(so.output)
			if err != nil {
				return err
			}
			result, err := runSearch(cmd.Context(), opts, so, q)
			if err != nil {
				return err
			}
			return cli.WriteSearchResults(cmd.OutOrStdout(), result, format)
		},
	}
	f := cmd.Flags()
	f.StringVar(&so.app, "app", "", "app (tenant) to search")
	f.StringVar(&so.serverURL, "server", defaultServerURL, "server URL (empty = open the indexes directly)")
	f.IntVar(&so.limit, "limit", 0, "page size (0 = configured default)")
	f.IntVar(&so.offset, "offset", 0, "number of results to skip")
	f.StringVar(&so.language, "language", "", "only match text in this language")
	f.StringVar(&so.schemaID, "schema", "", "only match content of this schema")
	f.StringVar(&so.status, "status", "", "only match content with this status")
	f.StringVar(&so.orderBy, "order-by", "", "score, distance, or lastModified")
	f.StringVar(&so.near, "near", "", "geo center as lat,lon")
	f.Float64Var(&so.radius, "radius", 0, "geo radius in meters")
	f.StringVar(&so.geoField, "geo-field", "location", "geolocation field to filter on")
	f.StringVar(&so.output, "output", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("app")
	return cmd
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func (so *searchOptions) query(args []string) (*models.SearchQuery, error) {
	q := &models.SearchQuery{
		Text:     buildSearchQuery(args),
		Language: so.language,
		SchemaID: so.schemaID,
		Status:   so.status,
		Offset:   so.offset,
		Limit:    so.limit,
		OrderBy:  so.orderBy,
	}
	if so.near != "" {
		center, err := parseLatLon(so.near)
		if err != nil {
			return nil, err
		}
		q.Geo = &models.GeoFilter{Field: so.geoField, Center: center, RadiusMeters: so.radius}
	}
	if q.Text == "" && q.Geo == nil {
		return nil, fmt.Errorf("a query or --near is required")
	}
	return q, nil
}

func parseLatLon(s string) (models.GeoPoint, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return models.GeoPoint{}, fmt.Errorf("invalid --near %q: want lat,lon", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return models.GeoPoint{}, fmt.Errorf("invalid latitude in --near %q: %w", s, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return models.GeoPoint{}, fmt.Errorf("invalid longitude in --near %q: %w", s, err)
	}
	return models.GeoPoint{Lat: lat, Lon: lon}, nil
}

func runSearch(ctx context.Context, opts *globalOptions, so *searchOptions, q *models.SearchQuery) (*models.SearchResult, error) {
	if so.serverURL != "" {
		// Use the HTTP API when a server is running; it holds the index lock.
		client := newAPIClient(so.serverURL)
		var result models.SearchResult
		if err := client.postJSON(ctx, client.appPath(so.app, "/search"), q, &result); err != nil {
			return nil, fmt.Errorf("search failed: %w", err)
		}
		return &result, nil
	}

	cfg, logger, err := opts.setup()
	if err != nil {
		return nil, err
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	return components.Engine.Search(ctx, so.app, q)
}
