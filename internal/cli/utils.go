// Package cli provides output helpers for the contentindex command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/contentindex/internal/indexer"
	"github.com/hyperjump/contentindex/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json"; empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes a search result page to w in the given format.
func WriteSearchResults(w io.Writer, result *models.SearchResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	total := fmt.Sprintf("%d", result.Total)
	if result.TotalIsEstimate {
		total = "at least " + total
	}
	fmt.Fprintf(w, "\nFound %s results in %dms\n\n", total, result.QueryTime)
	for i, hit := range result.Hits {
		fmt.Fprintf(w, "%3d. %s  score=%.4f", i+1, hit.ContentID, hit.Score)
		if hit.Language != "" {
			fmt.Fprintf(w, "  lang=%s", hit.Language)
		}
		if hit.DistanceMeters != nil {
			fmt.Fprintf(w, "  distance=%.0fm", *hit.DistanceMeters)
		}
		fmt.Fprintln(w)
	}
	if result.NextOffset != nil {
		fmt.Fprintf(w, "\nMore results: --offset %d\n", *result.NextOffset)
	}
	return nil
}

// WriteReindexReport writes the outcome of a full reindex.
func WriteReindexReport(w io.Writer, report *indexer.ReindexReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "Reindexed app %s (%s): %d items indexed, %d skipped, %d documents in %s\n",
		report.Tenant, report.Mode, report.Indexed, report.Skipped, report.Documents, report.Duration)
	return nil
}

// WriteStatus writes a tenant status summary.
func WriteStatus(w io.Writer, st *indexer.TenantStatus, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "App:          %s\n", st.Tenant)
	fmt.Fprintf(w, "Documents:    %d\n", st.Documents)
	fmt.Fprintf(w, "Content:      %d\n", st.States)
	fmt.Fprintf(w, "Disk usage:   %s\n", FormatBytes(st.DiskUsageBytes))
	fmt.Fprintf(w, "Reindex mode: %s\n", st.ReindexMode)
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
