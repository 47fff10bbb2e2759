package indexer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hyperjump/contentindex/internal/models"
)

// maxLineSize bounds one JSON-lines record.
const maxLineSize = 16 << 20

// SliceSource enumerates a fixed list of notifications in order.
type SliceSource []*models.Notification

// Enumerate yields every notification.
func (s SliceSource) Enumerate(ctx context.Context, tenant string, yield func(*models.Notification) error) error {
	for _, n := range s {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := yield(withTenant(n, tenant)); err != nil {
			return err
		}
	}
	return nil
}

// JSONLinesSource reads one notification (or bare content object) per line from a file.
// Blank lines are ignored.
type JSONLinesSource struct {
	Path string
}

// Enumerate opens the file and yields its records in order.
func (s JSONLinesSource) Enumerate(ctx context.Context, tenant string, yield func(*models.Notification) error) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("failed to open content source: %w", err)
	}
	defer f.Close()
	return ReadJSONLines(ctx, f, tenant, yield)
}

// ReadJSONLines decodes notifications from r, one JSON object per line. A line holding a
// content object without a "content" key is treated as the content itself.
func ReadJSONLines(ctx context.Context, r io.Reader, tenant string, yield func(*models.Notification) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		n, err := decodeRecord(raw)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := yield(withTenant(n, tenant)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func decodeRecord(raw []byte) (*models.Notification, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if _, ok := fields["content"]; ok {
		var n models.Notification
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		return &n, nil
	}
	var c models.Content
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &models.Notification{Content: &c}, nil
}

// withTenant returns n addressed to tenant as a Created notification when it names no kind.
func withTenant(n *models.Notification, tenant string) *models.Notification {
	if n == nil {
		return nil
	}
	out := *n
	out.Tenant = tenant
	if out.Kind == 0 {
		out.Kind = models.KindCreated
	}
	return &out
}

// ReaderSource reads JSON-lines records from a stream. It can be enumerated once.
type ReaderSource struct {
	R io.Reader
}

// Enumerate yields the stream's records in order.
func (s ReaderSource) Enumerate(ctx context.Context, tenant string, yield func(*models.Notification) error) error {
	return ReadJSONLines(ctx, s.R, tenant, yield)
}
