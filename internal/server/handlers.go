package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/contentindex/internal/factory"
	"github.com/hyperjump/contentindex/internal/indexer"
	"github.com/hyperjump/contentindex/internal/models"
)

const maxBodyBytes = 64 << 20

type reindexRequest struct {
	Items []*models.Notification `json:"items"`
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	app := chi.URLParam(r, "app")
	var n models.Notification
	if err := decodeBody(w, r, &n); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if n.Tenant != "" && n.Tenant != app {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("notification is for app %q", n.Tenant))
		return
	}
	n.Tenant = app
	if err := n.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Debug("notification", zap.String("app", app), zap.String("kind", n.Kind.String()),
		zap.String("content_id", n.Content.ID.String()))
	if err := s.indexer.Notify(r.Context(), &n); err != nil {
		s.respondFailure(w, "notification failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"content_id": n.Content.ID.String(),
		"status":     "applied",
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	app := chi.URLParam(r, "app")
	var query models.SearchQuery
	if err := decodeBody(w, r, &query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("app", app), zap.String("query", query.Text), zap.Int("limit", query.Limit))
	result, err := s.engine.Search(r.Context(), app, &query)
	if err != nil {
		s.respondFailure(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// handleReindex rebuilds the app from the request body: a JSON object with an "items" array,
// or one record per line when sent as application/x-ndjson.
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	app := chi.URLParam(r, "app")
	var source indexer.ContentSource
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "application/x-ndjson" {
		source = indexer.ReaderSource{R: http.MaxBytesReader(w, r.Body, maxBodyBytes)}
	} else {
		var req reindexRequest
		if err := decodeBody(w, r, &req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		source = indexer.SliceSource(req.Items)
	}

	report, err := s.indexer.ReindexAll(r.Context(), app, source)
	if err != nil {
		s.respondFailure(w, "reindex failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.indexer.Status(r.Context(), chi.URLParam(r, "app"))
	if err != nil {
		s.respondFailure(w, "status failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleDropTenant(w http.ResponseWriter, r *http.Request) {
	app := chi.URLParam(r, "app")
	if err := s.indexer.DropTenant(r.Context(), app); err != nil {
		s.respondFailure(w, "drop failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"app": app, "status": "dropped"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps an operation error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidQuery), errors.Is(err, models.ErrInvalidTenant):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrMapping):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrStateInconsistency):
		return http.StatusConflict
	case errors.Is(err, models.ErrEngineIO), errors.Is(err, factory.ErrClosed),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusInternalServerError
	}
}

func (s *Server) respondFailure(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
