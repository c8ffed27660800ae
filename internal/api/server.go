// Package api provides the document store HTTP server: per-owner CRUD over
// file records behind JWT authentication.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/lemesvini/codeLog/internal/auth"
	"github.com/lemesvini/codeLog/internal/files"
	"github.com/lemesvini/codeLog/internal/logging"
	"github.com/lemesvini/codeLog/internal/metrics"
	"github.com/lemesvini/codeLog/internal/protocol"
	"github.com/lemesvini/codeLog/internal/store"
)

const maxBodyBytes = 10 << 20

// Server serves the files API.
type Server struct {
	store store.Store
	auth  *auth.Auth
}

// NewServer creates a server over st.
func NewServer(st store.Store, authHandler *auth.Auth) *Server {
	return &Server{
		store: st,
		auth:  authHandler,
	}
}

// Handler returns the HTTP handler with logging, metrics and auth.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/token", s.auth.HandleLogin)

	// Protected endpoints. Each is wrapped on its own so the mux pattern
	// stays visible to the metrics middleware.
	protect := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.auth.Middleware(h))
	}
	protect("GET /api/v1/files", s.handleList)
	protect("POST /api/v1/files", s.handleInsert)
	protect("PATCH /api/v1/files/{id}", s.handleUpdate)
	protect("DELETE /api/v1/files/{id}", s.handleDelete)

	return logging.Middleware(metrics.Middleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.HealthResponse{Status: "ok", Backend: s.store.Type()})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	coll, ok := s.collection(w, r)
	if !ok {
		return
	}

	var recs []files.Record
	var err error
	if field := r.URL.Query().Get("field"); field != "" {
		recs, err = coll.FetchWhere(r.Context(), field, r.URL.Query().Get("value"))
	} else {
		recs, err = coll.FetchAll(r.Context())
	}
	if errors.Is(err, store.ErrUnsupportedField) {
		s.sendError(w, http.StatusBadRequest, "unsupported query field")
		return
	}
	if err != nil {
		logging.WithContext(r.Context()).Error("fetch files failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to fetch files")
		return
	}

	if recs == nil {
		recs = []files.Record{}
	}
	writeJSON(w, http.StatusOK, protocol.FilesResponse{Files: recs})
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	coll, ok := s.collection(w, r)
	if !ok {
		return
	}

	var rec files.Record
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&rec); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(rec.Name) == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}
	if rec.Kind != files.KindFile && rec.Kind != files.KindFolder {
		s.sendError(w, http.StatusBadRequest, "type must be file or folder")
		return
	}

	id, err := coll.Insert(r.Context(), rec)
	if err != nil {
		logging.WithContext(r.Context()).Error("insert failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to insert record")
		return
	}
	writeJSON(w, http.StatusCreated, protocol.InsertResponse{ID: id})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	coll, ok := s.collection(w, r)
	if !ok {
		return
	}

	var p files.Patch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&p); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if p.Empty() {
		s.sendError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		s.sendError(w, http.StatusBadRequest, "name cannot be empty")
		return
	}

	err := coll.UpdateByID(r.Context(), r.PathValue("id"), p)
	if errors.Is(err, store.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		logging.WithContext(r.Context()).Error("update failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to update record")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	coll, ok := s.collection(w, r)
	if !ok {
		return
	}
	if err := coll.DeleteByID(r.Context(), r.PathValue("id")); err != nil {
		logging.WithContext(r.Context()).Error("delete failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to delete record")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) collection(w http.ResponseWriter, r *http.Request) (store.Collection, bool) {
	owner, ok := auth.Owner(r.Context())
	if !ok {
		s.sendError(w, http.StatusUnauthorized, "no owner in token")
		return nil, false
	}
	return s.store.Collection(owner), true
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
