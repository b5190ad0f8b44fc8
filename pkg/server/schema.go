package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// typeLister is implemented by providers backed by a fixed mapping, which
// can enumerate their known types.
type typeLister interface {
	Types() []string
}

// handleSchema serves one type's schema document.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")
	if typ == "" {
		typ = r.URL.Query().Get("type")
	}
	if typ == "" {
		s.handleSchemaIndex(w, r)
		return
	}
	if s.config.Schemas == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Schema not found for type '%s'", typ)})
		return
	}

	doc, err := s.config.Schemas.Schema(r.Context(), typ)
	if err != nil {
		s.logger.Error("schema provider failed", "type", typ, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if doc == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Schema not found for type '%s'", typ)})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleSchemaIndex lists known type names when the provider can enumerate
// them, and otherwise reports the missing parameter.
func (s *Server) handleSchemaIndex(w http.ResponseWriter, r *http.Request) {
	if typ := r.URL.Query().Get("type"); typ != "" {
		s.handleSchema(w, r)
		return
	}
	if lister, ok := s.config.Schemas.(typeLister); ok {
		writeJSON(w, http.StatusOK, map[string]any{"types": lister.Types()})
		return
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing type parameter"})
}

// handleManifest exposes the registered handler mapping for visibility.
func (s *Server) handleManifest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.proc.Registry().Manifest())
}
