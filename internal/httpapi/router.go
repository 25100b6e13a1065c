// Package httpapi implements the HTTP JSON surface over the
// composition root in internal/app, using a Dependencies-struct-plus-
// chi.NewRouter shape.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/app"
)

// Server wires the composition root into a chi router.
type Server struct {
	app *app.App
}

// New builds the HTTP API server over an already-constructed App.
func New(a *app.App) *Server {
	return &Server{app: a}
}

// Router returns the fully configured chi.Mux.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Post("/ingest", s.handleIngest)
	r.Post("/query", s.handleQuery)
	r.Post("/debug/retrieval", s.handleDebugRetrieval)
	r.Post("/debug/citations", s.handleDebugCitations)
	r.Get("/chunks/{id}", s.handleGetChunk)
	r.Get("/models", s.handleGetModels)
	r.Post("/models", s.handleSetModels)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
