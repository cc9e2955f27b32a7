// Package httpapi exposes the HTTP contract surface over the service
// facade: the route table, request/response body types, and thin handlers.
// Routing uses net/http.ServeMux method patterns; cross-cutting concerns
// (compression, rate limiting, correlation, error boundary) live in the
// envelope chain wrapped around this server, not here.
package httpapi

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"materialscat/internal/service"
)

// Server exposes HTTP endpoints for the materials catalog API.
type Server struct {
	service *service.Service
	health  *Health
	log     zerolog.Logger
	mux     *http.ServeMux
}

// NewServer creates the HTTP API server wired to the service facade.
func NewServer(svc *service.Service, health *Health, log zerolog.Logger) *Server {
	if health == nil {
		health = NewHealth()
	}
	s := &Server{
		service: svc,
		health:  health,
		log:     log.With().Str("component", "httpapi.Server").Logger(),
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	// Search
	s.mux.HandleFunc("POST /search/advanced", s.handleAdvancedSearch)
	s.mux.HandleFunc("GET /search/suggestions", s.handleSuggestions)
	s.mux.HandleFunc("GET /search/analytics", s.handleAnalytics)

	// Materials
	s.mux.HandleFunc("POST /materials", s.handleCreateMaterial)
	s.mux.HandleFunc("POST /materials/batch", s.handleCreateMaterialBatch)
	s.mux.HandleFunc("GET /materials/{id}", s.handleGetMaterial)
	s.mux.HandleFunc("PUT /materials/{id}", s.handleUpdateMaterial)
	s.mux.HandleFunc("DELETE /materials/{id}", s.handleDeleteMaterial)

	// Enrichment
	s.mux.HandleFunc("POST /materials/process-enhanced", s.handleProcessEnhanced)
	s.mux.HandleFunc("GET /materials/process-enhanced/status/{requestID}", s.handleProcessStatus)
	s.mux.HandleFunc("GET /materials/process-enhanced/results/{requestID}", s.handleProcessResults)

	// Price lists
	s.mux.HandleFunc("POST /prices/process", s.handlePriceProcess)
	s.mux.HandleFunc("GET /prices/{supplierID}/latest", s.handlePriceLatest)
	s.mux.HandleFunc("DELETE /prices/{supplierID}", s.handlePriceDelete)

	// Health
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /health/detailed", s.handleHealthDetailed)
	s.mux.HandleFunc("GET /health/databases", s.handleHealthDatabases)
}

// EndpointClass maps a request path to its rate-limit class, the
// classification the envelope's limiter stage keys windows by.
func EndpointClass(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/search"):
		return "search"
	case strings.HasPrefix(path, "/materials/process-enhanced"):
		return "ingestion"
	case strings.HasPrefix(path, "/materials"):
		return "materials"
	case strings.HasPrefix(path, "/prices"):
		return "prices"
	case strings.HasPrefix(path, "/health"):
		return "health"
	default:
		return "default"
	}
}
