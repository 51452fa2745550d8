// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/address-analyzer/internal/analysis"
	"github.com/address-analyzer/internal/logging"
	"github.com/address-analyzer/internal/service"
	"github.com/address-analyzer/internal/types"
)

// Service interfaces for dependency injection and testing

// AnalysisServiceInterface defines the interface for address classification
type AnalysisServiceInterface interface {
	Analyze(ctx context.Context, address string) (types.AnalysisResult, error)
	Catalog() *analysis.Catalog
}

// AnalysisHistoryInterface defines the interface for the analysis audit log
type AnalysisHistoryInterface interface {
	ListByAddress(ctx context.Context, address string, limit int) ([]*types.AnalysisRecord, error)
}

// ChatServiceInterface defines the interface for chat operations
type ChatServiceInterface interface {
	Chat(ctx context.Context, message string, history []types.ChatMessage) (*service.ChatReply, error)
}

// ClaimServiceInterface defines the interface for claim session operations
type ClaimServiceInterface interface {
	Start(ctx context.Context, address string) (*service.ClaimStatus, error)
	Status(ctx context.Context, address string) (*service.ClaimStatus, error)
	Reset(ctx context.Context, address string) error
}

// Services groups the handlers' collaborators. History and Claims are optional.
type Services struct {
	Analysis AnalysisServiceInterface
	History  AnalysisHistoryInterface
	Chat     ChatServiceInterface
	Claims   ClaimServiceInterface
}

// Server represents the HTTP API server.
type Server struct {
	router          *mux.Router
	httpServer      *http.Server
	analysisService AnalysisServiceInterface
	history         AnalysisHistoryInterface
	chatService     ChatServiceInterface
	claimService    ClaimServiceInterface
	logger          *logging.Logger
	config          *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	RequestsPerSecond float64 // per client
	Burst             int
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, services Services, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	s := &Server{
		router:          mux.NewRouter(),
		analysisService: services.Analysis,
		history:         services.History,
		chatService:     services.Chat,
		claimService:    services.Claims,
		logger:          logger.WithField("component", "api"),
		config:          config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	// order matters
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Category endpoints
	api.HandleFunc("/categories", s.handleListCategories).Methods("GET")
	api.HandleFunc("/categories/{id}", s.handleGetCategory).Methods("GET")

	// Analysis endpoints
	api.HandleFunc("/address-analysis", s.handleAddressAnalysis).Methods("GET", "POST")
	api.HandleFunc("/addresses/{address}/analyses", s.handleAnalysisHistory).Methods("GET")

	// Chat endpoint
	api.HandleFunc("/chat", s.handleChat).Methods("POST")

	// Claim endpoints
	api.HandleFunc("/claims/{address}", s.handleStartClaim).Methods("POST")
	api.HandleFunc("/claims/{address}", s.handleClaimStatus).Methods("GET")
	api.HandleFunc("/claims/{address}", s.handleResetClaim).Methods("DELETE")
}

// Handler returns the root handler, used by tests and embedding servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "address-analyzer",
		"claims":  s.claimService != nil,
		"history": s.history != nil,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
