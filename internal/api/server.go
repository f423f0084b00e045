// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ledger-dashboard/internal/job"
	"github.com/ledger-dashboard/internal/logging"
	"github.com/ledger-dashboard/internal/models"
	"github.com/ledger-dashboard/internal/service"
	"github.com/ledger-dashboard/internal/storage"
)

// Service interfaces for dependency injection and testing

// ImportServiceInterface starts imports and reports their progress
type ImportServiceInterface interface {
	StartImport(ctx context.Context, req job.ImportRequest) (string, error)
	Progress(id string) (job.Snapshot, error)
	Active() []job.Snapshot
	ReclaimCompleted() int
}

// QueryServiceInterface defines the interface for query service operations
type QueryServiceInterface interface {
	ListTransactions(ctx context.Context, input service.QueryInput) (*service.QueryResult, error)
	ClearTransactions(ctx context.Context) (int64, error)
}

// AnalyticsServiceInterface derives dashboard aggregates
type AnalyticsServiceInterface interface {
	Dashboard(ctx context.Context) (*service.DashboardStats, error)
	WalletBalance(ctx context.Context, walletID int64) (*service.WalletBalance, error)
}

// WalletServiceInterface manages tracked wallets
type WalletServiceInterface interface {
	List(ctx context.Context) ([]*models.Wallet, error)
	Create(ctx context.Context, input service.CreateWalletInput) (*models.Wallet, error)
	Rename(ctx context.Context, id int64, name string) error
	Delete(ctx context.Context, id int64) error
}

// APIKeyServiceInterface manages explorer credentials
type APIKeyServiceInterface interface {
	List(ctx context.Context) ([]models.APIKey, error)
	Create(ctx context.Context, input service.CreateAPIKeyInput) (*models.APIKey, error)
	Delete(ctx context.Context, id int64) error
}

// ReprocessServiceInterface re-reconciles archived artifacts for a wallet
type ReprocessServiceInterface interface {
	Reprocess(ctx context.Context, walletID int64, importID string) (*service.ReprocessResult, error)
}

// ExportServiceInterface serializes records as CSV
type ExportServiceInterface interface {
	WriteTransactionsCSV(ctx context.Context, w io.Writer, walletID *int64) error
}

// ArtifactArchive lists and streams archived fetch artifacts
type ArtifactArchive interface {
	List(ctx context.Context) ([]storage.ArchivedArtifact, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Pinger is a dependency checked by the health endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the handlers' collaborators. Archive and the health checks are optional.
type Services struct {
	Imports   ImportServiceInterface
	Query     QueryServiceInterface
	Analytics AnalyticsServiceInterface
	Wallets   WalletServiceInterface
	APIKeys   APIKeyServiceInterface
	Export    ExportServiceInterface
	Reprocess ReprocessServiceInterface
	Archive   ArtifactArchive
	Health    map[string]Pinger
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	services   Services
	config     *ServerConfig
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
func NewServer(config *ServerConfig, services Services) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		services: services,
		config:   config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	// Order matters: the request id must exist before anything logs.
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	// CORS wraps the router so preflights for routes without an OPTIONS method still succeed.
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      CORSMiddleware(s.router),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Import endpoints
	api.HandleFunc("/import", s.handleStartImport).Methods("POST")
	api.HandleFunc("/import/active", s.handleActiveImports).Methods("GET")
	api.HandleFunc("/import/completed", s.handleReclaimImports).Methods("DELETE")
	api.HandleFunc("/import/{importId}/progress", s.handleImportProgress).Methods("GET")

	// Transaction endpoints
	api.HandleFunc("/transactions", s.handleListTransactions).Methods("GET")
	api.HandleFunc("/transactions", s.handleClearTransactions).Methods("DELETE")
	api.HandleFunc("/analytics/dashboard", s.handleDashboard).Methods("GET")

	// Wallet endpoints
	api.HandleFunc("/wallets", s.handleListWallets).Methods("GET")
	api.HandleFunc("/wallets", s.handleCreateWallet).Methods("POST")
	api.HandleFunc("/wallets/{id}", s.handleRenameWallet).Methods("PATCH")
	api.HandleFunc("/wallets/{id}", s.handleDeleteWallet).Methods("DELETE")
	api.HandleFunc("/wallets/{id}/transactions", s.handleWalletTransactions).Methods("GET")
	api.HandleFunc("/wallets/{id}/balance", s.handleWalletBalance).Methods("GET")
	api.HandleFunc("/wallets/{id}/reprocess", s.handleReprocessWallet).Methods("POST")

	// Credential endpoints
	api.HandleFunc("/api-keys", s.handleListAPIKeys).Methods("GET")
	api.HandleFunc("/api-keys", s.handleCreateAPIKey).Methods("POST")
	api.HandleFunc("/api-keys/{id}", s.handleDeleteAPIKey).Methods("DELETE")

	// Export endpoints
	api.HandleFunc("/export/transactions", s.handleExportTransactions).Methods("GET")
	api.HandleFunc("/export/artifacts", s.handleListArtifacts).Methods("GET")
	api.HandleFunc("/export/artifacts/{name:.+}", s.handleDownloadArtifact).Methods("GET")
}

// handleHealth pings the store and cache; any failure reports 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.services.Health))
	for name, p := range s.services.Health {
		if err := p.Ping(ctx); err != nil {
			checks[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			logging.FromContext(r.Context()).WithError(err).WithField("dependency", name).Warn("Health check failed")
			continue
		}
		checks[name] = "healthy"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}
	respondJSON(w, status, map[string]interface{}{
		"status":  overall,
		"service": "ledger-dashboard",
		"checks":  checks,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
