// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ledger-reconciler/internal/logging"
	"github.com/ledger-reconciler/internal/service"
	"github.com/ledger-reconciler/internal/storage"
	"github.com/ledger-reconciler/internal/types"
)

// ImportServiceInterface defines the import operations the server exposes
type ImportServiceInterface interface {
	ImportWallet(ctx context.Context, network types.Network, address string, progress service.ProgressFunc) error
	ImportAll(ctx context.Context, network types.Network, progress service.ProgressFunc) ([]service.ImportResult, error)
}

// BalanceServiceInterface defines the balance operations the server exposes
type BalanceServiceInterface interface {
	RefreshWallet(ctx context.Context, address string, networks []types.Network) error
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	RequestsPerSecond int
	Burst             int
	Networks          []types.Network
}

// Server represents the HTTP API server.
type Server struct {
	router         *mux.Router
	httpServer     *http.Server
	importService  ImportServiceInterface
	balanceService BalanceServiceInterface
	wallets        *storage.WalletRepository
	transfers      *storage.TransferRepository
	gas            *storage.GasRecordRepository
	rules          *storage.RuleRepository
	balances       *storage.BalanceRepository
	config         *ServerConfig
	logger         *logging.Logger
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	importService ImportServiceInterface,
	balanceService BalanceServiceInterface,
	wallets *storage.WalletRepository,
	transfers *storage.TransferRepository,
	gas *storage.GasRecordRepository,
	rules *storage.RuleRepository,
	balances *storage.BalanceRepository,
	logger *logging.Logger,
) *Server {
	s := &Server{
		router:         mux.NewRouter(),
		importService:  importService,
		balanceService: balanceService,
		wallets:        wallets,
		transfers:      transfers,
		gas:            gas,
		rules:          rules,
		balances:       balances,
		config:         config,
		logger:         logger,
	}

	s.setupRouter()
	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))

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

	// Wallet endpoints
	api.HandleFunc("/wallets", s.handleCreateWallet).Methods("POST")
	api.HandleFunc("/wallets", s.handleListWallets).Methods("GET")
	api.HandleFunc("/wallets/{address}", s.handleGetWallet).Methods("GET")
	api.HandleFunc("/wallets/{address}", s.handleUpdateWallet).Methods("PUT")
	api.HandleFunc("/wallets/{address}", s.handleDeleteWallet).Methods("DELETE")

	// Ledger queries
	api.HandleFunc("/wallets/{address}/transfers", s.handleListTransfers).Methods("GET")
	api.HandleFunc("/wallets/{address}/gas", s.handleListGasRecords).Methods("GET")
	api.HandleFunc("/wallets/{address}/balances", s.handleListBalances).Methods("GET")
	api.HandleFunc("/wallets/{address}/reports/missing-gas", s.handleMissingGasReport).Methods("GET")
	api.HandleFunc("/wallets/{address}/export", s.handleExportTransfers).Methods("GET")

	// Import and refresh operations
	api.HandleFunc("/wallets/{address}/imports", s.handleImportWallet).Methods("POST")
	api.HandleFunc("/imports", s.handleImportAll).Methods("POST")
	api.HandleFunc("/wallets/{address}/balances/refresh", s.handleRefreshBalances).Methods("POST")

	// Classification rule endpoints
	api.HandleFunc("/rules", s.handleCreateRule).Methods("POST")
	api.HandleFunc("/rules", s.handleListRules).Methods("GET")
	api.HandleFunc("/rules/{id}", s.handleGetRule).Methods("GET")
	api.HandleFunc("/rules/{id}", s.handleUpdateRule).Methods("PUT")
	api.HandleFunc("/rules/{id}", s.handleDeleteRule).Methods("DELETE")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "ledger-reconciler",
	})
}

// Handler exposes the configured router, used in tests
func (s *Server) Handler() http.Handler {
	return s.router
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
