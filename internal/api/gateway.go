package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/retainly/internal/health"
	"github.com/retainly/pkg/models"
)

// Gateway represents the API gateway
type Gateway struct {
	server     *http.Server
	router     *mux.Router
	profiles   ProfileStore
	health     HealthService
	churn      ChurnService
	playbooks  PlaybookService
	expansion  ExpansionService
	nps        NpsService
	sweeper    SweepService
	cache      ReadCache
	checker    *health.Checker
	config     GatewayConfig
	metrics    *GatewayMetrics
}

// ProfileStore interface for retention profile operations
type ProfileStore interface {
	GetProfile(ctx context.Context, verticalID string) (*models.RetentionProfile, error)
	ListProfiles(ctx context.Context) ([]*models.RetentionProfile, error)
	SaveProfile(ctx context.Context, p *models.RetentionProfile) error
	DeleteProfile(ctx context.Context, verticalID string) error
}

// HealthService interface for health score operations
type HealthService interface {
	Calculate(ctx context.Context, tenantID string) (*models.HealthScore, error)
	GetLatest(ctx context.Context, tenantID string) (*models.HealthScore, error)
	GetHistory(ctx context.Context, tenantID string, limit int) ([]*models.HealthScore, error)
}

// ChurnService interface for churn prediction operations
type ChurnService interface {
	Predict(ctx context.Context, tenantID string) (*models.ChurnPrediction, error)
	GetLatest(ctx context.Context, tenantID string) (*models.ChurnPrediction, error)
	GetHistory(ctx context.Context, tenantID string, limit int) ([]*models.ChurnPrediction, error)
}

// PlaybookService interface for playbook operations
type PlaybookService interface {
	SaveDefinition(ctx context.Context, def *models.PlaybookDefinition) error
	GetDefinition(ctx context.Context, playbookID string) (*models.PlaybookDefinition, error)
	ListDefinitions(ctx context.Context) ([]*models.PlaybookDefinition, error)
	DeleteDefinition(ctx context.Context, playbookID string) error
	Execute(ctx context.Context, playbookID, tenantID string) (*models.PlaybookExecution, error)
	GetExecution(ctx context.Context, executionID string) (*models.PlaybookExecution, error)
	ListExecutions(ctx context.Context, tenantID string) ([]*models.PlaybookExecution, error)
	Override(ctx context.Context, executionID string, action models.OverrideAction, reason string) (*models.PlaybookExecution, error)
}

// ExpansionService interface for expansion signal operations
type ExpansionService interface {
	Scan(ctx context.Context, tenantID string) (*models.ExpansionSignal, error)
	ListSignals(ctx context.Context, tenantID string) ([]*models.ExpansionSignal, error)
	UpdateStatus(ctx context.Context, signalID string, status models.ExpansionStatus) (*models.ExpansionSignal, error)
}

// NpsService interface for NPS survey operations
type NpsService interface {
	CanSend(ctx context.Context, tenantID string) (bool, error)
	MarkSent(ctx context.Context, tenantID string) error
	Collect(ctx context.Context, tenantID string, score int, comment string) (*models.NpsResponse, error)
	GetScore(ctx context.Context, tenantID string) (*int, int, error)
	GetTrend(ctx context.Context, tenantID string, months int) ([]models.MonthlyNps, error)
}

// SweepService interface for on-demand sweep triggers
type SweepService interface {
	RunHealthSweep(ctx context.Context) (int, error)
}

// ReadCache backs the hot query endpoints: latest health, latest churn
// and profile reads. A nil cache disables caching entirely.
type ReadCache interface {
	Get(ctx context.Context, key string, target interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// GatewayConfig represents gateway configuration
type GatewayConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	IdleTimeout    time.Duration `json:"idle_timeout"`
	EnableCORS     bool          `json:"enable_cors"`
	AllowedOrigins []string      `json:"allowed_origins"`
	AllowedMethods []string      `json:"allowed_methods"`
	AllowedHeaders []string      `json:"allowed_headers"`
}

// DefaultGatewayConfig returns default gateway configuration
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}
}

// Middleware represents HTTP middleware
type Middleware func(http.Handler) http.Handler

// GatewayMetrics represents gateway metrics
type GatewayMetrics struct {
	mu               sync.Mutex
	RequestsTotal    int64            `json:"requests_total"`
	RequestsFailed   int64            `json:"requests_failed"`
	AverageLatency   time.Duration    `json:"average_latency"`
	RequestsByPath   map[string]int64 `json:"requests_by_path"`
	RequestsByMethod map[string]int64 `json:"requests_by_method"`
	RequestsByStatus map[int]int64    `json:"requests_by_status"`
	LastRequest      time.Time        `json:"last_request"`
}

// NewGateway creates a new API gateway
func NewGateway(
	config GatewayConfig,
	profiles ProfileStore,
	health HealthService,
	churn ChurnService,
	playbooks PlaybookService,
	expansion ExpansionService,
	nps NpsService,
	sweeper SweepService,
	readCache ReadCache,
	checker *health.Checker,
) *Gateway {
	router := mux.NewRouter()

	gateway := &Gateway{
		router:    router,
		profiles:  profiles,
		health:    health,
		churn:     churn,
		playbooks: playbooks,
		expansion: expansion,
		nps:       nps,
		sweeper:   sweeper,
		cache:     readCache,
		checker:   checker,
		config:    config,
		metrics: &GatewayMetrics{
			RequestsByPath:   make(map[string]int64),
			RequestsByMethod: make(map[string]int64),
			RequestsByStatus: make(map[int]int64),
		},
	}

	gateway.setupRoutes()
	gateway.setupMiddleware()

	gateway.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return gateway
}

// setupRoutes configures all API routes
func (g *Gateway) setupRoutes() {
	api := g.router.PathPrefix("/api/v1").Subrouter()

	// Retention profile routes
	profiles := api.PathPrefix("/profiles").Subrouter()
	profiles.HandleFunc("", g.handleListProfiles).Methods("GET")
	profiles.HandleFunc("", g.handleSaveProfile).Methods("POST")
	profiles.HandleFunc("/{verticalId}", g.handleGetProfile).Methods("GET")
	profiles.HandleFunc("/{verticalId}", g.handleDeleteProfile).Methods("DELETE")

	// Playbook routes
	playbooks := api.PathPrefix("/playbooks").Subrouter()
	playbooks.HandleFunc("", g.handleListPlaybooks).Methods("GET")
	playbooks.HandleFunc("", g.handleSavePlaybook).Methods("POST")
	playbooks.HandleFunc("/{id}", g.handleGetPlaybook).Methods("GET")
	playbooks.HandleFunc("/{id}", g.handleDeletePlaybook).Methods("DELETE")
	playbooks.HandleFunc("/{id}/execute", g.handleExecutePlaybook).Methods("POST")

	// Execution routes
	executions := api.PathPrefix("/executions").Subrouter()
	executions.HandleFunc("", g.handleListExecutions).Methods("GET")
	executions.HandleFunc("/{id}", g.handleGetExecution).Methods("GET")
	executions.HandleFunc("/{id}/override", g.handleOverrideExecution).Methods("POST")

	// Per-tenant retention routes
	tenants := api.PathPrefix("/tenants/{tenantId}").Subrouter()
	tenants.HandleFunc("/health", g.handleGetHealth).Methods("GET")
	tenants.HandleFunc("/health/history", g.handleGetHealthHistory).Methods("GET")
	tenants.HandleFunc("/health/calculate", g.handleCalculateHealth).Methods("POST")
	tenants.HandleFunc("/churn", g.handleGetChurn).Methods("GET")
	tenants.HandleFunc("/churn/history", g.handleGetChurnHistory).Methods("GET")
	tenants.HandleFunc("/churn/predict", g.handlePredictChurn).Methods("POST")
	tenants.HandleFunc("/expansion/scan", g.handleScanExpansion).Methods("POST")
	tenants.HandleFunc("/nps", g.handleGetNps).Methods("GET")
	tenants.HandleFunc("/nps", g.handleCollectNps).Methods("POST")
	tenants.HandleFunc("/nps/trend", g.handleGetNpsTrend).Methods("GET")
	tenants.HandleFunc("/nps/send", g.handleSendNpsSurvey).Methods("POST")

	// Expansion signal routes
	signals := api.PathPrefix("/signals").Subrouter()
	signals.HandleFunc("", g.handleListSignals).Methods("GET")
	signals.HandleFunc("/{id}/status", g.handleUpdateSignalStatus).Methods("PUT")

	// Sweep routes
	sweeps := api.PathPrefix("/sweeps").Subrouter()
	sweeps.HandleFunc("/health", g.handleTriggerHealthSweep).Methods("POST")

	// Health and metrics
	api.HandleFunc("/health", g.handleHealth).Methods("GET")
	api.HandleFunc("/metrics", g.handleMetrics).Methods("GET")
}

// setupMiddleware configures HTTP middleware
func (g *Gateway) setupMiddleware() {
	if g.config.EnableCORS {
		g.setupCORS()
	}

	// Metrics middleware runs last so it captures every request
	g.router.Use(g.metricsMiddleware)
}

// setupCORS configures CORS
func (g *Gateway) setupCORS() {
	c := cors.New(cors.Options{
		AllowedOrigins:   g.config.AllowedOrigins,
		AllowedMethods:   g.config.AllowedMethods,
		AllowedHeaders:   g.config.AllowedHeaders,
		AllowCredentials: true,
	})

	g.router.Use(c.Handler)
}

// Start starts the API gateway
func (g *Gateway) Start() error {
	log.Printf("Starting API gateway on %s", g.server.Addr)
	return g.server.ListenAndServe()
}

// Stop stops the API gateway
func (g *Gateway) Stop(ctx context.Context) error {
	log.Printf("Stopping API gateway")
	return g.server.Shutdown(ctx)
}

// AddMiddleware registers middleware on the router. It takes effect
// for requests served after registration.
func (g *Gateway) AddMiddleware(middleware Middleware) {
	g.router.Use(mux.MiddlewareFunc(middleware))
}

// Response types

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *APIMeta    `json:"meta,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type APIMeta struct {
	Total   int  `json:"total,omitempty"`
	Limit   int  `json:"limit,omitempty"`
	HasMore bool `json:"has_more,omitempty"`
}

// Helper functions

func writeJSONResponse(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message, details string) {
	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
	writeJSONResponse(w, status, response)
}

func writeSuccessResponse(w http.ResponseWriter, data interface{}, meta *APIMeta) {
	response := APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	}
	writeJSONResponse(w, http.StatusOK, response)
}

func parseRequestBody(r *http.Request, target interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// writeDomainError maps sentinel errors onto HTTP status codes
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		writeErrorResponse(w, http.StatusBadRequest, "VALIDATION_FAILED", "Request failed validation", err.Error())
	case errors.Is(err, models.ErrConflict):
		writeErrorResponse(w, http.StatusConflict, "CONFLICT", "Request conflicts with current state", err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", err.Error())
	default:
		writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", err.Error())
	}
}

// Middleware implementations

func (g *Gateway) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		g.updateMetrics(r, wrapped.statusCode, duration)
	})
}

func (g *Gateway) updateMetrics(r *http.Request, statusCode int, duration time.Duration) {
	g.metrics.mu.Lock()
	defer g.metrics.mu.Unlock()

	g.metrics.RequestsTotal++
	g.metrics.RequestsByPath[r.URL.Path]++
	g.metrics.RequestsByMethod[r.Method]++
	g.metrics.RequestsByStatus[statusCode]++
	g.metrics.LastRequest = time.Now()

	if statusCode >= http.StatusInternalServerError {
		g.metrics.RequestsFailed++
	}

	if g.metrics.AverageLatency == 0 {
		g.metrics.AverageLatency = duration
	} else {
		g.metrics.AverageLatency = (g.metrics.AverageLatency + duration) / 2
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
