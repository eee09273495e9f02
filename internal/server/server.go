// Package server provides the HTTP API for the portfolio simulator.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"invertrack-go/internal/auth"
	"invertrack-go/internal/config"
	"invertrack-go/internal/ledger"
	"invertrack-go/internal/market"
	"invertrack-go/internal/report"
	"invertrack-go/internal/storage"
	"invertrack-go/internal/trading"
)

// Server wires the API handlers to the domain services.
type Server struct {
	router *chi.Mux
	server *http.Server
	logger *zap.Logger

	cfg      *config.Config
	authSvc  *auth.Service
	market   *market.Service
	store    *storage.Store
	executor *trading.Executor
	valuator *ledger.Valuator
	reports  *report.Generator

	sessions *sessionRegistry
}

// New creates the HTTP server.
func New(
	logger *zap.Logger,
	cfg *config.Config,
	authSvc *auth.Service,
	marketSvc *market.Service,
	store *storage.Store,
	executor *trading.Executor,
	valuator *ledger.Valuator,
	reports *report.Generator,
) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		logger:   logger.Named("server"),
		cfg:      cfg,
		authSvc:  authSvc,
		market:   marketSvc,
		store:    store,
		executor: executor,
		valuator: valuator,
		reports:  reports,
		sessions: newSessionRegistry(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/confirm", s.handleConfirm)
			r.Post("/login", s.handleLogin)
			r.Post("/recover", s.handleRecover)
			r.Post("/reset", s.handleReset)
		})

		// Everything below requires a session token.
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/logout", s.handleLogout)

			r.Get("/symbols", s.handleSymbols)
			r.Get("/price/{symbol}", s.handlePrice)
			r.Get("/history/{symbol}", s.handleHistory)
			r.Get("/chart/{symbol}", s.handleChart)
			r.Get("/chart/{symbol}/stream", s.handleChartStream)

			r.Get("/portfolio", s.handlePortfolio)
			r.Post("/trade", s.handleTrade)

			r.Get("/report", s.handleReport)
			r.Post("/report", s.handleWriteReport)
		})
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.Int("port", s.cfg.Server.Port))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
