// Package api exposes the triage engine over HTTP: the analyze endpoint,
// patient case access, the specialist review workflow and a WebSocket feed
// of case lifecycle events.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sympfindx-server/internal/casestore"
	"github.com/sympfindx-server/internal/domain"
	"github.com/sympfindx-server/internal/middleware"
	"github.com/sympfindx-server/internal/service"
)

// Server represents the HTTP server.
type Server struct {
	logger *logrus.Logger
	config domain.ServerConfig
	triage *service.TriageService
	review *service.ReviewService
	store  casestore.Store
	hub    *Hub
	router *gin.Engine
	server *http.Server
}

// NewServer creates a new HTTP server instance.
func NewServer(
	logger *logrus.Logger,
	config domain.ServerConfig,
	triage *service.TriageService,
	review *service.ReviewService,
	store casestore.Store,
	hub *Hub,
) *Server {
	if logger.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.AuditLogger())

	server := &Server{
		logger: logger,
		config: config,
		triage: triage,
		review: review,
		store:  store,
		hub:    hub,
		router: router,
	}

	server.setupRoutes()
	return server
}

// Router exposes the configured handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// requestTimeout bounds every non-WebSocket API request.
const requestTimeout = 30 * time.Second

// setupRoutes configures the API routes.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.RequestTimeout(requestTimeout))
	v1.Use(middleware.RequireActor())
	{
		v1.POST("/analyze", s.handleAnalyze)
		v1.GET("/cases", s.handleHistory)
		v1.GET("/cases/:id", s.handleGetCase)
		v1.GET("/ws", s.hub.ServeWS)

		specialist := v1.Group("/specialist")
		{
			// Admins may observe the queue; claiming and reviewing stay
			// specialist-only.
			observers := middleware.RequireRole(domain.RoleSpecialist, domain.RoleAdmin)
			reviewers := middleware.RequireRole(domain.RoleSpecialist)

			specialist.GET("/pending-cases", observers, s.handlePendingCases)
			specialist.POST("/cases/:id/claim", reviewers, s.handleClaimCase)
			specialist.POST("/review-case", reviewers, s.handleSubmitReview)
			specialist.GET("/reviewed-cases", observers, s.handleReviewedCases)
			specialist.GET("/stats", observers, s.handleStats)
		}
	}
}
