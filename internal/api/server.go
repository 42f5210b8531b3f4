// Package api assembles the gin routers for the controller and the print
// server and runs them.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/diaryprint/internal/api/handlers"
	"github.com/orrn/diaryprint/internal/api/middleware"
	"github.com/orrn/diaryprint/internal/auth"
	"github.com/orrn/diaryprint/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			// page images make request bodies large
			ReadTimeout: 2 * time.Minute,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

func newEngine(logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))
	r.GET("/healthz", handlers.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	return r
}

// NewControllerRouter serves the frontend-facing print API and the
// completion webhook.
func NewControllerRouter(service handlers.PrintService, serviceSecret string, logger *slog.Logger) *gin.Engine {
	r := newEngine(logger)
	h := handlers.NewPrintHandler(service, logger)
	handlers.RegisterPrintRoutes(r.Group("/api"), h,
		middleware.RequireServiceToken(serviceSecret, auth.IssuerPrintServer))
	return r
}

func NewPrintServerRouter(queue handlers.PrintQueue, printer handlers.PrinterChecker, serviceSecret string, logger *slog.Logger) *gin.Engine {
	r := newEngine(logger)
	h := handlers.NewPrintServerHandler(queue, printer, logger)
	handlers.RegisterPrintServerRoutes(r.Group("/api"), h,
		middleware.RequireServiceToken(serviceSecret, auth.IssuerController))
	return r
}
