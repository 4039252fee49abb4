// Package server exposes the chat API over HTTP.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalworks/siterag/config"
	"github.com/signalworks/siterag/internal/ingest"
	"github.com/signalworks/siterag/internal/rag"
	"github.com/signalworks/siterag/internal/vectorstore"
	"github.com/signalworks/siterag/provider"
)

// ChatEngine is the retrieval surface the API depends on.
type ChatEngine interface {
	ProcessQuery(ctx context.Context, sessionID, query string) (rag.Response, error)
	Search(ctx context.Context, query string, topK int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error)
	SuggestedQuestions(ctx context.Context) ([]string, error)
	ClearHistory(ctx context.Context, sessionID string) error
	History(ctx context.Context, sessionID string) ([]provider.Message, error)
}

// Ingestor re-runs the ingestion pipeline on demand.
type Ingestor interface {
	Run(ctx context.Context) (ingest.Result, error)
}

// Server wires the HTTP surface to the engine and the index.
type Server struct {
	engine   ChatEngine
	store    vectorstore.Store
	ingestor Ingestor
	cfg      config.ServerConfig
	logger   *log.Logger

	ingesting atomic.Bool
}

func New(engine ChatEngine, store vectorstore.Store, ingestor Ingestor, cfg config.ServerConfig, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	return &Server{engine: engine, store: store, ingestor: ingestor, cfg: cfg, logger: logger}
}

// Echo builds the configured echo instance with all routes registered.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		s.logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.POST("/chat", s.handleChat)
	api.GET("/status", s.handleStatus)
	api.GET("/suggestions", s.handleSuggestions)
	api.POST("/clear-history", s.handleClearHistory)
	api.GET("/health", s.handleHealth)

	admin := api.Group("/admin")
	admin.Use(adminAuth([]byte(s.cfg.AdminJWTSecret)))
	admin.POST("/ingest", s.handleIngest)
	admin.POST("/reset", s.handleReset)
	admin.GET("/search", s.handleSearch)

	return e
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	e := s.Echo()
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(s.cfg.Address)
	}()
	s.logger.Printf("listening on %s", s.cfg.Address)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Printf("shutting down")
		return e.Shutdown(context.Background())
	}
}
