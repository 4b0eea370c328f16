// Package httpserver exposes the ingestion, retrieval and orchestration
// pipeline over HTTP, grounded on routes.go's echo.Group-based route
// registration and the internal/httpapi "mux per concern" layering.
package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"agenttic-rag/internal/collection"
	"agenttic-rag/internal/config"
	"agenttic-rag/internal/discover"
	"agenttic-rag/internal/ingest"
	"agenttic-rag/internal/logging"
	"agenttic-rag/internal/metastore"
	"agenttic-rag/internal/orchestrate"
	"agenttic-rag/internal/retrieve"
	"agenttic-rag/internal/tasktracker"
	"agenttic-rag/internal/vectorstore"
)

// Server wires every pipeline component behind the HTTP surface.
type Server struct {
	Echo *echo.Echo

	Ingest *ingest.Pipeline
	Retrieve *retrieve.Pipeline
	Orchestrate *orchestrate.Orchestrator
	Discover *discover.Discoverer
	Store metastore.Store
	Vectors *vectorstore.Store
	Tasks *tasktracker.Tracker
	Config config.Config

	webhookLimiter *rate.Limiter
}

// New builds the Server and registers every route. cfg.Webhook.RatePerSec/
// Burst bound the generic /webhook/send relay; the discovery-callback path
// is not rate-limited.
func New(
	ingestPipeline *ingest.Pipeline,
	retrievePipeline *retrieve.Pipeline,
	orchestrator *orchestrate.Orchestrator,
	discoverer *discover.Discoverer,
	store metastore.Store,
	vectors *vectorstore.Store,
	tasks *tasktracker.Tracker,
	cfg config.Config,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(echoLoggerMiddleware())

	ratePerSec := cfg.Webhook.RatePerSec
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	burst := cfg.Webhook.Burst
	if burst <= 0 {
		burst = 10
	}

	s := &Server{
		Echo: e,
		Ingest: ingestPipeline,
		Retrieve: retrievePipeline,
		Orchestrate: orchestrator,
		Discover: discoverer,
		Store: store,
		Vectors: vectors,
		Tasks: tasks,
		Config: cfg,
		webhookLimiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.Echo.POST("/agenttic-ingest", s.handleAgenticIngest)
	s.Echo.POST("/ingest", s.handleStreamIngest)
	s.Echo.POST("/query", s.handleQuery)

	s.Echo.GET("/collections", s.handleListCollections)
	s.Echo.GET("/collections/:id", s.handleGetCollection)
	s.Echo.POST("/collections/query", s.handleCollectionsQuery)
	s.Echo.POST("/collections/query-stream", s.handleCollectionsQueryStream)
	s.Echo.DELETE("/collections/:id", s.handleDeleteCollection)

	s.Echo.DELETE("/api/documents/:id", s.handleDeleteDocument)
	s.Echo.POST("/api/session/cleanup", s.handleSessionCleanup)

	s.Echo.POST("/webhook/send", s.handleWebhookSend)

	s.Echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})
}

// echoLoggerMiddleware logs one structured entry per request through the
// process-wide logrus logger instead of echo's own text logger, so HTTP
// access logs share the same JSON sink as every other component.
func echoLoggerMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			req := c.Request()
			entry := logging.Log.WithField("method", req.Method).
				WithField("path", req.URL.Path).
				WithField("status", c.Response().Status).
				WithField("latency_ms", time.Since(start).Milliseconds()).
				WithField("request_id", c.Response().Header().Get(echo.HeaderXRequestID))
			if err != nil {
				entry.WithError(err).Warn("request handled with error")
			} else {
				entry.Info("request handled")
			}
			return err
		}
	}
}

func resolveCollectionID(parentURL string) string { return collection.ID(parentURL) }
