// Package server exposes orchestration sessions, health checks and metrics over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speedrun-hq/payflow/pkg/circuitbreaker"
	"github.com/speedrun-hq/payflow/pkg/logger"
	"github.com/speedrun-hq/payflow/pkg/models"
	"github.com/speedrun-hq/payflow/pkg/orchestrator"
	"github.com/speedrun-hq/payflow/pkg/txerror"
)

const shutdownTimeout = 10 * time.Second

// Sessions is the orchestrator surface the server drives
type Sessions interface {
	Start(ctx context.Context, intent models.PaymentIntent) (*orchestrator.Session, error)
	Get(id string) (*orchestrator.Session, error)
	List() []*orchestrator.Session
	Retry(ctx context.Context, id string) (*orchestrator.Session, error)
	Dismiss(id string) error
}

// ReadyFunc reports whether the ledger is reachable
type ReadyFunc func(ctx context.Context) error

// Config holds the server settings
type Config struct {
	Port           string
	APIKey         string
	ChainID        int
	FactoryAddress common.Address
}

// Server is the HTTP front of the orchestrator
type Server struct {
	cfg      Config
	sessions Sessions
	breaker  *circuitbreaker.CircuitBreaker
	ready    ReadyFunc
	logger   logger.Logger
	router   *gin.Engine

	// sessions outlive the request that started them
	baseCtx context.Context
}

// New creates a new server. breaker and ready may be nil.
func New(ctx context.Context, cfg Config, sessions Sessions, breaker *circuitbreaker.CircuitBreaker, ready ReadyFunc, logger logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		breaker:  breaker,
		ready:    ready,
		logger:   logger,
		router:   gin.New(),
		baseCtx:  ctx,
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/ready", s.handleReady)
	r.GET("/status", s.handleStatus)

	auth := r.Group("/", s.apiKeyAuth())
	auth.GET("/metrics", gin.WrapH(promhttp.Handler()))
	auth.POST("/circuit/reset", s.handleCircuitReset)

	api := r.Group("/api/v1", s.apiKeyAuth())
	api.POST("/sessions", s.handleStart)
	api.GET("/sessions", s.handleList)
	api.GET("/sessions/:id", s.handleGet)
	api.GET("/sessions/:id/events", s.handleEvents)
	api.POST("/sessions/:id/retry", s.handleRetry)
	api.DELETE("/sessions/:id", s.handleDismiss)
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting API and metrics server on port %s", s.cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// apiKeyAuth checks the bearer API key. No key configured means no auth.
func (s *Server) apiKeyAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.APIKey == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing Authorization header"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid Authorization header format"})
			return
		}

		if parts[1] != s.cfg.APIKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleReady(c *gin.Context) {
	if s.ready != nil {
		if err := s.ready(c.Request.Context()); err != nil {
			c.String(http.StatusServiceUnavailable, "Chain %d not reachable: %v", s.cfg.ChainID, err)
			return
		}
	}
	c.String(http.StatusOK, "Ready")
}

func (s *Server) handleStatus(c *gin.Context) {
	counts := make(map[orchestrator.Phase]int)
	for _, session := range s.sessions.List() {
		counts[session.Phase()]++
	}

	status := gin.H{
		"chain_id":        s.cfg.ChainID,
		"factory_address": s.cfg.FactoryAddress.Hex(),
		"sessions":        counts,
	}
	if s.breaker != nil {
		status["store_circuit"] = s.breaker.State()
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleCircuitReset(c *gin.Context) {
	if s.breaker == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no circuit breaker configured"})
		return
	}
	s.breaker.Reset()
	c.JSON(http.StatusOK, gin.H{"message": "store circuit breaker reset"})
}

func (s *Server) handleStart(c *gin.Context) {
	var intent models.PaymentIntent
	if err := c.ShouldBindJSON(&intent); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": string(txerror.InvalidIntent), "message": err.Error()})
		return
	}

	session, err := s.sessions.Start(s.baseCtx, intent)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, session.Snapshot())
}

func (s *Server) handleList(c *gin.Context) {
	sessions := s.sessions.List()
	out := make([]orchestrator.Status, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, session.Snapshot())
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGet(c *gin.Context) {
	session, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

// handleEvents streams status updates as server-sent events until the session ends
func (s *Server) handleEvents(c *gin.Context) {
	session, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	updates := session.Subscribe()
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	for {
		select {
		case status, ok := <-updates:
			if !ok {
				return
			}
			c.SSEvent("status", status)
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (s *Server) handleRetry(c *gin.Context) {
	session, err := s.sessions.Retry(s.baseCtx, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, session.Snapshot())
}

func (s *Server) handleDismiss(c *gin.Context) {
	if err := s.sessions.Dismiss(c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrSessionActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case txerror.KindOf(err) == txerror.InvalidIntent:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(txerror.InvalidIntent),
			"message": txerror.Classify(err).Raw,
		})
	default:
		s.logger.Error("Request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	}
}
