package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/mirror/pkg/coordinator"
	"github.com/cuemby/mirror/pkg/events"
	"github.com/cuemby/mirror/pkg/gateway"
	"github.com/cuemby/mirror/pkg/journal"
	"github.com/cuemby/mirror/pkg/log"
	"github.com/cuemby/mirror/pkg/metrics"
	"github.com/cuemby/mirror/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Response is the uniform envelope for control endpoints.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Stats   interface{} `json:"stats,omitempty"`
}

// Server exposes the engine over HTTP: stats and health reads, run
// triggers, the live event stream, and Prometheus metrics.
type Server struct {
	coord   *coordinator.Coordinator
	gw      *gateway.Gateways
	broker  *events.Broker
	journal *journal.Journal
	engine  *gin.Engine
	srv     *http.Server
	logger  zerolog.Logger
}

// New creates the server. journal may be nil, disabling event history.
func New(coord *coordinator.Coordinator, gw *gateway.Gateways, broker *events.Broker, jnl *journal.Journal) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		coord:   coord,
		gw:      gw,
		broker:  broker,
		journal: jnl,
		engine:  gin.New(),
		logger:  log.WithComponent("api"),
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleLiveness)
	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := s.engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/collections", s.handleCollections)
	api.GET("/collections/:name/schema", s.handleSchema)
	api.POST("/sync", s.handleSync)
	api.POST("/sync/full", s.handleSyncFull)
	api.POST("/sync/auth", s.handleSyncAuth)
	api.POST("/recover", s.handleRecover)
	api.POST("/reconcile", s.handleReconcile)
	api.POST("/stats/reset", s.handleStatsReset)
	api.GET("/events", s.handleEvents)
	api.GET("/events/history", s.handleEventHistory)
}

// Handler exposes the router, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves on the given port until Shutdown.
func (s *Server) Start(port int) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info().Int("port", port).Msg("api listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleHealth(c *gin.Context) {
	stats := s.coord.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":    stats.Status,
		"endpoints": stats.Health,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.coord.Stats())
}

func (s *Server) handleCollections(c *gin.Context) {
	collections, err := s.gw.PrimaryDB.ListCollections(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, Response{Success: false, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"collections": collections})
}

func (s *Server) handleSchema(c *gin.Context) {
	name := c.Param("name")
	schemas := s.coord.Stats().Schemas
	keys, ok := schemas[name]
	if !ok {
		c.JSON(http.StatusNotFound, Response{Success: false, Message: fmt.Sprintf("no schema observed for collection %q", name)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"collection": name, "keys": keys})
}

// trigger kicks off a run in the background, answering immediately. The
// coordinator serializes; a concurrent request gets a conflict.
func (s *Server) trigger(c *gin.Context, name string, run func(ctx context.Context) (types.RunReport, error)) {
	if s.coord.Busy() {
		c.JSON(http.StatusConflict, Response{Success: false, Message: "a run is already in progress"})
		return
	}
	go func() {
		if _, err := run(context.Background()); err != nil && !errors.Is(err, coordinator.ErrBusy) {
			s.logger.Error().Err(err).Str("kind", name).Msg("triggered run failed")
		}
	}()
	c.JSON(http.StatusAccepted, Response{Success: true, Message: name + " started", Stats: s.coord.Stats()})
}

func (s *Server) handleSync(c *gin.Context) {
	if c.Query("full") == "true" {
		s.handleSyncFull(c)
		return
	}
	s.trigger(c, "incremental sync", s.coord.RunOnce)
}

func (s *Server) handleSyncFull(c *gin.Context) {
	s.trigger(c, "full sync", s.coord.ForceFull)
}

func (s *Server) handleSyncAuth(c *gin.Context) {
	s.trigger(c, "auth sync", s.coord.ForceAuth)
}

func (s *Server) handleRecover(c *gin.Context) {
	s.trigger(c, "recovery", s.coord.Recover)
}

func (s *Server) handleReconcile(c *gin.Context) {
	if s.coord.Busy() {
		c.JSON(http.StatusConflict, Response{Success: false, Message: "a run is already in progress"})
		return
	}
	report, err := s.coord.Reconcile(c.Request.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, coordinator.ErrBusy) {
			status = http.StatusConflict
		}
		c.JSON(status, Response{Success: false, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}

func (s *Server) handleStatsReset(c *gin.Context) {
	if err := s.coord.ResetStats(); err != nil {
		c.JSON(http.StatusInternalServerError, Response{Success: false, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "stats reset", Stats: s.coord.Stats()})
}

func (s *Server) handleEventHistory(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Message: "event history not enabled"})
		return
	}
	limit := 100
	if v := c.Query("limit"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &limit); err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, Response{Success: false, Message: "limit must be a positive integer"})
			return
		}
	}
	history, err := s.journal.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{Success: false, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": history})
}
