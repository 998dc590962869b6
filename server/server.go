// Package server exposes the console's HTTP surface: the dashboard's
// read API, the live WebSocket feed, an upstream health proxy, and
// Prometheus metrics.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/timephone/console/protocol"
	"github.com/timephone/console/session"
	"github.com/timephone/console/stages"
)

// Config holds HTTP server configuration.
type Config struct {
	Aggregator *session.Aggregator
	Hub        *stages.Hub

	// Upstream is the ai-server client used to proxy health checks.
	// May be nil, in which case /api/health reports the console as
	// running without upstream detail.
	Upstream *protocol.Client

	AllowedOrigins []string
	Logger         zerolog.Logger
}

// Server is the console's HTTP front.
type Server struct {
	config Config
	log    zerolog.Logger
	router *gin.Engine
}

// New builds a server with all routes registered.
func New(config Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		config: config,
		log:    config.Logger.With().Str("component", "http").Logger(),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.log))

	origins := config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"*"},
		ExposeHeaders: []string{"Content-Length"},
	}))

	api := router.Group("/api")
	{
		api.GET("/health", s.getHealth)
		api.GET("/calls", s.listCalls)
		api.GET("/calls/:id", s.getCall)
	}

	if config.Hub != nil {
		router.GET("/ws", gin.WrapF(config.Hub.ServeWS))
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router = router
	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// healthResponse is the console's own health view, with the upstream
// ai-server status folded in when reachable.
type healthResponse struct {
	Status   string           `json:"status"`
	Upstream *protocol.Health `json:"upstream,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func (s *Server) getHealth(c *gin.Context) {
	resp := healthResponse{Status: "ok"}

	if s.config.Upstream != nil {
		h, err := s.config.Upstream.Health(c.Request.Context())
		if err != nil {
			s.log.Warn().Err(err).Msg("upstream health fetch failed")
			resp.Status = "degraded"
			resp.Error = err.Error()
			c.JSON(http.StatusOK, resp)
			return
		}
		resp.Upstream = h
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) listCalls(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"calls": s.config.Aggregator.Snapshots()})
}

func (s *Server) getCall(c *gin.Context) {
	id := c.Param("id")
	snap, ok := s.config.Aggregator.Snapshot(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown call"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// requestLogger logs each request with method, path, status and latency.
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
