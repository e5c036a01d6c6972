// HTTP monitor
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package monitor serves a read-only HTTP view of the shepherd: a status
// document, Prometheus metrics, a health check and a websocket that
// mirrors every protocol row.
package monitor

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"stdio-shepherd/pkg/log"
	"stdio-shepherd/pkg/metrics"
	"stdio-shepherd/pkg/printprocess"
)

// Status is the document served at /status.
type Status struct {
	Connection string              `json:"connection"`
	Device     string              `json:"device,omitempty"`
	Position   *float64            `json:"position,omitempty"`
	Print      printprocess.Status `json:"print"`
	Uptime     float64             `json:"uptime_seconds"`
}

// Config configures a Server.
type Config struct {
	Addr string
	// Username and Password enable basic auth when both are set
	Username string
	Password string

	// Status builds the /status document
	Status  func() Status
	Metrics *metrics.ShepherdMetrics
	Logger  *log.Logger
}

// Server is the monitor HTTP server.
type Server struct {
	cfg       Config
	log       *log.Logger
	engine    *gin.Engine
	hub       *Hub
	upgrader  websocket.Upgrader
	startTime time.Time

	httpServer *http.Server
	listener   net.Listener
}

// New builds the router. Nothing listens until Start.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.GetLogger("monitor")
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:       cfg,
		log:       logger,
		hub:       NewHub(logger),
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	if cfg.Username != "" && cfg.Password != "" {
		router.Use(gin.BasicAuth(gin.Accounts{cfg.Username: cfg.Password}))
	}

	router.GET("/health", s.handleHealth)
	router.GET("/status", s.handleStatus)
	router.GET("/metrics", s.handleMetrics)
	router.GET("/events", s.handleEvents)

	s.engine = router
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Mirror forwards a protocol row to event clients.
func (s *Server) Mirror(fields []string) {
	s.hub.Broadcast(fields)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithField("addr", ln.Addr().String()).Info("monitor listening")

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("monitor stopped")
		}
	}()
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes event clients and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("http request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	var st Status
	if s.cfg.Status != nil {
		st = s.cfg.Status()
	}
	st.Uptime = time.Since(s.startTime).Seconds()
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(s.cfg.Metrics.Gather()))
}

func (s *Server) handleEvents(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	s.hub.serve(conn)
}
