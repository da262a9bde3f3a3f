// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package backdoor

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ffutop/psu-emulator/internal/metrics"
	"github.com/ffutop/psu-emulator/internal/psu"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// Server exposes a Surface over HTTP/JSON.
type Server struct {
	Address string

	surface *Surface
	router  *gin.Engine
	started time.Time

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

type callRequest struct {
	Args []any `json:"args"`
}

type valueRequest struct {
	Value *bool `json:"value"`
}

// NewServer builds the router. corsOrigins may be empty.
func NewServer(address string, surface *Surface, corsOrigins []string) *Server {
	metrics.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger())
	r.Use(requestMetrics())
	if len(corsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: corsOrigins,
			AllowMethods: []string{"GET", "POST", "PUT"},
			AllowHeaders: []string{"Origin", "Content-Type", RequestIDHeader},
			MaxAge:       12 * time.Hour,
		}))
	}

	s := &Server{
		Address: address,
		surface: surface,
		router:  r,
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(s.started).String(),
			"connected": s.surface.Connected(),
			"supplies":  s.surface.Addresses(),
		})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	bd := s.router.Group("/backdoor")
	bd.GET("/functions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"functions": Functions()})
	})
	bd.POST("/functions/:name", s.handleCall)
	bd.GET("/properties/connected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"value": s.surface.Connected()})
	})
	bd.PUT("/properties/connected", s.handleSetConnected)
	bd.POST("/reinitialize", func(c *gin.Context) {
		s.surface.Reinitialize()
		metrics.RecordBackdoorCall("reinitialize", true)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	bd.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, stateJSON(s.surface.Snapshot()))
	})
}

func (s *Server) handleCall(c *gin.Context) {
	var req callRequest
	// An empty body is a call with no arguments.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Args == nil {
		req.Args = []any{}
	}

	result, err := s.surface.Call(c.Param("name"), req.Args)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (s *Server) handleSetConnected(c *gin.Context) {
	var req valueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Value == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing value"})
		return
	}
	s.surface.SetConnected(*req.Value)
	metrics.RecordBackdoorCall("set_connected", true)
	c.JSON(http.StatusOK, gin.H{"value": *req.Value})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, psu.ErrUnknownAddress):
		return http.StatusNotFound
	case errors.Is(err, ErrUnknownFunction),
		errors.Is(err, ErrUnknownProperty),
		errors.Is(err, ErrInvalidValue),
		errors.Is(err, ErrArguments),
		errors.Is(err, psu.ErrUnknownInterlock):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Start listens on Address and serves until ctx is done or Close is called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Address)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}

	s.mu.Lock()
	s.listener = ln
	s.srv = srv
	s.mu.Unlock()

	slog.Info("Backdoor listening", "address", ln.Addr().String())

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Backdoor server stopped", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Close()
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close shuts the HTTP server down.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelDebug
		if status >= 500 {
			level = slog.LevelError
		} else if status >= 400 {
			level = slog.LevelWarn
		}
		slog.Log(c.Request.Context(), level, "Backdoor request",
			"method", c.Request.Method,
			"path", routePath(c),
			"status", status,
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString("request_id"),
		)
	}
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.RecordHTTPRequest(c.Request.Method, routePath(c), c.Writer.Status(), time.Since(start))
	}
}

func routePath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}
