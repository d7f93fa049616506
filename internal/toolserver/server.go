package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mainbong/copilot_kit/internal/logger"
	"github.com/mainbong/copilot_kit/internal/sse"
	"github.com/mainbong/copilot_kit/internal/tools"
)

// Server exposes the local runners of a dispatcher over HTTP so other
// hosts can call them as remote tools
type Server struct {
	router     *gin.Engine
	dispatcher *tools.Dispatcher
	addr       string
}

// NewServer creates a server for the runners registered on dispatcher
func NewServer(dispatcher *tools.Dispatcher, addr string, debug bool) *Server {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware())

	s := &Server{router: router, dispatcher: dispatcher, addr: addr}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/tools", s.handleList)
	s.router.POST("/tools/:id", s.handleInvoke)
	s.router.POST("/tools/:id/stream", s.handleStream)
}

// Handler returns the HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	logger.Info("starting tool server on %s", s.addr)

	srv := &http.Server{
		Addr:        s.addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			listenErr <- err
		}
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("tool server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down tool server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": s.dispatcher.Runners()})
}

// bindInvocation reads the request body. An empty body means no parameters.
func bindInvocation(c *gin.Context) (tools.InvocationRequest, bool) {
	var req tools.InvocationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, false
	}
	return req, true
}

func statusFor(err error) int {
	if errors.Is(err, tools.ErrRunnerNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) handleInvoke(c *gin.Context) {
	req, ok := bindInvocation(c)
	if !ok {
		return
	}
	id := c.Param("id")

	value, err := s.dispatcher.RunLocal(c.Request.Context(), id, req.Parameters)
	if err != nil {
		logger.Warn("tool %s failed: %v", id, err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, value)
}

// handleStream runs the tool and reports progress as delta events followed
// by one final or error event
func (s *Server) handleStream(c *gin.Context) {
	req, ok := bindInvocation(c)
	if !ok {
		return
	}
	id := c.Param("id")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	write := func(name string, ev tools.StreamEvent) {
		c.SSEvent(name, ev)
		c.Writer.Flush()
	}

	ctx := tools.WithProgress(c.Request.Context(), func(delta string) {
		write("delta", tools.StreamEvent{Delta: delta})
	})
	value, err := s.dispatcher.RunLocal(ctx, id, req.Parameters)
	if err != nil {
		logger.Warn("tool %s failed: %v", id, err)
		write("error", tools.StreamEvent{Error: err.Error()})
	} else {
		final, merr := json.Marshal(value)
		if merr != nil {
			write("error", tools.StreamEvent{Error: merr.Error()})
		} else {
			write("final", tools.StreamEvent{Final: final})
		}
	}
	c.SSEvent("done", sse.DoneToken)
	c.Writer.Flush()
}

func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("%s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
