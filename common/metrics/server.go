package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/scusemua/livy-notebook/common/utils"
)

var (
	ErrServerAlreadyRunning = errors.New("the prometheus server is already running")
	ErrServerNotRunning     = errors.New("the prometheus server is not running")
)

// PrometheusServer serves the metrics of a prometheus.Gatherer over HTTP at "/metrics".
type PrometheusServer struct {
	log logger.Logger

	prometheusHandler http.Handler
	engine            *gin.Engine
	httpServer        *http.Server

	port int
	mu   sync.Mutex

	// serving indicates whether the server has been started and is serving requests.
	serving bool
}

// NewPrometheusServer creates a new PrometheusServer. If gatherer is nil, prometheus.DefaultGatherer is used.
func NewPrometheusServer(port int, gatherer prometheus.Gatherer) *PrometheusServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	server := &PrometheusServer{
		port:              port,
		prometheusHandler: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	}
	config.InitLogger(&server.log, server)

	server.engine = gin.New()
	server.engine.Use(gin.Recovery())
	server.engine.GET("/metrics", server.HandleRequest)

	return server
}

// Handler returns the http.Handler that serves the metrics endpoint.
func (s *PrometheusServer) Handler() http.Handler {
	return s.engine
}

// IsRunning returns true if the server has been started and is serving metrics.
func (s *PrometheusServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.serving
}

// Start begins serving metrics on the configured port. If the port is not positive, Start is a no-op.
func (s *PrometheusServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.serving {
		return ErrServerAlreadyRunning
	}

	if s.port <= 0 {
		s.log.Debug("Prometheus port is set to %d. Not serving HTTP server.", s.port)
		return nil
	}

	address := fmt.Sprintf("0.0.0.0:%d", s.port)
	s.httpServer = &http.Server{
		Addr:    address,
		Handler: s.engine,
	}
	s.serving = true

	go func() {
		s.log.Debug("Serving Prometheus metrics at %s", address)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(utils.RedStyle.Render("HTTP server failed to listen on '%s'. Error: %v"), address, err)
		}
	}()

	return nil
}

// Stop shuts down the HTTP server.
func (s *PrometheusServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.serving {
		return ErrServerNotRunning
	}

	s.serving = false
	if err := s.httpServer.Shutdown(context.Background()); err != nil {
		s.log.Error("Failed to cleanly shutdown the HTTP server: %v", err)
		return err
	}

	return nil
}

// HandleRequest handles Prometheus HTTP requests (when Prometheus is scraping for metrics).
func (s *PrometheusServer) HandleRequest(c *gin.Context) {
	s.prometheusHandler.ServeHTTP(c.Writer, c.Request)
}
