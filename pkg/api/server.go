// Package api exposes the admin HTTP surface: liveness, per-filter
// counters, and a Prometheus-scrapeable metrics endpoint. Grounded in the
// upstream admin server's echo wiring, trimmed of the rule-management
// routes that no longer apply to this domain.
package api

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cesnet/ipspoof-detector/pkg/config"
	"github.com/cesnet/ipspoof-detector/pkg/detector"
	"github.com/cesnet/ipspoof-detector/pkg/pipeline"
)

// Response is the common envelope for JSON admin responses.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Server is the admin HTTP server.
type Server struct {
	echo *echo.Echo
	addr string
}

// NewServer builds the admin server and registers its routes against the
// running detector and pipeline.
func NewServer(cfg *config.Config, det *detector.Detector, pl pipeline.Pipeline) *Server {
	e := echo.New()
	e.HideBanner = true

	addr := fmt.Sprintf("%s:%s", cfg.API.Host, cfg.API.Port)
	s := &Server{echo: e, addr: addr}

	e.GET("/healthz", s.handleHealth)
	e.GET("/stats", func(c echo.Context) error { return s.handleStats(c, det, pl) })
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(det.MetricsRegistry(), promhttp.HandlerOpts{})))

	return s
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(200, Response{Code: 200, Message: "ok"})
}

func (s *Server) handleStats(c echo.Context, det *detector.Detector, pl pipeline.Pipeline) error {
	return c.JSON(200, Response{
		Code:    200,
		Message: "ok",
		Data: map[string]interface{}{
			"detector": det.MetricsSnapshot(),
			"pipeline": pl.Status(),
		},
	})
}

// Start runs the admin server, blocking until it is shut down.
func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

// Stop gracefully shuts the admin server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
