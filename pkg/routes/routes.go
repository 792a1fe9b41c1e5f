// Package routes assembles the HTTP surface: review queue, merges, the merge
// map, health and metrics.
package routes

import (
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/thistle/pkg/middleware"
	"github.com/Ramsey-B/thistle/pkg/routes/health"
	"github.com/Ramsey-B/thistle/pkg/routes/merge"
	"github.com/Ramsey-B/thistle/pkg/routes/mergemap"
	"github.com/Ramsey-B/thistle/pkg/routes/review"
)

type ServerConfig struct {
	ServiceName  string
	AllowOrigins []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type Handlers struct {
	Health   *health.Checker
	Review   *review.Handler
	Merge    *merge.Handler
	MergeMap *mergemap.Handler
}

// NewServer builds the echo instance with the middleware chain and every
// route group registered.
func NewServer(cfg ServerConfig, logger ectologger.Logger, h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout
	e.Server.IdleTimeout = cfg.IdleTimeout
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(cfg.ServiceName))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: cfg.AllowOrigins}))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	h.Health.RegisterRoutes(e)

	api := e.Group("/api/v1")
	h.Review.Register(api.Group("/review"))
	h.Merge.Register(api.Group("/merges"))
	h.MergeMap.Register(api.Group("/merge-map"))

	return e
}
