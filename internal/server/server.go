// Package server exposes the research pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mohammad-safakhou/scholar/config"
	"github.com/mohammad-safakhou/scholar/internal/archive"
	"github.com/mohammad-safakhou/scholar/internal/llm"
	"github.com/mohammad-safakhou/scholar/internal/research"
	"github.com/mohammad-safakhou/scholar/internal/sources"
	"github.com/mohammad-safakhou/scholar/internal/store"
	"github.com/mohammad-safakhou/scholar/internal/telemetry"
)

// Run wires all dependencies from configuration and serves until the
// listener fails.
func Run(cfg *config.Config) error {
	e := newEcho()

	ctx := context.Background()
	st, err := store.FromConfig(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}

	tele := telemetry.NewTelemetry(cfg.Telemetry)
	if cfg.Telemetry.Enabled {
		e.GET("/metrics", echo.WrapHandler(tele.Handler()))
	}

	evidenceSources := sources.FromConfig(cfg.Sources)
	var indexer research.ReportIndexer
	if cfg.Sources.Archive.Enabled {
		arch, err := archive.Open(cfg.Sources.Archive.Path)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer arch.Close()
		evidenceSources = append(evidenceSources, arch)
		indexer = arch
	}
	gatherer := research.NewAggregator(evidenceSources, cfg.Research.ResultsPerSource, cfg.Research.GatherTimeout, tele)

	coordinator := research.NewCoordinator(cfg.Research, cfg.LLM.Routing, provider, gatherer, st, indexer, tele)

	h := &ResearchHandler{Runner: coordinator, Store: st}
	h.Register(e.Group("/api"))

	return e.Start(cfg.General.Listen)
}

// newEcho builds the echo instance with the shared middleware stack.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	return e
}
