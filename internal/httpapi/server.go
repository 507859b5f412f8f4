// Package httpapi serves the rendered digest page and per-date run reports.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/avdigest/internal/artifact"
	"horse.fit/avdigest/internal/globaltime"
	"horse.fit/avdigest/internal/report"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type Options struct {
	Host            string
	Port            int
	ReportsRoot     string
	SitePath        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	logger zerolog.Logger
	opts   Options
}

func NewServer(logger zerolog.Logger, opts Options) *Server {
	if strings.TrimSpace(opts.Host) == "" {
		opts.Host = "0.0.0.0"
	}
	if opts.Port <= 0 {
		opts.Port = 8090
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return &Server{logger: logger, opts: opts}
}

func (s *Server) Start(ctx context.Context) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := s.logger.Info()
			if v.Error != nil {
				event = s.logger.Error().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.GET("/healthz", s.handleHealth)
	e.GET("/", s.handleDigestPage)
	api := e.Group("/api/v1")
	api.GET("/reports", s.handleReportList)
	api.GET("/reports/latest", s.handleLatestReport)
	api.GET("/reports/:date", s.handleReportByDate)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("avdigest web server started")
	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("avdigest web server stopped")
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"service": "avdigest",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleDigestPage(c echo.Context) error {
	data, err := os.ReadFile(s.opts.SitePath)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "digest page not rendered yet")
	}
	return c.Blob(http.StatusOK, "text/html; charset=utf-8", data)
}

// handleReportList returns the report dates on disk, newest first.
func (s *Server) handleReportList(c echo.Context) error {
	dates, err := s.reportDates()
	if err != nil {
		s.logger.Error().Err(err).Msg("list reports failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list reports")
	}
	return c.JSON(http.StatusOK, map[string]any{"dates": dates})
}

func (s *Server) handleLatestReport(c echo.Context) error {
	dates, err := s.reportDates()
	if err != nil || len(dates) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "no reports available")
	}
	return s.serveReport(c, dates[0])
}

func (s *Server) handleReportByDate(c echo.Context) error {
	date := c.Param("date")
	if !datePattern.MatchString(date) {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	return s.serveReport(c, date)
}

func (s *Server) serveReport(c echo.Context, date string) error {
	path := report.Path(s.opts.ReportsRoot, date)
	var r report.Report
	if err := artifact.ReadJSON(path, &r); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no report for %s", date))
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) reportDates() ([]string, error) {
	entries, err := os.ReadDir(s.opts.ReportsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dates []string
	for _, entry := range entries {
		if !entry.IsDir() || !datePattern.MatchString(entry.Name()) {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.opts.ReportsRoot, entry.Name(), report.FileName)); err == nil {
			dates = append(dates, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}
