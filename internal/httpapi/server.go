package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"horse.fit/aggregator/internal/content"
	"horse.fit/aggregator/internal/db"
	"horse.fit/aggregator/internal/globaltime"
	"horse.fit/aggregator/internal/ingest"
	"horse.fit/aggregator/internal/pipeline"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	maxWindowHours  = 24 * 30
	bodyLimit       = "4M"
)

// Store is the read and acknowledgement surface used by the API.
type Store interface {
	Ping(ctx context.Context) error
	QueryStats(ctx context.Context) (*db.Stats, error)
	QueryAggregations(ctx context.Context, filter db.AggregationFilter) ([]content.Aggregation, error)
	GetAggregationDetail(ctx context.Context, aggregationID int64) (*db.AggregationDetail, error)
	MarkAggregationProcessed(ctx context.Context, aggregationID int64, at time.Time) (content.Aggregation, error)
}

// Runner triggers batch runs on demand.
type Runner interface {
	RunDedup(ctx context.Context, opts pipeline.DedupOptions) (pipeline.DedupResult, error)
	RunMerge(ctx context.Context) (pipeline.MergeRunResult, error)
}

// Intake accepts content records from the ingestion collaborator.
type Intake interface {
	IngestPayload(ctx context.Context, payload json.RawMessage) (ingest.Result, error)
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	DedupWindow     time.Duration
}

type Server struct {
	store  Store
	runner Runner
	intake Intake
	logger zerolog.Logger
	opts   Options
}

type dedupRunResponse struct {
	RunID               string `json:"run_id"`
	WorkingSet          int    `json:"working_set"`
	AggregationsCreated int    `json:"aggregations_created"`
	Duplicates          int    `json:"duplicates"`
	Singletons          int    `json:"singletons"`
	Skipped             int    `json:"skipped"`
	Failures            int    `json:"failures"`
}

type mergeRunResponse struct {
	RunID        string `json:"run_id"`
	Aggregations int    `json:"aggregations"`
	Compared     int    `json:"compared"`
	Merged       int    `json:"merged"`
	Failures     int    `json:"failures"`
}

func NewServer(store Store, runner Runner, intake Intake, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Minute
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	dedupWindow := opts.DedupWindow
	if dedupWindow <= 0 {
		dedupWindow = pipeline.DefaultDedupWindow
	}

	return &Server{
		store:  store,
		runner: runner,
		intake: intake,
		logger: logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			DedupWindow:     dedupWindow,
		},
	}
}

// Handler builds the echo instance with middleware and routes.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.POST("/records", s.handleIngestRecord)
	api.GET("/aggregations", s.handleAggregations)
	api.GET("/aggregations/:id", s.handleAggregationDetail)
	api.POST("/aggregations/:id/processed", s.handleMarkProcessed)
	api.POST("/runs/dedup", s.handleRunDedup)
	api.POST("/runs/merge", s.handleRunMerge)

	return e
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.Handler()
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

	s.logger.Info().Str("addr", addr).Msg("aggregator api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("aggregator api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	isAPI := strings.HasPrefix(c.Request().URL.Path, "/api/")
	if isAPI {
		if status >= 500 {
			_ = internalError(c, "Internal server error")
			return
		}
		_ = fail(c, status, message, nil)
		return
	}

	_ = c.String(status, message)
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("database ping failed")
		return internalError(c, "Database unavailable")
	}
	return success(c, map[string]any{
		"service": "aggregator",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.store.QueryStats(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func (s *Server) handleIngestRecord(c echo.Context) error {
	if s.intake == nil {
		return internalError(c, "Intake is not configured")
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return failValidation(c, map[string]string{"body": "could not read request body"})
	}

	result, err := s.intake.IngestPayload(c.Request().Context(), body)
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidPayload) {
			return failValidation(c, map[string]string{"payload": err.Error()})
		}
		s.logger.Error().Err(err).Msg("ingest record failed")
		return internalError(c, "Failed to ingest record")
	}

	code := http.StatusOK
	if result.Inserted {
		code = http.StatusCreated
	}
	return successWithStatus(c, code, result)
}

func (s *Server) handleAggregations(c echo.Context) error {
	status := strings.ToLower(strings.TrimSpace(c.QueryParam("status")))
	if status == "" {
		status = db.AggregationStatusPending
	}
	switch status {
	case db.AggregationStatusPending, db.AggregationStatusProcessed, db.AggregationStatusAll:
	default:
		return failValidation(c, map[string]string{"status": "must be one of pending, processed, all"})
	}

	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	items, err := s.store.QueryAggregations(c.Request().Context(), db.AggregationFilter{Status: status, Limit: limit})
	if err != nil {
		s.logger.Error().Err(err).Str("status", status).Msg("query aggregations failed")
		return internalError(c, "Failed to load aggregations")
	}
	return success(c, map[string]any{
		"items":  items,
		"status": status,
		"limit":  limit,
	})
}

func (s *Server) handleAggregationDetail(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return failValidation(c, map[string]string{"id": err.Error()})
	}

	detail, err := s.store.GetAggregationDetail(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrAggregationNotFound) {
			return failNotFound(c, "Aggregation not found")
		}
		s.logger.Error().Err(err).Int64("aggregation_id", id).Msg("query aggregation failed")
		return internalError(c, "Failed to load aggregation")
	}
	return success(c, detail)
}

func (s *Server) handleMarkProcessed(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return failValidation(c, map[string]string{"id": err.Error()})
	}

	agg, err := s.store.MarkAggregationProcessed(c.Request().Context(), id, globaltime.UTC())
	if err != nil {
		if errors.Is(err, db.ErrAggregationNotFound) {
			return failNotFound(c, "Aggregation not found")
		}
		s.logger.Error().Err(err).Int64("aggregation_id", id).Msg("mark aggregation processed failed")
		return internalError(c, "Failed to update aggregation")
	}
	return success(c, agg)
}

func (s *Server) handleRunDedup(c echo.Context) error {
	if s.runner == nil {
		return internalError(c, "Runner is not configured")
	}

	window := s.opts.DedupWindow
	if raw := c.QueryParam("window_hours"); strings.TrimSpace(raw) != "" {
		hours, err := parsePositiveInt(raw, 0, 1, maxWindowHours)
		if err != nil {
			return failValidation(c, map[string]string{"window_hours": err.Error()})
		}
		window = time.Duration(hours) * time.Hour
	}

	result, err := s.runner.RunDedup(c.Request().Context(), pipeline.DedupOptions{Window: window})
	if err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			return failConflict(c, "Another run is in progress")
		}
		s.logger.Error().Err(err).Str("run_id", result.RunID).Msg("dedup run failed")
		return internalError(c, "Dedup run failed")
	}
	return success(c, dedupRunResponse{
		RunID:               result.RunID,
		WorkingSet:          result.WorkingSet,
		AggregationsCreated: result.Aggregations,
		Duplicates:          result.Duplicates,
		Singletons:          result.Singletons,
		Skipped:             result.Skipped,
		Failures:            result.Failures,
	})
}

func (s *Server) handleRunMerge(c echo.Context) error {
	if s.runner == nil {
		return internalError(c, "Runner is not configured")
	}

	result, err := s.runner.RunMerge(c.Request().Context())
	if err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			return failConflict(c, "Another run is in progress")
		}
		s.logger.Error().Err(err).Str("run_id", result.RunID).Msg("merge run failed")
		return internalError(c, "Merge run failed")
	}
	return success(c, mergeRunResponse{
		RunID:        result.RunID,
		Aggregations: result.Aggregations,
		Compared:     result.Compared,
		Merged:       result.Merged,
		Failures:     result.Failures,
	})
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return id, nil
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}
