// Package api exposes collection triggers and status over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"sjsage522/bidnoticeworker/helpers"
	"sjsage522/bidnoticeworker/internal/crawler"
	"sjsage522/bidnoticeworker/internal/models"
	"sjsage522/bidnoticeworker/internal/service"
	"sjsage522/bidnoticeworker/logger"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Collector runs API collections and classification
type Collector interface {
	CollectToday(ctx context.Context, opts service.CollectOptions) service.ServiceResult
	CollectLatest(ctx context.Context, days int, opts service.CollectOptions) service.ServiceResult
	CollectRange(ctx context.Context, start, end time.Time, opts service.CollectOptions) service.ServiceResult
	ApplyKeywordMatching(ctx context.Context, limit int) (models.KeywordProcessingResult, error)
	ReprocessKeywordMatching(ctx context.Context, limit int) (models.KeywordProcessingResult, error)
	Statistics(ctx context.Context) (models.Statistics, error)
	ProcessingStatus(ctx context.Context) (models.ProcessingStatus, error)
}

// Scraper runs the per-organization scraping workflow
type Scraper interface {
	RunAgencies(ctx context.Context, orgs []string, debug bool) service.BatchResult
	CollectGovNotices(ctx context.Context, opts service.GovOptions) service.GovResult
}

// DetailRunner collects detail pages of stored notices
type DetailRunner interface {
	CollectDetails(ctx context.Context, opts crawler.DetailOptions) crawler.DetailResult
}

// Notifier receives the notices inserted by a triggered run
type Notifier interface {
	PublishNotices(ctx context.Context, notices []*models.BidNotice) int
}

// Server is the HTTP API
type Server struct {
	Echo *echo.Echo

	collector Collector
	scraper   Scraper
	details   DetailRunner
	notifier  Notifier
	log       *logger.Logger
}

// NewServer builds the router. scraper, details and notifier may be nil;
// their routes then answer 503.
func NewServer(collector Collector, scraper Scraper, details DetailRunner, notifier Notifier) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		Echo:      e,
		collector: collector,
		scraper:   scraper,
		details:   details,
		notifier:  notifier,
		log:       logger.ForAPI(),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			ev := s.log.Info()
			if v.Error != nil {
				ev = s.log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/healthz", s.handleHealth)

	api := s.Echo.Group("/api")
	api.GET("/stats", s.handleStats)
	api.GET("/status", s.handleStatus)
	api.POST("/collect/today", s.handleCollectToday)
	api.POST("/collect/latest", s.handleCollectLatest)
	api.POST("/collect/range", s.handleCollectRange)
	api.POST("/scrape/:org", s.handleScrape)
	api.POST("/gov", s.handleGov)
	api.POST("/details", s.handleDetails)
	api.POST("/classify", s.handleClassify)
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Echo.Shutdown(shutdownCtx)
	}
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "time": helpers.Now()})
}

func (s *Server) handleStats(c echo.Context) error {
	st, err := s.collector.Statistics(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleStatus(c echo.Context) error {
	ps, err := s.collector.ProcessingStatus(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ps)
}

// collectOptions reads the optional filters. Both booleans default to true.
func collectOptions(c echo.Context) (service.CollectOptions, error) {
	opts := service.DefaultCollectOptions()
	err := echo.QueryParamsBinder(c).
		String("areaCode", &opts.AreaCode).
		String("orgName", &opts.OrgName).
		String("bidKind", &opts.BidKind).
		Bool("applyKeywordMatching", &opts.ApplyKeywordMatching).
		Bool("saveToDatabase", &opts.SaveToDatabase).
		BindError()
	return opts, err
}

// respond publishes the inserted notices and writes the result. A failed run
// is still a 200; the result carries the errors.
func (s *Server) respond(c echo.Context, res service.ServiceResult) error {
	if s.notifier != nil && len(res.NewNotices) > 0 {
		s.notifier.PublishNotices(c.Request().Context(), res.NewNotices)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleCollectToday(c echo.Context) error {
	opts, err := collectOptions(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	return s.respond(c, s.collector.CollectToday(c.Request().Context(), opts))
}

func (s *Server) handleCollectLatest(c echo.Context) error {
	opts, err := collectOptions(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	days := 3
	if err := echo.QueryParamsBinder(c).Int("days", &days).BindError(); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	if days <= 0 || days > 31 {
		return errorJSON(c, http.StatusBadRequest, "days must be between 1 and 31")
	}
	return s.respond(c, s.collector.CollectLatest(c.Request().Context(), days, opts))
}

func (s *Server) handleCollectRange(c echo.Context) error {
	opts, err := collectOptions(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	start, err := time.ParseInLocation(time.DateOnly, c.QueryParam("start"), helpers.KST)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "start must be YYYY-MM-DD")
	}
	end, err := time.ParseInLocation(time.DateOnly, c.QueryParam("end"), helpers.KST)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "end must be YYYY-MM-DD")
	}
	return s.respond(c, s.collector.CollectRange(c.Request().Context(), start, end, opts))
}

func (s *Server) handleScrape(c echo.Context) error {
	if s.scraper == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "scraping is not configured")
	}
	org := strings.TrimSpace(c.Param("org"))
	if org == "" {
		return errorJSON(c, http.StatusBadRequest, "org is required")
	}
	debug := false
	if err := echo.QueryParamsBinder(c).Bool("debug", &debug).BindError(); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	batch := s.scraper.RunAgencies(c.Request().Context(), []string{org}, debug)
	if s.notifier != nil && len(batch.Inserted) > 0 {
		s.notifier.PublishNotices(c.Request().Context(), batch.Inserted)
	}
	return c.JSON(http.StatusOK, batch)
}

func (s *Server) handleGov(c echo.Context) error {
	if s.scraper == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "scraping is not configured")
	}
	var (
		opts     service.GovOptions
		agencies string
	)
	err := echo.QueryParamsBinder(c).
		Int("limit", &opts.Limit).
		Bool("dryRun", &opts.DryRun).
		Bool("debug", &opts.Debug).
		String("agencies", &agencies).
		BindError()
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	for _, a := range strings.Split(agencies, ",") {
		if a = strings.TrimSpace(a); a != "" {
			opts.Agencies = append(opts.Agencies, a)
		}
	}

	res := s.scraper.CollectGovNotices(c.Request().Context(), opts)
	if s.notifier != nil && len(res.Inserted) > 0 {
		s.notifier.PublishNotices(c.Request().Context(), res.Inserted)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleDetails(c echo.Context) error {
	if s.details == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "detail collection is not configured")
	}
	var opts crawler.DetailOptions
	err := echo.QueryParamsBinder(c).
		String("org", &opts.OrgName).
		String("id", &opts.NoticeID).
		Int("limit", &opts.Limit).
		Bool("dryRun", &opts.DryRun).
		Bool("debug", &opts.Debug).
		BindError()
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, s.details.CollectDetails(c.Request().Context(), opts))
}

func (s *Server) handleClassify(c echo.Context) error {
	var (
		reset bool
		limit int
	)
	if err := echo.QueryParamsBinder(c).Bool("reset", &reset).Int("limit", &limit).BindError(); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	var (
		res models.KeywordProcessingResult
		err error
	)
	if reset {
		res, err = s.collector.ReprocessKeywordMatching(c.Request().Context(), limit)
	} else {
		res, err = s.collector.ApplyKeywordMatching(c.Request().Context(), limit)
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
