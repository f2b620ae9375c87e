// Package service composes the collectors, parser, store and classifier into
// end-to-end collection runs.
package service

import (
	"context"
	"fmt"
	"time"

	"sjsage522/bidnoticeworker/helpers"
	"sjsage522/bidnoticeworker/internal/dataapi"
	"sjsage522/bidnoticeworker/internal/models"
	"sjsage522/bidnoticeworker/internal/parser"
	"sjsage522/bidnoticeworker/logger"

	"github.com/google/uuid"
)

// APIEndpoint is the operation recorded in collection logs
const APIEndpoint = dataapi.ListOperation

// NoticeSource fetches raw notices for a date range
type NoticeSource interface {
	FetchAllPages(ctx context.Context, dr dataapi.DateRange, filters dataapi.Filters, maxPages int) ([]models.RawItem, error)
}

// NoticeStore persists notices and run logs
type NoticeStore interface {
	SaveBidNotices(ctx context.Context, notices []*models.BidNotice) models.SaveResult
	SaveCollectionLog(ctx context.Context, l models.CollectionLog) error
	Statistics(ctx context.Context) (models.Statistics, error)
	ProcessingStatus(ctx context.Context) (models.ProcessingStatus, error)
}

// KeywordMatcher classifies stored notices in batches
type KeywordMatcher interface {
	ApplyKeywordMatching(ctx context.Context, limit int) (models.KeywordProcessingResult, error)
	Reprocess(ctx context.Context, limit int) (models.KeywordProcessingResult, error)
}

// CollectOptions narrows and configures one API run
type CollectOptions struct {
	AreaCode             string `json:"areaCode,omitempty" query:"areaCode"`
	OrgName              string `json:"orgName,omitempty" query:"orgName"`
	BidKind              string `json:"bidKind,omitempty" query:"bidKind"`
	ApplyKeywordMatching bool   `json:"applyKeywordMatching" query:"applyKeywordMatching"`
	SaveToDatabase       bool   `json:"saveToDatabase" query:"saveToDatabase"`
}

// DefaultCollectOptions saves and classifies everything
func DefaultCollectOptions() CollectOptions {
	return CollectOptions{ApplyKeywordMatching: true, SaveToDatabase: true}
}

func (o CollectOptions) filters() dataapi.Filters {
	return dataapi.Filters{AreaCode: o.AreaCode, OrgName: o.OrgName, BidKind: o.BidKind}
}

// ServiceResult is the outcome of one orchestrated run. Failures are reported
// in Errors; entry points never return a Go error.
type ServiceResult struct {
	Success           bool                            `json:"success"`
	CollectionResult  models.CollectionResult         `json:"collection_result"`
	DatabaseResult    *models.SaveResult              `json:"database_result,omitempty"`
	KeywordProcessing *models.KeywordProcessingResult `json:"keyword_processing,omitempty"`
	Errors            []string                        `json:"errors"`
	DurationMS        int64                           `json:"duration_ms"`

	// NewNotices are the notices inserted by this run
	NewNotices []*models.BidNotice `json:"-"`
}

// OrchestratorConfig holds the run limits
type OrchestratorConfig struct {
	MaxPages          int
	DayDelay          time.Duration
	KeywordMatchLimit int
}

// Orchestrator runs API collections end to end
type Orchestrator struct {
	source  NoticeSource
	store   NoticeStore
	matcher KeywordMatcher
	parser  *parser.Parser
	cfg     OrchestratorConfig
	log     *logger.Logger

	now func() time.Time
}

// NewOrchestrator creates an orchestrator. store and matcher may be nil when
// runs never save.
func NewOrchestrator(source NoticeSource, store NoticeStore, matcher KeywordMatcher, cfg OrchestratorConfig) *Orchestrator {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.KeywordMatchLimit <= 0 {
		cfg.KeywordMatchLimit = 1000
	}
	return &Orchestrator{
		source:  source,
		store:   store,
		matcher: matcher,
		parser:  parser.New(),
		cfg:     cfg,
		log:     logger.ForService(),
		now:     time.Now,
	}
}

// CollectToday collects the notices published today (KST)
func (o *Orchestrator) CollectToday(ctx context.Context, opts CollectOptions) ServiceResult {
	today := o.now()
	return o.CollectRange(ctx, today, today, opts)
}

// CollectLatest collects the last days days up to today
func (o *Orchestrator) CollectLatest(ctx context.Context, days int, opts CollectOptions) ServiceResult {
	if days <= 0 {
		days = 3
	}
	end := o.now()
	return o.CollectRange(ctx, end.AddDate(0, 0, -days), end, opts)
}

// CollectRange collects every calendar day from start to end inclusive.
// A single day is fetched directly; longer ranges are fetched day by day.
func (o *Orchestrator) CollectRange(ctx context.Context, start, end time.Time, opts CollectOptions) ServiceResult {
	began := o.now()
	res := ServiceResult{Errors: []string{}, CollectionResult: models.CollectionResult{Errors: []string{}}}
	defer func() {
		res.DurationMS = o.now().Sub(began).Milliseconds()
	}()

	start, end = dayOf(start), dayOf(end)
	if start.After(end) {
		res.Errors = append(res.Errors, "start date cannot be later than end date")
		return res
	}

	log := o.log.WithFields(logger.Fields{
		"start": start.Format(time.DateOnly),
		"end":   end.Format(time.DateOnly),
	})
	log.Info().Msg("Collection started")

	var notices []*models.BidNotice
	if start.Equal(end) {
		res.CollectionResult, notices = o.collectDay(ctx, start, opts)
	} else {
		res.CollectionResult, notices = o.collectPeriod(ctx, start, end, opts)
	}

	if opts.SaveToDatabase && o.store != nil {
		if len(notices) > 0 {
			saved := o.store.SaveBidNotices(ctx, notices)
			res.DatabaseResult = &saved
			res.NewNotices = saved.Inserted
			res.CollectionResult.NewCount = saved.NewCount
			res.CollectionResult.UpdatedCount = saved.UpdatedCount
			res.CollectionResult.ErrorCount += len(saved.Errors)
			res.CollectionResult.Errors = append(res.CollectionResult.Errors, saved.Errors...)
		}

		if opts.ApplyKeywordMatching && o.matcher != nil {
			kp, err := o.matcher.ApplyKeywordMatching(ctx, o.cfg.KeywordMatchLimit)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("keyword matching failed: %v", err))
			} else {
				res.KeywordProcessing = &kp
			}
		}

		if err := o.store.SaveCollectionLog(ctx, o.collectionLog(began, start, end, opts, res)); err != nil {
			log.Error().Err(err).Msg("Failed to save collection log")
			res.Errors = append(res.Errors, fmt.Sprintf("collection log save failed: %v", err))
		}
	}

	res.Success = res.CollectionResult.ErrorCount == 0 && len(res.Errors) == 0
	log.Info().
		Bool("success", res.Success).
		Int("total", res.CollectionResult.TotalCount).
		Int("collected", res.CollectionResult.CollectedCount).
		Int("new", res.CollectionResult.NewCount).
		Int("updated", res.CollectionResult.UpdatedCount).
		Int("errors", res.CollectionResult.ErrorCount).
		Msg("Collection finished")
	return res
}

// collectDay fetches and parses one day. Items fetched before a failing page
// are still parsed.
func (o *Orchestrator) collectDay(ctx context.Context, day time.Time, opts CollectOptions) (models.CollectionResult, []*models.BidNotice) {
	res := models.CollectionResult{Errors: []string{}}

	items, err := o.source.FetchAllPages(ctx, dataapi.DateRange{Start: day, End: day}, opts.filters(), o.cfg.MaxPages)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("collection error: %v", err))
		res.ErrorCount++
	}
	res.TotalCount = len(items)

	notices := make([]*models.BidNotice, 0, len(items))
	for _, item := range items {
		n, err := o.parser.Parse(item)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("parsing error: %v | data: %s", err, helpers.Truncate(fmt.Sprint(item), 200)))
			res.ErrorCount++
			continue
		}
		if !n.Valid() {
			res.Errors = append(res.Errors, fmt.Sprintf("validation failed for notice: %q", n.BidNoticeNo))
			res.ErrorCount++
			continue
		}
		n.Source = models.SourceAPI
		notices = append(notices, n)
		res.CollectedCount++
	}

	o.log.Debug().
		Str("day", day.Format(time.DateOnly)).
		Int("collected", res.CollectedCount).
		Int("errors", res.ErrorCount).
		Msg("Day collected")
	return res, notices
}

func (o *Orchestrator) collectPeriod(ctx context.Context, start, end time.Time, opts CollectOptions) (models.CollectionResult, []*models.BidNotice) {
	total := models.CollectionResult{Errors: []string{}}
	var all []*models.BidNotice

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			total.Errors = append(total.Errors, fmt.Sprintf("%s collection error: %v", day.Format(time.DateOnly), err))
			total.ErrorCount++
			break
		}

		res, notices := o.collectDay(ctx, day, opts)
		total.Merge(res)
		all = append(all, notices...)

		if day.Before(end) {
			sleep(ctx, o.cfg.DayDelay)
		}
	}
	return total, all
}

func (o *Orchestrator) collectionLog(began, start, end time.Time, opts CollectOptions, res ServiceResult) models.CollectionLog {
	completed := o.now()
	status := models.StatusCompleted
	if res.CollectionResult.ErrorCount > 0 || len(res.Errors) > 0 {
		status = models.StatusFailed
	}
	details := append(append([]string{}, res.CollectionResult.Errors...), res.Errors...)

	return models.CollectionLog{
		RunID:       uuid.NewString(),
		APIEndpoint: APIEndpoint,
		RequestParams: map[string]string{
			"startDate": start.Format(time.DateOnly),
			"endDate":   end.Format(time.DateOnly),
			"areaCode":  opts.AreaCode,
			"orgName":   opts.OrgName,
			"bidKind":   opts.BidKind,
		},
		TotalCount:      res.CollectionResult.TotalCount,
		NewCount:        res.CollectionResult.NewCount,
		UpdatedCount:    res.CollectionResult.UpdatedCount,
		ErrorCount:      res.CollectionResult.ErrorCount,
		StartDate:       start,
		EndDate:         end,
		Status:          status,
		StartedAt:       began,
		CompletedAt:     completed,
		DurationSeconds: completed.Sub(began).Seconds(),
		ErrorDetails:    details,
	}
}

// ReprocessKeywordMatching clears every API classification and classifies again
func (o *Orchestrator) ReprocessKeywordMatching(ctx context.Context, limit int) (models.KeywordProcessingResult, error) {
	if o.matcher == nil {
		return models.KeywordProcessingResult{}, fmt.Errorf("keyword matching is not configured")
	}
	if limit <= 0 {
		limit = 100
	}
	return o.matcher.Reprocess(ctx, limit)
}

// ApplyKeywordMatching classifies the next batch of unprocessed notices
func (o *Orchestrator) ApplyKeywordMatching(ctx context.Context, limit int) (models.KeywordProcessingResult, error) {
	if o.matcher == nil {
		return models.KeywordProcessingResult{}, fmt.Errorf("keyword matching is not configured")
	}
	if limit <= 0 {
		limit = o.cfg.KeywordMatchLimit
	}
	return o.matcher.ApplyKeywordMatching(ctx, limit)
}

// Statistics summarizes the stored notices
func (o *Orchestrator) Statistics(ctx context.Context) (models.Statistics, error) {
	if o.store == nil {
		return models.Statistics{}, fmt.Errorf("store is not configured")
	}
	return o.store.Statistics(ctx)
}

// ProcessingStatus reports classification progress
func (o *Orchestrator) ProcessingStatus(ctx context.Context) (models.ProcessingStatus, error) {
	if o.store == nil {
		return models.ProcessingStatus{}, fmt.Errorf("store is not configured")
	}
	return o.store.ProcessingStatus(ctx)
}

// dayOf returns midnight KST of t's calendar day
func dayOf(t time.Time) time.Time {
	y, m, d := t.In(helpers.KST).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, helpers.KST)
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
