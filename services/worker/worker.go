package worker

import (
	"context"
	"fmt"
	"time"

	"sjsage522/bidnoticeworker/helpers"
	"sjsage522/bidnoticeworker/internal/models"
	"sjsage522/bidnoticeworker/internal/service"
)

// Collector runs the daily API collection
type Collector interface {
	CollectToday(ctx context.Context, opts service.CollectOptions) service.ServiceResult
}

// Scraper runs the organization scraping workflow
type Scraper interface {
	ActiveAgencies(ctx context.Context) ([]string, error)
	RunAgencies(ctx context.Context, orgs []string, debug bool) service.BatchResult
}

// Notifier publishes new notices
type Notifier interface {
	PublishNotices(ctx context.Context, notices []*models.BidNotice) int
	TrimStreams(ctx context.Context) error
}

// Cycle summarizes one worker pass
type Cycle struct {
	Collection service.ServiceResult
	Scrape     *service.BatchResult
	Published  int
	Elapsed    time.Duration
}

// Worker collects, scrapes and publishes on a fixed interval
type Worker struct {
	collector       Collector
	scraper         Scraper
	notifier        Notifier
	logger          helpers.LoggerInterface
	collectInterval time.Duration
	verbose         bool
}

// NewWorker creates a new worker. scraper and notifier may be nil.
func NewWorker(
	collector Collector,
	scraper Scraper,
	notifier Notifier,
	logger helpers.LoggerInterface,
	collectInterval time.Duration,
	verbose bool,
) *Worker {
	return &Worker{
		collector:       collector,
		scraper:         scraper,
		notifier:        notifier,
		logger:          logger,
		collectInterval: collectInterval,
		verbose:         verbose,
	}
}

// Start runs cycles until ctx is cancelled
func (w *Worker) Start(ctx context.Context) {
	for {
		cycle := w.RunOnce(ctx)
		if w.verbose {
			w.logger.LogInfo("수집 소요 시간: %s (신규 %d건 발행)", cycle.Elapsed, cycle.Published)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.collectInterval):
		}
	}
}

// RunOnce collects today's API notices, scrapes every active organization
// and publishes what was inserted. Steps run one after another.
func (w *Worker) RunOnce(ctx context.Context) Cycle {
	start := time.Now()
	var (
		cycle    Cycle
		inserted []*models.BidNotice
	)

	cycle.Collection = w.collector.CollectToday(ctx, service.DefaultCollectOptions())
	inserted = append(inserted, cycle.Collection.NewNotices...)
	if !cycle.Collection.Success {
		w.logger.LogError("CollectToday", fmt.Errorf("%d errors: %v", len(cycle.Collection.Errors)+cycle.Collection.CollectionResult.ErrorCount, firstErrors(cycle.Collection)))
	}

	if w.scraper != nil && ctx.Err() == nil {
		orgs, err := w.scraper.ActiveAgencies(ctx)
		if err != nil {
			w.logger.LogError("ActiveAgencies", err)
		} else if len(orgs) > 0 {
			batch := w.scraper.RunAgencies(ctx, orgs, false)
			cycle.Scrape = &batch
			inserted = append(inserted, batch.Inserted...)
			if batch.ErrorAgencies > 0 {
				w.logger.LogError("RunAgencies", fmt.Errorf("failed organizations: %v", batch.ErrorOrgs))
			}
		}
	}

	if w.notifier != nil {
		cycle.Published = w.notifier.PublishNotices(ctx, inserted)
		if err := w.notifier.TrimStreams(ctx); err != nil {
			w.logger.LogError("StreamTrimming", err)
		}
		if w.verbose && len(inserted) > 0 {
			// 첫 번째 공고만 기록
			w.logger.LogInfo("발행 데이터: %s %s", inserted[0].BidNoticeNo, inserted[0].BidNoticeName)
		}
	}

	cycle.Elapsed = time.Since(start)
	return cycle
}

func firstErrors(res service.ServiceResult) []string {
	all := append(append([]string{}, res.CollectionResult.Errors...), res.Errors...)
	return all[:min(len(all), 5)]
}
