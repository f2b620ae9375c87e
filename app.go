package main

import (
	"context"
	"fmt"

	"sjsage522/bidnoticeworker/config"
	"sjsage522/bidnoticeworker/helpers"
	"sjsage522/bidnoticeworker/internal/api"
	"sjsage522/bidnoticeworker/internal/classifier"
	"sjsage522/bidnoticeworker/internal/crawler"
	"sjsage522/bidnoticeworker/internal/dataapi"
	"sjsage522/bidnoticeworker/internal/ruleset"
	"sjsage522/bidnoticeworker/internal/service"
	"sjsage522/bidnoticeworker/internal/store"
	"sjsage522/bidnoticeworker/logger"
	"sjsage522/bidnoticeworker/services/cache"
	"sjsage522/bidnoticeworker/services/publisher"
	"sjsage522/bidnoticeworker/services/worker"
)

// App holds all the initialized services
type App struct {
	Config       *config.Config
	Store        *store.Store
	Cache        cache.CacheService
	Rulesets     ruleset.Source
	Orchestrator *service.Orchestrator
	Workflow     *service.Workflow
	Details      *crawler.DetailCollector

	redis     *publisher.RedisPublisher
	Publisher *publisher.NoticePublisher
}

// newApp connects the store and builds every collector. The Redis publisher
// is only created when withPublisher is set.
func newApp(ctx context.Context, cfg *config.Config, withPublisher bool) (*App, error) {
	st, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &App{Config: cfg, Store: st}

	a.Cache = cache.New(cfg.MemcacheAddr, cfg.CacheMaxEntries)
	if cfg.MemcacheAddr != "" {
		logger.Info("Using Memcache at %s", cfg.MemcacheAddr)
	}

	if cfg.RulesetSource == "db" {
		a.Rulesets = st.Settings()
	} else {
		a.Rulesets = ruleset.NewFileSource(cfg.RulesetSource)
	}

	client := dataapi.NewClient(dataapi.Config{
		BaseURL:    cfg.DataAPIBaseURL,
		ServiceKey: cfg.DataAPIServiceKey,
		NumOfRows:  cfg.DataAPINumOfRows,
		Format:     cfg.DataAPIFormat,
		PageDelay:  cfg.DataAPIPageDelay,
		Timeout:    cfg.FetchTimeout,
	}, nil)
	a.Orchestrator = service.NewOrchestrator(client, st, classifier.NewService(st), service.OrchestratorConfig{
		MaxPages:          cfg.DataAPIMaxPages,
		DayDelay:          cfg.CollectDayDelay,
		KeywordMatchLimit: cfg.KeywordMatchLimit,
	})

	fetcher, err := crawler.NewFetcher(cfg.FetchBackend, cfg.FetchTimeout, cfg.FetchProxyURL, a.Cache, cfg.RateLimitBlock)
	if err != nil {
		a.Close()
		return nil, err
	}
	renderer := crawler.NewRenderer(cfg.RenderEngine, cfg.RenderRemoteURL, cfg.FetchTimeout)
	pages := crawler.NewPageFetcher(fetcher, renderer, cfg.RenderMinRows, cfg.FetchTimeout)

	lists := crawler.NewListCollector(a.Rulesets, pages, cfg.ScrapePageDelay)
	a.Workflow = service.NewWorkflow(lists, st, a.Rulesets, cfg.AgencyDelay)
	a.Details = crawler.NewDetailCollector(st, pages, cfg.DetailFailureThreshold)

	if withPublisher {
		a.redis = publisher.NewRedisPublisher(
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamCount,
			cfg.RedisStreamMaxLength,
		)
		if err := a.redis.Ping(ctx); err != nil {
			logger.Warn("Redis at %s is not reachable yet: %v", cfg.RedisAddr, err)
		}
		a.Publisher = publisher.NewNoticePublisher(a.redis, a.Cache, publisher.DefaultPublishedTTL)
		logger.Info("Publishing to Redis at %s (DB: %d, Stream: %s)", cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	}

	return a, nil
}

// Worker builds the periodic worker
func (a *App) Worker() *worker.Worker {
	var notifier worker.Notifier
	if a.Publisher != nil {
		notifier = a.Publisher
	}
	return worker.NewWorker(
		a.Orchestrator,
		a.Workflow,
		notifier,
		helpers.NewLogger("worker", ""),
		a.Config.CollectInterval,
		!a.Config.IsProduction(),
	)
}

// APIServer builds the HTTP API
func (a *App) APIServer() *api.Server {
	var notifier api.Notifier
	if a.Publisher != nil {
		notifier = a.Publisher
	}
	return api.NewServer(a.Orchestrator, a.Workflow, a.Details, notifier)
}

// Close releases every connection
func (a *App) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.Store != nil {
		a.Store.Close()
	}
}
