package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sjsage522/bidnoticeworker/helpers"
	"sjsage522/bidnoticeworker/internal/classifier"
	"sjsage522/bidnoticeworker/internal/crawler"
	"sjsage522/bidnoticeworker/internal/models"
	"sjsage522/bidnoticeworker/internal/ruleset"
	"sjsage522/bidnoticeworker/logger"
	apperrors "sjsage522/bidnoticeworker/pkg/errors"

	"github.com/cespare/xxhash/v2"
)

// ListScraper scrapes the listing pages of one organization
type ListScraper interface {
	ScrapeList(ctx context.Context, org string, debug bool) crawler.ListResult
}

// ScrapeStore is the persistence the scraping workflow needs
type ScrapeStore interface {
	CategorySettings(ctx context.Context) ([]models.CategorySetting, error)
	FilterNew(ctx context.Context, notices []*models.BidNotice) ([]*models.BidNotice, error)
	SaveBidNotices(ctx context.Context, notices []*models.BidNotice) models.SaveResult
	SaveScrapingLogs(ctx context.Context, logs []models.ScrapingLog) error
	SaveErrorScraping(ctx context.Context, orgs []string, at string) error
}

// RulesetLister lists the organizations that can be scraped
type RulesetLister interface {
	ListActive(ctx context.Context) ([]*ruleset.Ruleset, error)
}

// AgencyResult is the outcome of one organization run
type AgencyResult struct {
	Success       bool                `json:"success"`
	ErrorCode     apperrors.ErrorCode `json:"error_code"`
	ErrorMessage  string              `json:"error_message,omitempty"`
	ScrapedCount  int                 `json:"scraped_count"`
	NewCount      int                 `json:"new_count"`
	InsertedCount int                 `json:"inserted_count"`
	Log           models.ScrapingLog  `json:"log"`

	Inserted []*models.BidNotice `json:"-"`
}

// BatchResult aggregates a run over several organizations
type BatchResult struct {
	TotalAgencies int                  `json:"total_agencies"`
	ErrorAgencies int                  `json:"error_agencies"`
	TotalScraped  int                  `json:"total_scraped"`
	TotalNew      int                  `json:"total_new"`
	TotalInserted int                  `json:"total_inserted"`
	Logs          []models.ScrapingLog `json:"logs"`
	ErrorOrgs     []string             `json:"error_orgs"`
	Errors        []string             `json:"errors"`

	Inserted []*models.BidNotice `json:"-"`
}

// Workflow scrapes organizations, keeps the new relevant notices and logs
// every run
type Workflow struct {
	scraper     ListScraper
	store       ScrapeStore
	rulesets    RulesetLister
	agencyDelay time.Duration
	log         *logger.Logger
}

// NewWorkflow creates a scraping workflow
func NewWorkflow(scraper ListScraper, store ScrapeStore, rulesets RulesetLister, agencyDelay time.Duration) *Workflow {
	return &Workflow{
		scraper:     scraper,
		store:       store,
		rulesets:    rulesets,
		agencyDelay: agencyDelay,
		log:         logger.ForService(),
	}
}

// classifierFor builds the title classifier from the stored category settings
func (w *Workflow) classifierFor(ctx context.Context) (*classifier.Classifier, error) {
	settings, err := w.store.CategorySettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load category settings: %w", err)
	}
	rules, policies := classifier.FromCategorySettings(settings)
	return classifier.New(rules, policies), nil
}

// RunAgency scrapes one organization and stores its new relevant notices.
// The scraping log is returned, not saved.
func (w *Workflow) RunAgency(ctx context.Context, org string, debug bool) AgencyResult {
	c, err := w.classifierFor(ctx)
	if err != nil {
		return w.agencyFailed(org, AgencyResult{}, apperrors.CodeUnknown, err.Error())
	}
	return w.runAgency(ctx, c, org, debug)
}

func (w *Workflow) runAgency(ctx context.Context, c *classifier.Classifier, org string, debug bool) (res AgencyResult) {
	log := logger.ForCollector(org)
	defer func() {
		if p := recover(); p != nil {
			res = w.agencyFailed(org, res, apperrors.CodeUnknown, fmt.Sprintf("agency %s processing error: %v", org, p))
		}
	}()

	list := w.scraper.ScrapeList(ctx, org, debug)
	if serr := list.Error(); serr != nil && len(list.Items) == 0 {
		return w.agencyFailed(org, res, serr.Code, serr.Message)
	}
	res.ScrapedCount = len(list.Items)
	if res.ScrapedCount == 0 {
		return w.agencySucceeded(org, res)
	}

	notices := make([]*models.BidNotice, 0, len(list.Items))
	for _, item := range list.Items {
		notices = append(notices, ScrapedNotice(item))
	}
	fresh, err := w.store.FilterNew(ctx, notices)
	if err != nil {
		return w.agencyFailed(org, res, apperrors.CodeDataProcessing, fmt.Sprintf("agency %s processing error: %v", org, err))
	}
	res.NewCount = len(fresh)

	var relevant []*models.BidNotice
	for _, n := range fresh {
		m := c.Classify(n.Text())
		n.Category = classifier.DisplayCategory(m.Category)
		n.Keywords = m.Keywords
		n.Score = m.Score
		n.IsProcessed = true
		n.IsMatched = n.Category != models.CategoryUnrelated
		if n.IsMatched {
			relevant = append(relevant, n)
		}
	}

	if len(relevant) > 0 {
		saved := w.store.SaveBidNotices(ctx, relevant)
		res.InsertedCount = saved.NewCount
		res.Inserted = saved.Inserted
		if len(saved.Errors) > 0 {
			log.Warn().Strs("errors", saved.Errors).Msg("Some notices were not saved")
		}
	}

	// 일부 페이지 실패는 수집 결과를 유지한 채 코드만 남긴다
	if serr := list.Error(); serr != nil {
		log.Warn().Str("code", serr.Code.String()).Msg(serr.Message)
	}

	log.Info().
		Int("scraped", res.ScrapedCount).
		Int("new", res.NewCount).
		Int("inserted", res.InsertedCount).
		Msg("Agency processed")
	return w.agencySucceeded(org, res)
}

func (w *Workflow) agencySucceeded(org string, res AgencyResult) AgencyResult {
	res.Success = true
	res.ErrorCode = apperrors.CodeSuccess
	res.Log = models.ScrapingLog{
		OrgName:       org,
		ScrapedCount:  res.ScrapedCount,
		NewCount:      res.NewCount,
		InsertedCount: res.InsertedCount,
		Time:          helpers.Now(),
	}
	return res
}

func (w *Workflow) agencyFailed(org string, res AgencyResult, code apperrors.ErrorCode, msg string) AgencyResult {
	logger.ForCollector(org).Error().Str("code", code.String()).Msg(msg)
	res.Success = false
	res.ErrorCode = code
	res.ErrorMessage = msg
	res.Log = models.ScrapingLog{
		OrgName:       org,
		Error:         &apperrors.ScrapeError{Code: code, Message: msg},
		ScrapedCount:  res.ScrapedCount,
		NewCount:      res.NewCount,
		InsertedCount: res.InsertedCount,
		Time:          helpers.Now(),
	}
	return res
}

// RunAgencies processes orgs one after another, then saves every scraping log
// and one error row listing the failed organizations
func (w *Workflow) RunAgencies(ctx context.Context, orgs []string, debug bool) BatchResult {
	batch := BatchResult{
		TotalAgencies: len(orgs),
		Logs:          []models.ScrapingLog{},
		ErrorOrgs:     []string{},
		Errors:        []string{},
	}
	w.log.Info().Int("agencies", len(orgs)).Msg("@@@ Scrape notices")

	c, err := w.classifierFor(ctx)
	if err != nil {
		batch.Errors = append(batch.Errors, err.Error())
		batch.ErrorAgencies = len(orgs)
		batch.ErrorOrgs = append(batch.ErrorOrgs, orgs...)
		return batch
	}

	for i, org := range orgs {
		if ctx.Err() != nil {
			batch.ErrorOrgs = append(batch.ErrorOrgs, orgs[i:]...)
			batch.Errors = append(batch.Errors, ctx.Err().Error())
			break
		}

		res := w.runAgency(ctx, c, org, debug)
		batch.TotalScraped += res.ScrapedCount
		batch.TotalNew += res.NewCount
		batch.TotalInserted += res.InsertedCount
		batch.Inserted = append(batch.Inserted, res.Inserted...)
		batch.Logs = append(batch.Logs, res.Log)
		if !res.Success {
			batch.ErrorOrgs = append(batch.ErrorOrgs, org)
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: %s", org, res.ErrorMessage))
		}

		if i < len(orgs)-1 {
			sleep(ctx, w.agencyDelay)
		}
	}
	batch.ErrorAgencies = len(batch.ErrorOrgs)

	// 로그 저장은 취소와 무관하게 시도한다
	saveCtx := context.WithoutCancel(ctx)
	if len(batch.Logs) > 0 {
		if err := w.store.SaveScrapingLogs(saveCtx, batch.Logs); err != nil {
			w.log.Error().Err(err).Msg("Failed to save scraping logs")
			batch.Errors = append(batch.Errors, err.Error())
		}
	}
	if len(batch.ErrorOrgs) > 0 {
		if err := w.store.SaveErrorScraping(saveCtx, batch.ErrorOrgs, helpers.Now()); err != nil {
			w.log.Error().Err(err).Msg("Failed to save error organizations")
			batch.Errors = append(batch.Errors, err.Error())
		}
	}

	w.log.Info().
		Int("agencies", batch.TotalAgencies).
		Int("errors", batch.ErrorAgencies).
		Int("scraped", batch.TotalScraped).
		Int("new", batch.TotalNew).
		Int("inserted", batch.TotalInserted).
		Msg("@@@ Summary")
	return batch
}

// ActiveAgencies returns the names of every organization with an active ruleset
func (w *Workflow) ActiveAgencies(ctx context.Context) ([]string, error) {
	if w.rulesets == nil {
		return nil, fmt.Errorf("no ruleset source configured")
	}
	rulesets, err := w.rulesets.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	orgs := make([]string, 0, len(rulesets))
	for _, rs := range rulesets {
		orgs = append(orgs, rs.OrgName)
	}
	return orgs, nil
}

// GovOptions configures CollectGovNotices
type GovOptions struct {
	Limit    int      `json:"limit" query:"limit"`
	DryRun   bool     `json:"dryRun" query:"dryRun"`
	Debug    bool     `json:"debug" query:"debug"`
	Agencies []string `json:"agencies" query:"agencies"`
}

// GovResult is the outcome of CollectGovNotices
type GovResult struct {
	Success       bool     `json:"success"`
	TotalScraped  int      `json:"totalScraped"`
	TotalInserted int      `json:"totalInserted"`
	Agencies      int      `json:"agencies"`
	Errors        []string `json:"errors"`

	Inserted []*models.BidNotice `json:"-"`
}

// dry runs report this many notices per agency
const dryRunNoticesPerAgency = 5

// CollectGovNotices scrapes at most max(1, Limit/10) organizations. Agencies
// defaults to every active ruleset. A dry run touches neither the network
// nor the store.
func (w *Workflow) CollectGovNotices(ctx context.Context, opts GovOptions) GovResult {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	res := GovResult{Errors: []string{}}

	agencies := opts.Agencies
	if len(agencies) == 0 {
		var err error
		if agencies, err = w.ActiveAgencies(ctx); err != nil {
			res.Errors = append(res.Errors, err.Error())
			return res
		}
	}
	if len(agencies) == 0 {
		w.log.Warn().Msg("No agencies configured for scraping")
		res.Success = true
		return res
	}

	agencies = agencies[:min(len(agencies), max(1, opts.Limit/10))]
	res.Agencies = len(agencies)
	w.log.Info().Str("agencies", strings.Join(agencies, ", ")).Bool("dry_run", opts.DryRun).Msg("GOV collection")

	if opts.DryRun {
		res.Success = true
		res.TotalScraped = len(agencies) * dryRunNoticesPerAgency
		return res
	}

	batch := w.RunAgencies(ctx, agencies, opts.Debug)
	res.TotalScraped = batch.TotalScraped
	res.TotalInserted = batch.TotalInserted
	res.Errors = append(res.Errors, batch.Errors...)
	res.Inserted = batch.Inserted
	res.Success = len(res.Errors) == 0
	return res
}

// ScrapedNoticeNo derives a stable notice number for a scraped listing row
func ScrapedNoticeNo(item models.NoticeItem) string {
	return fmt.Sprintf("WEB-%016x", xxhash.Sum64String(item.OrgName+"|"+item.Title+"|"+item.DetailURL))
}

// ScrapedNotice maps a listing row onto a notice record
func ScrapedNotice(item models.NoticeItem) *models.BidNotice {
	n := &models.BidNotice{
		BidNoticeNo:           ScrapedNoticeNo(item),
		BidNoticeName:         item.Title,
		NoticeInstitutionName: item.OrgName,
		OfficerName:           item.PostedBy,
		DetailURL:             item.DetailURL,
		Source:                models.SourceScrape,
		Category:              item.Category,
	}
	if t, err := time.ParseInLocation(time.DateOnly, item.PostedDate, helpers.KST); err == nil {
		n.NoticeDate = &t
	}
	return n
}
