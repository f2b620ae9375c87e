package crawler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"sjsage522/bidnoticeworker/helpers"
	"sjsage522/bidnoticeworker/internal/models"
	"sjsage522/bidnoticeworker/internal/ruleset"
	"sjsage522/bidnoticeworker/logger"
	apperrors "sjsage522/bidnoticeworker/pkg/errors"
)

// ListResult is the outcome of one ruleset run. Errors are reported through
// ErrorCode and never returned.
type ListResult struct {
	OrgName      string              `json:"org_name"`
	ErrorCode    apperrors.ErrorCode `json:"error_code"`
	ErrorMessage string              `json:"error_message,omitempty"`
	Items        []models.NoticeItem `json:"items"`
	Pages        int                 `json:"pages"`
	FailedPages  []int               `json:"failed_pages,omitempty"`
	Rendered     int                 `json:"rendered"`
}

// Error returns the result error, nil on success
func (r ListResult) Error() *apperrors.ScrapeError {
	if r.ErrorCode == apperrors.CodeSuccess {
		return nil
	}
	return &apperrors.ScrapeError{Code: r.ErrorCode, Message: r.ErrorMessage}
}

func failed(org string, err *apperrors.ScrapeError) ListResult {
	return ListResult{OrgName: org, ErrorCode: err.Code, ErrorMessage: err.Message, Items: []models.NoticeItem{}}
}

// ListCollector scrapes listing pages described by rulesets
type ListCollector struct {
	source    ruleset.Source
	pages     *PageFetcher
	extractor *Extractor
	pageDelay time.Duration
}

// NewListCollector creates a list collector. source may be nil when only
// ScrapeListBySettings is used.
func NewListCollector(source ruleset.Source, pages *PageFetcher, pageDelay time.Duration) *ListCollector {
	return &ListCollector{
		source:    source,
		pages:     pages,
		extractor: NewExtractor(),
		pageDelay: pageDelay,
	}
}

// ScrapeList loads the active ruleset for org and scrapes it
func (l *ListCollector) ScrapeList(ctx context.Context, org string, debug bool) ListResult {
	if l.source == nil {
		return failed(org, apperrors.NewScrapeError(apperrors.CodeSettingsNotFound, "no ruleset source configured"))
	}
	rs, err := l.source.Load(ctx, org)
	if err != nil {
		if errors.Is(err, ruleset.ErrNotFound) {
			return failed(org, apperrors.NewScrapeError(apperrors.CodeSettingsNotFound, "%s: no active settings", org))
		}
		return failed(org, apperrors.NewScrapeError(apperrors.CodeUnknown, "%s: load settings: %v", org, err))
	}
	return l.ScrapeListBySettings(ctx, rs, debug)
}

// ScrapeListBySettings visits the ruleset's page range in order and returns
// the titled items newest first. A failing page contributes nothing; the run
// fails only when every page failed. A ruleset without a page placeholder or
// paging locator has a single page. When a paging locator is missing the
// pages after it are not visited.
func (l *ListCollector) ScrapeListBySettings(ctx context.Context, rs *ruleset.Ruleset, debug bool) (result ListResult) {
	if rs == nil {
		return failed("", apperrors.NewScrapeError(apperrors.CodeSettingsNotFound, "settings are missing"))
	}
	log := logger.ForCollector(rs.OrgName)

	for _, w := range rs.Compile() {
		log.Warn().Msg(w)
	}
	if serr := rs.Validate(); serr != nil {
		log.Error().Str("code", serr.Code.String()).Msg(serr.Message)
		return failed(rs.OrgName, serr)
	}

	result = ListResult{OrgName: rs.OrgName, Items: []models.NoticeItem{}}
	var (
		items    []models.NoticeItem
		failures []pageFailure
	)

	run := l.pages.Begin()
	defer func() {
		if err := run.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close render session")
		}
	}()
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("Scrape crashed")
			result.ErrorCode = apperrors.CodeRenderEngine
			result.ErrorMessage = fmt.Sprintf("%s: scrape crashed: %v", rs.OrgName, p)
			result.Items = finalize(items)
			result.Rendered = run.Renders()
		}
	}()

	start, end := rs.Pages()
	if !rs.Paged() && end > start {
		log.Warn().Int("start", start).Int("end", end).Msg("URL has no page placeholder and no paging, visiting one page")
		end = start
	}
	for page := start; page <= end; page++ {
		if ctx.Err() != nil {
			failures = append(failures, pageFailure{page: page, err: ctx.Err()})
			continue
		}
		result.Pages++

		url := rs.PageURL(page)
		got, err := l.scrapePage(ctx, run, rs, url, rs.PagingClicks(page))
		if err != nil {
			log.Warn().Err(err).Int("page", page).Str("url", url).Msg("Page failed")
			failures = append(failures, pageFailure{page: page, err: err})
			if codeOf(err) == apperrors.CodeNextPage {
				log.Warn().Int("page", page).Int("end", end).Msg("Paging stopped")
				break
			}
		} else {
			if debug {
				for _, it := range got {
					log.Debug().Int("page", page).Str("title", it.Title).Str("url", it.DetailURL).Msg("Row")
				}
			}
			items = append(items, got...)
		}

		if page < end && l.pageDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(l.pageDelay):
			}
		}
	}

	result.Items = finalize(items)
	result.Rendered = run.Renders()

	if len(failures) > 0 {
		for _, f := range failures {
			result.FailedPages = append(result.FailedPages, f.page)
		}
		result.ErrorCode = codeOf(failures[0].err)
		msgs := make([]string, 0, len(failures))
		for _, f := range failures {
			msgs = append(msgs, fmt.Sprintf("page %d: %v", f.page, f.err))
		}
		result.ErrorMessage = strings.Join(msgs, "; ")
		if len(failures) == end-start+1 {
			result.Items = []models.NoticeItem{}
		}
	}

	log.Info().
		Int("items", len(result.Items)).
		Int("pages", end-start+1).
		Int("failed", len(failures)).
		Int("rendered", result.Rendered).
		Msg("List scrape finished")
	return result
}

type pageFailure struct {
	page int
	err  error
}

func (l *ListCollector) scrapePage(ctx context.Context, run *FetchRun, rs *ruleset.Ruleset, url string, clicks []string) ([]models.NoticeItem, error) {
	var (
		raw *RawPage
		err error
	)
	if len(clicks) > 0 {
		raw, err = run.FetchClicked(ctx, url, rs, clicks)
	} else {
		raw, err = run.Fetch(ctx, url, rs)
	}
	if err != nil {
		return nil, err
	}
	items, stats, err := l.extractor.Extract(raw.HTML, rs, raw.URL)
	if err != nil {
		return nil, err
	}
	if stats.FirstError != nil {
		logger.ForCollector(rs.OrgName).Warn().
			Int("rows", stats.Rows).
			Int("untitled", stats.Untitled).
			Int("skipped", stats.Skipped).
			Str("code", stats.FirstError.Code.String()).
			Msg(stats.FirstError.Message)
	}
	return items, nil
}

// finalize reverses to newest first, drops untitled and repeated items and
// stamps the scrape time. Items repeat when a board ignores the page number
// or a notice moves to the next page while the run is in progress.
func finalize(items []models.NoticeItem) []models.NoticeItem {
	out := make([]models.NoticeItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	now := helpers.Now()
	for _, it := range slices.Backward(items) {
		if strings.TrimSpace(it.Title) == "" {
			continue
		}
		key := it.DetailURL + "\x00" + it.Title
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		it.ScrapedAt = now
		out = append(out, it)
	}
	return out
}

func codeOf(err error) apperrors.ErrorCode {
	var serr *apperrors.ScrapeError
	if errors.As(err, &serr) {
		return serr.Code
	}
	if errors.Is(err, ErrRenderUnavailable) {
		return apperrors.CodeRenderEngine
	}
	return apperrors.CodePageAccess
}
