package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sjsage522/bidnoticeworker/internal/crawler"
	"sjsage522/bidnoticeworker/internal/dataapi"
	"sjsage522/bidnoticeworker/internal/models"
	"sjsage522/bidnoticeworker/internal/ruleset"
)

var (
	_ NoticeSource   = (*fakeSource)(nil)
	_ NoticeStore    = (*fakeStore)(nil)
	_ ScrapeStore    = (*fakeStore)(nil)
	_ KeywordMatcher = (*fakeMatcher)(nil)
	_ ListScraper    = (*fakeScraper)(nil)
	_ RulesetLister  = (*fakeRulesets)(nil)
)

type fakeSource struct {
	mu     sync.Mutex
	byDay  map[string][]models.RawItem
	errs   map[string]error
	days   []string
	filter []dataapi.Filters
}

func newFakeSource() *fakeSource {
	return &fakeSource{byDay: map[string][]models.RawItem{}, errs: map[string]error{}}
}

func (f *fakeSource) FetchAllPages(_ context.Context, dr dataapi.DateRange, filters dataapi.Filters, _ int) ([]models.RawItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	day := dr.Start.Format(time.DateOnly)
	f.days = append(f.days, day)
	f.filter = append(f.filter, filters)
	return f.byDay[day], f.errs[day]
}

func rawNotice(no, name string) models.RawItem {
	return models.RawItem{
		"bidNtceNo":   no,
		"bidNtceOrd":  "000",
		"bidNtceNm":   name,
		"ntceInsttNm": "조달청",
		"bidNtceDt":   "2025-01-15 10:00:00",
	}
}

type fakeStore struct {
	mu sync.Mutex

	existing  map[string]bool
	saveErrs  map[string]error
	saved     []*models.BidNotice
	logs      []models.CollectionLog
	logErr    error
	settings  []models.CategorySetting
	scrapes   []models.ScrapingLog
	errorOrgs [][]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{existing: map[string]bool{}, saveErrs: map[string]error{}}
}

func (s *fakeStore) SaveBidNotices(_ context.Context, notices []*models.BidNotice) models.SaveResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := models.SaveResult{Errors: []string{}}
	for _, n := range notices {
		if err := s.saveErrs[n.BidNoticeNo]; err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", n.BidNoticeNo, err))
			continue
		}
		res.Saved++
		s.saved = append(s.saved, n)
		if s.existing[n.BidNoticeNo] {
			res.UpdatedCount++
			continue
		}
		s.existing[n.BidNoticeNo] = true
		res.NewCount++
		res.Inserted = append(res.Inserted, n)
	}
	return res
}

func (s *fakeStore) SaveCollectionLog(_ context.Context, l models.CollectionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logErr != nil {
		return s.logErr
	}
	s.logs = append(s.logs, l)
	return nil
}

func (s *fakeStore) Statistics(context.Context) (models.Statistics, error) {
	return models.Statistics{TotalNotices: len(s.existing)}, nil
}

func (s *fakeStore) ProcessingStatus(context.Context) (models.ProcessingStatus, error) {
	return models.ProcessingStatus{Total: len(s.existing), Unprocessed: len(s.existing)}, nil
}

func (s *fakeStore) CategorySettings(context.Context) ([]models.CategorySetting, error) {
	return s.settings, nil
}

func (s *fakeStore) FilterNew(_ context.Context, notices []*models.BidNotice) ([]*models.BidNotice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.BidNotice
	for _, n := range notices {
		if !s.existing[n.BidNoticeNo] {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *fakeStore) SaveScrapingLogs(_ context.Context, logs []models.ScrapingLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrapes = append(s.scrapes, logs...)
	return nil
}

func (s *fakeStore) SaveErrorScraping(_ context.Context, orgs []string, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorOrgs = append(s.errorOrgs, orgs)
	return nil
}

type fakeMatcher struct {
	limits     []int
	reprocess  int
	err        error
	processing models.KeywordProcessingResult
}

func (m *fakeMatcher) ApplyKeywordMatching(_ context.Context, limit int) (models.KeywordProcessingResult, error) {
	m.limits = append(m.limits, limit)
	return m.processing, m.err
}

func (m *fakeMatcher) Reprocess(_ context.Context, limit int) (models.KeywordProcessingResult, error) {
	m.reprocess++
	m.limits = append(m.limits, limit)
	return m.processing, m.err
}

type fakeScraper struct {
	results map[string]crawler.ListResult
	calls   []string
}

func (f *fakeScraper) ScrapeList(_ context.Context, org string, _ bool) crawler.ListResult {
	f.calls = append(f.calls, org)
	if r, ok := f.results[org]; ok {
		return r
	}
	return crawler.ListResult{OrgName: org, Items: []models.NoticeItem{}}
}

type fakeRulesets struct {
	orgs []string
	err  error
}

func (f *fakeRulesets) ListActive(context.Context) ([]*ruleset.Ruleset, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*ruleset.Ruleset, len(f.orgs))
	for i, org := range f.orgs {
		out[i] = &ruleset.Ruleset{OrgName: org}
	}
	return out, nil
}

var errBoom = errors.New("boom")
