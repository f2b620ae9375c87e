package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"sjsage522/bidnoticeworker/helpers"
	"sjsage522/bidnoticeworker/internal/models"
	"sjsage522/bidnoticeworker/internal/ruleset"
	"sjsage522/bidnoticeworker/services/cache"
)

// MockCacheService implements a simple in-memory cache for testing
type MockCacheService struct {
	mu    sync.Mutex
	cache map[string][]byte
}

var _ cache.CacheService = (*MockCacheService)(nil)

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{cache: make(map[string][]byte)}
}

func (m *MockCacheService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.cache[key]; ok {
		return val, nil
	}
	return nil, cache.ErrMiss
}

func (m *MockCacheService) Set(key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = value
	return nil
}

func (m *MockCacheService) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
	return nil
}

// mockFetcher serves canned pages by url
type mockFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls map[string]int
	total int
}

var _ Fetcher = (*mockFetcher)(nil)

func newMockFetcher() *mockFetcher {
	return &mockFetcher{
		pages: make(map[string]string),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (m *mockFetcher) Fetch(_ context.Context, url string) (*helpers.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[url]++
	m.total++
	if err, ok := m.errs[url]; ok {
		return nil, err
	}
	body, ok := m.pages[url]
	if !ok {
		return nil, fmt.Errorf("no fixture for %s", url)
	}
	return &helpers.Page{Body: []byte(body), FinalURL: url, ContentType: "text/html; charset=utf-8", StatusCode: 200}, nil
}

// mockRenderer counts sessions and renders. Pages reached by clicking are
// keyed by clickKey.
type mockRenderer struct {
	mu      sync.Mutex
	pages   map[string]string
	clicked map[string]string
	errs    map[string]error
	opens   int
	closes  int
	renders int
	clicks  [][]string
	openErr error
	panicOn string
}

var _ Renderer = (*mockRenderer)(nil)

func newMockRenderer() *mockRenderer {
	return &mockRenderer{
		pages:   make(map[string]string),
		clicked: make(map[string]string),
		errs:    make(map[string]error),
	}
}

func clickKey(url string, clicks ...string) string {
	return url + "#" + strings.Join(clicks, "|")
}

func (m *mockRenderer) Name() string { return "mock" }

func (m *mockRenderer) Open(context.Context) (RenderSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.opens++
	return &mockSession{r: m}, nil
}

type mockSession struct {
	r *mockRenderer
}

func (s *mockSession) Render(_ context.Context, url string, opts RenderOptions) (*helpers.Page, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if s.r.panicOn == url {
		panic("browser crashed")
	}
	s.r.renders++
	if err, ok := s.r.errs[url]; ok {
		return nil, err
	}
	body, ok := s.r.pages[url]
	if len(opts.Click) > 0 {
		s.r.clicks = append(s.r.clicks, opts.Click)
		body, ok = s.r.clicked[clickKey(url, opts.Click...)]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrPagingNotFound, opts.Click[len(opts.Click)-1])
		}
	}
	if !ok {
		return nil, fmt.Errorf("navigate %s: net::ERR_NAME_NOT_RESOLVED", url)
	}
	return &helpers.Page{Body: []byte(body), FinalURL: url, StatusCode: 200}, nil
}

func (s *mockSession) Close() error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.closes++
	return nil
}

// mockDetailStore records saved details
type mockDetailStore struct {
	targets []DetailTarget
	saved   map[string]models.NoticeDetail
	query   DetailQuery
}

var _ DetailStore = (*mockDetailStore)(nil)

func (m *mockDetailStore) DetailCandidates(_ context.Context, q DetailQuery) ([]DetailTarget, error) {
	m.query = q
	return m.targets, nil
}

func (m *mockDetailStore) SaveDetail(_ context.Context, noticeNo string, d models.NoticeDetail) error {
	if m.saved == nil {
		m.saved = make(map[string]models.NoticeDetail)
	}
	m.saved[noticeNo] = d
	return nil
}

// listPage renders a table with one row per title. An empty title produces a
// row without a link text.
func listPage(titles ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><table><tbody>")
	for i, t := range titles {
		fmt.Fprintf(&b, `<tr><td class="no">%d</td><td class="subject"><a href="view.do?id=%d">%s</a></td><td class="date">2025.01.%02d</td><td>시설과</td></tr>`, i+1, i+1, t, i+1)
	}
	b.WriteString("</tbody></table></body></html>")
	return b.String()
}

func titles(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s 공고 %d", prefix, i+1)
	}
	return out
}

func testRuleset(url string, start, end int) *ruleset.Ruleset {
	return &ruleset.Ruleset{
		OrgName:   "테스트시청",
		URL:       url,
		RowXPath:  "//table/tbody/tr",
		StartPage: start,
		EndPage:   end,
		Use:       true,
		Elements: map[string]string{
			"title":       "./td[2]/a",
			"detail_url":  "./td[2]/a",
			"posted_date": "./td[3]",
			"posted_by":   "./td[4]",
		},
	}
}
