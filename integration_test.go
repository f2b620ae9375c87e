package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"sjsage522/bidnoticeworker/config"
	"sjsage522/bidnoticeworker/internal/models"
	"sjsage522/bidnoticeworker/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listing page of a municipal bid board
const testListHTML = `
<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>입찰공고</title></head>
<body>
<table class="board">
  <tbody>
    <tr><td>2</td><td class="subject"><a href="view.do?id=2">본관 내진 보강 공사</a></td><td>2025.01.15</td><td>건축과</td></tr>
    <tr><td>1</td><td class="subject"><a href="view.do?id=1">청사 청소 용역</a></td><td>2025.01.14</td><td>총무과</td></tr>
  </tbody>
</table>
</body>
</html>
`

const testRulesetYAML = `
rulesets:
  - org_name: 테스트시청
    url: %s/board/list.do?page=${i}
    row_xpath: //table[@class="board"]/tbody/tr
    start_page: 1
    end_page: 1
    use: true
    elements:
      title: ./td[2]/a
      detail_url: ./td[2]/a
      posted_date: ./td[3]
      posted_by: ./td[4]
`

func dataAPIPage(page int) []byte {
	var items any = ""
	if page == 1 {
		items = map[string]any{"item": []map[string]any{
			{
				"bidNtceNo":     "R25BK00000001",
				"bidNtceOrd":    "000",
				"bidNtceNm":     "통합 서버 구축 사업",
				"ntceInsttNm":   "조달청",
				"bidNtceDt":     "2025-01-15 09:00:00",
				"asignBdgtAmt":  "150000000",
				"bidNtceDtlUrl": "https://www.g2b.go.kr/link/R25BK00000001",
			},
			{
				"bidNtceNo":   "R25BK00000002",
				"bidNtceOrd":  "000",
				"bidNtceNm":   "청사 내진 보강 설계 용역",
				"ntceInsttNm": "서울특별시",
				"bidNtceDt":   "2025-01-15 10:30:00",
			},
		}}
	}
	body, _ := json.Marshal(map[string]any{
		"response": map[string]any{
			"header": map[string]any{"resultCode": "00", "resultMsg": "NORMAL SERVICE."},
			"body": map[string]any{
				"items":      items,
				"numOfRows":  10,
				"pageNo":     page,
				"totalCount": 2,
			},
		},
	})
	return body
}

func newTestApp(t *testing.T) *App {
	t.Helper()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("pageNo"))
		w.Header().Set("Content-Type", "application/json;charset=UTF-8")
		w.Write(dataAPIPage(page))
	}))
	t.Cleanup(api.Close)

	board := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(testListHTML))
	}))
	t.Cleanup(board.Close)

	dir := t.TempDir()
	rulesetPath := filepath.Join(dir, "rulesets.yaml")
	require.NoError(t, os.WriteFile(rulesetPath, []byte(fmt.Sprintf(testRulesetYAML, board.URL)), 0o644))

	cfg := &config.Config{
		DatabaseDriver:         "sqlite",
		DatabaseURL:            "file:" + filepath.Join(dir, "bidnotice.db"),
		DatabaseMaxConns:       1,
		RedisStreamCount:       1,
		CacheMaxEntries:        100,
		CollectInterval:        time.Hour,
		DataAPIBaseURL:         api.URL,
		DataAPIServiceKey:      "test-key",
		DataAPINumOfRows:       10,
		DataAPIMaxPages:        3,
		DataAPIFormat:          "json",
		KeywordMatchLimit:      100,
		FetchBackend:           "http",
		FetchTimeout:           5 * time.Second,
		RateLimitBlock:         time.Minute,
		RenderEngine:           "none",
		RenderMinRows:          1,
		RulesetSource:          rulesetPath,
		DetailFailureThreshold: 0.5,
		Environment:            "test",
	}
	require.NoError(t, cfg.Validate())

	a, err := newApp(context.Background(), cfg, false)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

// TestIntegration runs an API collection and a scrape against the same store
func TestIntegration(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	require.NoError(t, a.Store.SaveCategorySetting(ctx, models.CategorySetting{
		Category: models.CategoryConstruction,
		Keywords: "내진*3,보강*2",
		MinPoint: 2,
	}, 1))

	res := a.Orchestrator.CollectToday(ctx, service.DefaultCollectOptions())
	require.True(t, res.Success, "errors: %v %v", res.CollectionResult.Errors, res.Errors)
	assert.Equal(t, 2, res.CollectionResult.CollectedCount)
	assert.Equal(t, 2, res.CollectionResult.NewCount)
	assert.Len(t, res.NewNotices, 2)
	require.NotNil(t, res.KeywordProcessing)
	assert.Equal(t, 2, res.KeywordProcessing.Processed)

	orgs, err := a.Workflow.ActiveAgencies(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"테스트시청"}, orgs)

	batch := a.Workflow.RunAgencies(ctx, orgs, false)
	assert.Zero(t, batch.ErrorAgencies, "errors: %v", batch.Errors)
	assert.Equal(t, 2, batch.TotalScraped)
	assert.Equal(t, 2, batch.TotalNew)
	// 청소 용역 is unrelated and not stored
	assert.Equal(t, 1, batch.TotalInserted)
	require.Len(t, batch.Inserted, 1)
	assert.Equal(t, "본관 내진 보강 공사", batch.Inserted[0].BidNoticeName)
	assert.Equal(t, models.CategoryConstruction, batch.Inserted[0].Category)

	stats, err := a.Orchestrator.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalNotices)
	assert.Equal(t, 1, stats.ScrapedNotices)
	require.NotNil(t, stats.LastCollection)
	assert.Equal(t, models.StatusCompleted, stats.LastCollection.Status)

	// a second worker cycle sees nothing new
	cycle := a.Worker().RunOnce(ctx)
	assert.Zero(t, cycle.Collection.CollectionResult.NewCount)
	require.NotNil(t, cycle.Scrape)
	assert.Zero(t, cycle.Scrape.TotalInserted)
	assert.Zero(t, cycle.Published)

	rec := httptest.NewRecorder()
	a.APIServer().Echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status models.ProcessingStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 3, status.Total)
	assert.Zero(t, status.Unprocessed)
}
