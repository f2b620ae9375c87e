package crawler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const detailHTML = `<html><head><title>공고</title><script>var x = 1;</script></head>
<body>
<div class="header">기관 홈페이지</div>
<div class="view-content">
  <h3>2025년 본관 내진보강공사 설계용역 입찰공고</h3>
  <p>1. 입찰에 부치는 사항: 본관 내진보강공사 실시설계 용역 일체. 용역기간은 착수일로부터 120일입니다.</p>
  <p>2. 입찰참가자격: 엔지니어링산업 진흥법에 따른 건축 분야 사업자.</p>
</div>
<div class="attach">
  <a href="/files/notice.hwp">공고문.hwp</a>
  <a href="/common/down.do?file=spec.pdf">과업지시서</a>
  <a href="/board/list.do">목록</a>
</div>
<a href="/files/notice.hwp">공고문.hwp</a>
<a class="file" href="javascript:download(3)">첨부3</a>
</body></html>`

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestExtractContentFromSelector(t *testing.T) {
	d := NewDetailCollector(nil, nil, 0)
	content := d.ExtractContent(parseDoc(t, detailHTML), "https://www.example.go.kr/board/view.do?id=1")

	assert.Contains(t, content, "내진보강공사 실시설계")
	assert.Contains(t, content, "입찰참가자격")
	assert.NotContains(t, content, "기관 홈페이지")
	assert.NotContains(t, content, "var x")
}

func TestExtractContentFallsBackToBody(t *testing.T) {
	d := NewDetailCollector(nil, nil, 0)
	html := `<html><body><div class="content">짧은 본문</div><p>  공고   내용 </p></body></html>`
	content := d.ExtractContent(parseDoc(t, html), "https://www.example.go.kr/")
	assert.Equal(t, "짧은 본문 공고 내용", content)
}

func TestExtractAttachments(t *testing.T) {
	got := ExtractAttachments(parseDoc(t, detailHTML), "https://www.example.go.kr/board/view.do?id=1")
	require.Len(t, got, 2)

	urls := []string{got[0].URL, got[1].URL}
	assert.ElementsMatch(t, []string{
		"https://www.example.go.kr/files/notice.hwp",
		"https://www.example.go.kr/common/down.do?file=spec.pdf",
	}, urls)
	for _, a := range got {
		if a.URL == "https://www.example.go.kr/files/notice.hwp" {
			assert.Equal(t, "공고문.hwp", a.Filename)
		}
	}
}

func TestCollectDetailsDryRun(t *testing.T) {
	store := &mockDetailStore{}
	d := NewDetailCollector(store, NewPageFetcher(newMockFetcher(), nil, 5, time.Second), 0)

	res := d.CollectDetails(context.Background(), DetailOptions{Limit: 7, DryRun: true})
	assert.True(t, res.Success)
	assert.Equal(t, 7, res.Processed)
	assert.Zero(t, res.Updated)

	res = d.CollectDetails(context.Background(), DetailOptions{NoticeID: "WEB-1", DryRun: true})
	assert.Equal(t, 1, res.Processed)
	assert.Empty(t, store.saved)
}

func TestCollectDetails(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.pages["https://www.example.go.kr/view.do?id=1"] = detailHTML
	fetcher.pages["https://www.example.go.kr/view.do?id=2"] = detailHTML
	store := &mockDetailStore{targets: []DetailTarget{
		{NoticeNo: "WEB-1", Title: "설계용역", URL: "https://www.example.go.kr/view.do?id=1", OrgName: "테스트시청"},
		{NoticeNo: "WEB-2", Title: "설계용역2", URL: "https://www.example.go.kr/view.do?id=2", OrgName: "테스트시청"},
		{NoticeNo: "WEB-3", Title: "링크없음", OrgName: "테스트시청"},
	}}
	d := NewDetailCollector(store, NewPageFetcher(fetcher, nil, 5, time.Second), 0.5)

	res := d.CollectDetails(context.Background(), DetailOptions{OrgName: "테스트시청", Limit: 5})

	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 2, res.Updated)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "WEB-3")
	assert.True(t, res.Success)
	assert.Equal(t, DetailQuery{OrgName: "테스트시청", Limit: 5}, store.query)

	saved := store.saved["WEB-1"]
	assert.Equal(t, "설계용역", saved.Title)
	assert.Len(t, saved.Attachments, 2)
	assert.NotEmpty(t, saved.Content)
	assert.NotEmpty(t, saved.ScrapedAt)
}

func TestCollectDetailsFailureThreshold(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.pages["https://www.example.go.kr/view.do?id=1"] = detailHTML
	store := &mockDetailStore{targets: []DetailTarget{
		{NoticeNo: "1", URL: "https://www.example.go.kr/view.do?id=1"},
		{NoticeNo: "2", URL: "https://www.example.go.kr/view.do?id=2"},
	}}
	d := NewDetailCollector(store, NewPageFetcher(fetcher, nil, 5, time.Second), 0.5)

	// 1 error of 2 processed is not below half
	res := d.CollectDetails(context.Background(), DetailOptions{})
	assert.False(t, res.Success)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Updated)

	res = d.CollectDetails(context.Background(), DetailOptions{FailureThreshold: 0.6})
	assert.True(t, res.Success)
}

func TestIsDocument(t *testing.T) {
	assert.True(t, isDocument("https://x/files/a.HWP"))
	assert.True(t, isDocument("https://x/down.do?name=spec.xlsx"))
	assert.True(t, isDocument("과업지시서.pdf"))
	assert.False(t, isDocument("https://x/board/list.do"))
	assert.False(t, isDocument(strings.Repeat("a", 3)))
}
