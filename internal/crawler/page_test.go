package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "sjsage522/bidnoticeworker/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchUsesLightPageWhenEnoughRows(t *testing.T) {
	const url = "https://www.example.go.kr/list?page=1"
	fetcher := newMockFetcher()
	fetcher.pages[url] = listPage(titles("A", 5)...)
	renderer := newMockRenderer()

	rs := testRuleset(url, 1, 1)
	run := NewPageFetcher(fetcher, renderer, 5, time.Second).Begin()
	defer run.Close()

	page, err := run.Fetch(context.Background(), url, rs)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Rows)
	assert.False(t, page.Rendered)
	assert.Zero(t, renderer.opens)
	assert.Zero(t, renderer.renders)
}

func TestFetchFallsBackToRenderBelowThreshold(t *testing.T) {
	const url = "https://www.example.go.kr/list?page=1"
	fetcher := newMockFetcher()
	fetcher.pages[url] = listPage(titles("A", 4)...)
	renderer := newMockRenderer()
	renderer.pages[url] = listPage(titles("A", 10)...)

	rs := testRuleset(url, 1, 1)
	run := NewPageFetcher(fetcher, renderer, 5, time.Second).Begin()

	page, err := run.Fetch(context.Background(), url, rs)
	require.NoError(t, err)
	assert.Equal(t, 10, page.Rows)
	assert.True(t, page.Rendered)
	assert.Equal(t, 1, renderer.renders)
	assert.Equal(t, 1, fetcher.calls[url])

	require.NoError(t, run.Close())
	assert.Equal(t, 1, renderer.closes)
}

func TestFetchKeepsLightPageWhenRenderIsWorse(t *testing.T) {
	const url = "https://www.example.go.kr/list?page=1"
	fetcher := newMockFetcher()
	fetcher.pages[url] = listPage(titles("A", 3)...)
	renderer := newMockRenderer()
	renderer.pages[url] = listPage(titles("A", 1)...)

	run := NewPageFetcher(fetcher, renderer, 5, time.Second).Begin()
	defer run.Close()

	page, err := run.Fetch(context.Background(), url, testRuleset(url, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, 3, page.Rows)
	assert.False(t, page.Rendered)
}

func TestFetchRenderFailureKeepsLightPage(t *testing.T) {
	const url = "https://www.example.go.kr/list?page=1"
	fetcher := newMockFetcher()
	fetcher.pages[url] = listPage(titles("A", 2)...)
	renderer := newMockRenderer()

	run := NewPageFetcher(fetcher, renderer, 5, time.Second).Begin()
	defer run.Close()

	page, err := run.Fetch(context.Background(), url, testRuleset(url, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, page.Rows)
	assert.Equal(t, 1, renderer.renders)
}

func TestFetchWithoutRendererReturnsLightError(t *testing.T) {
	const url = "https://www.example.go.kr/list?page=1"
	fetcher := newMockFetcher()
	netErr := apperrors.NewNetwork("www.example.go.kr", "request failed", errors.New("connection reset"))
	fetcher.errs[url] = netErr

	run := NewPageFetcher(fetcher, nil, 5, time.Second).Begin()
	defer run.Close()

	_, err := run.Fetch(context.Background(), url, testRuleset(url, 1, 1))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNetwork))
}

func TestSessionOpenedOncePerRun(t *testing.T) {
	fetcher := newMockFetcher()
	renderer := newMockRenderer()
	rs := testRuleset("https://www.example.go.kr/list?page=${i}", 1, 3)
	for page := 1; page <= 3; page++ {
		url := rs.PageURL(page)
		fetcher.pages[url] = listPage(titles("A", 1)...)
		renderer.pages[url] = listPage(titles("A", 6)...)
	}

	run := NewPageFetcher(fetcher, renderer, 5, time.Second).Begin()
	for page := 1; page <= 3; page++ {
		_, err := run.Fetch(context.Background(), rs.PageURL(page), rs)
		require.NoError(t, err)
	}
	require.NoError(t, run.Close())

	assert.Equal(t, 1, renderer.opens)
	assert.Equal(t, 3, renderer.renders)
	assert.Equal(t, 1, renderer.closes)
	assert.Equal(t, 3, run.Renders())
}

func TestFetchFollowsIframe(t *testing.T) {
	const (
		outer = "https://www.example.go.kr/bbs/main.do"
		inner = "https://www.example.go.kr/bbs/frame/list.do"
	)
	fetcher := newMockFetcher()
	fetcher.pages[outer] = `<html><head><title>공고</title></head><body><div class="wrap"><iframe id="board" src="frame/list.do"></iframe></div></body></html>`
	fetcher.pages[inner] = listPage(titles("B", 5)...)

	rs := testRuleset(outer, 1, 1)
	rs.Iframe = "#board"
	run := NewPageFetcher(fetcher, nil, 5, time.Second).Begin()
	defer run.Close()

	page, err := run.Fetch(context.Background(), outer, rs)
	require.NoError(t, err)
	assert.Equal(t, inner, page.URL)
	assert.Equal(t, 5, page.Rows)

	rs.Iframe = "//iframe[@id='board']"
	page, err = run.Fetch(context.Background(), outer, rs)
	require.NoError(t, err)
	assert.Equal(t, inner, page.URL)
}

func TestFetchMissingIframe(t *testing.T) {
	const outer = "https://www.example.go.kr/bbs/main.do"
	fetcher := newMockFetcher()
	fetcher.pages[outer] = listPage(titles("B", 5)...)

	rs := testRuleset(outer, 1, 1)
	rs.Iframe = "#board"
	run := NewPageFetcher(fetcher, nil, 5, time.Second).Begin()
	defer run.Close()

	_, err := run.Fetch(context.Background(), outer, rs)
	var serr *apperrors.ScrapeError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, apperrors.CodeIframe, serr.Code)
}
