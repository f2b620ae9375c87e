package crawler

import (
	"testing"

	apperrors "sjsage522/bidnoticeworker/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDropsUntitledRows(t *testing.T) {
	rs := testRuleset("https://www.example.go.kr/board/list.do", 1, 1)
	rs.Compile()
	require.Nil(t, rs.Validate())

	rows := titles("청사", 10)
	rows[1], rows[4], rows[8] = "", "   ", ""

	items, stats, err := NewExtractor().Extract([]byte(listPage(rows...)), rs, rs.URL)
	require.NoError(t, err)
	assert.Len(t, items, 7)
	assert.Equal(t, 10, stats.Rows)
	assert.Equal(t, 3, stats.Untitled)
	assert.Equal(t, 7, stats.Extracted)
}

func TestExtractKeepsDocumentOrderAndNormalizes(t *testing.T) {
	rs := testRuleset("https://www.example.go.kr/board/list.do", 1, 1)
	rs.Compile()

	items, _, err := NewExtractor().Extract([]byte(listPage(titles("본관", 3)...)), rs, "https://www.example.go.kr/board/list.do?page=1")
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "본관 공고 1", items[0].Title)
	assert.Equal(t, "https://www.example.go.kr/board/view.do?id=1", items[0].DetailURL)
	assert.Equal(t, "2025-01-01", items[0].PostedDate)
	assert.Equal(t, "시설과", items[0].PostedBy)
	assert.Equal(t, "테스트시청", items[0].OrgName)
	assert.Equal(t, "본관 공고 3", items[2].Title)
}

func TestExtractAppliesCallback(t *testing.T) {
	rs := testRuleset("https://www.example.go.kr/board/list.do", 1, 1)
	rs.Elements["detail_url"] = `./td[2]/a|-href|-"https://www.example.go.kr/bid/view?no=" + rst.match('id=(\d+)')[1]`
	rs.Elements["posted_by"] = `./td[4]|-text|-rst.prefix("건축 ")`
	require.Empty(t, rs.Compile())

	items, _, err := NewExtractor().Extract([]byte(listPage("교량 보수")), rs, rs.URL)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://www.example.go.kr/bid/view?no=1", items[0].DetailURL)
	assert.Equal(t, "건축 시설과", items[0].PostedBy)
}

func TestExtractCallbackFailureKeepsRawValue(t *testing.T) {
	rs := testRuleset("https://www.example.go.kr/board/list.do", 1, 1)
	rs.Elements["posted_by"] = `./td[4]|-text|-rst.split("-")[3]`
	require.Empty(t, rs.Compile())

	items, stats, err := NewExtractor().Extract([]byte(listPage("교량 보수")), rs, rs.URL)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "시설과", items[0].PostedBy)
	assert.Equal(t, 1, stats.RowErrors[apperrors.CodeRowParsing])
}

func TestExtractMissingDetailURLFallsBackToPage(t *testing.T) {
	rs := testRuleset("https://www.example.go.kr/board/list.do", 1, 1)
	rs.Elements["detail_url"] = "./td[9]/a"
	rs.Compile()

	items, _, err := NewExtractor().Extract([]byte(listPage("교량 보수")), rs, "https://www.example.go.kr/board/list.do?page=2")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://www.example.go.kr/board/list.do?page=2", items[0].DetailURL)
}

func TestExtractAttributeXPath(t *testing.T) {
	rs := testRuleset("https://www.example.go.kr/board/list.do", 1, 1)
	rs.Elements["detail_url"] = "./td[2]/a/@href|-href"
	rs.Compile()

	items, _, err := NewExtractor().Extract([]byte(listPage("교량 보수")), rs, rs.URL)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://www.example.go.kr/board/view.do?id=1", items[0].DetailURL)
}

func TestExtractSkipsExceptionRows(t *testing.T) {
	rs := testRuleset("https://www.example.go.kr/board/list.do", 1, 1)
	rs.ExceptionRow = "1,-1"
	rs.Compile()

	items, stats, err := NewExtractor().Extract([]byte(listPage(titles("공지", 4)...)), rs, rs.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Skipped)
	assert.Zero(t, stats.Untitled)
	require.Len(t, items, 2)
	assert.Equal(t, "공지 공고 2", items[0].Title)
	assert.Equal(t, "공지 공고 3", items[1].Title)
}

func TestExtractRowErrorCodes(t *testing.T) {
	const page = `<html><body><table><tbody>
<tr><td>1</td><td><a href="javascript:goView(1)">청사 보수</a></td><td>미정</td><td>시설과</td></tr>
<tr><td>2</td><td><a href="view.do?id=2">도로 정비</a></td><td>2025.01.02</td><td>건설과</td></tr>
</tbody></table></body></html>`

	rs := testRuleset("https://www.example.go.kr/board/list.do", 1, 1)
	rs.Elements["title"] = `./td[2]/a|-text|-rst.split(" ")[1]`
	require.Empty(t, rs.Compile())

	items, stats, err := NewExtractor().Extract([]byte(page), rs, rs.URL)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "보수", items[0].Title)
	assert.Equal(t, rs.URL, items[0].DetailURL)
	assert.Equal(t, "미정", items[0].PostedDate)
	assert.Equal(t, 1, stats.RowErrors[apperrors.CodeURLParsing])
	assert.Equal(t, 1, stats.RowErrors[apperrors.CodeDateParsing])
	require.NotNil(t, stats.FirstError)
	assert.Equal(t, apperrors.CodeURLParsing, stats.FirstError.Code)
}

func TestExtractFailsWhenNoRowSurvives(t *testing.T) {
	rs := testRuleset("https://www.example.go.kr/board/list.do", 1, 1)
	rs.Elements["title"] = "./td[7]"
	require.Empty(t, rs.Compile())

	items, stats, err := NewExtractor().Extract([]byte(listPage(titles("청사", 5)...)), rs, rs.URL)
	var serr *apperrors.ScrapeError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, apperrors.CodeTitleParsing, serr.Code)
	assert.Empty(t, items)
	assert.Equal(t, 5, stats.Untitled)
}

func TestExtractEmptyBoardRowIsNotAnError(t *testing.T) {
	const page = `<html><body><table><tbody><tr><td colspan="4">등록된 게시물이 없습니다.</td></tr></tbody></table></body></html>`
	rs := testRuleset("https://www.example.go.kr/board/list.do", 1, 1)
	rs.Compile()

	items, stats, err := NewExtractor().Extract([]byte(page), rs, rs.URL)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 1, stats.Untitled)
}
