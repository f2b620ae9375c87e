package classifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"sjsage522/bidnoticeworker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rule(kw, cat string, w float64) models.KeywordRule {
	return models.KeywordRule{
		Keyword:    kw,
		Category:   cat,
		Weight:     w,
		MatchField: models.FieldTitle,
		MatchType:  models.MatchContains,
		IsActive:   true,
	}
}

func TestClassifyScoresAndKeywords(t *testing.T) {
	c := New([]models.KeywordRule{
		rule("내진", models.CategoryConstruction, 3),
		rule("보강", models.CategoryConstruction, 2),
	}, nil)

	m := c.Classify(models.NoticeText{NoticeNo: "N1", Title: "본관 내진 보강 공사"})
	assert.Equal(t, models.CategoryConstruction, m.Category)
	assert.Equal(t, 5.0, m.Score)
	assert.ElementsMatch(t, []string{"내진", "보강"}, m.Keywords)
	assert.True(t, m.Matched())
}

func TestClassifyMinPoint(t *testing.T) {
	rules, policies := FromCategorySettings([]models.CategorySetting{
		{Category: models.CategoryConstruction, Keywords: "내진*3,보강*2", MinPoint: 6},
	})
	c := New(rules, policies)

	m := c.Classify(models.NoticeText{Title: "본관 내진 보강 공사"})
	assert.False(t, m.Matched())
	assert.Empty(t, m.Keywords)
	assert.Zero(t, m.Score)
}

func TestClassifyNots(t *testing.T) {
	rules, policies := FromCategorySettings([]models.CategorySetting{
		{Category: models.CategoryPerformance, Keywords: "성능평가*5", Nots: "취소, 연기"},
	})
	c := New(rules, policies)

	assert.Equal(t, models.CategoryPerformance, c.Classify(models.NoticeText{Title: "교량 성능평가 용역"}).Category)
	assert.False(t, c.Classify(models.NoticeText{Title: "교량 성능평가 용역 (취소)"}).Matched())
}

func TestClassifyNegativeRule(t *testing.T) {
	r := rule("철거", "일반", 1)
	r.IsNegative = true
	c := New([]models.KeywordRule{r}, nil)

	assert.True(t, c.Classify(models.NoticeText{Title: "청사 보수 공사"}).Matched())
	assert.False(t, c.Classify(models.NoticeText{Title: "청사 철거 공사"}).Matched())
}

func TestClassifyMatchTypes(t *testing.T) {
	exact := rule("서버 구축", "IT", 1)
	exact.MatchType = models.MatchExact
	regex := rule(`^db\s*이중화`, "DB", 1)
	regex.MatchType = models.MatchRegex
	bad := rule(`([`, "BAD", 100)
	bad.MatchType = models.MatchRegex

	c := New([]models.KeywordRule{exact, regex, bad}, nil)
	assert.Equal(t, 2, c.RuleCount())

	assert.Equal(t, "IT", c.Classify(models.NoticeText{Title: "서버 구축"}).Category)
	assert.False(t, c.Classify(models.NoticeText{Title: "서버 구축 용역"}).Matched())
	assert.Equal(t, "DB", c.Classify(models.NoticeText{Title: "DB 이중화 사업"}).Category)
}

func TestClassifyCaseInsensitive(t *testing.T) {
	c := New([]models.KeywordRule{rule("CCTV", "보안", 1)}, nil)
	assert.True(t, c.Classify(models.NoticeText{Title: "방범 cctv 설치"}).Matched())
}

func TestClassifyFieldsAndAll(t *testing.T) {
	dept := rule("조달청", "기관", 1)
	dept.MatchField = models.FieldDeptName
	all := rule("유지보수", "운영", 1)
	all.MatchField = models.FieldAll

	c := New([]models.KeywordRule{dept, all}, nil)

	m := c.Classify(models.NoticeText{Title: "전산장비", DeptName: "조달청", Industry: "유지보수"})
	assert.Equal(t, 2.0, m.Score)
	assert.Equal(t, map[string]float64{"기관": 1, "운영": 1}, m.CategoryScores)

	m = c.Classify(models.NoticeText{Title: "조달청 유지보수"})
	assert.Equal(t, "운영", m.Category)
	assert.Equal(t, 1.0, m.Score)
}

func TestClassifyTieBreakIsLexicographic(t *testing.T) {
	c := New([]models.KeywordRule{
		rule("점검", "나", 2),
		rule("안전", "가", 2),
	}, nil)

	m := c.Classify(models.NoticeText{Title: "안전 점검"})
	assert.Equal(t, "가", m.Category)
	assert.Equal(t, 4.0, m.Score)
}

func TestClassifyHighestScoreWins(t *testing.T) {
	c := New([]models.KeywordRule{
		rule("설계", "가", 1),
		rule("감리", "나", 3),
	}, nil)
	assert.Equal(t, "나", c.Classify(models.NoticeText{Title: "설계 감리"}).Category)
}

func TestInactiveAndDefaults(t *testing.T) {
	inactive := rule("공사", "A", 1)
	inactive.IsActive = false
	noWeight := models.KeywordRule{Keyword: "용역", Category: "B", IsActive: true}

	c := New([]models.KeywordRule{inactive, noWeight}, nil)
	assert.Equal(t, 1, c.RuleCount())

	m := c.Classify(models.NoticeText{Title: "공사 용역"})
	assert.Equal(t, "B", m.Category)
	assert.Equal(t, 1.0, m.Score)
}

func TestParseKeywordWeights(t *testing.T) {
	got := ParseKeywordWeights(" 내진*3, 보강 ,,안전진단*1.5,잘못*x")
	assert.Equal(t, []KeywordWeight{
		{"내진", 3}, {"보강", 1}, {"안전진단", 1.5}, {"잘못", 1},
	}, got)
	assert.Equal(t, []string{"a", "b"}, ParseNots("a, ,b"))
}

func TestDisplayCategory(t *testing.T) {
	assert.Equal(t, models.CategoryUnrelated, DisplayCategory(""))
	assert.Equal(t, models.CategoryPerformance, DisplayCategory(models.CategoryPerformance))
	assert.Equal(t, models.CategoryOther, DisplayCategory("IT/소프트웨어"))
}

func TestLoadRulesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`rules:
  - keyword: 소프트웨어
    category: IT/소프트웨어
    weight: 10
    match_field: all
    match_type: contains
  - keyword: 폐기
    category: 기타
    is_active: false
categories:
  - category: 공사점검
    keywords: 정밀점검*3,안전점검*2
    nots: 취소
    min_point: 2
`), 0o644))

	rules, cats, err := LoadRulesFile(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.True(t, rules[0].IsActive)
	assert.False(t, rules[1].IsActive)
	require.Len(t, cats, 1)
	assert.Equal(t, 2.0, cats[0].MinPoint)
}

type fakeStore struct {
	rules    []models.KeywordRule
	notices  []models.NoticeText
	saved    []models.MatchResult
	failOn   string
	resetCnt int
}

var _ Store = (*fakeStore)(nil)

func (f *fakeStore) ActiveKeywordRules(context.Context) ([]models.KeywordRule, error) {
	return f.rules, nil
}

func (f *fakeStore) UnprocessedNotices(_ context.Context, limit int) ([]models.NoticeText, error) {
	if limit < len(f.notices) {
		return f.notices[:limit], nil
	}
	return f.notices, nil
}

func (f *fakeStore) SaveClassification(_ context.Context, m models.MatchResult) error {
	if m.NoticeNo == f.failOn {
		return errors.New("db down")
	}
	f.saved = append(f.saved, m)
	return nil
}

func (f *fakeStore) ResetClassification(context.Context) (int64, error) {
	f.resetCnt++
	return int64(len(f.notices)), nil
}

func TestApplyKeywordMatching(t *testing.T) {
	store := &fakeStore{
		rules: []models.KeywordRule{rule("서버", "하드웨어/네트워크", 10)},
		notices: []models.NoticeText{
			{NoticeNo: "1", Title: "서버 도입"},
			{NoticeNo: "2", Title: "청소 용역"},
			{NoticeNo: "3", Title: "서버 교체"},
		},
		failOn: "3",
	}

	res, err := NewService(store).ApplyKeywordMatching(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, store.saved, 2)
	assert.False(t, store.saved[1].Matched())
}

func TestApplyKeywordMatchingWithoutRules(t *testing.T) {
	store := &fakeStore{notices: []models.NoticeText{{NoticeNo: "1", Title: "서버"}}}
	res, err := NewService(store).ApplyKeywordMatching(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.Empty(t, store.saved)
}

func TestReprocess(t *testing.T) {
	store := &fakeStore{
		rules:   []models.KeywordRule{rule("서버", "HW", 1)},
		notices: []models.NoticeText{{NoticeNo: "1", Title: "서버"}},
	}
	res, err := NewService(store).Reprocess(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, store.resetCnt)
	assert.Equal(t, 1, res.Matched)
}
