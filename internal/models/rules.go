package models

// Match types for keyword rules
const (
	MatchExact    = "exact"
	MatchContains = "contains"
	MatchRegex    = "regex"
)

// Display categories used for scraped notices
const (
	CategoryUnrelated    = "무관"
	CategoryConstruction = "공사점검"
	CategoryPerformance  = "성능평가"
	CategoryOther        = "기타"
)

// KeywordRule is one weighted keyword used by the classifier
type KeywordRule struct {
	ID         int64   `json:"id" yaml:"-"`
	Keyword    string  `json:"keyword" yaml:"keyword"`
	Category   string  `json:"category" yaml:"category"`
	Weight     float64 `json:"weight" yaml:"weight"`
	MatchField string  `json:"match_field" yaml:"match_field"`
	MatchType  string  `json:"match_type" yaml:"match_type"`
	IsNegative bool    `json:"is_negative" yaml:"is_negative"`
	IsActive   bool    `json:"is_active" yaml:"is_active"`
}

// CategorySetting is the per-category keyword configuration used for scraped
// notices. Keywords use the "kw*weight,kw2" syntax and Nots is a comma list.
type CategorySetting struct {
	Category string  `json:"category" yaml:"category"`
	Keywords string  `json:"keywords" yaml:"keywords"`
	Nots     string  `json:"nots" yaml:"nots"`
	MinPoint float64 `json:"min_point" yaml:"min_point"`
}

// MatchResult is the classification of one notice
type MatchResult struct {
	NoticeNo       string             `json:"notice_no"`
	Category       string             `json:"category"`
	Keywords       []string           `json:"keywords"`
	Score          float64            `json:"score"`
	CategoryScores map[string]float64 `json:"category_scores,omitempty"`
}

// Matched reports whether a category was assigned
func (m MatchResult) Matched() bool {
	return m.Category != ""
}
