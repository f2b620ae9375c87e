package classifier

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"sjsage522/bidnoticeworker/internal/models"

	"gopkg.in/yaml.v3"
)

// KeywordWeight is one entry of a "키워드*가중치,키워드" list
type KeywordWeight struct {
	Keyword string
	Weight  float64
}

// ParseKeywordWeights parses "kw*weight,kw2". A missing or unparseable
// weight counts as 1.
func ParseKeywordWeights(s string) []KeywordWeight {
	var out []KeywordWeight
	for _, part := range strings.Split(s, ",") {
		kw, w, _ := strings.Cut(part, "*")
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		weight := 1.0
		if f, err := strconv.ParseFloat(strings.TrimSpace(w), 64); err == nil {
			weight = f
		}
		out = append(out, KeywordWeight{Keyword: kw, Weight: weight})
	}
	return out
}

// ParseNots splits a comma separated exclusion list
func ParseNots(s string) []string {
	var out []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// FromCategorySettings converts category settings into title rules and
// policies
func FromCategorySettings(settings []models.CategorySetting) ([]models.KeywordRule, map[string]Policy) {
	var rules []models.KeywordRule
	policies := make(map[string]Policy, len(settings))

	for _, s := range settings {
		for _, kw := range ParseKeywordWeights(s.Keywords) {
			rules = append(rules, models.KeywordRule{
				Keyword:    kw.Keyword,
				Category:   s.Category,
				Weight:     kw.Weight,
				MatchField: models.FieldTitle,
				MatchType:  models.MatchContains,
				IsActive:   true,
			})
		}
		policies[s.Category] = Policy{Nots: ParseNots(s.Nots), MinPoint: s.MinPoint}
	}
	return rules, policies
}

type fileRule struct {
	Keyword    string  `yaml:"keyword"`
	Category   string  `yaml:"category"`
	Weight     float64 `yaml:"weight"`
	MatchField string  `yaml:"match_field"`
	MatchType  string  `yaml:"match_type"`
	IsNegative bool    `yaml:"is_negative"`
	IsActive   *bool   `yaml:"is_active"`
}

type rulesFile struct {
	Rules      []fileRule               `yaml:"rules"`
	Categories []models.CategorySetting `yaml:"categories"`
}

// LoadRulesFile reads keyword rules and category settings from YAML. Rules
// without is_active are active.
func LoadRulesFile(path string) ([]models.KeywordRule, []models.CategorySetting, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read rules: %w", err)
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("parse rules %s: %w", path, err)
	}

	rules := make([]models.KeywordRule, 0, len(f.Rules))
	for _, r := range f.Rules {
		rules = append(rules, models.KeywordRule{
			Keyword:    r.Keyword,
			Category:   r.Category,
			Weight:     r.Weight,
			MatchField: r.MatchField,
			MatchType:  r.MatchType,
			IsNegative: r.IsNegative,
			IsActive:   r.IsActive == nil || *r.IsActive,
		})
	}
	return rules, f.Categories, nil
}
