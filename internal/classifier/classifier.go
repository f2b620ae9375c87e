// Package classifier assigns categories to notices from weighted keyword rules.
package classifier

import (
	"regexp"
	"sort"
	"strings"

	"sjsage522/bidnoticeworker/internal/models"
	"sjsage522/bidnoticeworker/logger"
)

// Policy is the per-category filter applied after scoring
type Policy struct {
	// Nots drops the category when any term appears in a searched field
	Nots []string
	// MinPoint drops the category when its score is lower
	MinPoint float64
}

type compiledRule struct {
	models.KeywordRule
	lower string
	re    *regexp.Regexp
}

// Classifier is immutable once built and safe for concurrent use
type Classifier struct {
	rules    []compiledRule
	policies map[string]Policy
	log      *logger.Logger
}

// New compiles the active rules. Regex rules that do not compile are skipped
// with a warning.
func New(rules []models.KeywordRule, policies map[string]Policy) *Classifier {
	c := &Classifier{
		policies: policies,
		log:      logger.ForClassifier(),
	}

	for _, r := range rules {
		if !r.IsActive || strings.TrimSpace(r.Keyword) == "" {
			continue
		}
		if r.Weight == 0 {
			r.Weight = 1
		}
		if r.MatchField == "" {
			r.MatchField = models.FieldAll
		}
		if r.MatchType == "" {
			r.MatchType = models.MatchContains
		}

		cr := compiledRule{KeywordRule: r, lower: strings.ToLower(r.Keyword)}
		if r.MatchType == models.MatchRegex {
			re, err := regexp.Compile("(?i)" + r.Keyword)
			if err != nil {
				c.log.Warn().Err(err).Str("keyword", r.Keyword).Msg("Invalid regex rule skipped")
				continue
			}
			cr.re = re
		}
		c.rules = append(c.rules, cr)
	}
	return c
}

// RuleCount returns the number of usable rules
func (c *Classifier) RuleCount() int {
	return len(c.rules)
}

func (r compiledRule) matches(search string) bool {
	var hit bool
	switch r.MatchType {
	case models.MatchExact:
		hit = search == r.lower
	case models.MatchRegex:
		hit = r.re.MatchString(search)
	default:
		hit = strings.Contains(search, r.lower)
	}
	if r.IsNegative {
		return !hit
	}
	return hit
}

type categoryScore struct {
	score    float64
	keywords []string
	fields   map[string]bool
}

// Classify scores the notice against every rule. The winning category has the
// highest score; ties go to the lexicographically smallest name. Keywords and
// Score cover every category that survives its policy.
func (c *Classifier) Classify(text models.NoticeText) models.MatchResult {
	result := models.MatchResult{NoticeNo: text.NoticeNo}

	scores := make(map[string]*categoryScore)
	var order []string
	for _, r := range c.rules {
		search := strings.ToLower(text.Field(r.MatchField))
		if search == "" {
			continue
		}
		if !r.matches(search) {
			continue
		}

		cs, ok := scores[r.Category]
		if !ok {
			cs = &categoryScore{fields: make(map[string]bool)}
			scores[r.Category] = cs
			order = append(order, r.Category)
		}
		cs.score += r.Weight
		cs.keywords = append(cs.keywords, r.Keyword)
		cs.fields[r.MatchField] = true
	}

	var qualified []string
	for _, cat := range order {
		cs := scores[cat]
		if p, ok := c.policies[cat]; ok {
			if cs.score < p.MinPoint || excluded(text, cs.fields, p.Nots) {
				continue
			}
		}
		qualified = append(qualified, cat)
	}
	if len(qualified) == 0 {
		return result
	}

	seen := make(map[string]bool)
	result.CategoryScores = make(map[string]float64, len(qualified))
	for _, cat := range qualified {
		cs := scores[cat]
		result.CategoryScores[cat] = cs.score
		result.Score += cs.score
		for _, kw := range cs.keywords {
			if !seen[kw] {
				seen[kw] = true
				result.Keywords = append(result.Keywords, kw)
			}
		}
	}

	sort.Strings(qualified)
	best := qualified[0]
	for _, cat := range qualified[1:] {
		if scores[cat].score > scores[best].score {
			best = cat
		}
	}
	result.Category = best
	return result
}

func excluded(text models.NoticeText, fields map[string]bool, nots []string) bool {
	if len(nots) == 0 {
		return false
	}
	for field := range fields {
		search := strings.ToLower(text.Field(field))
		for _, n := range nots {
			if n != "" && strings.Contains(search, strings.ToLower(n)) {
				return true
			}
		}
	}
	return false
}

// DisplayCategory maps a classifier category onto the categories shown for
// scraped notices
func DisplayCategory(category string) string {
	switch category {
	case "":
		return models.CategoryUnrelated
	case models.CategoryConstruction, models.CategoryPerformance, models.CategoryOther:
		return category
	}
	return models.CategoryOther
}
