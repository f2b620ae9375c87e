package store

import (
	"context"
	"fmt"

	"sjsage522/bidnoticeworker/internal/classifier"
	"sjsage522/bidnoticeworker/internal/models"
)

var _ classifier.Store = (*Store)(nil)

const keywordRuleColumns = "id, keyword, category, weight, match_field, match_type, is_negative, is_active"

// KeywordRules returns every rule, active or not
func (s *Store) KeywordRules(ctx context.Context) ([]models.KeywordRule, error) {
	return s.keywordRules(ctx, "SELECT "+keywordRuleColumns+" FROM keyword_rules ORDER BY category, id")
}

// ActiveKeywordRules returns the rules used by the classifier
func (s *Store) ActiveKeywordRules(ctx context.Context) ([]models.KeywordRule, error) {
	return s.keywordRules(ctx, "SELECT "+keywordRuleColumns+" FROM keyword_rules WHERE is_active = ? ORDER BY category, id", true)
}

func (s *Store) keywordRules(ctx context.Context, q string, args ...any) ([]models.KeywordRule, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query keyword rules: %w", err)
	}
	defer rows.Close()

	var rules []models.KeywordRule
	for rows.Next() {
		var r models.KeywordRule
		if err := rows.Scan(&r.ID, &r.Keyword, &r.Category, &r.Weight, &r.MatchField, &r.MatchType, &r.IsNegative, &r.IsActive); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// AddKeywordRule stores a rule and returns its id
func (s *Store) AddKeywordRule(ctx context.Context, r models.KeywordRule) (int64, error) {
	if r.Weight == 0 {
		r.Weight = 1
	}
	if r.MatchField == "" {
		r.MatchField = models.FieldAll
	}
	if r.MatchType == "" {
		r.MatchType = models.MatchContains
	}

	var id int64
	err := s.queryRow(ctx, `INSERT INTO keyword_rules (keyword, category, weight, match_field, match_type, is_negative, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		r.Keyword, r.Category, r.Weight, r.MatchField, r.MatchType, r.IsNegative, r.IsActive,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert keyword rule: %w", err)
	}
	return id, nil
}

// SetKeywordRuleActive enables or disables one rule
func (s *Store) SetKeywordRuleActive(ctx context.Context, id int64, active bool) error {
	res, err := s.exec(ctx, "UPDATE keyword_rules SET is_active = ? WHERE id = ?", active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("keyword rule %d: %w", id, ErrNotFound)
	}
	return nil
}

// CategorySettings returns the enabled category settings in priority order
func (s *Store) CategorySettings(ctx context.Context) ([]models.CategorySetting, error) {
	rows, err := s.query(ctx, "SELECT category, keywords, nots, min_point FROM category_settings WHERE use = ? ORDER BY priority, sn", true)
	if err != nil {
		return nil, fmt.Errorf("query category settings: %w", err)
	}
	defer rows.Close()

	var out []models.CategorySetting
	for rows.Next() {
		var c models.CategorySetting
		if err := rows.Scan(&c.Category, &c.Keywords, &c.Nots, &c.MinPoint); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveCategorySetting inserts or replaces the setting of one category
func (s *Store) SaveCategorySetting(ctx context.Context, c models.CategorySetting, priority int) error {
	_, err := s.exec(ctx, `INSERT INTO category_settings (category, keywords, nots, min_point, priority, use)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (category) DO UPDATE SET keywords = excluded.keywords, nots = excluded.nots,
			min_point = excluded.min_point, priority = excluded.priority, use = excluded.use`,
		c.Category, c.Keywords, c.Nots, c.MinPoint, priority, true,
	)
	if err != nil {
		return fmt.Errorf("save category %s: %w", c.Category, err)
	}
	return nil
}

// UnprocessedNotices returns the oldest notices not yet classified
func (s *Store) UnprocessedNotices(ctx context.Context, limit int) ([]models.NoticeText, error) {
	if limit <= 0 {
		limit = 1000
	}
	notices, err := s.queryNotices(ctx, selectNoticeSQL+" WHERE is_processed = ? ORDER BY created_at, id LIMIT ?", false, limit)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed notices: %w", err)
	}

	out := make([]models.NoticeText, len(notices))
	for i, n := range notices {
		out[i] = n.Text()
	}
	return out, nil
}

// SaveClassification writes a match result and marks the notice processed
func (s *Store) SaveClassification(ctx context.Context, m models.MatchResult) error {
	keywords, err := marshalJSON(m.Keywords)
	if err != nil {
		return err
	}
	if m.Keywords == nil {
		keywords = "[]"
	}

	res, err := s.exec(ctx, `UPDATE bid_notices
		SET category = ?, keywords = ?, score = ?, is_matched = ?, is_processed = ?, updated_at = ?
		WHERE bid_notice_no = ?`,
		m.Category, keywords, m.Score, m.Matched(), true, now(), m.NoticeNo,
	)
	if err != nil {
		return fmt.Errorf("save classification %s: %w", m.NoticeNo, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("notice %s: %w", m.NoticeNo, ErrNotFound)
	}
	return nil
}

// ResetClassification clears the classification of every API notice so the
// next batch classifies them again. Scraped notices keep the category they
// were stored with.
func (s *Store) ResetClassification(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, `UPDATE bid_notices
		SET category = '', keywords = NULL, score = 0, is_matched = ?, is_processed = ?, updated_at = ?
		WHERE source = ?`,
		false, false, now(), models.SourceAPI,
	)
	if err != nil {
		return 0, fmt.Errorf("reset classification: %w", err)
	}
	return res.RowsAffected()
}
