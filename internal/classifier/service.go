package classifier

import (
	"context"
	"fmt"

	"sjsage522/bidnoticeworker/internal/models"
	"sjsage522/bidnoticeworker/logger"
)

// Store is the persistence the batch classifier needs
type Store interface {
	ActiveKeywordRules(ctx context.Context) ([]models.KeywordRule, error)
	UnprocessedNotices(ctx context.Context, limit int) ([]models.NoticeText, error)
	SaveClassification(ctx context.Context, result models.MatchResult) error
	ResetClassification(ctx context.Context) (int64, error)
}

// Service classifies stored notices in batches
type Service struct {
	store Store
	log   *logger.Logger
}

// NewService creates a batch classifier over store
func NewService(store Store) *Service {
	return &Service{store: store, log: logger.ForClassifier()}
}

// ApplyKeywordMatching classifies up to limit unprocessed notices. Every
// notice that is written is marked processed, matched or not, so it is not
// classified again unless reset. A failed write is counted as skipped.
func (s *Service) ApplyKeywordMatching(ctx context.Context, limit int) (models.KeywordProcessingResult, error) {
	var res models.KeywordProcessingResult

	rules, err := s.store.ActiveKeywordRules(ctx)
	if err != nil {
		return res, fmt.Errorf("load keyword rules: %w", err)
	}
	c := New(rules, nil)
	if c.RuleCount() == 0 {
		s.log.Warn().Msg("No active keyword rules found")
		return res, nil
	}

	notices, err := s.store.UnprocessedNotices(ctx, limit)
	if err != nil {
		return res, fmt.Errorf("load unprocessed notices: %w", err)
	}
	if len(notices) == 0 {
		s.log.Debug().Msg("No unprocessed notices")
		return res, nil
	}

	for _, n := range notices {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		m := c.Classify(n)
		if err := s.store.SaveClassification(ctx, m); err != nil {
			s.log.Error().Err(err).Str("notice", n.NoticeNo).Msg("Failed to save classification")
			res.Skipped++
			continue
		}
		res.Processed++
		if m.Matched() {
			res.Matched++
		}
	}

	s.log.Info().
		Int("processed", res.Processed).
		Int("matched", res.Matched).
		Int("skipped", res.Skipped).
		Msg("Keyword matching completed")
	return res, nil
}

// Reprocess clears every classification and runs ApplyKeywordMatching again
func (s *Service) Reprocess(ctx context.Context, limit int) (models.KeywordProcessingResult, error) {
	n, err := s.store.ResetClassification(ctx)
	if err != nil {
		return models.KeywordProcessingResult{}, fmt.Errorf("reset classification: %w", err)
	}
	s.log.Info().Int64("reset", n).Msg("Classification reset")
	return s.ApplyKeywordMatching(ctx, limit)
}
