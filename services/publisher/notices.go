package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"sjsage522/bidnoticeworker/internal/models"
	"sjsage522/bidnoticeworker/logger"
	apperrors "sjsage522/bidnoticeworker/pkg/errors"
	"sjsage522/bidnoticeworker/services/cache"
)

// NoticeKey is the stream field carrying the base64 notice JSON
const NoticeKey = "b64_bidnotices"

// DefaultPublishedTTL is how long a published notice is remembered
const DefaultPublishedTTL = 24 * time.Hour

// NoticePublisher publishes notices once per TTL window
type NoticePublisher struct {
	pub   Publisher
	cache cache.CacheService
	ttl   time.Duration
	log   *logger.Logger
}

// NewNoticePublisher creates a notice publisher. A nil cache disables
// deduplication.
func NewNoticePublisher(pub Publisher, c cache.CacheService, ttl time.Duration) *NoticePublisher {
	if ttl <= 0 {
		ttl = DefaultPublishedTTL
	}
	return &NoticePublisher{pub: pub, cache: c, ttl: ttl, log: logger.ForPublisher()}
}

// PublishNotice publishes n unless it was published within the TTL. It
// reports whether a message was sent.
func (p *NoticePublisher) PublishNotice(ctx context.Context, n *models.BidNotice) (bool, error) {
	key := cache.PublishedKey(n.BidNoticeNo)
	if p.cache != nil {
		if _, err := p.cache.Get(key); err == nil {
			return false, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			p.log.Warn().Err(err).Str("notice", n.BidNoticeNo).Msg("Cache lookup failed, publishing anyway")
		}
	}

	data, err := json.Marshal(n)
	if err != nil {
		return false, apperrors.NewPublisher(n.BidNoticeNo, "marshal notice", err)
	}
	if err := p.pub.Publish(ctx, NoticeKey, data); err != nil {
		return false, apperrors.NewPublisher(n.BidNoticeNo, "publish notice", err)
	}

	if p.cache != nil {
		if err := p.cache.Set(key, []byte("1"), p.ttl); err != nil {
			p.log.Warn().Err(err).Str("notice", n.BidNoticeNo).Msg("Failed to mark notice published")
		}
	}
	return true, nil
}

// PublishNotices publishes every notice and returns how many were sent.
// Failures are logged and skipped.
func (p *NoticePublisher) PublishNotices(ctx context.Context, notices []*models.BidNotice) int {
	sent := 0
	for _, n := range notices {
		if n == nil {
			continue
		}
		ok, err := p.PublishNotice(ctx, n)
		if err != nil {
			p.log.Error().Err(err).Msg("Failed to publish notice")
			continue
		}
		if ok {
			sent++
		}
	}
	if len(notices) > 0 {
		p.log.Info().Int("published", sent).Int("total", len(notices)).Msg("Notices published")
	}
	return sent
}

// TrimStreams trims the underlying streams
func (p *NoticePublisher) TrimStreams(ctx context.Context) error {
	return p.pub.TrimStreams(ctx)
}
