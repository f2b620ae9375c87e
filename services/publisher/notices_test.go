package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"sjsage522/bidnoticeworker/internal/models"
	apperrors "sjsage522/bidnoticeworker/pkg/errors"
	"sjsage522/bidnoticeworker/services/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockPublisher records published messages
type MockPublisher struct {
	mu       sync.Mutex
	messages map[string][][]byte
	fail     map[string]bool
	trims    int
}

var _ Publisher = (*MockPublisher)(nil)

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{messages: map[string][][]byte{}, fail: map[string]bool{}}
}

func (m *MockPublisher) Publish(_ context.Context, key string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n models.BidNotice
	if json.Unmarshal(message, &n) == nil && m.fail[n.BidNoticeNo] {
		return errors.New("stream unavailable")
	}
	m.messages[key] = append(m.messages[key], append([]byte(nil), message...))
	return nil
}

func (m *MockPublisher) TrimStreams(context.Context) error {
	m.trims++
	return nil
}

func (m *MockPublisher) Close() error { return nil }

func notice(no string) *models.BidNotice {
	return &models.BidNotice{BidNoticeNo: no, BidNoticeName: "공고 " + no, Source: models.SourceAPI}
}

func TestPublishNoticesDeduplicates(t *testing.T) {
	mock := NewMockPublisher()
	p := NewNoticePublisher(mock, cache.NewMemoryCache(100), 0)
	ctx := context.Background()

	assert.Equal(t, 2, p.PublishNotices(ctx, []*models.BidNotice{notice("A"), notice("B")}))
	assert.Equal(t, 1, p.PublishNotices(ctx, []*models.BidNotice{notice("A"), notice("C"), nil}))

	require.Len(t, mock.messages[NoticeKey], 3)
	var got models.BidNotice
	require.NoError(t, json.Unmarshal(mock.messages[NoticeKey][2], &got))
	assert.Equal(t, "C", got.BidNoticeNo)
	assert.Equal(t, "공고 C", got.BidNoticeName)
}

func TestPublishNoticeFailureIsRetried(t *testing.T) {
	mock := NewMockPublisher()
	mock.fail["A"] = true
	c := cache.NewMemoryCache(100)
	p := NewNoticePublisher(mock, c, 0)
	ctx := context.Background()

	sent, err := p.PublishNotice(ctx, notice("A"))
	assert.False(t, sent)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypePublisher))
	_, err = c.Get(cache.PublishedKey("A"))
	assert.ErrorIs(t, err, cache.ErrMiss)

	mock.fail["A"] = false
	sent, err = p.PublishNotice(ctx, notice("A"))
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestPublishWithoutCache(t *testing.T) {
	mock := NewMockPublisher()
	p := NewNoticePublisher(mock, nil, 0)

	assert.Equal(t, 2, p.PublishNotices(context.Background(), []*models.BidNotice{notice("A"), notice("A")}))
	require.NoError(t, p.TrimStreams(context.Background()))
	assert.Equal(t, 1, mock.trims)
}
