package publisher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"sjsage522/bidnoticeworker/internal/models"
	"sjsage522/bidnoticeworker/services/cache"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Publisher = (*RedisPublisher)(nil)

// needs redis on localhost:6379
func TestRedisPublisherStreamsNotices(t *testing.T) {
	ctx := context.Background()
	stream := "test_bidnotices_" + time.Now().Format("150405.000")
	rp := NewRedisPublisher("localhost:6379", 0, stream, 1, 100)
	defer rp.Close()

	if err := rp.Ping(ctx); err != nil {
		t.Skip("Redis is not available, skipping test")
	}

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()
	defer client.Del(ctx, rp.Stream(0))

	np := NewNoticePublisher(rp, cache.NewMemoryCache(10), time.Minute)
	notice := &models.BidNotice{BidNoticeNo: "R25BK00000001", BidNoticeName: "통합 서버 구축 사업", Source: models.SourceAPI}

	assert.Equal(t, 1, np.PublishNotices(ctx, []*models.BidNotice{notice, notice}))

	entries, err := client.XRange(ctx, rp.Stream(0), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	raw, err := base64.StdEncoding.DecodeString(entries[0].Values[NoticeKey].(string))
	require.NoError(t, err)
	var got models.BidNotice
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, notice.BidNoticeNo, got.BidNoticeNo)
	assert.Equal(t, notice.BidNoticeName, got.BidNoticeName)

	assert.NoError(t, np.TrimStreams(ctx))
}
