package publisher

import (
	"context"
	"encoding/base64"
	"strconv"

	"math/rand/v2"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher appends messages to a set of sharded Redis streams
type RedisPublisher struct {
	client          *redis.Client
	streamPrefix    string
	streamCount     int
	streamMaxLength int
}

// NewRedisPublisher creates a new Redis publisher
func NewRedisPublisher(addr string, db int, streamPrefix string, streamCount int, streamMaxLength int) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if streamCount <= 0 {
		streamCount = 1
	}

	return &RedisPublisher{
		client:          client,
		streamPrefix:    streamPrefix,
		streamCount:     streamCount,
		streamMaxLength: streamMaxLength,
	}
}

// Ping checks the Redis connection
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Stream returns the name of shard i
func (p *RedisPublisher) Stream(i int) string {
	return p.streamPrefix + ":" + strconv.Itoa(i)
}

// Publish base64 encodes message and appends it to a random shard.
// With streamCount 10 the shards are prefix:0 ~ prefix:9.
func (p *RedisPublisher) Publish(ctx context.Context, key string, message []byte) error {
	encoded := base64.StdEncoding.EncodeToString(message)

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.Stream(rand.IntN(p.streamCount)),
		Values: map[string]interface{}{
			key: encoded,
		},
	}).Err()
}

// TrimStreams trims all streams to the configured maximum length
func (p *RedisPublisher) TrimStreams(ctx context.Context) error {
	streams, err := p.client.Keys(ctx, p.streamPrefix+":*").Result()
	if err != nil {
		return err
	}

	for _, stream := range streams {
		if err := p.client.XTrimMaxLen(ctx, stream, int64(p.streamMaxLength)).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
