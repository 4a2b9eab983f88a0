package anchor

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const DefaultStream = "partmarket:anchors"

// RedisAnchor appends envelopes to a Redis stream. Stream entries are never
// rewritten, and the entry id serves as the receipt.
type RedisAnchor struct {
	client redis.Cmdable
	stream string
}

func NewRedisAnchor(client redis.Cmdable, stream string) *RedisAnchor {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisAnchor{client: client, stream: stream}
}

func (a *RedisAnchor) Name() string { return "redis" }

func (a *RedisAnchor) Anchor(ctx context.Context, env Envelope) (string, error) {
	body, err := env.Encode()
	if err != nil {
		return "", err
	}
	id, err := a.client.XAdd(ctx, &redis.XAddArgs{
		Stream: a.stream,
		Values: map[string]any{
			"hash":               env.Hash,
			"transaction_number": strconv.FormatInt(env.TransactionNumber, 10),
			"envelope":           body,
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", a.stream, err)
	}
	return id, nil
}
