package hub

import (
	"context"

	"github.com/Glen-Yegon/niapay-carwash1/internal/logger"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

const DefaultRelayChannel = "carwash:jobs"

// RedisRelay shares hub traffic through a Redis pub/sub channel.
type RedisRelay struct {
	rdb     goredis.UniversalClient
	channel string
	log     *logger.Logger
}

func NewRedisRelay(rdb goredis.UniversalClient, channel string, log *logger.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisRelay{rdb: rdb, channel: channel, log: log.With("component", "hub_relay")}
}

func (r *RedisRelay) Publish(ctx context.Context, raw []byte) error {
	return r.rdb.Publish(ctx, r.channel, raw).Err()
}

func (r *RedisRelay) Start(ctx context.Context, onMsg func(raw []byte)) error {
	if onMsg == nil {
		return errors.New("relay callback required")
	}
	sub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return errors.Wrap(err, "redis subscribe")
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					r.log.Warn("relay subscription closed", "channel", r.channel)
					return
				}
				onMsg([]byte(m.Payload))
			}
		}
	}()
	return nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (r *RedisRelay) Close() error { return nil }
