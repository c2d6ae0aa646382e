package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Glen-Yegon/niapay-carwash1/internal/logger"
	"github.com/Glen-Yegon/niapay-carwash1/internal/models"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	keyPrefix     = "carwash:job:"
	versionPrefix = "carwash:jobver:"
	// versionTTL bounds how long a token's invalidation counter outlives its
	// last change. It must exceed the longest store load.
	versionTTL = 24 * time.Hour
)

// Redis shares cached jobs between service replicas. Redis failures degrade
// to a direct store read; they never fail a lookup. Invalidate bumps a
// per-token version and a load only writes back if the version it started
// from is still current, so a load racing a mutation is never cached.
var errStaleLoad = errors.New("job changed during load")

type Redis struct {
	rdb   goredis.UniversalClient
	ttl   time.Duration
	log   *logger.Logger
	group singleflight.Group
}

func NewRedis(rdb goredis.UniversalClient, ttl time.Duration, log *logger.Logger) *Redis {
	if log == nil {
		log = logger.Nop()
	}
	return &Redis{rdb: rdb, ttl: ttl, log: log.With("component", "job_cache")}
}

// Dial connects and pings a single-node client.
func Dial(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return rdb, nil
}

func (c *Redis) Get(ctx context.Context, token string, load func(ctx context.Context) (models.Job, error)) (models.Job, error) {
	raw, err := c.rdb.Get(ctx, keyPrefix+token).Bytes()
	switch {
	case err == nil:
		var job models.Job
		if err := json.Unmarshal(raw, &job); err == nil {
			return job, nil
		}
		c.log.Warn("discarding undecodable cache entry", "job_token", token)
	case !errors.Is(err, goredis.Nil):
		c.log.Warn("cache read failed", "job_token", token, "error", err)
	}

	version, err := c.version(ctx, token)
	cacheable := err == nil
	if !cacheable {
		c.log.Warn("cache version read failed", "job_token", token, "error", err)
	}

	v, err, _ := c.group.Do(token, func() (interface{}, error) {
		job, err := load(ctx)
		if err != nil {
			return models.Job{}, err
		}
		if cacheable {
			c.store(ctx, token, version, job)
		}
		return job, nil
	})
	if err != nil {
		return models.Job{}, err
	}
	return v.(models.Job), nil
}

func (c *Redis) version(ctx context.Context, token string) (int64, error) {
	n, err := c.rdb.Get(ctx, versionPrefix+token).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return n, err
}

// store writes job back under a WATCH on the token's version key. The write
// is skipped when an Invalidate landed after the load began.
func (c *Redis) store(ctx context.Context, token string, version int64, job models.Job) {
	encoded, err := json.Marshal(job)
	if err != nil {
		return
	}
	verKey := versionPrefix + token
	err = c.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, verKey).Int64()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if current != version {
			return errStaleLoad
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, keyPrefix+token, encoded, c.ttl)
			return nil
		})
		return err
	}, verKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleLoad), errors.Is(err, goredis.TxFailedErr):
		c.log.Debug("skip stale cache write", "job_token", token)
	default:
		c.log.Warn("cache write failed", "job_token", token, "error", err)
	}
}

func (c *Redis) Invalidate(ctx context.Context, token string) {
	c.group.Forget(token)
	verKey := versionPrefix + token
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Incr(ctx, verKey)
		pipe.Expire(ctx, verKey, versionTTL)
		pipe.Del(ctx, keyPrefix+token)
		return nil
	})
	if err != nil {
		c.log.Warn("cache invalidate failed", "job_token", token, "error", err)
	}
}
