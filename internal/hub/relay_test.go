package hub

import (
	"context"
	"testing"
	"time"

	"github.com/Glen-Yegon/niapay-carwash1/internal/jobs"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisRelayBetweenHubs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	_, rdb := newTestRedis(t)

	first := New(WithRelay(NewRedisRelay(rdb, "", nil)))
	second := New(WithRelay(NewRedisRelay(rdb, "", nil)))
	require.NoError(t, first.StartRelay(ctx))
	require.NoError(t, second.StartRelay(ctx))

	local := newClient("local", 4)
	remote := newClient("remote", 4)
	first.Register(local)
	second.Register(remote)

	require.NoError(t, first.Dispatch(jobs.JobChanged{Kind: jobs.EventClaimed, Token: "tok-r", At: time.Now().UTC()}))
	msg := receive(t, remote)
	assert.Equal(t, jobs.EventClaimed, msg.Type)
	assert.Equal(t, "tok-r", msg.Token)

	assert.Equal(t, jobs.EventClaimed, receive(t, local).Type)
	time.Sleep(50 * time.Millisecond)
	assertEmpty(t, local)
}

func TestRedisRelayPublishesOnChannel(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)

	relay := NewRedisRelay(rdb, "carwash:test", nil)
	require.NoError(t, relay.Publish(ctx, []byte(`{"origin":"x"}`)))
	assert.Equal(t, DefaultRelayChannel, NewRedisRelay(rdb, "", nil).channel)

	sub := mr.NewSubscriber()
	defer sub.Close()
	sub.Subscribe("carwash:test")
	require.NoError(t, relay.Publish(ctx, []byte("frame")))
	select {
	case m := <-sub.Messages():
		assert.Equal(t, "frame", m.Message)
	case <-time.After(time.Second):
		t.Fatal("frame not published")
	}
}

func TestRedisRelayStartErrors(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	relay := NewRedisRelay(rdb, "", nil)

	assert.Error(t, relay.Start(ctx, nil))

	mr.Close()
	assert.Error(t, relay.Start(ctx, func([]byte) {}))
}
