package notify

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *RedisQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisQueue(client, "notify:test")
}

func TestRedisQueue_SendAndPop(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	sent := Message{To: "+46701234567", Body: "Your consultation is booked."}
	require.NoError(t, q.Send(ctx, sent))

	got, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sent, *got)
}

func TestRedisQueue_PopOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, Message{To: "a", Body: "first"}))
	require.NoError(t, q.Send(ctx, Message{To: "b", Body: "second"}))

	first, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "first", first.Body)

	second, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "second", second.Body)
}

func TestRedisQueue_PopEmptyTimesOut(t *testing.T) {
	q := newTestQueue(t)

	got, err := q.Pop(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}
