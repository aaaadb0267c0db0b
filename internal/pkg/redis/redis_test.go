package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_PingsServer(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.NoError(t, c.Ping(context.Background()))
}

func TestConnect_FailsFast(t *testing.T) {
	_, err := Connect(context.Background(), "not a url")
	require.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = Connect(context.Background(), "redis://"+addr+"/0")
	require.Error(t, err)
}

func TestGetSetMissing(t *testing.T) {
	mr := miniredis.RunT(t)
	c := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	v, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	b, err := c.GetBytes(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, b)

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	v, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestTxPipelined_CommitsTogether(t *testing.T) {
	mr := miniredis.RunT(t)
	c := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	err := c.TxPipelined(context.Background(), func(p redis.Pipeliner) error {
		p.Incr(context.Background(), "a")
		p.Incr(context.Background(), "b")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "1", mustGet(t, mr, "a"))
	assert.Equal(t, "1", mustGet(t, mr, "b"))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
