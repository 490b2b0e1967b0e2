package server

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedisStoreUnavailable(t *testing.T) {
	opts := &redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	}
	ctx := context.Background()

	_, err := ConnectRedis(ctx, opts)
	assert.Error(t, err)

	client := redis.NewClient(opts)
	defer client.Close()
	store := NewRedisStore(client, time.Minute)

	assert.Error(t, store.Put(ctx, Result{ID: "abc"}))
	_, err = store.Get(ctx, "abc")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
