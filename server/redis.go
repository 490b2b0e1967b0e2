package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const resultKeyPrefix = "detect:result:"

// RedisStore keeps results as JSON values that expire after a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store on an existing client. A zero ttl keeps
// results until they are evicted.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// ConnectRedis opens a client and checks the server answers.
//
// Arguments:
//   - ctx: Bounds the ping.
//   - opts: The connection options.
//
// Returns:
//   - *redis.Client: The connected client.
//   - error: An error if the server cannot be reached.
func ConnectRedis(ctx context.Context, opts *redis.Options) (*redis.Client, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "connecting to redis at %s", opts.Addr)
	}
	return client, nil
}

// Put implements Store.
func (r *RedisStore) Put(ctx context.Context, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "marshal result")
	}
	if err := r.client.Set(ctx, resultKeyPrefix+result.ID, data, r.ttl).Err(); err != nil {
		return errors.Wrapf(err, "storing result %s", result.ID)
	}
	return nil
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, id string) (Result, error) {
	data, err := r.client.Get(ctx, resultKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{}, errors.Wrapf(ErrNotFound, "result %s", id)
	}
	if err != nil {
		return Result{}, errors.Wrapf(err, "reading result %s", id)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, errors.Wrapf(err, "unmarshal result %s", id)
	}
	return result, nil
}
