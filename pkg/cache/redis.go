package cache

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a redis instance, for deployments where
// the sync daemon runs next to one. Snapshots carry no TTL.
type Redis struct {
	client *redis.Client
	ctx    context.Context
}

func NewRedis(redisURL string) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	opt.PoolSize = 10
	opt.MinIdleConns = 3

	client := redis.NewClient(opt)
	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Redis{client: client, ctx: ctx}, nil
}

func (r *Redis) Save(key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("[cache] encode %s: %v", key, err)
		return
	}
	if err := r.client.Set(r.ctx, key, data, 0).Err(); err != nil {
		log.Printf("[cache] save %s: %v", key, err)
	}
}

func (r *Redis) Load(key string, dest interface{}) bool {
	val, err := r.client.Get(r.ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(val, dest) == nil
}

func (r *Redis) Clear(key string) {
	r.client.Del(r.ctx, key)
}

func (r *Redis) Close() error {
	return r.client.Close()
}
