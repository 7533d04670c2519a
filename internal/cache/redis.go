package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/go-shop-settlement/internal/models"
)

const defaultTTL = 15 * time.Minute

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{
		client:  client,
		baseTTL: ttl,
	}
}

// Connect parses a redis:// URL and checks the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (r *RedisCache) Get(ctx context.Context, owner models.CartOwner) (*models.CartView, error) {
	data, err := r.client.Get(ctx, cacheKey(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var view models.CartView
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}

	return &view, nil
}

// Stamp returns the owner's invalidation counter, zero when never invalidated.
func (r *RedisCache) Stamp(ctx context.Context, owner models.CartOwner) (int64, error) {
	stamp, err := r.client.Get(ctx, genKey(owner)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get stamp failed: %w", err)
	}
	return stamp, nil
}

// Set stores view for baseTTL plus up to a fifth of it as jitter, so
// entries written together do not expire together. Nothing is written when
// the owner was invalidated after stamp was taken.
func (r *RedisCache) Set(ctx context.Context, owner models.CartOwner, view *models.CartView, stamp int64) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := r.baseTTL + time.Duration(rand.Int63n(int64(r.baseTTL/5)+1))
	gen := genKey(owner)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, gen).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != stamp {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(owner), data, ttl)
			return nil
		})
		return err
	}, gen)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete drops the cached views and advances each owner's stamp. The stamp
// outlives the view so an in-flight Set still sees the change.
func (r *RedisCache) Delete(ctx context.Context, owners ...models.CartOwner) error {
	if len(owners) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, owner := range owners {
			pipe.Del(ctx, cacheKey(owner))
			pipe.Incr(ctx, genKey(owner))
			pipe.Expire(ctx, genKey(owner), 2*r.baseTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(owner models.CartOwner) string {
	return "cart:" + owner.Key()
}

func genKey(owner models.CartOwner) string {
	return "cart:gen:" + owner.Key()
}
