package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/safar/go-shop-settlement/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, 15*time.Minute), mr
}

func sampleView() *models.CartView {
	userID := int64(7)
	return &models.CartView{
		ID:     3,
		UserID: &userID,
		Items: []models.CartItemView{
			{ID: 1, ProductID: 10, ProductName: "Mug", UnitPrice: decimal.NewFromInt(1200), Quantity: 2},
		},
		TotalItemCount: 2,
	}
}

func TestGet_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)
	owner := models.UserOwner(7)

	data, err := json.Marshal(sampleView())
	require.NoError(t, err)
	require.NoError(t, mr.Set(cacheKey(owner), string(data)))

	view, err := cache.Get(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(3), view.ID)
	require.Len(t, view.Items, 1)
	assert.True(t, view.Items[0].UnitPrice.Equal(decimal.NewFromInt(1200)))
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	view, err := cache.Get(context.Background(), models.SessionOwner("nope"))
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, view)
}

func TestGet_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)
	owner := models.SessionOwner("abc")
	require.NoError(t, mr.Set(cacheKey(owner), `{"id":`))

	_, err := cache.Get(context.Background(), owner)
	require.ErrorContains(t, err, "unmarshal cart failed")
}

func TestSet_WithTTL(t *testing.T) {
	cache, mr := setupTestRedis(t)
	owner := models.UserOwner(7)

	require.NoError(t, cache.Set(context.Background(), owner, sampleView(), 0))

	assert.True(t, mr.Exists(cacheKey(owner)))
	ttl := mr.TTL(cacheKey(owner))
	assert.GreaterOrEqual(t, ttl, 15*time.Minute)
	assert.LessOrEqual(t, ttl, 18*time.Minute)
}

func TestDelete_ManyOwners(t *testing.T) {
	cache, mr := setupTestRedis(t)
	user := models.UserOwner(7)
	session := models.SessionOwner("abc")
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, user, sampleView(), 0))
	require.NoError(t, cache.Set(ctx, session, sampleView(), 0))

	require.NoError(t, cache.Delete(ctx, user, session))
	assert.False(t, mr.Exists(cacheKey(user)))
	assert.False(t, mr.Exists(cacheKey(session)))
	assert.True(t, mr.Exists(genKey(user)))
	assert.Greater(t, mr.TTL(genKey(user)), time.Duration(0))

	assert.NoError(t, cache.Delete(ctx, models.UserOwner(99)))
	assert.NoError(t, cache.Delete(ctx))
}

func TestStamp_AdvancesOnDelete(t *testing.T) {
	cache, _ := setupTestRedis(t)
	owner := models.UserOwner(7)
	ctx := context.Background()

	stamp, err := cache.Stamp(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stamp)

	require.NoError(t, cache.Delete(ctx, owner))
	require.NoError(t, cache.Delete(ctx, owner))
	stamp, err = cache.Stamp(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stamp)
}

func TestSet_SkipsAfterInvalidation(t *testing.T) {
	cache, mr := setupTestRedis(t)
	owner := models.UserOwner(7)
	ctx := context.Background()

	stamp, err := cache.Stamp(ctx, owner)
	require.NoError(t, err)
	require.NoError(t, cache.Delete(ctx, owner))

	require.NoError(t, cache.Set(ctx, owner, sampleView(), stamp))
	assert.False(t, mr.Exists(cacheKey(owner)), "stale view must not be cached")

	fresh, err := cache.Stamp(ctx, owner)
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, owner, sampleView(), fresh))
	assert.True(t, mr.Exists(cacheKey(owner)))
}

func TestStamp_RedisDown(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	_, err := cache.Stamp(context.Background(), models.UserOwner(7))
	require.ErrorContains(t, err, "redis get stamp failed")
}

func TestCacheKey_Format(t *testing.T) {
	assert.Equal(t, "cart:user:7", cacheKey(models.UserOwner(7)))
	assert.Equal(t, "cart:session:abc", cacheKey(models.SessionOwner("abc")))
	assert.Equal(t, "cart:gen:user:7", genKey(models.UserOwner(7)))
}
