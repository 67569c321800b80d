package cache

import (
	"card-recommender/internal/domain"
	"card-recommender/internal/storage/memory"
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStorage считает обращения к нижнему хранилищу
type countingStorage struct {
	*memory.Storage
	lists int
}

func (c *countingStorage) ListCards(ctx context.Context, userID string) ([]domain.Card, error) {
	c.lists++
	return c.Storage.ListCards(ctx, userID)
}

func TestCardStorage_FallsBackWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	next := &countingStorage{Storage: memory.NewStorage()}
	_, err := next.InsertCard(ctx, "u", domain.Card{Name: "Freedom", BaseRate: 1})
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	defer client.Close()

	c := NewCardStorage(next, client, time.Minute)
	cards, err := c.ListCards(ctx, "u")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "Freedom", cards[0].Name)
	assert.Equal(t, 1, next.lists)

	_, err = c.InsertCard(ctx, "u", domain.Card{Name: "Sapphire", BaseRate: 2})
	require.NoError(t, err)
}

// testRedis: клиент к TEST_REDIS_ADDR и свой userID, чтобы прогоны не делили ключи
func testRedis(t *testing.T) (*redis.Client, string) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR не задан, пропускаем интеграционный тест Redis")
	}

	client := NewRedisClient(addr)
	t.Cleanup(func() { _ = client.Close() })
	userID := "cache-user-" + uuid.NewString()
	t.Cleanup(func() {
		_ = client.Del(context.Background(), versionKey(userID)).Err()
	})
	return client, userID
}

func TestCardStorage_CachesAndInvalidates(t *testing.T) {
	ctx := context.Background()
	client, user := testRedis(t)

	next := &countingStorage{Storage: memory.NewStorage()}
	c := NewCardStorage(next, client, time.Minute)

	_, err := c.InsertCard(ctx, user, domain.Card{
		Name:            "Freedom",
		BaseRate:        1,
		CategoryBonuses: []domain.CategoryBonus{{Category: "dining", Rate: 3}},
	})
	require.NoError(t, err)

	first, err := c.ListCards(ctx, user)
	require.NoError(t, err)
	second, err := c.ListCards(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 1, next.lists)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].CategoryBonuses, second[0].CategoryBonuses)

	require.NoError(t, c.DeleteCard(ctx, user, first[0].ID))
	after, err := c.ListCards(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, after)
	assert.Equal(t, 2, next.lists)
}

// slowReader отдаёт список, прочитанный до записи, которая случилась во время чтения
type slowReader struct {
	*memory.Storage
	duringRead func()
}

func (s *slowReader) ListCards(ctx context.Context, userID string) ([]domain.Card, error) {
	cards, err := s.Storage.ListCards(ctx, userID)
	if s.duringRead != nil {
		hook := s.duringRead
		s.duringRead = nil
		hook()
	}
	return cards, err
}

func TestCardStorage_ReadRacingWriteDoesNotCacheStaleList(t *testing.T) {
	ctx := context.Background()
	client, user := testRedis(t)

	next := &slowReader{Storage: memory.NewStorage()}
	c := NewCardStorage(next, client, time.Minute)

	_, err := c.InsertCard(ctx, user, domain.Card{Name: "Freedom", BaseRate: 1})
	require.NoError(t, err)

	next.duringRead = func() {
		_, err := c.InsertCard(ctx, user, domain.Card{Name: "Sapphire", BaseRate: 2})
		require.NoError(t, err)
	}
	stale, err := c.ListCards(ctx, user)
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	fresh, err := c.ListCards(ctx, user)
	require.NoError(t, err)
	require.Len(t, fresh, 2)
	assert.Equal(t, "Sapphire", fresh[1].Name)
}
