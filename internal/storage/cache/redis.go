// internal/storage/cache/redis.go
package cache

import (
	"card-recommender/internal/domain"
	"card-recommender/internal/storage"
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "cards:"
	versionPrefix = "cards-version:"
)

// CardStorage: read-through кэш списка карт поверх любого storage.CardStorage.
// Ключ списка содержит версию пользователя, любая запись увеличивает её.
// Чтение, которое разминулось с записью, кладёт старый список под старую версию,
// и его больше никто не прочитает. Ошибки Redis не ломают запрос:
// читаем напрямую из нижнего хранилища.
type CardStorage struct {
	next   storage.CardStorage
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: addr,
	})
}

func NewCardStorage(next storage.CardStorage, client *redis.Client, ttl time.Duration) *CardStorage {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CardStorage{next: next, client: client, ttl: ttl}
}

func cacheKey(userID string, version int64) string {
	return keyPrefix + userID + ":" + strconv.FormatInt(version, 10)
}

func versionKey(userID string) string {
	return versionPrefix + userID
}

func (c *CardStorage) ListCards(ctx context.Context, userID string) ([]domain.Card, error) {
	version, err := c.client.Get(ctx, versionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		version, err = 0, nil
	}
	if err != nil {
		slog.Warn("card cache version read failed", "error", err, "user_id", userID)
		return c.next.ListCards(ctx, userID)
	}
	key := cacheKey(userID, version)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cards []domain.Card
		if err := json.Unmarshal(raw, &cards); err == nil {
			slog.Debug("card cache hit", "user_id", userID)
			return cards, nil
		}
		slog.Warn("card cache entry is corrupted", "user_id", userID)
	} else if !errors.Is(err, redis.Nil) {
		slog.Warn("card cache read failed", "error", err, "user_id", userID)
	}

	cards, err := c.next.ListCards(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(cards); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			slog.Warn("card cache write failed", "error", err, "user_id", userID)
		}
	}
	return cards, nil
}

func (c *CardStorage) GetCard(ctx context.Context, userID, cardID string) (*domain.Card, error) {
	return c.next.GetCard(ctx, userID, cardID)
}

func (c *CardStorage) InsertCard(ctx context.Context, userID string, card domain.Card) (*domain.Card, error) {
	out, err := c.next.InsertCard(ctx, userID, card)
	c.invalidate(ctx, userID)
	return out, err
}

func (c *CardStorage) UpdateCard(ctx context.Context, userID, cardID string, card domain.Card) (*domain.Card, error) {
	out, err := c.next.UpdateCard(ctx, userID, cardID, card)
	c.invalidate(ctx, userID)
	return out, err
}

func (c *CardStorage) DeleteCard(ctx context.Context, userID, cardID string) error {
	err := c.next.DeleteCard(ctx, userID, cardID)
	c.invalidate(ctx, userID)
	return err
}

// invalidate вызывается после записи в нижнее хранилище, старые ключи доживают свой TTL
func (c *CardStorage) invalidate(ctx context.Context, userID string) {
	if err := c.client.Incr(ctx, versionKey(userID)).Err(); err != nil {
		slog.Warn("card cache invalidation failed", "error", err, "user_id", userID)
	}
}

// Cached подменяет карточную часть полного хранилища кэшем
type Cached struct {
	*CardStorage
	storage.UserStorage
	storage.SettingsStorage
}

func WrapStorage(s storage.Storage, client *redis.Client, ttl time.Duration) *Cached {
	return &Cached{
		CardStorage:     NewCardStorage(s, client, ttl),
		UserStorage:     s,
		SettingsStorage: s,
	}
}
