// Package redis хранит сериализованные корзины в Redis с TTL,
// чтобы брошенные корзины не жили вечно.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leduyvuong/ban-hang/internal/domain"
)

const defaultCartTTL = 24 * time.Hour

// CartStore — Redis-реализация хранилища корзин.
type CartStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCartStore создаёт хранилище корзин поверх клиента Redis.
// ttl<=0 заменяется значением по умолчанию.
func NewCartStore(client *redis.Client, ttl time.Duration) *CartStore {
	if ttl <= 0 {
		ttl = defaultCartTTL
	}
	return &CartStore{client: client, ttl: ttl}
}

// Load возвращает сохранённую корзину; отсутствующий ключ — пустая корзина.
func (s *CartStore) Load(ctx context.Context, key string) ([]domain.CartEntry, error) {
	data, err := s.client.Get(ctx, cartKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	var entries []domain.CartEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal cart entries: %w", err)
	}
	return entries, nil
}

// Save перезаписывает корзину целиком и продлевает TTL.
func (s *CartStore) Save(ctx context.Context, key string, entries []domain.CartEntry) error {
	if entries == nil {
		entries = []domain.CartEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal cart entries: %w", err)
	}

	if err := s.client.Set(ctx, cartKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}

// Delete удаляет корзину (после успешного checkout).
func (s *CartStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, cartKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete cart: %w", err)
	}
	return nil
}

func cartKey(key string) string {
	return fmt.Sprintf("cart:%s", key)
}

var _ domain.CartStore = (*CartStore)(nil)
