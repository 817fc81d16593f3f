package memory

import (
	"context"
	"sync"

	"github.com/leduyvuong/ban-hang/internal/domain"
)

// CartStore — in-memory хранилище корзин по ключу сессии.
// Для production используется redis-реализация, эта — для локальной
// разработки и тестов.
type CartStore struct {
	mu    sync.RWMutex
	items map[string][]domain.CartEntry
}

// NewCartStore создаёт пустое хранилище корзин.
func NewCartStore() *CartStore {
	return &CartStore{items: make(map[string][]domain.CartEntry)}
}

// Load возвращает сохранённую корзину; отсутствующий ключ — пустая корзина.
func (s *CartStore) Load(ctx context.Context, key string) ([]domain.CartEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	out := make([]domain.CartEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// Save перезаписывает корзину целиком.
func (s *CartStore) Save(ctx context.Context, key string, entries []domain.CartEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]domain.CartEntry, len(entries))
	copy(stored, entries)
	s.items[key] = stored
	return nil
}

// Delete удаляет корзину (после успешного checkout).
func (s *CartStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

var _ domain.CartStore = (*CartStore)(nil)
