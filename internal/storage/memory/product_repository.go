package memory

import (
	"context"
	"sync"

	"github.com/leduyvuong/ban-hang/internal/domain"
)

// ProductRepository — in-memory каталог для локальной разработки и тестов.
type ProductRepository struct {
	mu    sync.RWMutex
	items map[int64]domain.Product
}

// NewProductRepository создаёт каталог, опционально засеянный товарами.
func NewProductRepository(products ...domain.Product) *ProductRepository {
	r := &ProductRepository{items: make(map[int64]domain.Product)}
	for _, p := range products {
		r.items[p.ID] = p
	}
	return r
}

// Put сохраняет или перезаписывает товар.
func (r *ProductRepository) Put(product domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[product.ID] = product
}

// Delete убирает товар из каталога (снятие с продажи).
func (r *ProductRepository) Delete(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
}

// Find возвращает товар или ErrProductNotFound.
func (r *ProductRepository) Find(ctx context.Context, id int64) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// FindByIDs возвращает найденные товары; отсутствующие id молча пропускаются.
func (r *ProductRepository) FindByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := r.items[id]; ok {
			result[id] = product
		}
	}
	return result, nil
}

// UpdateStock записывает новый остаток товара.
func (r *ProductRepository) UpdateStock(ctx context.Context, id int64, stock int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.Stock = stock
	r.items[id] = product
	return nil
}

// setStock — внутренний путь для commit'а checkout-транзакции.
func (r *ProductRepository) setStock(id int64, stock int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if product, ok := r.items[id]; ok {
		product.Stock = stock
		r.items[id] = product
	}
}

var _ domain.ProductRepository = (*ProductRepository)(nil)
