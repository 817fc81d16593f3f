package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/leduyvuong/ban-hang/internal/domain"
)

// CheckoutStore — in-memory реализация checkout-транзакции. Один мьютекс
// сериализует все checkout'ы целиком; это даёт ту же линеаризацию, что
// батч row-level блокировок в postgres, и детерминированное поведение
// при конкурентных тестах.
type CheckoutStore struct {
	mu       sync.Mutex
	products *ProductRepository
	orders   *OrderRepository
	outbox   *OutboxRepository
}

// NewCheckoutStore собирает checkout-хранилище поверх in-memory репозиториев.
func NewCheckoutStore(products *ProductRepository, orders *OrderRepository, outbox *OutboxRepository) *CheckoutStore {
	return &CheckoutStore{products: products, orders: orders, outbox: outbox}
}

// WithinCheckout исполняет fn под глобальной блокировкой хранилища.
// Все записи накапливаются в транзакции и применяются только при
// успешном завершении fn; ошибка отбрасывает их целиком.
func (s *CheckoutStore) WithinCheckout(ctx context.Context, fn func(tx domain.CheckoutTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &checkoutTx{store: s, stock: make(map[int64]int)}
	if err := fn(tx); err != nil {
		return err
	}

	tx.commit()
	return nil
}

// checkoutTx накапливает изменения до commit'а.
type checkoutTx struct {
	store  *CheckoutStore
	stock  map[int64]int
	orders []domain.Order
	outbox []domain.OutboxMessage
}

// LockProducts возвращает текущее состояние товаров. Эксклюзивность
// обеспечивается мьютексом хранилища, удерживаемым на всю транзакцию.
func (tx *checkoutTx) LockProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	return tx.store.products.FindByIDs(ctx, ids)
}

func (tx *checkoutTx) CreateOrder(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.orders = append(tx.orders, order)
	return nil
}

func (tx *checkoutTx) UpdateStock(ctx context.Context, productID int64, stock int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.stock[productID] = stock
	return nil
}

func (tx *checkoutTx) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxMessage{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	tx.outbox = append(tx.outbox, msg)
	return msg, nil
}

func (tx *checkoutTx) commit() {
	for id, stock := range tx.stock {
		tx.store.products.setStock(id, stock)
	}
	for _, order := range tx.orders {
		tx.store.orders.put(order)
	}
	for _, msg := range tx.outbox {
		_, _ = tx.store.outbox.Enqueue(msg)
	}
}

var _ domain.CheckoutStore = (*CheckoutStore)(nil)
var _ domain.CheckoutTx = (*checkoutTx)(nil)
