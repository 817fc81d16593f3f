package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ProductRepository описывает advisory-доступ к каталогу товаров.
// Чтения выполняются без блокировок и могут устареть к моменту checkout —
// авторитетная перепроверка делается через CheckoutTx.LockProducts.
type ProductRepository interface {
	// Find возвращает товар или ErrProductNotFound.
	Find(ctx context.Context, id int64) (Product, error)
	// FindByIDs возвращает найденные товары одним батчем; отсутствующие
	// идентификаторы просто не попадают в результат.
	FindByIDs(ctx context.Context, ids []int64) (map[int64]Product, error)
	// UpdateStock записывает новый остаток товара.
	UpdateStock(ctx context.Context, id int64, stock int) error
}

// RateProvider отдаёт курс валюты к базовой или ErrCurrencyUnknown.
type RateProvider interface {
	RateToBase(ctx context.Context, code string) (decimal.Decimal, error)
}

// CartEntry — сериализованная позиция корзины. Единственная форма, в
// которой корзина переживает запрос: снапшоты товаров не сохраняются.
type CartEntry struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// CartStore хранит сериализованную корзину по ключу сессии/пользователя.
type CartStore interface {
	Load(ctx context.Context, key string) ([]CartEntry, error)
	Save(ctx context.Context, key string, entries []CartEntry) error
	Delete(ctx context.Context, key string) error
}

// CheckoutTx — операции, доступные внутри одной checkout-транзакции.
// Захват блокировок вынесен в явный шаг, чтобы его можно было тестировать
// отдельно от остального пайплайна.
type CheckoutTx interface {
	// LockProducts захватывает эксклюзивные row-level блокировки на все
	// перечисленные товары одним батчем (по возрастанию id — это исключает
	// deadlock между конкурентными checkout с пересекающимися товарами) и
	// возвращает их текущее состояние. Отсутствующие id не попадают в карту.
	LockProducts(ctx context.Context, ids []int64) (map[int64]Product, error)
	// CreateOrder сохраняет заказ вместе с позициями.
	CreateOrder(ctx context.Context, order Order) error
	// UpdateStock записывает новый остаток заблокированного товара.
	UpdateStock(ctx context.Context, productID int64, stock int) error
	// EnqueueOutbox ставит событие в transactional outbox: при откате
	// транзакции событие исчезает вместе с заказом.
	EnqueueOutbox(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}

// CheckoutStore исполняет fn в одной транзакции хранилища. Любая ошибка
// из fn откатывает всё: заказ, позиции, остатки, outbox.
type CheckoutStore interface {
	WithinCheckout(ctx context.Context, fn func(tx CheckoutTx) error) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
