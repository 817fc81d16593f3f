// Package checkout превращает валидированную корзину в сохранённый заказ.
// Advisory-проверка корзины читает остатки без блокировок и может устареть;
// процессор закрывает это окно гонки, перепроверяя сток под row-level
// блокировками внутри одной транзакции.
package checkout

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/leduyvuong/ban-hang/internal/cart"
	"github.com/leduyvuong/ban-hang/internal/currency"
	"github.com/leduyvuong/ban-hang/internal/domain"
	"github.com/leduyvuong/ban-hang/internal/messaging/kafka"
)

// DefaultLowStockThreshold — остаток, ниже которого планируется low-stock алерт.
const DefaultLowStockThreshold = 5

// Input — входные данные одной checkout-попытки. Магазин-владелец
// резолвится вызывающей стороной до вызова процессора; корзина со
// смешанными магазинами — нарушение предусловия.
type Input struct {
	// UserID пустой для гостевого заказа.
	UserID   string
	ShopID   int64
	Cart     *cart.Cart
	Shipping domain.ShippingInfo
	// Currency — целевая валюта заказа; пустая строка означает базовую.
	Currency string
}

// Option настраивает Processor.
type Option func(*Processor)

// WithLogger задаёт logger процессора.
func WithLogger(logger *log.Entry) Option {
	return func(p *Processor) { p.logger = logger }
}

// WithMetrics задаёт метрики checkout.
func WithMetrics(metrics *Metrics) Option {
	return func(p *Processor) { p.metrics = metrics }
}

// WithLowStockThreshold задаёт порог low-stock уведомлений.
func WithLowStockThreshold(threshold int) Option {
	return func(p *Processor) {
		if threshold > 0 {
			p.lowStockThreshold = threshold
		}
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(p *Processor) { p.clock = clock }
}

// Processor атомарно конвертирует корзину в заказ. Процессор намеренно
// не идемпотентен: повторный вызов с той же корзиной создаст второй заказ
// и спишет сток дважды — вызывающий очищает корзину после успеха.
type Processor struct {
	store             domain.CheckoutStore
	converter         *currency.Converter
	logger            *log.Entry
	metrics           *Metrics
	lowStockThreshold int
	clock             func() time.Time
}

// NewProcessor создаёт процессор заказов поверх checkout-хранилища.
func NewProcessor(store domain.CheckoutStore, converter *currency.Converter, options ...Option) *Processor {
	p := &Processor{
		store:             store,
		converter:         converter,
		lowStockThreshold: DefaultLowStockThreshold,
		clock:             time.Now,
	}
	for _, option := range options {
		option(p)
	}
	if p.logger == nil {
		p.logger = log.WithField("component", "checkout")
	}
	return p
}

// Process выполняет checkout: preload корзины, транзакция с батч-блокировкой
// товаров, перепроверка остатков, снапшот цен и курса, запись заказа,
// списание стока и постановка post-commit уведомлений в outbox.
// Любая ошибка внутри транзакции откатывает всё целиком.
func (p *Processor) Process(ctx context.Context, in Input) (domain.Order, error) {
	started := p.clock()
	if p.metrics != nil {
		p.metrics.RecordStarted()
		defer func() { p.metrics.RecordDuration(time.Since(started)) }()
	}

	order, err := p.process(ctx, in)
	if err != nil {
		if p.metrics != nil {
			reason := failureReason(err)
			p.metrics.RecordFailed(reason)
			if reason == "stock" {
				p.metrics.RecordStockConflict()
			}
		}
		return domain.Order{}, err
	}

	if p.metrics != nil {
		p.metrics.RecordSucceeded()
	}
	p.logger.WithFields(log.Fields{
		"order_number": order.OrderNumber,
		"currency":     order.Currency,
		"total":        order.Total.String(),
		"lines":        len(order.Lines),
	}).Info("order placed")

	return order, nil
}

func (p *Processor) process(ctx context.Context, in Input) (domain.Order, error) {
	if in.Cart == nil {
		return domain.Order{}, domain.ErrCartEmpty
	}
	if err := in.Cart.PreloadProducts(ctx); err != nil {
		return domain.Order{}, fmt.Errorf("preload cart products: %w", err)
	}
	// Пустая корзина — precondition failure, транзакция не открывается.
	if in.Cart.Empty() {
		return domain.Order{}, domain.ErrCartEmpty
	}

	currencyCode := p.converter.Normalize(in.Currency)
	// Курс снимается один раз до транзакции и применяется ко всем позициям.
	rate, err := p.converter.SnapshotRate(ctx, currencyCode)
	if err != nil {
		return domain.Order{}, err
	}

	lines := in.Cart.Lines()
	ids := distinctProductIDs(lines)

	var order domain.Order
	err = p.store.WithinCheckout(ctx, func(tx domain.CheckoutTx) error {
		locked, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}

		// Товар, исчезнувший между advisory-проверкой и блокировкой.
		for _, id := range ids {
			if _, ok := locked[id]; !ok {
				return &domain.StockError{}
			}
		}
		for _, product := range locked {
			if product.ShopID != in.ShopID {
				return domain.ErrMixedShopCart
			}
		}

		// Авторитетная перепроверка под блокировкой: ровно здесь конкурентные
		// checkout за последнюю единицу разрешаются в одного победителя.
		for _, line := range lines {
			product := locked[line.ProductID]
			if line.Quantity > product.Stock {
				return &domain.StockError{ProductName: product.Name, Available: product.Stock}
			}
		}

		order = p.buildOrder(in, currencyCode, rate, lines, locked)
		if errs := order.ValidateInvariants(); len(errs) > 0 {
			// Непройденные инварианты на этом пути означают, что гонка
			// просочилась мимо блокировки; наружу — как ошибка стока.
			return fmt.Errorf("order validation: %w", errors.Join(append(errs, domain.ErrStock)...))
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("persist order: %w", err)
		}

		for _, line := range lines {
			product := locked[line.ProductID]
			newStock := product.Stock - line.Quantity
			if err := tx.UpdateStock(ctx, product.ID, newStock); err != nil {
				return fmt.Errorf("decrement stock for product %d: %w", product.ID, err)
			}

			if newStock < p.lowStockThreshold {
				if err := p.enqueueStockLow(ctx, tx, product, newStock); err != nil {
					return err
				}
			}
		}

		return p.enqueueOrderConfirmed(ctx, tx, order)
	})
	if err != nil {
		return domain.Order{}, err
	}

	return order, nil
}

func (p *Processor) buildOrder(in Input, currencyCode string, rate decimal.Decimal, lines []cart.Line, products map[int64]domain.Product) domain.Order {
	now := p.clock().UTC()

	order := domain.Order{
		ID:           uuid.NewString(),
		OrderNumber:  newOrderNumber(now),
		UserID:       in.UserID,
		ShopID:       in.ShopID,
		Status:       domain.OrderStatusPending,
		Currency:     currencyCode,
		ExchangeRate: rate,
		Shipping:     in.Shipping,
		PlacedAt:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	total := decimal.Zero
	for _, line := range lines {
		product := products[line.ProductID]
		qty := decimal.NewFromInt(int64(line.Quantity))

		// Авторитетный снапшот цены — текущая цена под блокировкой,
		// не цена на момент добавления в корзину.
		unitPrice := product.Price
		totalPrice := unitPrice.Mul(qty)
		unitPriceLocal := p.toLocal(unitPrice, currencyCode, rate)

		order.Lines = append(order.Lines, domain.OrderLine{
			ID:              uuid.NewString(),
			ProductID:       product.ID,
			ProductName:     product.Name,
			Quantity:        line.Quantity,
			UnitPrice:       unitPrice,
			TotalPrice:      totalPrice,
			Currency:        currencyCode,
			ExchangeRate:    rate,
			UnitPriceLocal:  unitPriceLocal,
			TotalPriceLocal: unitPriceLocal.Mul(qty),
			CreatedAt:       now,
		})
		total = total.Add(totalPrice)
	}

	order.Total = total
	order.TotalLocal = p.toLocal(total, currencyCode, rate)
	return order
}

// toLocal переводит сумму из базовой валюты в валюту заказа по
// снятому курсу. Для базовой валюты — тождество без округления.
func (p *Processor) toLocal(amount decimal.Decimal, currencyCode string, rate decimal.Decimal) decimal.Decimal {
	if currencyCode == p.converter.Base() {
		return amount
	}
	// Нулевой курс отсечён при снятии снапшота.
	return amount.Div(rate)
}

func (p *Processor) enqueueOrderConfirmed(ctx context.Context, tx domain.CheckoutTx, order domain.Order) error {
	payload, err := json.Marshal(kafka.NewOrderConfirmedEvent(order))
	if err != nil {
		return fmt.Errorf("marshal order confirmed event: %w", err)
	}
	if _, err := tx.EnqueueOutbox(ctx, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     string(kafka.EventTypeOrderConfirmed),
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("enqueue order confirmation: %w", err)
	}
	return nil
}

func (p *Processor) enqueueStockLow(ctx context.Context, tx domain.CheckoutTx, product domain.Product, newStock int) error {
	payload, err := json.Marshal(kafka.NewStockLowEvent(product, newStock, p.lowStockThreshold))
	if err != nil {
		return fmt.Errorf("marshal stock low event: %w", err)
	}
	if _, err := tx.EnqueueOutbox(ctx, domain.OutboxMessage{
		AggregateType: "product",
		AggregateID:   fmt.Sprintf("%d", product.ID),
		EventType:     string(kafka.EventTypeStockLow),
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("enqueue low stock alert: %w", err)
	}
	if p.metrics != nil {
		p.metrics.RecordLowStock()
	}
	return nil
}

// newOrderNumber генерирует человекочитаемый номер заказа вида
// BH20250828A1B2C3. Назначается ровно один раз, до первого сохранения.
func newOrderNumber(now time.Time) string {
	buf := make([]byte, 3)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("BH%s%s", now.Format("20060102"), strings.ToUpper(hex.EncodeToString(buf)))
}

func distinctProductIDs(lines []cart.Line) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	// Батч-блокировка по возрастанию id защищает от deadlock'ов между
	// конкурентными checkout с пересекающимися товарами.
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrCartEmpty):
		return "empty_cart"
	case errors.Is(err, domain.ErrMixedShopCart):
		return "mixed_shop"
	case errors.Is(err, domain.ErrStock):
		return "stock"
	case errors.Is(err, domain.ErrConversion):
		return "conversion"
	default:
		return "error"
	}
}
