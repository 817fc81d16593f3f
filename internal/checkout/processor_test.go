package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leduyvuong/ban-hang/internal/cart"
	"github.com/leduyvuong/ban-hang/internal/currency"
	"github.com/leduyvuong/ban-hang/internal/domain"
	"github.com/leduyvuong/ban-hang/internal/messaging/kafka"
	"github.com/leduyvuong/ban-hang/internal/storage/memory"
)

var orderNumberPattern = regexp.MustCompile(`^BH\d{8}[0-9A-F]{6}$`)

type fixture struct {
	products  *memory.ProductRepository
	orders    *memory.OrderRepository
	outbox    *memory.OutboxRepository
	processor *Processor
}

func newFixture(t *testing.T, options ...Option) *fixture {
	t.Helper()

	products := memory.NewProductRepository(
		domain.Product{ID: 1, ShopID: 1, Name: "Desk Lamp", Slug: "desk-lamp", Price: decimal.RequireFromString("49.99"), Stock: 3},
		domain.Product{ID: 2, ShopID: 1, Name: "Coffee Mug", Slug: "coffee-mug", Price: decimal.RequireFromString("9.50"), Stock: 100},
		domain.Product{ID: 3, ShopID: 2, Name: "Ceramic Vase", Slug: "ceramic-vase", Price: decimal.RequireFromString("32.00"), Stock: 8},
	)
	orders := memory.NewOrderRepository()
	outbox := memory.NewOutboxRepository()
	rates := memory.NewRateProvider("USD", map[string]decimal.Decimal{
		"EUR": decimal.RequireFromString("1.10"),
	})

	store := memory.NewCheckoutStore(products, orders, outbox)
	processor := NewProcessor(store, currency.NewConverter(rates), options...)

	return &fixture{products: products, orders: orders, outbox: outbox, processor: processor}
}

func (f *fixture) cartWith(t *testing.T, items ...cart.Line) *cart.Cart {
	t.Helper()

	c := cart.New(f.products)
	for _, item := range items {
		require.NoError(t, c.AddItem(context.Background(), item.ProductID, item.Quantity))
	}
	return c
}

func shipping() domain.ShippingInfo {
	return domain.ShippingInfo{Name: "Anna Smith", Address: "12 Main St", City: "Hanoi"}
}

func TestProcessHappyPath(t *testing.T) {
	f := newFixture(t)

	order, err := f.processor.Process(context.Background(), Input{
		UserID:   "user-1",
		ShopID:   1,
		Cart:     f.cartWith(t, cart.Line{ProductID: 1, Quantity: 2}),
		Shipping: shipping(),
		Currency: "USD",
	})
	require.NoError(t, err)

	assert.Regexp(t, orderNumberPattern, order.OrderNumber)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, "USD", order.Currency)
	assert.Equal(t, "99.98", order.Total.StringFixed(2))
	assert.True(t, order.TotalLocal.Equal(order.Total))
	require.Len(t, order.Lines, 1)
	assert.Equal(t, "49.99", order.Lines[0].UnitPrice.StringFixed(2))
	assert.Equal(t, 2, order.Lines[0].Quantity)

	// Сток списан, заказ сохранён.
	product, err := f.products.Find(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, product.Stock)

	saved, err := f.orders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, saved.OrderNumber)
}

func TestProcessEnqueuesConfirmationAndLowStock(t *testing.T) {
	f := newFixture(t)

	order, err := f.processor.Process(context.Background(), Input{
		ShopID:   1,
		Cart:     f.cartWith(t, cart.Line{ProductID: 1, Quantity: 2}),
		Shipping: shipping(),
	})
	require.NoError(t, err)

	pending := f.outbox.AllPending()
	require.Len(t, pending, 2)

	// stock.low встаёт в очередь до order.confirmed: сток 1 ниже порога 5.
	byType := make(map[string]domain.OutboxMessage, len(pending))
	for _, msg := range pending {
		byType[msg.EventType] = msg
	}

	confirmed, ok := byType[string(kafka.EventTypeOrderConfirmed)]
	require.True(t, ok)
	assert.Equal(t, order.ID, confirmed.AggregateID)
	var confirmedEvent kafka.OrderConfirmedEvent
	require.NoError(t, json.Unmarshal(confirmed.Payload, &confirmedEvent))
	assert.Equal(t, order.OrderNumber, confirmedEvent.OrderNumber)

	low, ok := byType[string(kafka.EventTypeStockLow)]
	require.True(t, ok)
	var lowEvent kafka.StockLowEvent
	require.NoError(t, json.Unmarshal(low.Payload, &lowEvent))
	assert.Equal(t, int64(1), lowEvent.ProductID)
	assert.Equal(t, 1, lowEvent.Stock)
	assert.Equal(t, 5, lowEvent.Threshold)
}

func TestProcessRespectsLowStockThresholdOption(t *testing.T) {
	f := newFixture(t, WithLowStockThreshold(1))

	_, err := f.processor.Process(context.Background(), Input{
		ShopID:   1,
		Cart:     f.cartWith(t, cart.Line{ProductID: 1, Quantity: 2}),
		Shipping: shipping(),
	})
	require.NoError(t, err)

	// Остаток 1 не ниже порога 1 — только подтверждение заказа.
	pending := f.outbox.AllPending()
	require.Len(t, pending, 1)
	assert.Equal(t, string(kafka.EventTypeOrderConfirmed), pending[0].EventType)
}

func TestProcessForeignCurrencySnapshotsRate(t *testing.T) {
	f := newFixture(t)

	order, err := f.processor.Process(context.Background(), Input{
		ShopID:   1,
		Cart:     f.cartWith(t, cart.Line{ProductID: 1, Quantity: 2}),
		Shipping: shipping(),
		Currency: "eur",
	})
	require.NoError(t, err)

	assert.Equal(t, "EUR", order.Currency)
	assert.Equal(t, "1.1", order.ExchangeRate.String())
	assert.Equal(t, "99.98", order.Total.StringFixed(2))

	expectedLocal := decimal.RequireFromString("99.98").Div(decimal.RequireFromString("1.10"))
	assert.True(t, order.TotalLocal.Equal(expectedLocal), "got %s", order.TotalLocal)

	require.Len(t, order.Lines, 1)
	line := order.Lines[0]
	assert.Equal(t, "EUR", line.Currency)
	assert.True(t, line.TotalPriceLocal.Equal(line.UnitPriceLocal.Mul(decimal.NewFromInt(2))))
}

func TestProcessUnknownCurrencyFailsBeforeTransaction(t *testing.T) {
	f := newFixture(t)

	_, err := f.processor.Process(context.Background(), Input{
		ShopID:   1,
		Cart:     f.cartWith(t, cart.Line{ProductID: 1, Quantity: 1}),
		Shipping: shipping(),
		Currency: "XYZ",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConversion))

	product, err := f.products.Find(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, product.Stock)
}

func TestProcessEmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.processor.Process(context.Background(), Input{ShopID: 1, Cart: cart.New(f.products), Shipping: shipping()})
	assert.True(t, errors.Is(err, domain.ErrCartEmpty))

	_, err = f.processor.Process(context.Background(), Input{ShopID: 1, Shipping: shipping()})
	assert.True(t, errors.Is(err, domain.ErrCartEmpty))
}

func TestProcessMixedShopCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.processor.Process(context.Background(), Input{
		ShopID:   1,
		Cart:     f.cartWith(t, cart.Line{ProductID: 1, Quantity: 1}, cart.Line{ProductID: 3, Quantity: 1}),
		Shipping: shipping(),
	})
	assert.True(t, errors.Is(err, domain.ErrMixedShopCart))
}

func TestProcessInsufficientStockRollsBackEverything(t *testing.T) {
	f := newFixture(t)

	c := f.cartWith(t, cart.Line{ProductID: 1, Quantity: 3})
	// Между advisory-проверкой и checkout'ом другой покупатель успел первым.
	require.NoError(t, f.products.UpdateStock(context.Background(), 1, 2))

	_, err := f.processor.Process(context.Background(), Input{ShopID: 1, Cart: c, Shipping: shipping()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStock))
	assert.Equal(t, "Only 2 units of Desk Lamp remain.", err.Error())

	var stockErr *domain.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 2, stockErr.Available)

	// Ничего не записано.
	assert.Equal(t, 0, f.orders.Count())
	assert.Empty(t, f.outbox.AllPending())
	product, err := f.products.Find(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, product.Stock)
}

func TestProcessVanishedProduct(t *testing.T) {
	f := newFixture(t)

	c := f.cartWith(t, cart.Line{ProductID: 1, Quantity: 1}, cart.Line{ProductID: 2, Quantity: 1})
	f.products.Delete(2)

	// PreloadProducts выбрасывает исчезнувшую позицию, заказ оформляется
	// по оставшейся.
	order, err := f.processor.Process(context.Background(), Input{ShopID: 1, Cart: c, Shipping: shipping()})
	require.NoError(t, err)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, int64(1), order.Lines[0].ProductID)
}

func TestProcessSnapshotsPriceAtLockTime(t *testing.T) {
	f := newFixture(t)

	c := f.cartWith(t, cart.Line{ProductID: 2, Quantity: 1})
	// Цена меняется после добавления в корзину, но до checkout'а.
	f.products.Put(domain.Product{ID: 2, ShopID: 1, Name: "Coffee Mug", Slug: "coffee-mug", Price: decimal.RequireFromString("12.00"), Stock: 100})

	order, err := f.processor.Process(context.Background(), Input{ShopID: 1, Cart: c, Shipping: shipping()})
	require.NoError(t, err)
	assert.Equal(t, "12.00", order.Lines[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "12.00", order.Total.StringFixed(2))
}

func TestProcessFreeItem(t *testing.T) {
	f := newFixture(t)
	f.products.Put(domain.Product{ID: 4, ShopID: 1, Name: "Sticker Pack", Slug: "sticker-pack", Price: decimal.Zero, Stock: 10})

	order, err := f.processor.Process(context.Background(), Input{
		ShopID:   1,
		Cart:     f.cartWith(t, cart.Line{ProductID: 4, Quantity: 2}),
		Shipping: shipping(),
	})
	require.NoError(t, err)
	assert.True(t, order.Total.IsZero())
	require.Len(t, order.Lines, 1)
	assert.True(t, order.Lines[0].UnitPrice.IsZero())

	product, err := f.products.Find(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 8, product.Stock)
}

func TestProcessConcurrentCheckoutsForLastUnits(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.products.UpdateStock(context.Background(), 1, 1))

	const attempts = 4
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		c := f.cartWith(t, cart.Line{ProductID: 1, Quantity: 1})
		wg.Add(1)
		go func(c *cart.Cart) {
			defer wg.Done()
			_, err := f.processor.Process(context.Background(), Input{ShopID: 1, Cart: c, Shipping: shipping()})
			results <- err
		}(c)
	}
	wg.Wait()
	close(results)

	var won, lost int
	for err := range results {
		if err == nil {
			won++
			continue
		}
		require.True(t, errors.Is(err, domain.ErrStock), "unexpected error: %v", err)
		lost++
	}
	assert.Equal(t, 1, won, "exactly one checkout wins the last unit")
	assert.Equal(t, attempts-1, lost)

	product, err := f.products.Find(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, product.Stock)
	assert.Equal(t, 1, f.orders.Count())
}

func TestProcessUsesInjectedClock(t *testing.T) {
	fixed := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return fixed }))

	order, err := f.processor.Process(context.Background(), Input{
		ShopID:   1,
		Cart:     f.cartWith(t, cart.Line{ProductID: 2, Quantity: 1}),
		Shipping: shipping(),
	})
	require.NoError(t, err)

	assert.Equal(t, "BH20260828", order.OrderNumber[:10])
	assert.Equal(t, fixed, order.PlacedAt)
	assert.Equal(t, fixed, order.Lines[0].CreatedAt)
}
