package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leduyvuong/ban-hang/internal/domain"
)

func TestProductRepositoryFind(t *testing.T) {
	repo := NewProductRepository(
		domain.Product{ID: 1, ShopID: 1, Name: "Desk Lamp", Price: decimal.RequireFromString("49.99"), Stock: 3},
	)
	ctx := context.Background()

	product, err := repo.Find(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Desk Lamp", product.Name)

	_, err = repo.Find(ctx, 404)
	assert.True(t, errors.Is(err, domain.ErrProductNotFound))
}

func TestProductRepositoryFindByIDsSkipsMissing(t *testing.T) {
	repo := NewProductRepository(
		domain.Product{ID: 1, ShopID: 1, Name: "Desk Lamp"},
		domain.Product{ID: 2, ShopID: 1, Name: "Coffee Mug"},
	)

	found, err := repo.FindByIDs(context.Background(), []int64{1, 2, 404})
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestProductRepositoryUpdateStock(t *testing.T) {
	repo := NewProductRepository(domain.Product{ID: 1, Stock: 3})
	ctx := context.Background()

	require.NoError(t, repo.UpdateStock(ctx, 1, 1))
	product, err := repo.Find(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, product.Stock)

	err = repo.UpdateStock(ctx, 404, 1)
	assert.True(t, errors.Is(err, domain.ErrProductNotFound))
}

func TestOrderRepositoryGetAndGetByNumber(t *testing.T) {
	repo := NewOrderRepository()
	order := domain.Order{ID: "id-1", OrderNumber: "BH20260828AB12CD", UserID: "u1"}
	repo.put(order)
	ctx := context.Background()

	got, err := repo.Get(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, got.OrderNumber)

	got, err = repo.GetByNumber(ctx, "BH20260828AB12CD")
	require.NoError(t, err)
	assert.Equal(t, "id-1", got.ID)

	_, err = repo.Get(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrOrderNotFound))
	_, err = repo.GetByNumber(ctx, "BH00000000000000")
	assert.True(t, errors.Is(err, domain.ErrOrderNotFound))
}

func TestOrderRepositoryListByUserNewestFirst(t *testing.T) {
	repo := NewOrderRepository()
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	repo.put(domain.Order{ID: "a", UserID: "u1", PlacedAt: base})
	repo.put(domain.Order{ID: "b", UserID: "u1", PlacedAt: base.Add(time.Hour)})
	repo.put(domain.Order{ID: "c", UserID: "u2", PlacedAt: base.Add(2 * time.Hour)})

	orders, err := repo.ListByUser(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "b", orders[0].ID)
	assert.Equal(t, "a", orders[1].ID)

	limited, err := repo.ListByUser(context.Background(), "u1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "b", limited[0].ID)
}

func TestRateProviderLookup(t *testing.T) {
	provider := NewRateProvider("usd", map[string]decimal.Decimal{
		"eur": decimal.RequireFromString("1.10"),
	})
	ctx := context.Background()

	rate, err := provider.RateToBase(ctx, " EUR ")
	require.NoError(t, err)
	assert.Equal(t, "1.1", rate.String())

	rate, err = provider.RateToBase(ctx, "USD")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))

	_, err = provider.RateToBase(ctx, "XYZ")
	assert.True(t, errors.Is(err, domain.ErrCurrencyUnknown))

	provider.SetRate("gbp", decimal.RequireFromString("1.27"))
	rate, err = provider.RateToBase(ctx, "GBP")
	require.NoError(t, err)
	assert.Equal(t, "1.27", rate.String())
}

func TestCartStoreRoundTrip(t *testing.T) {
	store := NewCartStore()
	ctx := context.Background()

	entries, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, entries)

	saved := []domain.CartEntry{{ProductID: 1, Quantity: 2}}
	require.NoError(t, store.Save(ctx, "s1", saved))

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)

	// Загруженный срез — копия: мутации не протекают в хранилище.
	loaded[0].Quantity = 99
	again, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, again[0].Quantity)

	require.NoError(t, store.Delete(ctx, "s1"))
	entries, err = store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, entries)
}
