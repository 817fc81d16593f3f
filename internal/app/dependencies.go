package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/leduyvuong/ban-hang/internal/domain"
	"github.com/leduyvuong/ban-hang/internal/health"
	"github.com/leduyvuong/ban-hang/internal/storage/memory"
	"github.com/leduyvuong/ban-hang/internal/storage/postgres"
	redisstore "github.com/leduyvuong/ban-hang/internal/storage/redis"
)

// Dependencies — собранный storage-слой сервиса.
type Dependencies struct {
	Catalog  domain.ProductRepository
	Orders   domain.OrderRepository
	Rates    domain.RateProvider
	Carts    domain.CartStore
	Checkout domain.CheckoutStore
	Outbox   domain.OutboxRepository

	pg      *postgres.Store
	redisDB *goredis.Client
}

// buildDependencies выбирает реализации хранилищ по конфигурации:
// postgres при заданном DSN, иначе in-memory с демо-каталогом;
// redis для корзин при заданном адресе.
func buildDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	deps := &Dependencies{}

	if dsn := cfg.Postgres.DSN; dsn != "" {
		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}

		deps.pg = store
		deps.Catalog = postgres.NewProductRepository(store)
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Rates = postgres.NewRateRepository(store, cfg.App.BaseCurrency)
		deps.Checkout = postgres.NewCheckoutStore(store).WithLockTimeout(cfg.Checkout.LockTimeout)
		deps.Outbox = postgres.NewOutboxRepository(store)
		logger.Info("postgres storage initialized")
	} else {
		products := memory.NewProductRepository(demoProducts()...)
		orders := memory.NewOrderRepository()
		outbox := memory.NewOutboxRepository()

		deps.Catalog = products
		deps.Orders = orders
		deps.Rates = memory.NewRateProvider(cfg.App.BaseCurrency, demoRates())
		deps.Checkout = memory.NewCheckoutStore(products, orders, outbox)
		deps.Outbox = outbox
		logger.Warn("postgres dsn is empty, using in-memory storage with demo catalog")
	}

	if addr := cfg.Redis.Addr; addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			deps.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		deps.redisDB = client
		deps.Carts = redisstore.NewCartStore(client, cfg.Redis.CartTTL)
		logger.Info("redis cart store initialized")
	} else {
		deps.Carts = memory.NewCartStore()
		logger.Warn("redis addr is empty, carts are stored in process memory")
	}

	return deps, nil
}

// RegisterHealthChecks добавляет проверки внешних зависимостей.
func (d *Dependencies) RegisterHealthChecks(handler *health.Handler) {
	if d.pg != nil {
		handler.RegisterChecker("postgres", health.NewSimpleChecker("postgres", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return d.pg.Ping(ctx)
		}))
	}
	if d.redisDB != nil {
		handler.RegisterChecker("redis", health.NewSimpleChecker("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return d.redisDB.Ping(ctx).Err()
		}))
	}
}

// Close освобождает внешние подключения.
func (d *Dependencies) Close() {
	if d.redisDB != nil {
		_ = d.redisDB.Close()
	}
	if d.pg != nil {
		_ = d.pg.Close()
	}
}

func demoProducts() []domain.Product {
	return []domain.Product{
		{ID: 1, ShopID: 1, Name: "Desk Lamp", Slug: "desk-lamp", Price: decimal.RequireFromString("49.99"), Stock: 3},
		{ID: 2, ShopID: 1, Name: "Coffee Mug", Slug: "coffee-mug", Price: decimal.RequireFromString("9.50"), Stock: 25},
		{ID: 3, ShopID: 1, Name: "Limited Run Poster", Slug: "limited-run-poster", Price: decimal.RequireFromString("15.00"), Stock: 1},
		{ID: 4, ShopID: 2, Name: "Ceramic Vase", Slug: "ceramic-vase", Price: decimal.RequireFromString("32.00"), Stock: 8},
	}
}

func demoRates() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"EUR": decimal.RequireFromString("1.10"),
		"GBP": decimal.RequireFromString("1.27"),
		"VND": decimal.RequireFromString("0.00004"),
	}
}
