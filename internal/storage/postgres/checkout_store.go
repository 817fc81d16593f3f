package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leduyvuong/ban-hang/internal/domain"
)

const defaultLockTimeout = 3 * time.Second

// CheckoutStore исполняет checkout в одной транзакции PostgreSQL
// с row-level блокировками на товары.
type CheckoutStore struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// NewCheckoutStore создаёт checkout-хранилище поверх подключения.
func NewCheckoutStore(store *Store) *CheckoutStore {
	return &CheckoutStore{db: store.DB(), lockTimeout: defaultLockTimeout}
}

// WithLockTimeout задаёт lock_timeout транзакции; нулевое значение
// отключает таймаут и оставляет поведение базы по умолчанию.
func (s *CheckoutStore) WithLockTimeout(timeout time.Duration) *CheckoutStore {
	s.lockTimeout = timeout
	return s
}

// WithinCheckout открывает транзакцию, исполняет fn и коммитит при
// успехе. Любая ошибка из fn откатывает заказ, позиции, остатки и
// outbox-события одним движением.
func (s *CheckoutStore) WithinCheckout(ctx context.Context, fn func(tx domain.CheckoutTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkout tx: %w", err)
	}

	if s.lockTimeout > 0 {
		// SET LOCAL действует до конца транзакции; зависший конкурент
		// не держит checkout бесконечно.
		if _, err := sqlTx.ExecContext(ctx,
			fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds()),
		); err != nil {
			_ = sqlTx.Rollback()
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	if err := fn(&checkoutTx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit checkout tx: %w", err)
	}
	return nil
}

type checkoutTx struct {
	tx *sql.Tx
}

// LockProducts захватывает FOR UPDATE блокировки одним батчем.
// ORDER BY id фиксирует порядок захвата и исключает deadlock между
// конкурентными checkout с пересекающимися товарами.
func (c *checkoutTx) LockProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	if len(ids) == 0 {
		return map[int64]domain.Product{}, nil
	}

	rows, err := c.tx.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		if isLockContention(err) {
			return nil, domain.ErrStockContention
		}
		return nil, fmt.Errorf("lock products for update: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

func (c *checkoutTx) CreateOrder(ctx context.Context, order domain.Order) error {
	_, err := c.tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_number, user_id, shop_id, status, currency, exchange_rate,
			total, total_local,
			ship_name, ship_address, ship_city, ship_postal_code, ship_phone,
			placed_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		order.ID, order.OrderNumber, order.UserID, order.ShopID,
		string(order.Status), order.Currency, order.ExchangeRate,
		order.Total, order.TotalLocal,
		order.Shipping.Name, order.Shipping.Address, order.Shipping.City,
		order.Shipping.PostalCode, order.Shipping.Phone,
		order.PlacedAt, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, line := range order.Lines {
		if _, err := c.tx.ExecContext(ctx, `
			INSERT INTO order_lines (
				id, order_id, product_id, product_name, quantity,
				unit_price, total_price, currency, exchange_rate,
				unit_price_local, total_price_local, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`,
			line.ID, order.ID, line.ProductID, line.ProductName, line.Quantity,
			line.UnitPrice, line.TotalPrice, line.Currency, line.ExchangeRate,
			line.UnitPriceLocal, line.TotalPriceLocal, line.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}

	return nil
}

func (c *checkoutTx) UpdateStock(ctx context.Context, productID int64, stock int) error {
	res, err := c.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = $2,
		    updated_at = NOW()
		WHERE id = $1
	`, productID, stock)
	if err != nil {
		return fmt.Errorf("update locked product stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (c *checkoutTx) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	if _, err := c.tx.ExecContext(ctx, insertOutboxSQL,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload,
	); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox message in tx: %w", err)
	}

	return msg, nil
}

// isLockContention распознаёт lock_not_available (55P03) и
// deadlock_detected (40P01).
func isLockContention(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "55P03" || pgErr.Code == "40P01"
	}
	return false
}

var _ domain.CheckoutStore = (*CheckoutStore)(nil)
var _ domain.CheckoutTx = (*checkoutTx)(nil)
