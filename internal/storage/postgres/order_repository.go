package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leduyvuong/ban-hang/internal/domain"
)

const orderColumns = `
	id, order_number, user_id, shop_id, status, currency, exchange_rate,
	total, total_local,
	ship_name, ship_address, ship_city, ship_postal_code, ship_phone,
	placed_at, created_at, updated_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию read-стороны заказов.
// Запись заказов идёт только через checkout-транзакцию.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(queryCtx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id)

	return r.scanOrderWithLines(queryCtx, row)
}

func (r *orderRepository) GetByNumber(ctx context.Context, number string) (domain.Order, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(queryCtx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE order_number = $1
	`, number)

	return r.scanOrderWithLines(queryCtx, row)
}

func (r *orderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		ORDER BY placed_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(queryCtx, query+" LIMIT $2", userID, limit)
	} else {
		rows, err = r.db.QueryContext(queryCtx, query, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		lines, err := r.loadLines(queryCtx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}

	return orders, nil
}

func (r *orderRepository) scanOrderWithLines(ctx context.Context, row rowScanner) (domain.Order, error) {
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	lines, err := r.loadLines(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines

	return order, nil
}

func (r *orderRepository) loadLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, quantity,
		       unit_price, total_price, currency, exchange_rate,
		       unit_price_local, total_price_local, created_at
		FROM order_lines
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(
			&line.ID, &line.ProductID, &line.ProductName, &line.Quantity,
			&line.UnitPrice, &line.TotalPrice, &line.Currency, &line.ExchangeRate,
			&line.UnitPriceLocal, &line.TotalPriceLocal, &line.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}

	return lines, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.UserID, &order.ShopID,
		&status, &order.Currency, &order.ExchangeRate,
		&order.Total, &order.TotalLocal,
		&order.Shipping.Name, &order.Shipping.Address, &order.Shipping.City,
		&order.Shipping.PostalCode, &order.Shipping.Phone,
		&order.PlacedAt, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
