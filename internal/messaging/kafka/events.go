package kafka

import (
	"time"

	"github.com/leduyvuong/ban-hang/internal/domain"
)

// EventType определяет тип события витрины.
type EventType string

const (
	// EventTypeOrderConfirmed — заказ успешно оформлен, пора слать подтверждение.
	EventTypeOrderConfirmed EventType = "order.confirmed"
	// EventTypeStockLow — остаток товара упал ниже порога после продажи.
	EventTypeStockLow EventType = "stock.low"
)

// Topics для Kafka.
const (
	TopicOrderEvents     = "banhang.order.events"
	TopicStockEvents     = "banhang.stock.events"
	TopicDeadLetterQueue = "banhang.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry-логики consumer'а.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderConfirmedEvent — payload события подтверждения заказа.
// Денежные суммы сериализуются строками, чтобы не терять точность decimal.
type OrderConfirmedEvent struct {
	EventType   EventType `json:"event_type"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id,omitempty"`
	ShopID      int64     `json:"shop_id"`
	Currency    string    `json:"currency"`
	Total       string    `json:"total"`
	TotalLocal  string    `json:"total_local"`
	PlacedAt    time.Time `json:"placed_at"`
}

// StockLowEvent — payload события низкого остатка.
type StockLowEvent struct {
	EventType   EventType `json:"event_type"`
	ProductID   int64     `json:"product_id"`
	ProductName string    `json:"product_name"`
	Stock       int       `json:"stock"`
	Threshold   int       `json:"threshold"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewOrderConfirmedEvent собирает событие подтверждения из заказа.
func NewOrderConfirmedEvent(order domain.Order) OrderConfirmedEvent {
	return OrderConfirmedEvent{
		EventType:   EventTypeOrderConfirmed,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		ShopID:      order.ShopID,
		Currency:    order.Currency,
		Total:       order.Total.String(),
		TotalLocal:  order.TotalLocal.String(),
		PlacedAt:    order.PlacedAt,
	}
}

// NewStockLowEvent собирает событие низкого остатка по товару.
func NewStockLowEvent(product domain.Product, stock, threshold int) StockLowEvent {
	return StockLowEvent{
		EventType:   EventTypeStockLow,
		ProductID:   product.ID,
		ProductName: product.Name,
		Stock:       stock,
		Threshold:   threshold,
		Timestamp:   time.Now().UTC(),
	}
}
