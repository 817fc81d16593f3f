package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/leduyvuong/ban-hang/internal/domain"
	"github.com/leduyvuong/ban-hang/internal/messaging/kafka"
)

// envelope — формат сообщения, который пишет outbox-паблишер.
type envelope struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// Handler превращает события из Kafka в уведомления. Неизвестные типы
// событий пропускаются без ошибки, чтобы не зацикливать retry.
type Handler struct {
	mailer  Mailer
	catalog domain.ProductRepository
	logger  *log.Entry
}

// NewHandler создаёт обработчик уведомлений. catalog может быть nil —
// тогда low-stock алерты шлются без перепроверки текущего остатка.
func NewHandler(mailer Mailer, catalog domain.ProductRepository, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "notification")
	}
	return &Handler{mailer: mailer, catalog: catalog, logger: logger}
}

// Handle обрабатывает одно сообщение из Kafka.
func (h *Handler) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	var env envelope
	if err := json.Unmarshal(message.Value, &env); err != nil {
		return fmt.Errorf("unmarshal outbox envelope: %w", err)
	}

	switch kafka.EventType(env.EventType) {
	case kafka.EventTypeOrderConfirmed:
		return h.handleOrderConfirmed(env)
	case kafka.EventTypeStockLow:
		return h.handleStockLow(ctx, env)
	default:
		h.logger.WithFields(log.Fields{
			"event_type": env.EventType,
			"topic":      message.Topic,
		}).Debug("skipping event without notification")
		return nil
	}
}

func (h *Handler) handleOrderConfirmed(env envelope) error {
	var event kafka.OrderConfirmedEvent
	if err := json.Unmarshal(env.Payload, &event); err != nil {
		return fmt.Errorf("unmarshal order confirmed payload: %w", err)
	}

	if err := h.mailer.SendOrderConfirmation(event); err != nil {
		return fmt.Errorf("send order confirmation: %w", err)
	}
	return nil
}

func (h *Handler) handleStockLow(ctx context.Context, env envelope) error {
	var event kafka.StockLowEvent
	if err := json.Unmarshal(env.Payload, &event); err != nil {
		return fmt.Errorf("unmarshal stock low payload: %w", err)
	}

	// Событие могло устареть: товар могли пополнить между commit'ом и
	// доставкой. Алерт идёт по актуальному остатку.
	if h.catalog != nil {
		product, err := h.catalog.Find(ctx, event.ProductID)
		switch {
		case errors.Is(err, domain.ErrProductNotFound):
			h.logger.WithField("product_id", event.ProductID).Info("product gone, skipping low stock alert")
			return nil
		case err != nil:
			return fmt.Errorf("recheck product stock: %w", err)
		case product.Stock >= event.Threshold:
			h.logger.WithFields(log.Fields{
				"product_id": event.ProductID,
				"stock":      product.Stock,
			}).Info("stock replenished, skipping low stock alert")
			return nil
		default:
			event.Stock = product.Stock
		}
	}

	if err := h.mailer.SendLowStockAlert(event); err != nil {
		return fmt.Errorf("send low stock alert: %w", err)
	}
	return nil
}
