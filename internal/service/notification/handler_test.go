package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leduyvuong/ban-hang/internal/domain"
	"github.com/leduyvuong/ban-hang/internal/messaging/kafka"
	"github.com/leduyvuong/ban-hang/internal/storage/memory"
)

type recordingMailer struct {
	confirmations []kafka.OrderConfirmedEvent
	alerts        []kafka.StockLowEvent
	err           error
}

func (m *recordingMailer) SendOrderConfirmation(event kafka.OrderConfirmedEvent) error {
	if m.err != nil {
		return m.err
	}
	m.confirmations = append(m.confirmations, event)
	return nil
}

func (m *recordingMailer) SendLowStockAlert(event kafka.StockLowEvent) error {
	if m.err != nil {
		return m.err
	}
	m.alerts = append(m.alerts, event)
	return nil
}

func envelopeMessage(t *testing.T, eventType string, payload any) *sarama.ConsumerMessage {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)
	value, err := json.Marshal(map[string]any{
		"id":         "outbox-1",
		"event_type": eventType,
		"payload":    json.RawMessage(body),
	})
	require.NoError(t, err)

	return &sarama.ConsumerMessage{Topic: kafka.TopicOrderEvents, Value: value}
}

func TestHandlerSendsOrderConfirmation(t *testing.T) {
	mailer := &recordingMailer{}
	handler := NewHandler(mailer, nil, nil)

	event := kafka.OrderConfirmedEvent{
		EventType:   kafka.EventTypeOrderConfirmed,
		OrderID:     "order-1",
		OrderNumber: "BH20260828AAAAAA",
		Currency:    "USD",
		Total:       "99.98",
		TotalLocal:  "99.98",
		PlacedAt:    time.Now().UTC(),
	}

	err := handler.Handle(context.Background(), envelopeMessage(t, "order.confirmed", event))
	require.NoError(t, err)
	require.Len(t, mailer.confirmations, 1)
	assert.Equal(t, "BH20260828AAAAAA", mailer.confirmations[0].OrderNumber)
}

func TestHandlerSendsLowStockAlertWithCurrentStock(t *testing.T) {
	catalog := memory.NewProductRepository(domain.Product{
		ID: 42, ShopID: 1, Name: "Desk Lamp", Stock: 1,
	})
	mailer := &recordingMailer{}
	handler := NewHandler(mailer, catalog, nil)

	event := kafka.StockLowEvent{
		EventType: kafka.EventTypeStockLow,
		ProductID: 42, ProductName: "Desk Lamp", Stock: 2, Threshold: 5,
	}

	err := handler.Handle(context.Background(), envelopeMessage(t, "stock.low", event))
	require.NoError(t, err)
	require.Len(t, mailer.alerts, 1)
	assert.Equal(t, 1, mailer.alerts[0].Stock, "alert carries the rechecked stock")
}

func TestHandlerSkipsAlertWhenStockReplenished(t *testing.T) {
	catalog := memory.NewProductRepository(domain.Product{
		ID: 42, ShopID: 1, Name: "Desk Lamp", Stock: 20,
	})
	mailer := &recordingMailer{}
	handler := NewHandler(mailer, catalog, nil)

	event := kafka.StockLowEvent{
		EventType: kafka.EventTypeStockLow,
		ProductID: 42, ProductName: "Desk Lamp", Stock: 2, Threshold: 5,
	}

	err := handler.Handle(context.Background(), envelopeMessage(t, "stock.low", event))
	require.NoError(t, err)
	assert.Empty(t, mailer.alerts)
}

func TestHandlerSkipsAlertWhenProductGone(t *testing.T) {
	catalog := memory.NewProductRepository()
	mailer := &recordingMailer{}
	handler := NewHandler(mailer, catalog, nil)

	event := kafka.StockLowEvent{
		EventType: kafka.EventTypeStockLow,
		ProductID: 404, ProductName: "Removed", Stock: 1, Threshold: 5,
	}

	err := handler.Handle(context.Background(), envelopeMessage(t, "stock.low", event))
	require.NoError(t, err)
	assert.Empty(t, mailer.alerts)
}

func TestHandlerIgnoresUnknownEventTypes(t *testing.T) {
	mailer := &recordingMailer{}
	handler := NewHandler(mailer, nil, nil)

	err := handler.Handle(context.Background(), envelopeMessage(t, "order.refunded", map[string]any{}))
	require.NoError(t, err)
	assert.Empty(t, mailer.confirmations)
	assert.Empty(t, mailer.alerts)
}

func TestHandlerRejectsMalformedEnvelope(t *testing.T) {
	handler := NewHandler(&recordingMailer{}, nil, nil)

	err := handler.Handle(context.Background(), &sarama.ConsumerMessage{Value: []byte("not-json")})
	assert.Error(t, err)
}
