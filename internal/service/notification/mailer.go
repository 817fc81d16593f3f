// Package notification доставляет письма по событиям витрины:
// подтверждение заказа покупателю и low-stock алерт владельцу магазина.
package notification

import (
	log "github.com/sirupsen/logrus"

	"github.com/leduyvuong/ban-hang/internal/messaging/kafka"
)

// Mailer отправляет уведомления. Реализация должна быть идемпотентной:
// outbox доставляет события at-least-once, и одно письмо может прийти
// на отправку дважды.
type Mailer interface {
	SendOrderConfirmation(event kafka.OrderConfirmedEvent) error
	SendLowStockAlert(event kafka.StockLowEvent) error
}

// LogMailer пишет уведомления в лог вместо реальной почты.
// Используется в локальной разработке и как заглушка до интеграции
// с почтовым провайдером.
type LogMailer struct {
	logger *log.Entry
}

// NewLogMailer создаёт лог-реализацию Mailer.
func NewLogMailer(logger *log.Entry) *LogMailer {
	if logger == nil {
		logger = log.WithField("component", "log-mailer")
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendOrderConfirmation(event kafka.OrderConfirmedEvent) error {
	m.logger.WithFields(log.Fields{
		"order_number": event.OrderNumber,
		"user_id":      event.UserID,
		"currency":     event.Currency,
		"total":        event.Total,
	}).Info("order confirmation email sent")
	return nil
}

func (m *LogMailer) SendLowStockAlert(event kafka.StockLowEvent) error {
	m.logger.WithFields(log.Fields{
		"product_id":   event.ProductID,
		"product_name": event.ProductName,
		"stock":        event.Stock,
		"threshold":    event.Threshold,
	}).Warn("low stock alert email sent")
	return nil
}

var _ Mailer = (*LogMailer)(nil)
