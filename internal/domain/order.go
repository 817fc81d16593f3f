package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа в витрине.
type OrderStatus string

const (
	// OrderStatusPending — заказ оформлен, ожидает обработки магазином.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing — магазин собирает заказ.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ получен покупателем.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён до доставки.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded — по заказу оформлен возврат.
	OrderStatusRefunded OrderStatus = "refunded"
)

// OrderLine представляет одну позицию заказа. Цены — замороженный
// снапшот на момент покупки: последующие изменения живой цены товара
// не должны менять уже созданную позицию.
type OrderLine struct {
	ID          string
	ProductID   int64
	ProductName string
	Quantity    int
	// UnitPrice и TotalPrice — в базовой валюте.
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
	// Currency и *_Local — зеркало в валюте заказа по курсу ExchangeRate.
	Currency        string
	ExchangeRate    decimal.Decimal
	UnitPriceLocal  decimal.Decimal
	TotalPriceLocal decimal.Decimal
	CreatedAt       time.Time
}

// Order агрегирует состояние заказа и его позиции. Заказ монопольно
// владеет позициями; товары он не владеет — только ссылается.
type Order struct {
	ID          string
	OrderNumber string
	// UserID пустой для гостевого заказа.
	UserID string
	ShopID int64
	Status OrderStatus
	// Currency — ISO-код валюты, в которой покупатель оформил заказ.
	Currency string
	// ExchangeRate — снапшот курса base→currency на момент заказа.
	ExchangeRate decimal.Decimal
	// Total — в базовой валюте; TotalLocal — в Currency.
	Total      decimal.Decimal
	TotalLocal decimal.Decimal
	Shipping   ShippingInfo
	Lines      []OrderLine
	PlacedAt   time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.OrderNumber == "" {
		errs = append(errs, ErrOrderNumberRequired)
	}
	if o.ShopID == 0 {
		errs = append(errs, ErrShopRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrLinesRequired)
	}
	if o.Total.IsNegative() {
		errs = append(errs, ErrTotalNegative)
	}
	if o.TotalLocal.IsNegative() {
		errs = append(errs, ErrTotalNegative)
	}

	// Сверяем сумму заказа с суммой позиций: unit_price * qty.
	calc := decimal.Zero
	for _, line := range o.Lines {
		if line.Quantity <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
		// Нулевая цена легальна: каталог допускает бесплатные товары.
		if line.UnitPrice.IsNegative() {
			errs = append(errs, ErrLinePriceInvalid)
		}
		if !line.TotalPrice.Equal(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))) {
			errs = append(errs, ErrLineTotalMismatch)
		}
		calc = calc.Add(line.TotalPrice)
	}
	if len(o.Lines) > 0 && !calc.Equal(o.Total) {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}
