package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего номера заказа.
	ErrOrderNumberRequired = errors.New("order_number is required")
	// Ошибка отсутствующего магазина-владельца заказа.
	ErrShopRequired = errors.New("shop_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrLinesRequired = errors.New("order must contain at least one line")
	// Ошибка отрицательной суммы заказа.
	ErrTotalNegative = errors.New("order total must be non-negative")
	// Ошибка при некорректном количестве в позиции (<= 0).
	ErrLineQtyInvalid = errors.New("line quantity must be greater than zero")
	// Ошибка отрицательной цены позиции.
	ErrLinePriceInvalid = errors.New("line unit price must be non-negative")
	// Ошибка несоответствия total_price позиции произведению цены на количество.
	ErrLineTotalMismatch = errors.New("line total does not match unit price times quantity")
	// Ошибка несоответствия суммы заказа сумме позиций.
	ErrTotalMismatch = errors.New("order total does not match lines sum")

	// ErrProductNotFound возвращается каталогом, если товара нет.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrCartEmpty — в корзине нечего оформлять; транзакция не открывается.
	ErrCartEmpty = errors.New("your cart is empty")
	// ErrOutOfStock — семейство advisory-ошибок корзины: запрошенное количество
	// превышает остаток, прочитанный без блокировки.
	ErrOutOfStock = errors.New("not enough stock")
	// ErrStock — семейство ошибок checkout: авторитетный остаток под
	// блокировкой оказался недостаточным. Ожидаемый исход гонки за
	// ограниченный сток, безопасно повторить оформление целиком.
	ErrStock = errors.New("insufficient stock")
	// ErrMixedShopCart — корзина ссылается на товары нескольких магазинов.
	ErrMixedShopCart = errors.New("cart references products from more than one shop")
	// ErrCurrencyUnknown возвращается провайдером курсов для неизвестного кода.
	ErrCurrencyUnknown = errors.New("unknown currency")
	// ErrConversion — семейство ошибок конвертации валют (нет курса, нулевой курс).
	ErrConversion = errors.New("currency conversion failed")
	// ErrInvalidQuantity — нечисловое или отрицательное количество на границе API.
	ErrInvalidQuantity = errors.New("quantity must be a non-negative integer")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ErrStockContention — превышен lock-wait timeout при захвате строк товаров.
// Принадлежит семейству ErrStock: транзиентная ошибка, checkout можно повторить.
var ErrStockContention = fmt.Errorf("timed out waiting for product row locks: %w", ErrStock)

// OutOfStockError — advisory-ошибка уровня корзины. Корзина остаётся в
// последнем валидном состоянии; сообщение показывается пользователю.
type OutOfStockError struct {
	ProductName string
	Available   int
}

func (e *OutOfStockError) Error() string {
	if e.Available <= 0 {
		return fmt.Sprintf("%s is currently out of stock.", e.ProductName)
	}
	return fmt.Sprintf("Only %d %s of %s available.", e.Available, pluralUnits(e.Available), e.ProductName)
}

// Is относит ошибку к семейству ErrOutOfStock для errors.Is.
func (e *OutOfStockError) Is(target error) bool { return target == ErrOutOfStock }

// StockError — ошибка проверки остатка под блокировкой в checkout.
// Пустое имя товара означает, что часть товаров корзины исчезла из каталога.
type StockError struct {
	ProductName string
	Available   int
}

func (e *StockError) Error() string {
	if e.ProductName == "" {
		return "One or more products are no longer available."
	}
	if e.Available <= 0 {
		return fmt.Sprintf("%s is no longer available.", e.ProductName)
	}
	return fmt.Sprintf("Only %d %s of %s remain.", e.Available, pluralUnits(e.Available), e.ProductName)
}

// Is относит ошибку к семейству ErrStock для errors.Is.
func (e *StockError) Is(target error) bool { return target == ErrStock }

func pluralUnits(n int) string {
	if n == 1 {
		return "unit"
	}
	return "units"
}
