package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product — снапшот товара из каталога. Каталог мутируется извне,
// поэтому снапшот никогда не считается авторитетным: актуальный остаток
// перечитывается под блокировкой в момент checkout.
type Product struct {
	ID        int64
	ShopID    int64
	Name      string
	Slug      string
	// Price — цена за единицу в базовой валюте.
	Price     decimal.Decimal
	Stock     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ShippingInfo — данные доставки. Для checkout-ядра это непрозрачный
// блок: он прикрепляется к заказу и не валидируется здесь.
type ShippingInfo struct {
	Name       string
	Address    string
	City       string
	PostalCode string
	Phone      string
}
