package currency

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/leduyvuong/ban-hang/internal/domain"
)

// BaseCurrency — валюта, в которой каталог хранит цены.
const BaseCurrency = "USD"

// Converter переводит суммы между валютами через базовую. Вся арифметика
// идёт на decimal: повторные конвертации не должны накапливать дрейф
// в центах, как это было бы на float.
type Converter struct {
	rates domain.RateProvider
	base  string
}

// NewConverter создаёт конвертер с базовой валютой по умолчанию.
func NewConverter(rates domain.RateProvider) *Converter {
	return NewConverterWithBase(rates, BaseCurrency)
}

// NewConverterWithBase создаёт конвертер с явной базовой валютой.
func NewConverterWithBase(rates domain.RateProvider, base string) *Converter {
	normalized := strings.ToUpper(strings.TrimSpace(base))
	if normalized == "" {
		normalized = BaseCurrency
	}
	return &Converter{rates: rates, base: normalized}
}

// Base возвращает код базовой валюты.
func (c *Converter) Base() string { return c.base }

// Normalize приводит код валюты к каноничному виду; пустой код означает базовую.
func (c *Converter) Normalize(code string) string {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return c.base
	}
	return normalized
}

// Convert переводит amount из валюты from в валюту to. Совпадающие коды —
// тождество без какого-либо округления.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	fromCode := c.Normalize(from)
	toCode := c.Normalize(to)
	if fromCode == toCode {
		return amount, nil
	}

	base, err := c.ToBase(ctx, amount, fromCode)
	if err != nil {
		return decimal.Zero, err
	}
	return c.FromBase(ctx, base, toCode)
}

// ToBase переводит amount из валюты code в базовую: amount * rate_to_base.
func (c *Converter) ToBase(ctx context.Context, amount decimal.Decimal, code string) (decimal.Decimal, error) {
	code = c.Normalize(code)
	if code == c.base {
		return amount, nil
	}

	rate, err := c.rateFor(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

// FromBase переводит amount из базовой валюты в code: amount / rate_to_base.
func (c *Converter) FromBase(ctx context.Context, amount decimal.Decimal, code string) (decimal.Decimal, error) {
	code = c.Normalize(code)
	if code == c.base {
		return amount, nil
	}

	rate, err := c.rateFor(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}
	if rate.IsZero() {
		return decimal.Zero, fmt.Errorf("invalid exchange rate for %s: %w", code, domain.ErrConversion)
	}
	return amount.Div(rate), nil
}

// SnapshotRate возвращает курс code→база для снапшота на заказе.
// Для базовой валюты курс равен единице; нулевой или отсутствующий
// курс — ошибка семейства ErrConversion.
func (c *Converter) SnapshotRate(ctx context.Context, code string) (decimal.Decimal, error) {
	code = c.Normalize(code)
	if code == c.base {
		return decimal.NewFromInt(1), nil
	}

	rate, err := c.rateFor(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}
	if rate.IsZero() {
		return decimal.Zero, fmt.Errorf("invalid exchange rate for %s: %w", code, domain.ErrConversion)
	}
	return rate, nil
}

func (c *Converter) rateFor(ctx context.Context, code string) (decimal.Decimal, error) {
	rate, err := c.rates.RateToBase(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrCurrencyUnknown) {
			return decimal.Zero, fmt.Errorf("missing currency rate for %s: %w", code, domain.ErrConversion)
		}
		return decimal.Zero, fmt.Errorf("fetch rate for %s: %w", code, err)
	}
	return rate, nil
}
