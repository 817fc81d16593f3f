package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/leduyvuong/ban-hang/internal/domain"
)

// RateProvider — in-memory таблица курсов валют к базовой.
type RateProvider struct {
	mu    sync.RWMutex
	base  string
	rates map[string]decimal.Decimal
}

// NewRateProvider создаёт провайдер курсов. Курс базовой валюты к самой
// себе всегда равен единице и в таблице не хранится.
func NewRateProvider(base string, rates map[string]decimal.Decimal) *RateProvider {
	p := &RateProvider{
		base:  strings.ToUpper(strings.TrimSpace(base)),
		rates: make(map[string]decimal.Decimal, len(rates)),
	}
	for code, rate := range rates {
		p.rates[strings.ToUpper(strings.TrimSpace(code))] = rate
	}
	return p
}

// SetRate обновляет курс валюты (используется в тестах и демо-наполнении).
func (p *RateProvider) SetRate(code string, rate decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates[strings.ToUpper(strings.TrimSpace(code))] = rate
}

// RateToBase возвращает курс валюты к базовой или ErrCurrencyUnknown.
func (p *RateProvider) RateToBase(ctx context.Context, code string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Decimal{}, err
	}

	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == p.base {
		return decimal.NewFromInt(1), nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	rate, ok := p.rates[normalized]
	if !ok {
		return decimal.Decimal{}, domain.ErrCurrencyUnknown
	}
	return rate, nil
}

var _ domain.RateProvider = (*RateProvider)(nil)
