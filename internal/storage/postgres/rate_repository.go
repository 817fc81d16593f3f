package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/leduyvuong/ban-hang/internal/domain"
)

type rateRepository struct {
	db   *sql.DB
	base string
}

// NewRateRepository создаёт PostgreSQL-реализацию RateProvider.
// Курс базовой валюты к самой себе не хранится и всегда равен единице.
func NewRateRepository(store *Store, base string) domain.RateProvider {
	return &rateRepository{db: store.DB(), base: strings.ToUpper(strings.TrimSpace(base))}
}

func (r *rateRepository) RateToBase(ctx context.Context, code string) (decimal.Decimal, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == r.base {
		return decimal.NewFromInt(1), nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var rate decimal.Decimal
	err := r.db.QueryRowContext(queryCtx, `
		SELECT rate_to_base
		FROM currency_rates
		WHERE code = $1
	`, normalized).Scan(&rate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Decimal{}, domain.ErrCurrencyUnknown
		}
		return decimal.Decimal{}, fmt.Errorf("select currency rate: %w", err)
	}

	return rate, nil
}

var _ domain.RateProvider = (*rateRepository)(nil)
