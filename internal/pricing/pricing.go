package pricing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"BookingSettlement/internal/apperr"
	"BookingSettlement/internal/models"
)

// RateStore is the part of the store the pricing service reads.
type RateStore interface {
	LatestRate(ctx context.Context, fiat, symbol string) (*models.ConversionRate, error)
	InsertRate(ctx context.Context, rate *models.ConversionRate) error
}

// Service resolves the fiat to native-token rate. Operator-set rates in the
// store win over the configured fallback.
type Service struct {
	Store        RateStore
	FiatCurrency string
	Symbol       string
	FallbackRate decimal.Decimal
	Now          func() time.Time
}

type Snapshot struct {
	FiatCurrency string          `json:"fiatCurrency"`
	Symbol       string          `json:"symbol"`
	Rate         decimal.Decimal `json:"rate"`
	Source       string          `json:"source"`
	At           time.Time       `json:"at"`
}

func (s Service) CurrentSnapshot(ctx context.Context) (Snapshot, error) {
	if s.Store != nil {
		r, err := s.Store.LatestRate(ctx, s.FiatCurrency, s.Symbol)
		switch {
		case err == nil:
			return Snapshot{
				FiatCurrency: r.FiatCurrency,
				Symbol:       r.Symbol,
				Rate:         r.Rate,
				Source:       r.Source,
				At:           r.EffectiveAt,
			}, nil
		case !errors.Is(err, apperr.ErrNotFound):
			return Snapshot{}, err
		}
	}
	if !s.FallbackRate.IsPositive() {
		return Snapshot{}, apperr.New(apperr.KindDependencyUnavailable, "no conversion rate configured for %s/%s", s.FiatCurrency, s.Symbol)
	}
	return Snapshot{
		FiatCurrency: s.FiatCurrency,
		Symbol:       s.Symbol,
		Rate:         s.FallbackRate,
		Source:       "config",
		At:           s.now(),
	}, nil
}

// SetRate records a new operator rate; it becomes the current snapshot.
func (s Service) SetRate(ctx context.Context, rate decimal.Decimal, source string) (Snapshot, error) {
	if !rate.IsPositive() {
		return Snapshot{}, apperr.Validation("rate must be positive")
	}
	if source == "" {
		source = "admin"
	}
	r := &models.ConversionRate{
		FiatCurrency: s.FiatCurrency,
		Symbol:       s.Symbol,
		Rate:         rate,
		Source:       source,
		EffectiveAt:  s.now(),
	}
	if err := s.Store.InsertRate(ctx, r); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{FiatCurrency: r.FiatCurrency, Symbol: r.Symbol, Rate: r.Rate, Source: r.Source, At: r.EffectiveAt}, nil
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// ToBaseUnits converts a fiat amount to the chain's smallest unit, rounding
// up so the recipient is never underpaid.
func ToBaseUnits(fiat, rate decimal.Decimal, decimals int) (string, error) {
	if !rate.IsPositive() {
		return "", fmt.Errorf("invalid rate %s", rate)
	}
	if !fiat.IsPositive() {
		return "", fmt.Errorf("invalid amount %s", fiat)
	}
	q := new(big.Rat).Quo(fiat.Shift(int32(decimals)).Rat(), rate.Rat())
	units, rem := new(big.Int).QuoRem(q.Num(), q.Denom(), new(big.Int))
	if rem.Sign() > 0 {
		units.Add(units, big.NewInt(1))
	}
	return units.String(), nil
}
